package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/company-rag/internal/core/domain"
	"github.com/kirillkom/company-rag/internal/core/ports"
)

// IngestDocumentUseCase accepts, reads and removes tenant documents.
type IngestDocumentUseCase struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	queue     ports.MessageQueue
	fragments ports.FragmentRepository
	vectors   ports.VectorStore
	lexical   ports.LexicalIndex
	logger    *slog.Logger
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	fragments ports.FragmentRepository,
	vectors ports.VectorStore,
	lexical ports.LexicalIndex,
	logger *slog.Logger,
) *IngestDocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestDocumentUseCase{
		repo:      repo,
		storage:   storage,
		queue:     queue,
		fragments: fragments,
		vectors:   vectors,
		lexical:   lexical,
		logger:    logger,
	}
}

// Upload stores a file and queues it for processing. Re-uploading identical
// bytes for the same tenant returns the existing document.
func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	tenantID, filename, mimeType string,
	body io.Reader,
) (*domain.Document, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("tenant is required"))
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read upload body: %w", err)
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("empty file"))
	}
	sum := sha256.Sum256(data)
	contentHash := hex.EncodeToString(sum[:])

	existing, err := uc.repo.FindByContentHash(ctx, tenantID, contentHash)
	switch {
	case err == nil && existing != nil:
		uc.logger.Info("duplicate upload, returning existing document", "document_id", existing.ID, "tenant_id", tenantID)
		return existing, nil
	case err != nil && !domain.IsKind(err, domain.ErrDocumentNotFound):
		return nil, fmt.Errorf("lookup document by hash: %w", err)
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s/%s_%s", sanitizePathSegment(tenantID), id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:          id,
		TenantID:    tenantID,
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: storageKey,
		ContentHash: contentHash,
		SizeBytes:   int64(len(data)),
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}
	if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}
	return doc, nil
}

func (uc *IngestDocumentUseCase) GetByID(ctx context.Context, tenantID, id string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.TenantID != tenantID {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	return doc, nil
}

// List returns the tenant's documents, newest first.
func (uc *IngestDocumentUseCase) List(ctx context.Context, tenantID string) ([]domain.Document, error) {
	docs, err := uc.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	return docs, nil
}

// Delete removes a document together with its fragments in every index.
func (uc *IngestDocumentUseCase) Delete(ctx context.Context, tenantID, documentID string) error {
	doc, err := uc.GetByID(ctx, tenantID, documentID)
	if err != nil {
		return err
	}
	if err := uc.vectors.DeleteDocument(ctx, tenantID, documentID); err != nil {
		return fmt.Errorf("delete vector points: %w", err)
	}
	if err := uc.fragments.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete fragments: %w", err)
	}
	if uc.lexical != nil {
		if err := uc.lexical.Remove(ctx, documentID); err != nil {
			uc.logger.Warn("remove document from lexical index failed", "document_id", documentID, "error", err)
		}
	}
	if err := uc.repo.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("delete document metadata: %w", err)
	}
	if err := uc.storage.Delete(ctx, doc.StoragePath); err != nil {
		uc.logger.Warn("delete stored file failed", "document_id", documentID, "error", err)
	}
	event := domain.IndexEvent{TenantID: tenantID, DocumentID: documentID, Action: domain.IndexActionRemoved}
	if err := uc.queue.PublishIndexEvent(ctx, event); err != nil {
		uc.logger.Warn("publish index removal failed", "document_id", documentID, "error", err)
	}
	return nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = sanitizePathSegment(base)
	if base == "" || base == "." || base == "_" {
		return "document.bin"
	}
	return base
}

func sanitizePathSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
