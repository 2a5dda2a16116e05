package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/company-rag/internal/core/domain"
	"github.com/kirillkom/company-rag/internal/core/ports"
)

type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	extractor ports.TextExtractor
	chunker   ports.Chunker
	fragments ports.FragmentRepository
	embedder  ports.Embedder
	vectorDB  ports.VectorStore
	queue     ports.MessageQueue
	observer  ports.ProcessingObserver
	logger    *slog.Logger
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	fragments ports.FragmentRepository,
	embedder ports.Embedder,
	vectorDB ports.VectorStore,
	queue ports.MessageQueue,
	logger *slog.Logger,
) *ProcessDocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessDocumentUseCase{
		repo:      repo,
		extractor: extractor,
		chunker:   chunker,
		fragments: fragments,
		embedder:  embedder,
		vectorDB:  vectorDB,
		queue:     queue,
		logger:    logger,
	}
}

// WithObserver reports fragment counts of every successfully processed document.
func (uc *ProcessDocumentUseCase) WithObserver(observer ports.ProcessingObserver) *ProcessDocumentUseCase {
	uc.observer = observer
	return uc
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	result, err := uc.processPipeline(ctx, documentID)
	if err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.SetFragmentCount(ctx, documentID, result.Indexed); err != nil {
		return fmt.Errorf("set fragment count: %w", err)
	}
	if err := uc.markStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	if uc.observer != nil {
		uc.observer.ObserveProcessed(result)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) (domain.ProcessResult, error) {
	result := domain.ProcessResult{DocumentID: documentID}
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return result, err
	}

	text, err := uc.extractText(ctx, doc)
	if err != nil {
		return result, err
	}

	fragments := uc.chunk(doc, text)
	result.Chunks = len(fragments)
	if len(fragments) == 0 {
		uc.logger.Warn("document produced no fragments", "document_id", doc.ID, "text_len", len(text))
		return result, nil
	}

	fresh, err := uc.fragments.SaveNew(ctx, fragments)
	if err != nil {
		return result, fmt.Errorf("save fragments: %w", err)
	}
	result.Duplicates = len(fragments) - len(fresh)
	if result.Duplicates > 0 {
		uc.logger.Info("duplicate fragments skipped", "document_id", doc.ID, "skipped", result.Duplicates)
	}
	if len(fresh) == 0 {
		return result, nil
	}

	if err := uc.embedAndIndex(ctx, fresh); err != nil {
		if cleanupErr := uc.fragments.DeleteByDocument(ctx, doc.ID); cleanupErr != nil {
			uc.logger.Error("cleanup fragments after failed indexing", "document_id", doc.ID, "error", cleanupErr)
		}
		return result, err
	}
	result.Indexed = len(fresh)

	event := domain.IndexEvent{TenantID: doc.TenantID, DocumentID: doc.ID, Action: domain.IndexActionIndexed}
	if err := uc.queue.PublishIndexEvent(ctx, event); err != nil {
		uc.logger.Warn("publish index event failed", "document_id", doc.ID, "error", err)
	}
	return result, nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) extractText(ctx context.Context, doc *domain.Document) (string, error) {
	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return text, nil
}

func (uc *ProcessDocumentUseCase) chunk(doc *domain.Document, text string) []domain.Fragment {
	fragments := uc.chunker.Chunk(text)
	for i := range fragments {
		fragments[i].TenantID = doc.TenantID
		fragments[i].DocumentID = doc.ID
		fragments[i].Filename = doc.Filename
	}
	return fragments
}

func (uc *ProcessDocumentUseCase) embedAndIndex(ctx context.Context, fragments []domain.Fragment) error {
	texts := make([]string, len(fragments))
	for i, f := range fragments {
		texts[i] = f.Text
	}
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed fragments: %w", err)
	}
	if len(vectors) != len(fragments) {
		return domain.WrapError(
			domain.ErrInvalidInput,
			"embed fragments",
			fmt.Errorf("vectors/fragments mismatch: %d/%d", len(vectors), len(fragments)),
		)
	}
	if err := uc.vectorDB.IndexFragments(ctx, fragments, vectors); err != nil {
		return fmt.Errorf("index fragments in vector db: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error())
}
