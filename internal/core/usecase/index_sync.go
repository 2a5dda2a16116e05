package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kirillkom/company-rag/internal/core/domain"
	"github.com/kirillkom/company-rag/internal/core/ports"
)

// LexicalIndexSync keeps a process-local lexical index in step with the fragment store.
type LexicalIndexSync struct {
	fragments ports.FragmentRepository
	index     ports.LexicalIndex
	logger    *slog.Logger

	mu         sync.Mutex
	rebuilding bool
	pending    []domain.IndexEvent
}

func NewLexicalIndexSync(fragments ports.FragmentRepository, index ports.LexicalIndex, logger *slog.Logger) *LexicalIndexSync {
	if logger == nil {
		logger = slog.Default()
	}
	return &LexicalIndexSync{fragments: fragments, index: index, logger: logger}
}

// Rebuild loads every stored fragment into the index. Events passed to Handle
// while it runs are replayed once the snapshot is in place.
func (s *LexicalIndexSync) Rebuild(ctx context.Context) error {
	s.mu.Lock()
	s.rebuilding = true
	s.mu.Unlock()

	err := s.rebuild(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.pending
	s.pending = nil
	s.rebuilding = false
	for _, event := range pending {
		if applyErr := s.Apply(ctx, event); applyErr != nil {
			s.logger.Warn("replay index event failed", "document_id", event.DocumentID, "error", applyErr)
		}
	}
	return err
}

func (s *LexicalIndexSync) rebuild(ctx context.Context) error {
	all, err := s.fragments.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list fragments: %w", err)
	}
	if err := s.index.Index(ctx, all); err != nil {
		return fmt.Errorf("rebuild lexical index: %w", err)
	}
	s.logger.Info("lexical index rebuilt", "fragments", len(all))
	return nil
}

// Handle is the subscription entry point: it applies the event, or holds it
// while a rebuild is running.
func (s *LexicalIndexSync) Handle(ctx context.Context, event domain.IndexEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rebuilding {
		s.pending = append(s.pending, event)
		return nil
	}
	return s.Apply(ctx, event)
}

// Apply mirrors one index event. Replaying an event is harmless.
func (s *LexicalIndexSync) Apply(ctx context.Context, event domain.IndexEvent) error {
	if err := s.index.Remove(ctx, event.DocumentID); err != nil {
		return fmt.Errorf("remove document %s: %w", event.DocumentID, err)
	}
	if event.Action != domain.IndexActionIndexed {
		return nil
	}
	fragments, err := s.fragments.ListByDocument(ctx, event.DocumentID)
	if err != nil {
		return fmt.Errorf("list fragments of %s: %w", event.DocumentID, err)
	}
	if err := s.index.Add(ctx, fragments); err != nil {
		return fmt.Errorf("add document %s: %w", event.DocumentID, err)
	}
	s.logger.Debug("lexical index updated", "document_id", event.DocumentID, "fragments", len(fragments))
	return nil
}
