package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

type processHarness struct {
	repo      *documentRepoFake
	extractor *extractorFake
	chunker   *chunkerFake
	fragments *fragmentRepoFake
	embedder  *embedderFake
	vectors   *vectorFake
	queue     *queueFake
	uc        *ProcessDocumentUseCase
}

func newProcessHarness() *processHarness {
	h := &processHarness{
		repo:      newDocumentRepoFake(&domain.Document{ID: "doc-1", TenantID: "acme", Filename: "manual.txt"}),
		extractor: &extractorFake{text: "texto extraído"},
		chunker: &chunkerFake{fragments: []domain.Fragment{
			{ChunkIndex: 0, Text: "primeiro", ContentHash: "h0"},
			{ChunkIndex: 1, Text: "segundo", ContentHash: "h1"},
		}},
		fragments: &fragmentRepoFake{},
		embedder:  &embedderFake{},
		vectors:   &vectorFake{},
		queue:     &queueFake{},
	}
	h.uc = NewProcessDocumentUseCase(h.repo, h.extractor, h.chunker, h.fragments, h.embedder, h.vectors, h.queue, nil)
	return h
}

func (h *processHarness) lastStatus() domain.DocumentStatus {
	return h.repo.statusCalls[len(h.repo.statusCalls)-1].status
}

func TestProcessByIDIndexesFragments(t *testing.T) {
	h := newProcessHarness()

	if err := h.uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if h.repo.statusCalls[0].status != domain.StatusProcessing || h.lastStatus() != domain.StatusReady {
		t.Fatalf("unexpected status transitions %+v", h.repo.statusCalls)
	}
	if h.repo.fragmentCount["doc-1"] != 2 {
		t.Fatalf("expected fragment count 2, got %d", h.repo.fragmentCount["doc-1"])
	}
	if len(h.vectors.indexed) != 2 {
		t.Fatalf("expected 2 indexed fragments, got %d", len(h.vectors.indexed))
	}
	for _, f := range h.vectors.indexed {
		if f.TenantID != "acme" || f.DocumentID != "doc-1" || f.Filename != "manual.txt" {
			t.Fatalf("fragment not stamped with document identity: %+v", f)
		}
	}
	if len(h.queue.events) != 1 || h.queue.events[0].Action != domain.IndexActionIndexed {
		t.Fatalf("expected indexed event, got %+v", h.queue.events)
	}
}

func TestProcessByIDSkipsDuplicateFragments(t *testing.T) {
	h := newProcessHarness()
	h.fragments.stored = []domain.Fragment{{TenantID: "acme", DocumentID: "doc-0", ContentHash: "h0"}}

	if err := h.uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(h.vectors.indexed) != 1 || h.vectors.indexed[0].ContentHash != "h1" {
		t.Fatalf("expected only the new fragment indexed, got %+v", h.vectors.indexed)
	}
	if h.repo.fragmentCount["doc-1"] != 1 {
		t.Fatalf("expected fragment count 1, got %d", h.repo.fragmentCount["doc-1"])
	}
}

func TestProcessByIDEmptyTextIsReady(t *testing.T) {
	h := newProcessHarness()
	h.chunker.fragments = nil

	if err := h.uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if h.lastStatus() != domain.StatusReady || h.repo.fragmentCount["doc-1"] != 0 {
		t.Fatalf("expected ready with zero fragments")
	}
	if len(h.queue.events) != 0 {
		t.Fatalf("no index event expected for an empty document")
	}
}

func TestProcessByIDFailures(t *testing.T) {
	t.Run("extract", func(t *testing.T) {
		h := newProcessHarness()
		h.extractor.err = errors.New("corrupt pdf")
		if err := h.uc.ProcessByID(context.Background(), "doc-1"); err == nil {
			t.Fatalf("expected error")
		}
		last := h.repo.statusCalls[len(h.repo.statusCalls)-1]
		if last.status != domain.StatusFailed || last.errMsg == "" {
			t.Fatalf("expected failed status with message, got %+v", last)
		}
	})
	t.Run("embed cleans up fragments", func(t *testing.T) {
		h := newProcessHarness()
		h.embedder.err = errors.New("ollama down")
		if err := h.uc.ProcessByID(context.Background(), "doc-1"); err == nil {
			t.Fatalf("expected error")
		}
		if h.lastStatus() != domain.StatusFailed {
			t.Fatalf("expected failed status")
		}
		if len(h.fragments.stored) != 0 || len(h.fragments.deleted) != 1 {
			t.Fatalf("expected saved fragments to be removed, got %+v", h.fragments.stored)
		}
	})
	t.Run("vector mismatch", func(t *testing.T) {
		h := newProcessHarness()
		h.embedder.vectors = [][]float32{{1}}
		err := h.uc.ProcessByID(context.Background(), "doc-1")
		if !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("expected invalid input for vector mismatch, got %v", err)
		}
	})
	t.Run("mark failed error is reported", func(t *testing.T) {
		h := newProcessHarness()
		h.extractor.err = errors.New("boom")
		h.repo.failStatusErr = errors.New("db down")
		err := h.uc.ProcessByID(context.Background(), "doc-1")
		if err == nil || !errors.Is(err, h.extractor.err) {
			t.Fatalf("expected original error to be preserved, got %v", err)
		}
	})
}

type processObserverFake struct {
	results []domain.ProcessResult
}

func (f *processObserverFake) ObserveProcessed(result domain.ProcessResult) {
	f.results = append(f.results, result)
}

func TestProcessByIDReportsFragmentCounts(t *testing.T) {
	h := newProcessHarness()
	observer := &processObserverFake{}
	h.uc.WithObserver(observer)
	h.fragments.stored = []domain.Fragment{{TenantID: "acme", DocumentID: "doc-0", ContentHash: "h0"}}

	if err := h.uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("process: %v", err)
	}
	h.chunker.fragments = nil
	if err := h.uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("process empty: %v", err)
	}
	h.extractor.err = errors.New("corrupt pdf")
	if err := h.uc.ProcessByID(context.Background(), "doc-1"); err == nil {
		t.Fatalf("expected extraction failure")
	}

	if len(observer.results) != 2 {
		t.Fatalf("expected only successful runs observed, got %+v", observer.results)
	}
	want := domain.ProcessResult{DocumentID: "doc-1", Chunks: 2, Indexed: 1, Duplicates: 1}
	if observer.results[0] != want {
		t.Fatalf("expected %+v, got %+v", want, observer.results[0])
	}
	if observer.results[1] != (domain.ProcessResult{DocumentID: "doc-1"}) {
		t.Fatalf("expected an empty result, got %+v", observer.results[1])
	}
}
