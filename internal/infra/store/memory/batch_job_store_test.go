package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"multi-llm-gateway/internal/domain"
	"multi-llm-gateway/internal/domain/model"
)

func TestBatchJobStoreSaveAndFind(t *testing.T) {
	s := NewBatchJobStore()
	ctx := context.Background()

	job := &model.BatchJob{
		ID:            "j1",
		ProviderID:    "gemini",
		ProviderJobID: "op-1",
		Prompts:       []string{"a", "b"},
		Status:        model.BatchJobStatusRunning,
	}
	if err := s.Save(ctx, job); err != nil {
		t.Fatal(err)
	}

	got, err := s.FindByID(ctx, "j1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ProviderJobID != "op-1" || len(got.Prompts) != 2 {
		t.Fatalf("got: %+v", got)
	}

	if _, err := s.FindByID(ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Save(ctx, &model.BatchJob{}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty id, got %v", err)
	}
}

func TestBatchJobStoreReturnsCopies(t *testing.T) {
	s := NewBatchJobStore()
	ctx := context.Background()

	job := &model.BatchJob{
		ID:                "j1",
		Prompts:           []string{"a"},
		Status:            model.BatchJobStatusCompleted,
		RawSuccessPayload: []byte(`{"done":true}`),
		Usage:             &model.Usage{TotalTokens: 10},
	}
	if err := s.Save(ctx, job); err != nil {
		t.Fatal(err)
	}

	// Mutating what the caller holds must not leak into the store.
	job.Prompts[0] = "tampered"
	job.Usage.TotalTokens = 999

	got, _ := s.FindByID(ctx, "j1")
	if got.Prompts[0] != "a" {
		t.Fatalf("prompt aliasing: %s", got.Prompts[0])
	}
	if got.Usage.TotalTokens != 10 {
		t.Fatalf("usage aliasing: %d", got.Usage.TotalTokens)
	}

	// And mutating a read result must not change the stored job either.
	got.Prompts[0] = "again"
	got.RawSuccessPayload[0] = 'X'
	again, _ := s.FindByID(ctx, "j1")
	if again.Prompts[0] != "a" || again.RawSuccessPayload[0] != '{' {
		t.Fatal("read results alias the stored job")
	}
}

func TestBatchJobStoreFindByProviderJobID(t *testing.T) {
	s := NewBatchJobStore()
	ctx := context.Background()

	if err := s.Save(ctx, &model.BatchJob{ID: "j1", ProviderID: "openai", ProviderJobID: "batch_7"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.FindByProviderJobID(ctx, "openai", "batch_7")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "j1" {
		t.Fatalf("got: %+v", got)
	}

	// Same handle under another provider is a different namespace.
	if _, err := s.FindByProviderJobID(ctx, "claude", "batch_7"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.FindByProviderJobID(ctx, "openai", ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestBatchJobStoreConcurrentAccess(t *testing.T) {
	s := NewBatchJobStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n%8))
			_ = s.Save(ctx, &model.BatchJob{ID: id, Status: model.BatchJobStatusPending})
			_, _ = s.FindByID(ctx, id)
			_, _ = s.List(ctx)
		}(i)
	}
	wg.Wait()

	jobs, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 8 {
		t.Fatalf("expected 8 jobs, got %d", len(jobs))
	}
}
