package repository

import (
	"context"

	"multi-llm-gateway/internal/domain/model"
)

// BatchJobRepository owns batch job lifecycle state. Implementations must be
// safe for concurrent use; operations on different job ids must not block
// one another.
type BatchJobRepository interface {
	Save(ctx context.Context, job *model.BatchJob) error
	FindByID(ctx context.Context, id string) (*model.BatchJob, error)
	FindByProviderJobID(ctx context.Context, providerID, providerJobID string) (*model.BatchJob, error)
	List(ctx context.Context) ([]*model.BatchJob, error)
}
