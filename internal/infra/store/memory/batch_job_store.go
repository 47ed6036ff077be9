package memory

import (
	"context"
	"sync"

	"multi-llm-gateway/internal/domain"
	"multi-llm-gateway/internal/domain/model"
	"multi-llm-gateway/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.BatchJobRepository = (*BatchJobStore)(nil)

// BatchJobStore is the volatile, process-local job table. Jobs are never
// evicted; the store lives and dies with the process.
type BatchJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*model.BatchJob
}

func NewBatchJobStore() *BatchJobStore {
	return &BatchJobStore{jobs: make(map[string]*model.BatchJob)}
}

func (s *BatchJobStore) Save(ctx context.Context, job *model.BatchJob) error {
	if job == nil || job.ID == "" {
		return domain.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *BatchJobStore) FindByID(ctx context.Context, id string) (*model.BatchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyJob(j), nil
}

func (s *BatchJobStore) FindByProviderJobID(ctx context.Context, providerID, providerJobID string) (*model.BatchJob, error) {
	if providerJobID == "" {
		return nil, domain.ErrInvalidArgument
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		if j.ProviderID == providerID && j.ProviderJobID == providerJobID {
			return copyJob(j), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *BatchJobStore) List(ctx context.Context) ([]*model.BatchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.BatchJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, copyJob(j))
	}
	return out, nil
}

func copyJob(j *model.BatchJob) *model.BatchJob {
	cp := *j
	cp.Prompts = append([]string(nil), j.Prompts...)
	cp.RawSuccessPayload = append([]byte(nil), j.RawSuccessPayload...)
	if j.Usage != nil {
		u := *j.Usage
		cp.Usage = &u
	}
	return &cp
}
