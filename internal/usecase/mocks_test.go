// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"multi-llm-gateway/internal/domain"
	"multi-llm-gateway/internal/domain/model"
	"multi-llm-gateway/internal/domain/ports/adapter"
)

// memJobRepo is a small in-memory implementation used by unit tests.
type memJobRepo struct {
	mu      sync.RWMutex
	store   map[string]*model.BatchJob
	saveErr error // used by tests to simulate save failures
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{store: make(map[string]*model.BatchJob)}
}

func (m *memJobRepo) Save(ctx context.Context, job *model.BatchJob) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.store[job.ID] = &cp
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, id string) (*model.BatchJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) FindByProviderJobID(ctx context.Context, providerID, providerJobID string) (*model.BatchJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, j := range m.store {
		if j.ProviderID == providerID && j.ProviderJobID == providerJobID {
			cp := *j
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memJobRepo) List(ctx context.Context) ([]*model.BatchJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.BatchJob, 0, len(m.store))
	for _, j := range m.store {
		cp := *j
		out = append(out, &cp)
	}
	return out, nil
}

// fakeBatch is a scriptable provider adapter. Hooks default to benign
// behavior; counters record how often the engine reached the provider.
type fakeBatch struct {
	id       string
	createFn func(ctx context.Context, req adapter.BatchRequest) (string, error)
	pollFn   func(ctx context.Context, providerJobID string) (adapter.StatusUpdate, error)
	fetchFn  func(ctx context.Context, providerJobID string, raw []byte) ([]adapter.ResultItem, []byte, error)

	mu          sync.Mutex
	createCalls int
	pollCalls   int
	fetchCalls  int
}

func newFakeBatch(id string) *fakeBatch {
	return &fakeBatch{id: id}
}

func (f *fakeBatch) ProviderID() string { return f.id }

func (f *fakeBatch) FormatBatchRequest(req adapter.BatchRequest) ([]byte, error) {
	return []byte("{}"), nil
}

func (f *fakeBatch) ParseResultLine(line string) (adapter.ResultItem, error) {
	return adapter.ResultItem{}, fmt.Errorf("not scripted")
}

func (f *fakeBatch) CreateBatch(ctx context.Context, req adapter.BatchRequest) (string, error) {
	f.mu.Lock()
	f.createCalls++
	f.mu.Unlock()
	if f.createFn != nil {
		return f.createFn(ctx, req)
	}
	return f.id + "-batch-1", nil
}

func (f *fakeBatch) PollStatus(ctx context.Context, providerJobID string) (adapter.StatusUpdate, error) {
	f.mu.Lock()
	f.pollCalls++
	f.mu.Unlock()
	if f.pollFn != nil {
		return f.pollFn(ctx, providerJobID)
	}
	return adapter.StatusUpdate{Status: model.BatchJobStatusRunning}, nil
}

func (f *fakeBatch) FetchResults(ctx context.Context, providerJobID string, raw []byte) ([]adapter.ResultItem, []byte, error) {
	f.mu.Lock()
	f.fetchCalls++
	f.mu.Unlock()
	if f.fetchFn != nil {
		return f.fetchFn(ctx, providerJobID, raw)
	}
	return nil, raw, nil
}

func (f *fakeBatch) polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollCalls
}

func (f *fakeBatch) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

// newTestBatchUC wires a batch engine with deterministic ids and clock.
func newTestBatchUC(jobs *memJobRepo, adapters map[string]adapter.BatchProviderAdapter) *batchUC {
	nop := zerolog.Nop()
	uc := NewBatchUseCase(jobs, adapters, &nop).(*batchUC)
	var seq int
	var mu sync.Mutex
	uc.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return fmt.Sprintf("job-%d", seq)
	}
	uc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return uc
}
