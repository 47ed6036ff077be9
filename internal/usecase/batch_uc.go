package usecase

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"multi-llm-gateway/internal/domain"
	"multi-llm-gateway/internal/domain/model"
	"multi-llm-gateway/internal/domain/ports/adapter"
	"multi-llm-gateway/internal/domain/ports/repository"
	"multi-llm-gateway/internal/infra/logging"
	"multi-llm-gateway/internal/infra/metrics"
)

// StatusNotFound is the pseudo-status reported for job ids the store does not
// know. It never appears on a stored job.
const StatusNotFound = "NOT_FOUND"

// SubmitParams is one batch submission fanned out across providers.
type SubmitParams struct {
	Method       model.SubmissionMethod
	Prompts      []string
	ProviderIDs  []string
	SingleChat   bool
	Temperature  float64
	SystemPrompt string
	FilePath     string // local JSONL path for file_upload submissions
}

// SubmissionAck is the per-provider outcome of a Submit call. A provider that
// rejected the submission still gets an ack, with a FAILED status and the
// diagnostic in Detail.
type SubmissionAck struct {
	JobID         string               `json:"job_id"`
	ProviderID    string               `json:"provider_id"`
	ProviderJobID string               `json:"provider_job_id,omitempty"`
	Status        model.BatchJobStatus `json:"status"`
	Detail        string               `json:"detail,omitempty"`
}

// StatusView is the per-job outcome of a Status call.
type StatusView struct {
	JobID         string    `json:"job_id"`
	ProviderID    string    `json:"provider_id,omitempty"`
	Status        string    `json:"status"`
	Detail        string    `json:"detail,omitempty"`
	LastCheckedAt time.Time `json:"last_checked_at,omitempty"`
}

// ResultView is the per-job outcome of a Results call.
type ResultView struct {
	JobID         string       `json:"job_id"`
	ProviderID    string       `json:"provider_id,omitempty"`
	Status        string       `json:"status"`
	Result        string       `json:"result,omitempty"`
	Usage         *model.Usage `json:"usage,omitempty"`
	LastCheckedAt time.Time    `json:"last_checked_at,omitempty"`
}

// BatchUseCase is the batch job lifecycle manager: submission fan-out, status
// reconciliation against the providers, and result normalization.
type BatchUseCase interface {
	Submit(ctx context.Context, params SubmitParams) ([]SubmissionAck, error)
	Status(ctx context.Context, jobIDs []string) ([]StatusView, error)
	StatusByProviderJob(ctx context.Context, providerID, providerJobID string) (StatusView, error)
	Results(ctx context.Context, jobIDs []string) ([]ResultView, error)
}

var _ BatchUseCase = (*batchUC)(nil)

type batchUC struct {
	jobs     repository.BatchJobRepository
	adapters map[string]adapter.BatchProviderAdapter
	log      *zerolog.Logger

	now   func() time.Time
	newID func() string
}

func NewBatchUseCase(
	jobs repository.BatchJobRepository,
	adapters map[string]adapter.BatchProviderAdapter,
	log *zerolog.Logger,
) BatchUseCase {
	return &batchUC{
		jobs:     jobs,
		adapters: adapters,
		log:      log,
		now:      time.Now,
		newID:    func() string { return ulid.Make().String() },
	}
}

// Submit fans the request out to every selected provider concurrently. Each
// provider gets its own job record; one provider failing never blocks the
// others. Unknown provider ids fail the whole call before anything is sent.
func (uc *batchUC) Submit(ctx context.Context, params SubmitParams) ([]SubmissionAck, error) {
	defer logging.TraceDuration(uc.log, "BatchUC.Submit")()

	if len(params.ProviderIDs) == 0 {
		return nil, domain.ErrNoProviders
	}
	if params.Method == "" {
		params.Method = model.SubmissionTextInput
	}
	switch params.Method {
	case model.SubmissionTextInput:
		if len(params.Prompts) == 0 {
			return nil, domain.ErrNoPrompts
		}
	case model.SubmissionFileUpload:
		if params.FilePath == "" {
			return nil, domain.ErrInvalidArgument
		}
	default:
		return nil, domain.ErrInvalidArgument
	}
	for _, pid := range params.ProviderIDs {
		if uc.adapters[pid] == nil {
			return nil, domain.ErrUnknownProvider
		}
	}

	acks := make([]SubmissionAck, len(params.ProviderIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, pid := range params.ProviderIDs {
		i, pid := i, pid
		g.Go(func() error {
			acks[i] = uc.submitOne(gctx, pid, params)
			return nil
		})
	}
	_ = g.Wait()
	return acks, nil
}

func (uc *batchUC) submitOne(ctx context.Context, providerID string, params SubmitParams) SubmissionAck {
	ad := uc.adapters[providerID]
	job := &model.BatchJob{
		ID:         uc.newID(),
		ProviderID: providerID,
		Method:     params.Method,
		Prompts:    append([]string(nil), params.Prompts...),
		SingleChat: params.SingleChat,
		Status:     model.BatchJobStatusPending,
		CreatedAt:  uc.now(),
	}
	ctx = logging.WithJobID(logging.WithProvider(ctx, providerID), job.ID)
	log := logging.With(ctx, uc.log)

	// Record the job before talking to the provider so a crash mid-submit
	// still leaves a traceable PENDING entry.
	if err := uc.jobs.Save(ctx, job); err != nil {
		log.Error().Err(err).Msg("save pending job")
		return SubmissionAck{JobID: job.ID, ProviderID: providerID, Status: model.BatchJobStatusFailed, Detail: err.Error()}
	}

	start := uc.now()
	providerJobID, err := ad.CreateBatch(ctx, adapter.BatchRequest{
		Method:       params.Method,
		Prompts:      params.Prompts,
		SingleChat:   params.SingleChat,
		Temperature:  params.Temperature,
		SystemPrompt: params.SystemPrompt,
		FilePath:     params.FilePath,
	})
	metrics.ObserveProviderCall(providerID, "create_batch", int(uc.now().Sub(start).Milliseconds()), err == nil)

	if err != nil {
		pe := domain.WrapProviderError(domain.KindSubmission, err)
		job.Status = model.BatchJobStatusFailed
		job.Result = pe.Render()
		job.LastCheckedAt = uc.now()
		if serr := uc.jobs.Save(ctx, job); serr != nil {
			log.Error().Err(serr).Msg("save failed job")
		}
		metrics.IncBatchJob(providerID, string(model.BatchJobStatusFailed))
		log.Warn().Err(err).Msg("batch submission rejected")
		return SubmissionAck{JobID: job.ID, ProviderID: providerID, Status: model.BatchJobStatusFailed, Detail: pe.Render()}
	}

	// An accepted batch stays PENDING until reconciliation observes the
	// provider actually working on it.
	job.ProviderJobID = providerJobID
	if err := uc.jobs.Save(ctx, job); err != nil {
		log.Error().Err(err).Msg("save accepted job")
	}
	log.Info().Str("provider_job_id", providerJobID).Msg("batch submitted")
	return SubmissionAck{
		JobID:         job.ID,
		ProviderID:    providerID,
		ProviderJobID: providerJobID,
		Status:        model.BatchJobStatusPending,
	}
}
