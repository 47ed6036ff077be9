package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"multi-llm-gateway/internal/domain"
	"multi-llm-gateway/internal/domain/model"
	"multi-llm-gateway/internal/domain/ports/adapter"
	"multi-llm-gateway/internal/infra/logging"
	"multi-llm-gateway/internal/infra/metrics"
)

// Status reconciles each requested job against its provider. Jobs are handled
// independently and concurrently; an unknown id yields a NOT_FOUND view and a
// terminal job is answered from the store without touching the provider.
func (uc *batchUC) Status(ctx context.Context, jobIDs []string) ([]StatusView, error) {
	defer logging.TraceDuration(uc.log, "BatchUC.Status")()

	if len(jobIDs) == 0 {
		return nil, domain.ErrNoJobIDs
	}

	views := make([]StatusView, len(jobIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range jobIDs {
		i, id := i, id
		g.Go(func() error {
			views[i] = uc.statusOne(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return views, nil
}

func (uc *batchUC) statusOne(ctx context.Context, jobID string) StatusView {
	job, err := uc.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return StatusView{JobID: jobID, Status: StatusNotFound}
		}
		return StatusView{JobID: jobID, Status: StatusNotFound, Detail: err.Error()}
	}
	if job.Terminal() {
		return viewOf(job)
	}
	ad := uc.adapters[job.ProviderID]
	if ad == nil {
		return StatusView{JobID: jobID, ProviderID: job.ProviderID, Status: StatusNotFound, Detail: domain.ErrUnknownProvider.Error()}
	}
	uc.reconcile(ctx, job, ad)
	return viewOf(job)
}

// reconcile runs one poll cycle for a non-terminal job and persists the
// outcome. Any polling error is terminal: the job is marked FAILED rather
// than retried. LastCheckedAt moves forward on every cycle, success or not.
func (uc *batchUC) reconcile(ctx context.Context, job *model.BatchJob, ad adapter.BatchProviderAdapter) {
	ctx = logging.WithJobID(logging.WithProvider(ctx, job.ProviderID), job.ID)
	log := logging.With(ctx, uc.log)

	job.LastCheckedAt = uc.now()

	if job.ProviderJobID == "" {
		job.Status = model.BatchJobStatusFailed
		job.Result = (&domain.ProviderError{Kind: domain.KindReconciliation, Message: "job has no provider handle"}).Render()
		uc.persist(ctx, job, log)
		metrics.IncBatchJob(job.ProviderID, string(model.BatchJobStatusFailed))
		return
	}

	start := uc.now()
	upd, err := ad.PollStatus(ctx, job.ProviderJobID)
	metrics.ObserveProviderCall(job.ProviderID, "poll_status", int(uc.now().Sub(start).Milliseconds()), err == nil)

	if err != nil {
		pe := domain.WrapProviderError(domain.KindReconciliation, err)
		job.Status = model.BatchJobStatusFailed
		job.Result = pe.Render()
		uc.persist(ctx, job, log)
		metrics.IncBatchJob(job.ProviderID, string(model.BatchJobStatusFailed))
		log.Warn().Err(err).Msg("status poll failed")
		return
	}

	switch {
	case upd.Status.Terminal() && upd.LocatorRequired && upd.ResultsLocator == "":
		// The provider claims a terminal state but its payload has a locator
		// slot it left empty. Record what we saw and keep polling; the next
		// cycle retries until the locator materializes.
		job.Status = model.BatchJobStatusRunning
		job.RawSuccessPayload = upd.Raw
		log.Debug().Str("reported", string(upd.Status)).Msg("terminal status without results locator, keeping job running")

	case upd.Status == model.BatchJobStatusCompleted:
		job.Status = model.BatchJobStatusCompleted
		job.RawSuccessPayload = upd.Raw
		metrics.IncBatchJob(job.ProviderID, string(model.BatchJobStatusCompleted))
		log.Info().Msg("batch completed")

	case upd.Status == model.BatchJobStatusFailed:
		job.Status = model.BatchJobStatusFailed
		if upd.Err != nil {
			job.Result = upd.Err.Render()
		} else {
			job.Result = (&domain.ProviderError{Kind: domain.KindProvider, Message: "provider reported failure"}).Render()
		}
		metrics.IncBatchJob(job.ProviderID, string(model.BatchJobStatusFailed))
		log.Warn().Msg("batch failed at provider")

	case upd.Status == model.BatchJobStatusRunning:
		job.Status = model.BatchJobStatusRunning

	default:
		// PENDING from the provider never regresses a RUNNING job.
		if job.Status != model.BatchJobStatusRunning {
			job.Status = model.BatchJobStatusPending
		}
	}

	uc.persist(ctx, job, log)
}

// StatusByProviderJob serves the file-upload polling path, where the caller
// holds the provider's own job handle. A handle the store knows is reconciled
// like any other job; an unknown handle is polled directly and the view is
// ephemeral, nothing is recorded.
func (uc *batchUC) StatusByProviderJob(ctx context.Context, providerID, providerJobID string) (StatusView, error) {
	defer logging.TraceDuration(uc.log, "BatchUC.StatusByProviderJob")()

	if providerJobID == "" {
		return StatusView{}, domain.ErrNoJobIDs
	}
	ad := uc.adapters[providerID]
	if ad == nil {
		return StatusView{}, domain.ErrUnknownProvider
	}

	job, err := uc.jobs.FindByProviderJobID(ctx, providerID, providerJobID)
	if err == nil {
		if !job.Terminal() {
			uc.reconcile(ctx, job, ad)
		}
		return viewOf(job), nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return StatusView{}, err
	}

	start := uc.now()
	upd, perr := ad.PollStatus(ctx, providerJobID)
	metrics.ObserveProviderCall(providerID, "poll_status", int(uc.now().Sub(start).Milliseconds()), perr == nil)
	if perr != nil {
		pe := domain.WrapProviderError(domain.KindReconciliation, perr)
		return StatusView{ProviderID: providerID, Status: string(model.BatchJobStatusFailed), Detail: pe.Render(), LastCheckedAt: uc.now()}, nil
	}
	view := StatusView{ProviderID: providerID, Status: string(upd.Status), LastCheckedAt: uc.now()}
	if upd.Err != nil {
		view.Detail = upd.Err.Render()
	}
	return view, nil
}

func (uc *batchUC) persist(ctx context.Context, job *model.BatchJob, log *zerolog.Logger) {
	if err := uc.jobs.Save(ctx, job); err != nil {
		log.Error().Err(err).Msg("save job")
	}
}

func viewOf(job *model.BatchJob) StatusView {
	v := StatusView{
		JobID:         job.ID,
		ProviderID:    job.ProviderID,
		Status:        string(job.Status),
		LastCheckedAt: job.LastCheckedAt,
	}
	if job.Result != "" {
		v.Detail = job.Result
	}
	return v
}
