package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/atiendo/backend/internal/models"
)

// Queue is the durable job table.
type Queue interface {
	ClaimNextJob(ctx context.Context, maxAttempts int, retryDelay, staleRunning time.Duration) (*models.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, reason string) error
}

type Handler interface {
	Handle(ctx context.Context, job models.Job) error
}

type HandlerFunc func(ctx context.Context, job models.Job) error

func (f HandlerFunc) Handle(ctx context.Context, job models.Job) error { return f(ctx, job) }

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

func (r *Registry) Register(jobType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = h
}

func (r *Registry) Get(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

type Policy struct {
	Concurrency  int
	PollInterval time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
	StaleRunning time.Duration
}

type Worker struct {
	Queue    Queue
	Registry *Registry
	Policy   Policy
	Logger   zerolog.Logger
}

// Start launches the polling loops; they stop when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) *sync.WaitGroup {
	concurrency := w.Policy.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	w.Logger.Info().Int("concurrency", concurrency).Msg("starting job worker pool")

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.runLoop(ctx, workerID)
		}(i + 1)
	}
	return &wg
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	interval := w.Policy.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info().Int("worker_id", workerID).Msg("worker loop stopped")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.Logger.Warn().Err(err).Int("worker_id", workerID).Msg("claim next job failed")
			}
		}
	}
}

// RunOnce claims and runs at most one job. It reports whether a job was found.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.Queue.ClaimNextJob(ctx, w.Policy.MaxAttempts, w.Policy.RetryDelay, w.Policy.StaleRunning)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	log := w.Logger.With().Str("job_id", job.ID).Str("job_type", job.JobType).Int("attempt", job.Attempts).Logger()

	h, ok := w.Registry.Get(job.JobType)
	if !ok {
		log.Warn().Msg("no handler registered for job type")
		w.fail(ctx, log, job.ID, fmt.Errorf("no handler registered for job_type=%s", job.JobType))
		return true, nil
	}

	if runErr := w.run(ctx, h, *job); runErr != nil {
		log.Warn().Err(runErr).Msg("job failed")
		w.fail(ctx, log, job.ID, runErr)
		return true, nil
	}
	if err := w.Queue.CompleteJob(ctx, job.ID); err != nil {
		log.Error().Err(err).Msg("could not mark job succeeded")
		return true, nil
	}
	log.Info().Msg("job succeeded")
	return true, nil
}

func (w *Worker) run(ctx context.Context, h Handler, job models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.Logger.Error().Str("job_id", job.ID).Interface("panic", r).Msg("job handler panic")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Handle(ctx, job)
}

func (w *Worker) fail(ctx context.Context, log zerolog.Logger, id string, cause error) {
	if err := w.Queue.FailJob(ctx, id, cause.Error()); err != nil {
		log.Error().Err(err).Msg("could not mark job failed")
	}
}
