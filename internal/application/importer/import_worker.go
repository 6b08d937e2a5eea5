package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammadpnp/product-import/internal/domain/catalog"
	"github.com/mohammadpnp/product-import/internal/logctx"
)

type importWorkerQueue interface {
	ClaimNext(ctx context.Context, queue string, lease time.Duration) (*catalog.Task, error)
	Heartbeat(ctx context.Context, taskID string, lease time.Duration) error
	Complete(ctx context.Context, taskID string) error
	Retry(ctx context.Context, taskID string, reason string, delay time.Duration) error
	Fail(ctx context.Context, taskID string, reason string) error
}

type TaskHandler interface {
	Handle(ctx context.Context, task catalog.Task) error
	RecordRetry(ctx context.Context, task catalog.Task, cause error)
	Abort(ctx context.Context, task catalog.Task, cause error) error
}

type ImportWorkerConfig struct {
	Workers           int
	Queues            []string
	PollInterval      time.Duration
	LeaseDuration     time.Duration
	HeartbeatInterval time.Duration
	AttemptTimeout    time.Duration
	RetryBase         time.Duration
}

// ImportWorker consumes the import queues. Each queue gets its own pool of
// Workers loops, so a long merge never starves chunk units.
type ImportWorker struct {
	queue   importWorkerQueue
	handler TaskHandler
	cfg     ImportWorkerConfig
}

func NewImportWorker(queue importWorkerQueue, handler TaskHandler, cfg ImportWorkerConfig) *ImportWorker {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if len(cfg.Queues) == 0 {
		cfg.Queues = []string{catalog.QueueImports, catalog.QueueMerge, catalog.QueueChunks}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 60 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = cfg.LeaseDuration / 2
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Minute
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}

	return &ImportWorker{
		queue:   queue,
		handler: handler,
		cfg:     cfg,
	}
}

// Run blocks until ctx is cancelled and every loop has returned.
func (w *ImportWorker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, queue := range w.cfg.Queues {
		queue := queue
		for i := 0; i < w.cfg.Workers; i++ {
			loopCtx := logctx.WithInt(logctx.WithStr(ctx, "queue", queue), "worker", i)
			g.Go(func() error {
				w.workerLoop(loopCtx, queue)
				return nil
			})
		}
	}
	return g.Wait()
}

func (w *ImportWorker) workerLoop(ctx context.Context, queue string) {
	logger := logctx.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := w.queue.ClaimNext(ctx, queue, w.cfg.LeaseDuration)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error().Err(err).Msg("claim next task failed")
			}
			if !sleepWithContext(ctx, w.cfg.PollInterval) {
				return
			}
			continue
		}

		if task == nil {
			if !sleepWithContext(ctx, w.cfg.PollInterval) {
				return
			}
			continue
		}

		if err := w.ProcessTask(ctx, *task); err != nil && ctx.Err() == nil {
			logger.Warn().Err(err).Str("task_id", task.ID).Msg("process task failed")
		}
	}
}

// ProcessTask runs one claimed attempt and settles the task: complete,
// retry with backoff, or fail together with its job.
func (w *ImportWorker) ProcessTask(ctx context.Context, task catalog.Task) error {
	ctx = logctx.WithStr(ctx, "task_id", task.ID)
	ctx = logctx.WithStr(ctx, "job_id", task.JobID)
	ctx = logctx.WithStr(ctx, "kind", string(task.Kind))
	ctx = logctx.WithInt(ctx, "attempt", task.Attempts)

	if task.Exhausted() {
		return w.onProcessingError(ctx, task, fmt.Errorf("%w: claimed %d times, max %d", ErrAttemptsExhausted, task.Attempts, task.MaxAttempts))
	}

	attemptCtx, cancel := context.WithTimeout(ctx, w.cfg.AttemptTimeout)
	stop := w.keepLease(attemptCtx, task.ID)
	err := w.handler.Handle(attemptCtx, task)
	timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
	stop()
	cancel()

	if err == nil {
		if completeErr := w.queue.Complete(ctx, task.ID); completeErr != nil {
			return fmt.Errorf("complete task: %w", completeErr)
		}
		return nil
	}

	// Shutdown: leave the task leased; it is reclaimed once the lease expires.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if timedOut {
		err = fmt.Errorf("attempt timed out after %s: %w", w.cfg.AttemptTimeout, err)
	}
	return w.onProcessingError(ctx, task, err)
}

func (w *ImportWorker) onProcessingError(ctx context.Context, task catalog.Task, err error) error {
	logger := logctx.FromContext(ctx)
	reason := err.Error()

	if Retryable(err) && !task.LastAttempt() {
		delay := Backoff(w.cfg.RetryBase, task.Attempts)
		w.handler.RecordRetry(ctx, task, err)
		if retryErr := w.queue.Retry(ctx, task.ID, reason, delay); retryErr != nil {
			return fmt.Errorf("%v; requeue failed: %w", err, retryErr)
		}
		logger.Warn().Err(err).Dur("retry_in", delay).Msg("task attempt failed, retrying")
		return err
	}

	if abortErr := w.handler.Abort(ctx, task, err); abortErr != nil {
		logger.Error().Err(abortErr).Msg("abort job")
	}
	if failErr := w.queue.Fail(ctx, task.ID, reason); failErr != nil {
		return fmt.Errorf("%v; fail update failed: %w", err, failErr)
	}
	logger.Error().Err(err).Msg("task failed permanently")
	return err
}

// keepLease extends the task lease until the returned stop func is called.
func (w *ImportWorker) keepLease(ctx context.Context, taskID string) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(w.cfg.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.queue.Heartbeat(ctx, taskID, w.cfg.LeaseDuration); err != nil && ctx.Err() == nil {
					logctx.FromContext(ctx).Warn().Err(err).Msg("heartbeat failed")
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
