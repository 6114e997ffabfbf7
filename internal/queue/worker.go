package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/service"
)

// terminalTimeout bounds the cleanup run after a publish task gives up.
const terminalTimeout = 30 * time.Second

// Worker runs publishing tasks and maps their outcomes onto asynq retries.
type Worker struct {
	publisher service.PublisherService
	scheduler service.SchedulerService
	tokens    service.TokenRefreshService
	cfg       *config.Config
	log       *slog.Logger

	now      func() time.Time
	attempts func(ctx context.Context) (retried, maxRetry int)
}

func NewWorker(
	publisher service.PublisherService,
	scheduler service.SchedulerService,
	tokens service.TokenRefreshService,
	cfg *config.Config,
	logger *slog.Logger) *Worker {
	w := &Worker{
		publisher: publisher,
		scheduler: scheduler,
		tokens:    tokens,
		cfg:       cfg,
		log:       logger,
		now:       time.Now,
	}
	w.attempts = w.taskAttempts
	return w
}

// taskAttempts reads retry metadata from the task context, falling back to
// the configured policy outside a worker.
func (w *Worker) taskAttempts(ctx context.Context) (int, int) {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		retried = 0
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		maxRetry = w.cfg.PublishJob.MaxRetry
	}
	return retried, maxRetry
}

func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypePublishPost, w.HandlePublishPostTask)
	mux.HandleFunc(TypePublishScan, w.HandleScanTask)
	mux.HandleFunc(TypePublishSweep, w.HandleSweepTask)
	mux.HandleFunc(TypeRefreshTokens, w.HandleRefreshTokensTask)
	return mux
}

// NewServer builds the asynq server that drives w.
func NewServer(redis asynq.RedisConnOpt, cfg *config.Config, w *Worker) *asynq.Server {
	return asynq.NewServer(redis, asynq.Config{
		Concurrency:     cfg.WorkerConcurrency,
		Queues:          map[string]int{QueueName: 1},
		RetryDelayFunc:  w.RetryDelay,
		ErrorHandler:    asynq.ErrorHandlerFunc(w.HandleError),
		ShutdownTimeout: cfg.PublishJob.Timeout,
	})
}

func (w *Worker) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	payload, err := decodePublishPayload(task.Payload())
	if err != nil {
		return skipRetry(err)
	}

	retried, maxRetry := w.attempts(ctx)
	outcome := w.publisher.Run(ctx, service.PublishJob{
		PostID:      payload.PostID,
		WorkspaceID: payload.WorkspaceID,
		Attempt:     retried + 1,
		MaxAttempts: maxRetry + 1,
		ClaimedAt:   payload.ClaimedAt,
	})

	w.log.Debug("publish attempt done", "post_id", payload.PostID, "outcome", outcome.Kind.String())
	return outcomeError(outcome)
}

func (w *Worker) HandleScanTask(ctx context.Context, _ *asynq.Task) error {
	_, err := w.scheduler.Tick(ctx)
	return err
}

func (w *Worker) HandleSweepTask(ctx context.Context, _ *asynq.Task) error {
	_, err := w.scheduler.Sweep(ctx)
	return err
}

func (w *Worker) HandleRefreshTokensTask(ctx context.Context, _ *asynq.Task) error {
	_, err := w.tokens.RefreshExpiring(ctx)
	return err
}

// outcomeError is the handler return value for an Outcome. Skipped attempts
// complete the task; terminal ones stop retries.
func outcomeError(o service.Outcome) error {
	switch o.Kind {
	case service.OutcomeSuccess, service.OutcomeSkipped:
		return nil
	case service.OutcomeTerminal:
		if o.Err == nil {
			return skipRetry(errors.New("terminal publish outcome"))
		}
		return skipRetry(o.Err)
	default:
		if o.Err == nil {
			return errors.New("publish attempt did not complete")
		}
		return o.Err
	}
}

// isFinalAttempt reports whether asynq will not run the task again.
func isFinalAttempt(retried, maxRetry int, retryUntil, now time.Time) bool {
	if retried >= maxRetry {
		return true
	}
	return !retryUntil.IsZero() && !now.Before(retryUntil)
}

func (w *Worker) RetryDelay(_ int, _ error, task *asynq.Task) time.Duration {
	if task.Type() == TypePublishPost {
		return w.cfg.PublishJob.Backoff
	}
	return w.cfg.SchedulerJob.Backoff
}

// HandleError is called by asynq after every failed attempt.
func (w *Worker) HandleError(ctx context.Context, task *asynq.Task, err error) {
	retried, maxRetry := w.attempts(ctx)

	if task.Type() != TypePublishPost {
		if retried >= maxRetry || errors.Is(err, asynq.SkipRetry) {
			w.log.Error("periodic task exhausted retries", "task", task.Type(), "attempts", retried+1, "error", err)
			return
		}
		w.log.Warn("periodic task failed", "task", task.Type(), "attempt", retried+1, "error", err)
		return
	}

	payload, perr := decodePublishPayload(task.Payload())
	if perr != nil {
		w.log.Error("dropping undecodable publish task", "error", perr)
		return
	}

	if !errors.Is(err, asynq.SkipRetry) && !isFinalAttempt(retried, maxRetry, payload.RetryUntil, w.now()) {
		w.log.Warn("publish attempt failed, will retry",
			"post_id", payload.PostID, "workspace_id", payload.WorkspaceID, "attempt", retried+1, "error", err)
		return
	}

	// The task context may already be past its deadline.
	termCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalTimeout)
	defer cancel()

	job := service.PublishJob{
		PostID:      payload.PostID,
		WorkspaceID: payload.WorkspaceID,
		Attempt:     retried + 1,
		MaxAttempts: maxRetry + 1,
		ClaimedAt:   payload.ClaimedAt,
	}
	if ferr := w.publisher.FailTerminal(termCtx, job, failureCause(err)); ferr != nil {
		w.log.Error("terminal failure handling failed", "post_id", payload.PostID, "error", ferr)
	}
}

// failureCause strips the SkipRetry marker so the stored reason reads cleanly.
func failureCause(err error) error {
	var s *skipRetryError
	if errors.As(err, &s) && s.cause != nil {
		return s.cause
	}
	return err
}

// skipRetryError carries a cause while matching asynq.SkipRetry.
type skipRetryError struct {
	cause error
}

func skipRetry(cause error) error {
	return &skipRetryError{cause: cause}
}

func (e *skipRetryError) Error() string {
	if e.cause == nil {
		return asynq.SkipRetry.Error()
	}
	return e.cause.Error()
}

func (e *skipRetryError) Unwrap() []error {
	return []error{e.cause, asynq.SkipRetry}
}
