package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron"
)

// TaskEnqueuer is the part of the queue client the triggers need.
type TaskEnqueuer interface {
	EnqueueScan(ctx context.Context) error
	EnqueueSweep(ctx context.Context) error
	EnqueueRefreshTokens(ctx context.Context) error
}

// PublishTriggerJob turns wall-clock intervals into scan, sweep and token
// refresh tasks.
// Workers do the actual work, so a slow tick never blocks the next trigger.
type PublishTriggerJob struct {
	q       TaskEnqueuer
	timeout time.Duration
	log     *slog.Logger
}

func NewPublishTriggerJob(q TaskEnqueuer, logger *slog.Logger) *PublishTriggerJob {
	return &PublishTriggerJob{q: q, timeout: 10 * time.Second, log: logger}
}

func (j *PublishTriggerJob) TriggerScan() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.q.EnqueueScan(ctx); err != nil {
		j.log.Error("enqueue scheduler scan", "error", err)
	}
}

func (j *PublishTriggerJob) TriggerSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.q.EnqueueSweep(ctx); err != nil {
		j.log.Error("enqueue stale claim sweep", "error", err)
	}
}

func (j *PublishTriggerJob) TriggerTokenRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.q.EnqueueRefreshTokens(ctx); err != nil {
		j.log.Error("enqueue token refresh", "error", err)
	}
}

type Intervals struct {
	Scan         time.Duration
	Sweep        time.Duration
	TokenRefresh time.Duration
}

// Schedule registers every trigger on c.
func (j *PublishTriggerJob) Schedule(c *cron.Cron, iv Intervals) error {
	if err := c.AddFunc(every(iv.Scan), j.TriggerScan); err != nil {
		return fmt.Errorf("schedule scan: %w", err)
	}
	if err := c.AddFunc(every(iv.Sweep), j.TriggerSweep); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	if err := c.AddFunc(every(iv.TokenRefresh), j.TriggerTokenRefresh); err != nil {
		return fmt.Errorf("schedule token refresh: %w", err)
	}
	return nil
}

func every(d time.Duration) string {
	return "@every " + d.String()
}
