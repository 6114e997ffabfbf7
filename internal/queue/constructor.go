package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
)

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type taskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
}

// Client enqueues publishing tasks. It implements service.PublishQueue.
type Client struct {
	enq       taskEnqueuer
	inspector taskInspector
	cfg       *config.Config
	log       *slog.Logger
}

func NewClient(enq taskEnqueuer, inspector taskInspector, cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{enq: enq, inspector: inspector, cfg: cfg, log: logger}
}

func (c *Client) publishTask(post *models.Post) (*asynq.Task, []asynq.Option, error) {
	claimedAt := time.Now().UTC()
	if post.ClaimedAt != nil {
		claimedAt = *post.ClaimedAt
	}
	payload := PublishPostPayload{
		PostID:      post.ID,
		WorkspaceID: post.WorkspaceID,
		ClaimedAt:   claimedAt,
		RetryUntil:  claimedAt.Add(c.cfg.RetryWindow),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}

	opts := []asynq.Option{
		asynq.Queue(QueueName),
		asynq.TaskID(IdempotencyKey(post.ID)),
		asynq.MaxRetry(c.cfg.PublishJob.MaxRetry),
		asynq.Timeout(c.cfg.PublishJob.Timeout),
		asynq.Deadline(payload.RetryUntil),
		asynq.Retention(c.cfg.DedupWindow),
	}
	return asynq.NewTask(TypePublishPost, data), opts, nil
}

// EnqueuePublish adds the publish task for a claimed post. A task that is
// still waiting or running for the same claim makes this a no-op. A finished
// task, or a waiting one left from an earlier claim, is replaced so a
// rescheduled post gets a fresh task.
func (c *Client) EnqueuePublish(ctx context.Context, post *models.Post) error {
	task, opts, err := c.publishTask(post)
	if err != nil {
		return err
	}

	_, err = c.enq.EnqueueContext(ctx, task, opts...)
	switch {
	case err == nil:
		c.log.Info("publish task enqueued", "post_id", post.ID, "task_id", IdempotencyKey(post.ID))
		return nil
	case errors.Is(err, asynq.ErrTaskIDConflict), errors.Is(err, asynq.ErrDuplicateTask):
		return c.replaceFinished(ctx, post, task, opts)
	default:
		return fmt.Errorf("enqueue publish task for post %d: %w", post.ID, err)
	}
}

// RequeuePublish is used for stale claims. It has the same replacement
// rules as EnqueuePublish.
func (c *Client) RequeuePublish(ctx context.Context, post *models.Post) error {
	return c.EnqueuePublish(ctx, post)
}

func (c *Client) replaceFinished(ctx context.Context, post *models.Post, task *asynq.Task, opts []asynq.Option) error {
	id := IdempotencyKey(post.ID)

	info, err := c.inspector.GetTaskInfo(QueueName, id)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) {
			// Gone between the two calls; try once more.
			return c.enqueueOnce(ctx, post, task, opts)
		}
		return fmt.Errorf("inspect task %s: %w", id, err)
	}

	if !replaceable(info, post) {
		c.log.Debug("publish task already live", "post_id", post.ID, "state", info.State.String())
		return nil
	}

	if err := c.inspector.DeleteTask(QueueName, id); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		return fmt.Errorf("delete finished task %s: %w", id, err)
	}
	return c.enqueueOnce(ctx, post, task, opts)
}

// replaceable reports whether the existing task under a post's key can be
// swapped for a new one. Active tasks cannot be deleted. One that runs for
// an older claim is ignored by FailTerminal instead.
func replaceable(info *asynq.TaskInfo, post *models.Post) bool {
	switch info.State {
	case asynq.TaskStateArchived, asynq.TaskStateCompleted:
		return true
	case asynq.TaskStateActive:
		return false
	}
	if post.ClaimedAt == nil {
		return false
	}
	old, err := decodePublishPayload(info.Payload)
	if err != nil {
		return true
	}
	return old.ClaimedAt.Before(*post.ClaimedAt)
}

func (c *Client) enqueueOnce(ctx context.Context, post *models.Post, task *asynq.Task, opts []asynq.Option) error {
	_, err := c.enq.EnqueueContext(ctx, task, opts...)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("re-enqueue publish task for post %d: %w", post.ID, err)
	}
	c.log.Info("publish task replaced", "post_id", post.ID, "task_id", IdempotencyKey(post.ID))
	return nil
}

// EnqueueScan asks a worker to run a scheduler tick. Only one scan waits in
// the queue per scheduler interval.
func (c *Client) EnqueueScan(ctx context.Context) error {
	return c.enqueueScheduler(ctx, TypePublishScan, c.cfg.SchedulerInterval)
}

func (c *Client) EnqueueSweep(ctx context.Context) error {
	return c.enqueueScheduler(ctx, TypePublishSweep, c.cfg.SweepInterval)
}

// EnqueueRefreshTokens asks a worker to renew platform tokens that are close
// to expiry.
func (c *Client) EnqueueRefreshTokens(ctx context.Context) error {
	return c.enqueueScheduler(ctx, TypeRefreshTokens, c.cfg.TokenRefreshInterval)
}

func (c *Client) enqueueScheduler(ctx context.Context, taskType string, interval time.Duration) error {
	_, err := c.enq.EnqueueContext(ctx, asynq.NewTask(taskType, nil),
		asynq.Queue(QueueName),
		asynq.MaxRetry(c.cfg.SchedulerJob.MaxRetry),
		asynq.Timeout(c.cfg.SchedulerJob.Timeout),
		asynq.Unique(interval),
	)
	if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
