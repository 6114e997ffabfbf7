package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
)

// PublishQueue hands claimed posts to the publish workers. Enqueueing a post
// that already has a live task is not an error.
type PublishQueue interface {
	EnqueuePublish(ctx context.Context, post *models.Post) error
	// RequeuePublish enqueues again for a post whose earlier task is gone or
	// finished.
	RequeuePublish(ctx context.Context, post *models.Post) error
}

type SchedulerService interface {
	// Tick claims due posts and enqueues one publish task for each. It
	// returns how many posts were claimed and handed off.
	Tick(ctx context.Context) (int, error)
	// Sweep re-enqueues posts whose claim went stale without finishing.
	Sweep(ctx context.Context) (int, error)
}

type SchedulerOptions struct {
	BatchLimit      int
	StaleClaimAfter time.Duration
}

type schedulerService struct {
	pr   repository.PostRepository
	q    PublishQueue
	opts SchedulerOptions
	now  func() time.Time
	log  *slog.Logger
}

func NewSchedulerService(pr repository.PostRepository, q PublishQueue, opts SchedulerOptions, logger *slog.Logger) SchedulerService {
	return &schedulerService{
		pr:   pr,
		q:    q,
		opts: opts,
		now:  time.Now,
		log:  logger,
	}
}

// claimTime is rounded to the precision postgres stores, so a claim can be
// matched again by value.
func (s *schedulerService) claimTime() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *schedulerService) Tick(ctx context.Context) (int, error) {
	now := s.claimTime()

	due, err := s.pr.ListDue(ctx, now, s.opts.BatchLimit)
	if err != nil {
		return 0, fmt.Errorf("list due posts: %w", err)
	}

	var (
		claimed int
		errs    []error
	)
	for _, post := range due {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		ok, err := s.pr.Claim(ctx, post.ID, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("claim post %d: %w", post.ID, err))
			continue
		}
		if !ok {
			s.log.Debug("post already claimed", "post_id", post.ID)
			continue
		}
		post.Status = models.PostStatusPublishing
		post.ClaimedAt = &now

		if err := s.q.EnqueuePublish(ctx, post); err != nil {
			s.log.Error("enqueue publish task", "post_id", post.ID, "workspace_id", post.WorkspaceID, "error", err)
			s.release(ctx, post, now)
			errs = append(errs, fmt.Errorf("enqueue post %d: %w", post.ID, err))
			continue
		}
		claimed++
	}

	if claimed > 0 || len(errs) > 0 {
		s.log.Info("scheduler tick", "due", len(due), "claimed", claimed, "errors", len(errs))
	}
	return claimed, errors.Join(errs...)
}

// release hands a claimed post back to SCHEDULED after its task could not
// be enqueued. If that fails too the stale sweep picks the post up.
func (s *schedulerService) release(ctx context.Context, post *models.Post, claimedAt time.Time) {
	ok, err := s.pr.ReleaseClaim(ctx, post.ID, claimedAt)
	if err != nil || !ok {
		s.log.Error("claim left for stale sweep", "post_id", post.ID, "released", ok, "error", err)
	}
}

func (s *schedulerService) Sweep(ctx context.Context) (int, error) {
	now := s.claimTime()

	stale, err := s.pr.ListStaleClaims(ctx, now.Add(-s.opts.StaleClaimAfter), s.opts.BatchLimit)
	if err != nil {
		return 0, fmt.Errorf("list stale claims: %w", err)
	}

	var (
		requeued int
		errs     []error
	)
	for _, post := range stale {
		if post.ClaimedAt == nil {
			continue
		}
		ok, err := s.pr.RefreshClaim(ctx, post.ID, *post.ClaimedAt, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("refresh claim of post %d: %w", post.ID, err))
			continue
		}
		if !ok {
			continue
		}
		post.ClaimedAt = &now

		if err := s.q.RequeuePublish(ctx, post); err != nil {
			errs = append(errs, fmt.Errorf("requeue post %d: %w", post.ID, err))
			continue
		}
		s.log.Warn("requeued stale claim", "post_id", post.ID, "workspace_id", post.WorkspaceID)
		requeued++
	}
	return requeued, errors.Join(errs...)
}
