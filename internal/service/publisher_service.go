package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const defaultTargetTimeout = 60 * time.Second

var (
	ErrPostNotFound      = errors.New("post not found")
	ErrWorkspaceMismatch = errors.New("post belongs to another workspace")
	ErrNotClaimed        = errors.New("post is not in PUBLISHING")
)

// PublishJob identifies one attempt at publishing one post.
type PublishJob struct {
	PostID      int64
	WorkspaceID int64
	Attempt     int
	MaxAttempts int
	// ClaimedAt is the claim the task was enqueued for. Zero means unknown.
	ClaimedAt time.Time
}

type PublisherService interface {
	// Run executes one publish attempt. It is safe to call again for the
	// same post: targets that already published are left alone.
	Run(ctx context.Context, job PublishJob) Outcome
	// FailTerminal closes out a post whose attempts are used up.
	FailTerminal(ctx context.Context, job PublishJob, cause error) error
}

type PublisherOptions struct {
	Policy        MixedOutcomePolicy
	TargetTimeout time.Duration
	Concurrency   int
}

type publisherService struct {
	pr repository.PostRepository
	tr repository.PublishTargetRepository
	ac repository.SocialAccountRepository
	pm repository.PostMediaRepository

	processors *ProcessorRegistry
	notifier   NotificationService
	incidents  IncidentReporter
	opts       PublisherOptions
	now        func() time.Time
	log        *slog.Logger
}

func NewPublisherService(
	pr repository.PostRepository,
	tr repository.PublishTargetRepository,
	ac repository.SocialAccountRepository,
	pm repository.PostMediaRepository,
	processors *ProcessorRegistry,
	notifier NotificationService,
	incidents IncidentReporter,
	opts PublisherOptions,
	logger *slog.Logger) PublisherService {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Policy == "" {
		opts.Policy = MixedBestEffort
	}
	if opts.TargetTimeout <= 0 {
		opts.TargetTimeout = defaultTargetTimeout
	}
	return &publisherService{
		pr:         pr,
		tr:         tr,
		ac:         ac,
		pm:         pm,
		processors: processors,
		notifier:   notifier,
		incidents:  incidents,
		opts:       opts,
		now:        time.Now,
		log:        logger,
	}
}

func (s *publisherService) Run(ctx context.Context, job PublishJob) Outcome {
	attemptID, err := gonanoid.New()
	if err != nil {
		attemptID = "unknown"
	}
	log := s.log.With("post_id", job.PostID, "workspace_id", job.WorkspaceID,
		"attempt", job.Attempt, "attempt_id", attemptID)

	post, err := s.loadClaimed(ctx, job)
	if err != nil {
		if isPrecondition(err) {
			log.Warn("skipping publish", "reason", err.Error())
			return Skipped(err)
		}
		return Retryable(err)
	}

	targets, err := s.tr.ListByPostID(ctx, post.ID)
	if err != nil {
		return Retryable(fmt.Errorf("list targets: %w", err))
	}
	if len(targets) == 0 {
		log.Warn("post has no targets")
		return Terminal(ErrNoTargets)
	}

	media, err := s.pm.ListAssetsByPostID(ctx, post.ID)
	if err != nil {
		return Retryable(fmt.Errorf("list media: %w", err))
	}

	log.Info("publishing post", "targets", len(targets))
	if err := s.processTargets(ctx, log, post, targets, media); err != nil {
		log.Warn("publish attempt incomplete", "error", err)
		return Retryable(err)
	}

	return s.complete(ctx, log, post)
}

func (s *publisherService) loadClaimed(ctx context.Context, job PublishJob) (*models.Post, error) {
	post, err := s.pr.GetByID(ctx, job.PostID)
	if err != nil {
		return nil, fmt.Errorf("load post %d: %w", job.PostID, err)
	}
	if post == nil {
		return nil, ErrPostNotFound
	}
	if post.WorkspaceID != job.WorkspaceID {
		return nil, ErrWorkspaceMismatch
	}
	if post.Status != models.PostStatusPublishing {
		return nil, fmt.Errorf("%w: status is %s", ErrNotClaimed, post.Status)
	}
	return post, nil
}

func isPrecondition(err error) bool {
	return errors.Is(err, ErrPostNotFound) || errors.Is(err, ErrWorkspaceMismatch) || errors.Is(err, ErrNotClaimed)
}

// processTargets publishes every target that has not published yet and
// waits for all of them before returning.
func (s *publisherService) processTargets(ctx context.Context, log *slog.Logger, post *models.Post, targets []*models.PublishTarget, media []*models.MediaAsset) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	semaphore := make(chan struct{}, s.opts.Concurrency)

	for _, target := range targets {
		if settled(target) {
			log.Debug("target already settled", "target_id", target.ID, "status", target.Status)
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{}
		go func(target *models.PublishTarget) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := s.processTarget(ctx, log.With("target_id", target.ID, "platform", target.Platform), post, target, media); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(target)
	}

	wg.Wait()
	return errors.Join(errs...)
}

// settled reports whether an earlier attempt already reached a final answer
// for target: published, or rejected by the platform. Exceptions and
// timeouts are tried again.
func settled(target *models.PublishTarget) bool {
	switch target.Status {
	case models.TargetStatusPublished:
		return true
	case models.TargetStatusFailed:
		return target.ErrorCode != "" && target.ErrorCode != CodeException && target.ErrorCode != CodeTimeout
	default:
		return false
	}
}

func (s *publisherService) processTarget(ctx context.Context, log *slog.Logger, post *models.Post, target *models.PublishTarget, media []*models.MediaAsset) error {
	if err := s.tr.MarkPublishing(ctx, target.ID); err != nil {
		if errors.Is(err, repository.ErrTargetAlreadyPublished) {
			return nil
		}
		return err
	}

	account, err := s.ac.GetByID(ctx, target.DestinationID)
	if err != nil {
		return s.recordException(ctx, log, target, fmt.Errorf("load destination %d: %w", target.DestinationID, err))
	}
	if account == nil {
		return s.recordRejection(ctx, log, target, rejected(CodeDestinationMissing, "destination account no longer exists"))
	}

	processor, ok := s.processors.Get(target.Platform)
	if !ok {
		return s.recordRejection(ctx, log, target, rejected(CodeUnsupportedPlatform,
			fmt.Sprintf("no publisher for platform %q", target.Platform)))
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.TargetTimeout)
	result, err := processor.Publish(callCtx, TargetRequest{Post: post, Target: target, Account: account, Media: media})
	cancel()
	if err != nil {
		return s.recordException(ctx, log, target, fmt.Errorf("publish target %d to %s: %w", target.ID, target.Platform, err))
	}
	if !result.Success {
		return s.recordRejection(ctx, log, target, result)
	}

	if err := s.tr.MarkPublished(ctx, target.ID, result.ExternalID, result.ExternalURL, s.now()); err != nil {
		return err
	}
	target.Status = models.TargetStatusPublished
	log.Info("target published", "external_id", result.ExternalID)
	return nil
}

// recordRejection stores a final platform rejection. Only a storage error
// is returned.
func (s *publisherService) recordRejection(ctx context.Context, log *slog.Logger, target *models.PublishTarget, result TargetResult) error {
	code := result.ErrorCode
	if code == "" {
		code = CodeRejected
	}
	log.Warn("target rejected", "error_code", code, "error", result.ErrorMessage)

	if err := s.tr.MarkFailed(ctx, target.ID, code, result.ErrorMessage); err != nil {
		return err
	}
	target.Status = models.TargetStatusFailed
	return nil
}

// recordException marks the target failed and hands cause back so the
// attempt is retried.
func (s *publisherService) recordException(ctx context.Context, log *slog.Logger, target *models.PublishTarget, cause error) error {
	code := CodeException
	if errors.Is(cause, context.DeadlineExceeded) {
		code = CodeTimeout
	}
	log.Error("target failed", "error_code", code, "error", cause)

	if err := s.tr.MarkFailed(ctx, target.ID, code, cause.Error()); err != nil {
		log.Error("record target failure", "error", err)
	}
	target.Status = models.TargetStatusFailed
	return cause
}

func (s *publisherService) complete(ctx context.Context, log *slog.Logger, post *models.Post) Outcome {
	targets, err := s.tr.ListByPostID(ctx, post.ID)
	if err != nil {
		return Retryable(fmt.Errorf("reload targets: %w", err))
	}

	agg, err := Aggregate(targetStatuses(targets), s.opts.Policy)
	if err != nil {
		if errors.Is(err, ErrIncompleteAttempt) {
			return Retryable(err)
		}
		return Terminal(err)
	}

	if err := s.finalize(ctx, post, agg, targets, failureReason(targets)); err != nil {
		if errors.Is(err, ErrNotClaimed) {
			log.Warn("post changed before finalize, leaving it")
			return Skipped(err)
		}
		return Retryable(err)
	}

	log.Info("post finalized", "status", agg.Status, "published", agg.Published, "failed", agg.Failed)
	return Success(agg.Status)
}

// finalize persists the aggregated status and sends the matching
// notification. Notification errors are logged only.
func (s *publisherService) finalize(ctx context.Context, post *models.Post, agg Aggregation, targets []*models.PublishTarget, reason string) error {
	var publishedAt *time.Time
	if agg.Status == models.PostStatusPublished {
		t := s.now()
		publishedAt = &t
		reason = ""
	}

	ok, err := s.pr.Finalize(ctx, post.ID, agg.Status, publishedAt, reason)
	if err != nil {
		return fmt.Errorf("finalize post %d: %w", post.ID, err)
	}
	if !ok {
		return ErrNotClaimed
	}

	post.Status = agg.Status
	post.PublishedAt = publishedAt
	post.FailureReason = reason

	if agg.Status == models.PostStatusPublished {
		err = s.notifier.PostPublished(ctx, post, agg, targets)
	} else {
		err = s.notifier.PostFailed(ctx, post, reason)
	}
	if err != nil {
		s.log.Error("notify author", "post_id", post.ID, "error", err)
	}
	return nil
}

func (s *publisherService) FailTerminal(ctx context.Context, job PublishJob, cause error) error {
	log := s.log.With("post_id", job.PostID, "workspace_id", job.WorkspaceID, "attempt", job.Attempt)

	post, err := s.loadClaimed(ctx, job)
	if err != nil {
		if isPrecondition(err) {
			log.Info("post already settled, nothing to fail", "reason", err.Error())
			return nil
		}
		return err
	}

	// A task left over from an earlier claim must not fail the current one.
	if !job.ClaimedAt.IsZero() && post.ClaimedAt != nil && post.ClaimedAt.After(job.ClaimedAt) {
		log.Warn("post was claimed again after this task, leaving it",
			"task_claimed_at", job.ClaimedAt, "claimed_at", *post.ClaimedAt)
		return nil
	}

	if cause == nil {
		cause = errors.New("publishing did not complete")
	}
	reason := cause.Error()

	if _, err := s.tr.FailOpen(ctx, post.ID, CodeRetriesExhausted, reason); err != nil {
		return fmt.Errorf("close open targets: %w", err)
	}
	targets, err := s.tr.ListByPostID(ctx, post.ID)
	if err != nil {
		return fmt.Errorf("reload targets: %w", err)
	}

	// Exhausted retries always fail the post. Targets that did publish keep
	// their own PUBLISHED status.
	agg, err := Aggregate(targetStatuses(targets), MixedStrict)
	if err != nil {
		agg = Aggregation{}
	}
	agg.Status = models.PostStatusFailed

	if err := s.finalize(ctx, post, agg, targets, reason); err != nil {
		if errors.Is(err, ErrNotClaimed) {
			return nil
		}
		return err
	}

	log.Error("post publish exhausted retries",
		"published", agg.Published, "failed", agg.Failed, "attempts", job.Attempt, "error", reason)
	s.incidents.Report(ctx, Incident{
		PostID:      job.PostID,
		WorkspaceID: job.WorkspaceID,
		Attempts:    job.Attempt,
		Err:         cause,
	})
	return nil
}
