package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
)

type NotificationService interface {
	PostPublished(ctx context.Context, post *models.Post, agg Aggregation, targets []*models.PublishTarget) error
	PostFailed(ctx context.Context, post *models.Post, reason string) error
}

type notificationService struct {
	nr          repository.NotificationRepository
	frontendURL string
}

func NewNotificationService(nr repository.NotificationRepository, frontendURL string) NotificationService {
	return &notificationService{
		nr:          nr,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

func (s *notificationService) PostPublished(ctx context.Context, post *models.Post, agg Aggregation, targets []*models.PublishTarget) error {
	data := map[string]any{
		"post_id":      post.ID,
		"workspace_id": post.WorkspaceID,
	}
	if post.PublishedAt != nil {
		data["published_at"] = post.PublishedAt.UTC().Format(time.RFC3339)
	}

	message := fmt.Sprintf("%s was published to %d destination(s).", postLabel(post), agg.Published)
	if agg.Partial {
		message = fmt.Sprintf("%s was published to %d of %d destinations. Failed: %s.",
			postLabel(post), agg.Published, agg.Published+agg.Failed, failedPlatforms(targets))
		data["failed_targets"] = agg.Failed
	}

	n := &models.Notification{
		UserID:    post.UserID,
		Kind:      models.NotificationPostPublished,
		Title:     "Post published",
		Message:   message,
		Data:      data,
		ActionURL: s.actionURL(post),
	}
	if _, err := s.nr.Create(ctx, n); err != nil {
		return fmt.Errorf("store published notification: %w", err)
	}
	return nil
}

func (s *notificationService) PostFailed(ctx context.Context, post *models.Post, reason string) error {
	n := &models.Notification{
		UserID:  post.UserID,
		Kind:    models.NotificationPostFailed,
		Title:   "Post failed to publish",
		Message: fmt.Sprintf("%s could not be published: %s", postLabel(post), reason),
		Data: map[string]any{
			"post_id":        post.ID,
			"workspace_id":   post.WorkspaceID,
			"failure_reason": reason,
		},
		ActionURL: s.actionURL(post),
	}
	if _, err := s.nr.Create(ctx, n); err != nil {
		return fmt.Errorf("store failed notification: %w", err)
	}
	return nil
}

func (s *notificationService) actionURL(post *models.Post) string {
	return fmt.Sprintf("%s/workspaces/%d/posts/%d", s.frontendURL, post.WorkspaceID, post.ID)
}

func postLabel(post *models.Post) string {
	if post.Title != "" {
		return fmt.Sprintf("%q", post.Title)
	}
	return "Your post"
}

func failedPlatforms(targets []*models.PublishTarget) string {
	var names []string
	for _, t := range targets {
		if t.Status == models.TargetStatusFailed {
			names = append(names, t.Platform)
		}
	}
	return strings.Join(names, ", ")
}

// failureReason picks the first failing target's error, or a generic summary.
func failureReason(targets []*models.PublishTarget) string {
	for _, t := range targets {
		if t.Status == models.TargetStatusFailed && t.ErrorMessage != "" {
			return fmt.Sprintf("%s: %s", t.Platform, t.ErrorMessage)
		}
	}
	return "all destinations failed to publish"
}
