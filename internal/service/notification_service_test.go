package service

import (
	"context"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationPartialPublish(t *testing.T) {
	store := newMemStore()
	svc := NewNotificationService(memNotifications{store}, "https://app.example.com/")

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	post := &models.Post{ID: 3, WorkspaceID: 4, UserID: 5, PublishedAt: &at}
	targets := []*models.PublishTarget{
		{Platform: "instagram", Status: models.TargetStatusPublished},
		{Platform: "tiktok", Status: models.TargetStatusFailed},
		{Platform: "youtube", Status: models.TargetStatusFailed},
	}
	agg := Aggregation{Status: models.PostStatusPublished, Published: 1, Failed: 2, Partial: true}

	require.NoError(t, svc.PostPublished(context.Background(), post, agg, targets))

	n := store.sentNotifications()[0]
	assert.Equal(t, "Your post was published to 1 of 3 destinations. Failed: tiktok, youtube.", n.Message)
	assert.Equal(t, "https://app.example.com/workspaces/4/posts/3", n.ActionURL)
	assert.Equal(t, "2026-03-01T12:00:00Z", n.Data["published_at"])
	assert.Equal(t, 2, n.Data["failed_targets"])
}

func TestNotificationFailed(t *testing.T) {
	store := newMemStore()
	svc := NewNotificationService(memNotifications{store}, "https://app.example.com")

	post := &models.Post{ID: 3, WorkspaceID: 4, UserID: 5, Title: "Spring sale"}
	require.NoError(t, svc.PostFailed(context.Background(), post, "tiktok: spam risk"))

	n := store.sentNotifications()[0]
	assert.Equal(t, models.NotificationPostFailed, n.Kind)
	assert.Equal(t, `"Spring sale" could not be published: tiktok: spam risk`, n.Message)
	assert.Equal(t, "tiktok: spam risk", n.Data["failure_reason"])
	assert.Equal(t, int64(5), n.UserID)
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "all destinations failed to publish", failureReason(nil))
	assert.Equal(t, "youtube: quota", failureReason([]*models.PublishTarget{
		{Platform: "instagram", Status: models.TargetStatusPublished},
		{Platform: "youtube", Status: models.TargetStatusFailed, ErrorMessage: "quota"},
	}))
}

func TestStatusService(t *testing.T) {
	store := newMemStore()
	store.addPost(models.Post{ID: 1, WorkspaceID: 10, Status: models.PostStatusPublished})
	store.addTarget(models.PublishTarget{ID: 11, PostID: 1, DestinationID: 501, Platform: "instagram", Status: models.TargetStatusPublished})
	svc := NewStatusService(memPosts{store}, memTargets{store})

	st, err := svc.PublishStatus(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublished, st.Post.Status)
	assert.Len(t, st.Targets, 1)

	_, err = svc.PublishStatus(context.Background(), 1, 99)
	assert.ErrorIs(t, err, ErrPostNotFound)

	_, err = svc.PublishStatus(context.Background(), 2, 10)
	assert.ErrorIs(t, err, ErrPostNotFound)
}
