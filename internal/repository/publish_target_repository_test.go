package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListByPostIDScansNullableColumns(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPublishTargetRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "post_id", "destination_id", "platform", "status",
		"external_post_id", "external_post_url", "error_code", "error_message", "attempts", "published_at", "updated_at"}).
		AddRow(int64(1), int64(5), int64(11), "instagram", "PUBLISHED", "ig-1", "https://instagram.com/p/1", "", "", 1, now, now).
		AddRow(int64(2), int64(5), int64(12), "tiktok", "PENDING", "", "", "", "", 0, nil, now)

	mock.ExpectQuery(`FROM publish_targets\s+WHERE post_id = \$1`).WithArgs(int64(5)).WillReturnRows(rows)

	targets, err := repo.ListByPostID(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, models.TargetStatusPublished, targets[0].Status)
	assert.NotNil(t, targets[0].PublishedAt)
	assert.Nil(t, targets[1].PublishedAt)
}

func TestMarkPublishingRefusesPublishedTarget(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPublishTargetRepository(db)

	mock.ExpectExec(`UPDATE publish_targets.*attempts = attempts \+ 1.*WHERE id = \$3 AND status <> \$4`).
		WithArgs("PUBLISHING", sqlmock.AnyArg(), int64(1), "PUBLISHED").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkPublishing(context.Background(), 1)
	assert.ErrorIs(t, err, ErrTargetAlreadyPublished)
}

func TestFailOpenClosesPendingAndPublishing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPublishTargetRepository(db)

	mock.ExpectExec(`UPDATE publish_targets.*WHERE post_id = \$5 AND status = ANY\(\$6\)`).
		WithArgs("FAILED", "retries_exhausted", "boom", sqlmock.AnyArg(), int64(5),
			pq.Array([]string{"PENDING", "PUBLISHING"})).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.FailOpen(context.Background(), 5, "retries_exhausted", "boom")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailedLeavesPublishedTargets(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPublishTargetRepository(db)

	mock.ExpectExec(`UPDATE publish_targets\s+SET status = \$1,\s+error_code = \$2.*WHERE id = \$5 AND status <> \$6`).
		WithArgs("FAILED", "timeout", "context deadline exceeded", sqlmock.AnyArg(), int64(3), "PUBLISHED").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkFailed(context.Background(), 3, "timeout", "context deadline exceeded"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPublishedStoresExternalIDs(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPublishTargetRepository(db)
	at := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE publish_targets`).
		WithArgs("PUBLISHED", "ig-1", "https://instagram.com/p/1", at, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkPublished(context.Background(), 3, "ig-1", "https://instagram.com/p/1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}
