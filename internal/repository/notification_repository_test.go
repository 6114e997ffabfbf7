package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationCreateStoresDataAsJSON(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNotificationRepository(db)

	mock.ExpectQuery(`INSERT INTO notifications`).
		WithArgs(int64(3), "PostFailed", "Post failed", "boom", []byte(`{"post_id":9}`), "http://app/p/9").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(41)))

	id, err := repo.Create(context.Background(), &models.Notification{
		UserID:    3,
		Kind:      models.NotificationPostFailed,
		Title:     "Post failed",
		Message:   "boom",
		Data:      map[string]any{"post_id": 9},
		ActionURL: "http://app/p/9",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(41), id)
}
