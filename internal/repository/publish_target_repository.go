package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/postflow/internal/models"
)

type PublishTargetRepository interface {
	ListByPostID(ctx context.Context, postID int64) ([]*models.PublishTarget, error)
	MarkPublishing(ctx context.Context, targetID int64) error
	MarkPublished(ctx context.Context, targetID int64, externalID, externalURL string, at time.Time) error
	MarkFailed(ctx context.Context, targetID int64, code, message string) error
	// FailOpen closes every PENDING or PUBLISHING target of a post as FAILED.
	FailOpen(ctx context.Context, postID int64, code, message string) (int64, error)
}

type publishTargetRepository struct {
	db *sql.DB
}

func NewPublishTargetRepository(db *sql.DB) PublishTargetRepository {
	return &publishTargetRepository{db: db}
}

func (r *publishTargetRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.PublishTarget, error) {
	query := `
		SELECT id, post_id, destination_id, platform, status,
			COALESCE(external_post_id, ''), COALESCE(external_post_url, ''),
			COALESCE(error_code, ''), COALESCE(error_message, ''),
			attempts, published_at, updated_at
		FROM publish_targets
		WHERE post_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var targets []*models.PublishTarget
	for rows.Next() {
		var (
			t           models.PublishTarget
			publishedAt sql.NullTime
		)
		err := rows.Scan(&t.ID, &t.PostID, &t.DestinationID, &t.Platform, &t.Status,
			&t.ExternalPostID, &t.ExternalPostURL, &t.ErrorCode, &t.ErrorMessage,
			&t.Attempts, &publishedAt, &t.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if publishedAt.Valid {
			t.PublishedAt = &publishedAt.Time
		}
		targets = append(targets, &t)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return targets, nil
}

func (r *publishTargetRepository) MarkPublishing(ctx context.Context, targetID int64) error {
	query := `
		UPDATE publish_targets
		SET status = $1,
			attempts = attempts + 1,
			error_code = NULL,
			error_message = NULL,
			updated_at = $2
		WHERE id = $3 AND status <> $4
	`
	result, err := r.db.ExecContext(ctx, query, string(models.TargetStatusPublishing), time.Now(), targetID,
		string(models.TargetStatusPublished))
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("mark target %d publishing: %w", targetID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("mark target %d publishing: %w", targetID, ErrTargetAlreadyPublished)
	}
	return nil
}

func (r *publishTargetRepository) MarkPublished(ctx context.Context, targetID int64, externalID, externalURL string, at time.Time) error {
	query := `
		UPDATE publish_targets
		SET status = $1,
			external_post_id = $2,
			external_post_url = $3,
			error_code = NULL,
			error_message = NULL,
			published_at = $4,
			updated_at = $4
		WHERE id = $5
	`
	_, err := r.db.ExecContext(ctx, query, string(models.TargetStatusPublished), externalID, externalURL, at, targetID)
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("mark target %d published: %w", targetID, err)
	}
	return nil
}

func (r *publishTargetRepository) MarkFailed(ctx context.Context, targetID int64, code, message string) error {
	query := `
		UPDATE publish_targets
		SET status = $1,
			error_code = $2,
			error_message = $3,
			updated_at = $4
		WHERE id = $5 AND status <> $6
	`
	_, err := r.db.ExecContext(ctx, query, string(models.TargetStatusFailed), code, message, time.Now(), targetID,
		string(models.TargetStatusPublished))
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("mark target %d failed: %w", targetID, err)
	}
	return nil
}

func (r *publishTargetRepository) FailOpen(ctx context.Context, postID int64, code, message string) (int64, error) {
	query := `
		UPDATE publish_targets
		SET status = $1,
			error_code = $2,
			error_message = $3,
			updated_at = $4
		WHERE post_id = $5 AND status = ANY($6)
	`
	open := pq.Array([]string{string(models.TargetStatusPending), string(models.TargetStatusPublishing)})

	result, err := r.db.ExecContext(ctx, query, string(models.TargetStatusFailed), code, message, time.Now(), postID, open)
	if err != nil {
		slog.Info(err.Error())
		return 0, fmt.Errorf("fail open targets of post %d: %w", postID, err)
	}
	return result.RowsAffected()
}
