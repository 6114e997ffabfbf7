package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

type PostRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Post, error)
	ListStaleClaims(ctx context.Context, claimedBefore time.Time, limit int) ([]*models.Post, error)
	// Claim moves a post from SCHEDULED to PUBLISHING. It returns false when
	// another worker got there first or the post is no longer scheduled.
	Claim(ctx context.Context, postID int64, now time.Time) (bool, error)
	ReleaseClaim(ctx context.Context, postID int64, claimedAt time.Time) (bool, error)
	RefreshClaim(ctx context.Context, postID int64, claimedAt, now time.Time) (bool, error)
	// Finalize writes a terminal status onto a post that is still PUBLISHING.
	Finalize(ctx context.Context, postID int64, status models.PostStatus, publishedAt *time.Time, reason string) (bool, error)
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, workspace_id, user_id, post_type, caption, title, status, scheduled_at,
	claimed_at, published_at, COALESCE(failure_reason, ''), created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var (
		post        models.Post
		claimedAt   sql.NullTime
		publishedAt sql.NullTime
	)
	err := row.Scan(&post.ID, &post.WorkspaceID, &post.UserID, &post.PostType, &post.Caption, &post.Title,
		&post.Status, &post.ScheduledAt, &claimedAt, &publishedAt, &post.FailureReason, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if claimedAt.Valid {
		post.ClaimedAt = &claimedAt.Time
	}
	if publishedAt.Valid {
		post.PublishedAt = &publishedAt.Time
	}
	return &post, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + `
		FROM posts
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at
		LIMIT $3`

	return r.list(ctx, query, string(models.PostStatusScheduled), now, limit)
}

func (r *postRepository) ListStaleClaims(ctx context.Context, claimedBefore time.Time, limit int) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + `
		FROM posts
		WHERE status = $1 AND claimed_at < $2
		ORDER BY claimed_at
		LIMIT $3`

	return r.list(ctx, query, string(models.PostStatusPublishing), claimedBefore, limit)
}

func (r *postRepository) list(ctx context.Context, query string, args ...any) ([]*models.Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return posts, nil
}

func (r *postRepository) Claim(ctx context.Context, postID int64, now time.Time) (bool, error) {
	query := `
		UPDATE posts
		SET status = $1,
			claimed_at = $2,
			updated_at = $2
		WHERE id = $3 AND status = $4
	`
	return r.guardedUpdate(ctx, query, string(models.PostStatusPublishing), now, postID, string(models.PostStatusScheduled))
}

func (r *postRepository) ReleaseClaim(ctx context.Context, postID int64, claimedAt time.Time) (bool, error) {
	query := `
		UPDATE posts
		SET status = $1,
			claimed_at = NULL,
			updated_at = $2
		WHERE id = $3 AND status = $4 AND claimed_at = $5
	`
	return r.guardedUpdate(ctx, query, string(models.PostStatusScheduled), time.Now(), postID,
		string(models.PostStatusPublishing), claimedAt)
}

func (r *postRepository) RefreshClaim(ctx context.Context, postID int64, claimedAt, now time.Time) (bool, error) {
	query := `
		UPDATE posts
		SET claimed_at = $1,
			updated_at = $1
		WHERE id = $2 AND status = $3 AND claimed_at = $4
	`
	return r.guardedUpdate(ctx, query, now, postID, string(models.PostStatusPublishing), claimedAt)
}

func (r *postRepository) Finalize(ctx context.Context, postID int64, status models.PostStatus, publishedAt *time.Time, reason string) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("finalize post %d: %s is not a terminal status", postID, status)
	}

	query := `
		UPDATE posts
		SET status = $1,
			published_at = $2,
			failure_reason = NULLIF($3, ''),
			updated_at = $4
		WHERE id = $5 AND status = $6
	`
	var published sql.NullTime
	if publishedAt != nil {
		published = sql.NullTime{Time: *publishedAt, Valid: true}
	}
	return r.guardedUpdate(ctx, query, string(status), published, reason, time.Now(), postID,
		string(models.PostStatusPublishing))
}

// guardedUpdate runs a status-guarded UPDATE in its own transaction and
// reports whether exactly one row changed.
func (r *postRepository) guardedUpdate(ctx context.Context, query string, args ...any) (bool, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		slog.Info(err.Error())
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return false, fmt.Errorf("update post: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected != 1 {
		return false, nil
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}
