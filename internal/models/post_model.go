package models

import "time"

type PostStatus string

const (
	PostStatusDraft      PostStatus = "DRAFT"
	PostStatusSubmitted  PostStatus = "SUBMITTED"
	PostStatusApproved   PostStatus = "APPROVED"
	PostStatusScheduled  PostStatus = "SCHEDULED"
	PostStatusPublishing PostStatus = "PUBLISHING"
	PostStatusPublished  PostStatus = "PUBLISHED"
	PostStatusFailed     PostStatus = "FAILED"
	PostStatusRejected   PostStatus = "REJECTED"
)

// IsTerminal reports whether the publishing pipeline is done with a post.
func (s PostStatus) IsTerminal() bool {
	return s == PostStatusPublished || s == PostStatusFailed
}

type Post struct {
	ID            int64      `db:"id" json:"id"`
	WorkspaceID   int64      `db:"workspace_id" json:"workspace_id"`
	UserID        int64      `db:"user_id" json:"user_id"`
	PostType      string     `db:"post_type" json:"post_type"`
	Caption       string     `db:"caption" json:"caption"`
	Title         string     `db:"title" json:"title"`
	Status        PostStatus `db:"status" json:"status"`
	ScheduledAt   time.Time  `db:"scheduled_at" json:"scheduled_at"`
	ClaimedAt     *time.Time `db:"claimed_at" json:"claimed_at,omitempty"`
	PublishedAt   *time.Time `db:"published_at" json:"published_at,omitempty"`
	FailureReason string     `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	PostTypeSingle   = "single"
	PostTypeMultiple = "multiple"
)

type MediaAsset struct {
	ID           int64     `db:"id"`
	UserID       int64     `db:"user_id"`
	FileName     string    `db:"file_name"`
	FileType     string    `db:"file_type"`
	FileSize     int64     `db:"file_size"`
	FileURL      string    `db:"file_url"`
	ThumbnailURL string    `db:"thumbnail_url"`
	CreatedAt    time.Time `db:"created_at"`
}

type PostMedia struct {
	PostID       int64     `db:"post_id"`
	AssetID      int64     `db:"asset_id"`
	DisplayOrder int       `db:"display_order"`
	CreatedAt    time.Time `db:"created_at"`
}
