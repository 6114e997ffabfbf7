package models

import "time"

type TargetStatus string

const (
	TargetStatusPending    TargetStatus = "PENDING"
	TargetStatusPublishing TargetStatus = "PUBLISHING"
	TargetStatusPublished  TargetStatus = "PUBLISHED"
	TargetStatusFailed     TargetStatus = "FAILED"
)

// PublishTarget is one destination account a post is sent to.
type PublishTarget struct {
	ID              int64        `db:"id" json:"id"`
	PostID          int64        `db:"post_id" json:"post_id"`
	DestinationID   int64        `db:"destination_id" json:"destination_id"`
	Platform        string       `db:"platform" json:"platform"`
	Status          TargetStatus `db:"status" json:"status"`
	ExternalPostID  string       `db:"external_post_id" json:"external_post_id,omitempty"`
	ExternalPostURL string       `db:"external_post_url" json:"external_post_url,omitempty"`
	ErrorCode       string       `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage    string       `db:"error_message" json:"error_message,omitempty"`
	Attempts        int          `db:"attempts" json:"attempts"`
	PublishedAt     *time.Time   `db:"published_at" json:"published_at,omitempty"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}
