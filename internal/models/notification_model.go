package models

import "time"

type NotificationKind string

const (
	NotificationPostPublished NotificationKind = "PostPublished"
	NotificationPostFailed    NotificationKind = "PostFailed"
)

// Notification is the author-facing outcome event handed to delivery.
type Notification struct {
	ID        int64            `db:"id" json:"id"`
	UserID    int64            `db:"user_id" json:"user_id"`
	Kind      NotificationKind `db:"kind" json:"kind"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	Data      map[string]any   `db:"data" json:"data"`
	ActionURL string           `db:"action_url" json:"action_url"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
