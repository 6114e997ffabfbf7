package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	TypePublishPost   = "publish:post"
	TypePublishScan   = "publish:scan"
	TypePublishSweep  = "publish:sweep"
	TypeRefreshTokens = "accounts:refresh_tokens"
)

// QueueName is the asynq queue every publishing task goes through.
const QueueName = "default"

type PublishPostPayload struct {
	PostID      int64     `json:"post_id"`
	WorkspaceID int64     `json:"workspace_id"`
	ClaimedAt   time.Time `json:"claimed_at"`
	RetryUntil  time.Time `json:"retry_until"`
}

// IdempotencyKey is the task id of the publish task for a post. At most one
// live task exists per key.
func IdempotencyKey(postID int64) string {
	return fmt.Sprintf("publish:%d", postID)
}

func decodePublishPayload(data []byte) (PublishPostPayload, error) {
	var payload PublishPostPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %w", TypePublishPost, err)
	}
	if payload.PostID == 0 {
		return payload, fmt.Errorf("decode %s payload: missing post_id", TypePublishPost)
	}
	return payload, nil
}
