package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore backs every repository the services use with plain maps.
type memStore struct {
	mu            sync.Mutex
	posts         map[int64]*models.Post
	targets       map[int64]*models.PublishTarget
	accounts      map[int64]*models.SocialAccount
	media         map[int64][]*models.MediaAsset
	notifications []models.Notification
	notifyErr     error
}

func newMemStore() *memStore {
	return &memStore{
		posts:    map[int64]*models.Post{},
		targets:  map[int64]*models.PublishTarget{},
		accounts: map[int64]*models.SocialAccount{},
		media:    map[int64][]*models.MediaAsset{},
	}
}

func (s *memStore) addPost(p models.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[p.ID] = &p
}

func (s *memStore) addTarget(t models.PublishTarget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Status == "" {
		t.Status = models.TargetStatusPending
	}
	if _, ok := s.accounts[t.DestinationID]; !ok {
		s.accounts[t.DestinationID] = &models.SocialAccount{ID: t.DestinationID, Platform: t.Platform, AccountID: fmt.Sprint(t.DestinationID)}
	}
	s.targets[t.ID] = &t
}

func (s *memStore) post(id int64) models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.posts[id]
}

func (s *memStore) target(id int64) models.PublishTarget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.targets[id]
}

func (s *memStore) sentNotifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.notifications...)
}

type memPosts struct{ *memStore }

func (r memPosts) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r memPosts) filter(limit int, keep func(*models.Post) bool) []*models.Post {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Post
	for _, p := range r.posts {
		if keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r memPosts) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Post, error) {
	return r.filter(limit, func(p *models.Post) bool {
		return p.Status == models.PostStatusScheduled && !p.ScheduledAt.After(now)
	}), nil
}

func (r memPosts) ListStaleClaims(ctx context.Context, claimedBefore time.Time, limit int) ([]*models.Post, error) {
	return r.filter(limit, func(p *models.Post) bool {
		return p.Status == models.PostStatusPublishing && p.ClaimedAt != nil && p.ClaimedAt.Before(claimedBefore)
	}), nil
}

func (r memPosts) Claim(ctx context.Context, postID int64, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[postID]
	if !ok || p.Status != models.PostStatusScheduled {
		return false, nil
	}
	p.Status = models.PostStatusPublishing
	p.ClaimedAt = &now
	return true, nil
}

func (r memPosts) ReleaseClaim(ctx context.Context, postID int64, claimedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[postID]
	if !ok || p.Status != models.PostStatusPublishing || p.ClaimedAt == nil || !p.ClaimedAt.Equal(claimedAt) {
		return false, nil
	}
	p.Status = models.PostStatusScheduled
	p.ClaimedAt = nil
	return true, nil
}

func (r memPosts) RefreshClaim(ctx context.Context, postID int64, claimedAt, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[postID]
	if !ok || p.Status != models.PostStatusPublishing || p.ClaimedAt == nil || !p.ClaimedAt.Equal(claimedAt) {
		return false, nil
	}
	p.ClaimedAt = &now
	return true, nil
}

func (r memPosts) Finalize(ctx context.Context, postID int64, status models.PostStatus, publishedAt *time.Time, reason string) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("finalize with non-terminal status %s", status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[postID]
	if !ok || p.Status != models.PostStatusPublishing {
		return false, nil
	}
	p.Status = status
	p.PublishedAt = publishedAt
	p.FailureReason = reason
	return true, nil
}

type memTargets struct{ *memStore }

func (r memTargets) ListByPostID(ctx context.Context, postID int64) ([]*models.PublishTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PublishTarget
	for _, t := range r.targets {
		if t.PostID == postID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memTargets) MarkPublishing(ctx context.Context, targetID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.targets[targetID]
	if t.Status == models.TargetStatusPublished {
		return fmt.Errorf("target %d: %w", targetID, repository.ErrTargetAlreadyPublished)
	}
	t.Status = models.TargetStatusPublishing
	t.Attempts++
	t.ErrorCode, t.ErrorMessage = "", ""
	return nil
}

func (r memTargets) MarkPublished(ctx context.Context, targetID int64, externalID, externalURL string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.targets[targetID]
	t.Status = models.TargetStatusPublished
	t.ExternalPostID, t.ExternalPostURL = externalID, externalURL
	t.PublishedAt = &at
	return nil
}

func (r memTargets) MarkFailed(ctx context.Context, targetID int64, code, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.targets[targetID]
	if t.Status == models.TargetStatusPublished {
		return nil
	}
	t.Status = models.TargetStatusFailed
	t.ErrorCode, t.ErrorMessage = code, message
	return nil
}

func (r memTargets) FailOpen(ctx context.Context, postID int64, code, message string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.targets {
		if t.PostID == postID && (t.Status == models.TargetStatusPending || t.Status == models.TargetStatusPublishing) {
			t.Status = models.TargetStatusFailed
			t.ErrorCode, t.ErrorMessage = code, message
			n++
		}
	}
	return n, nil
}

type memAccounts struct{ *memStore }

func (r memAccounts) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r memAccounts) ListExpiring(ctx context.Context, before time.Time, limit int) ([]*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SocialAccount
	for _, a := range r.accounts {
		if a.AccountStatus == repository.AccountStatusActive && !a.TokenExpiresAt.After(before) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenExpiresAt.Before(out[j].TokenExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memAccounts) SetToken(ctx context.Context, id int64, oldAccessToken, accessToken, refreshToken string, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok || a.AccessToken != oldAccessToken {
		return false, nil
	}
	a.AccessToken = accessToken
	if refreshToken != "" {
		a.RefreshToken = refreshToken
	}
	a.TokenExpiresAt = expiresAt
	return true, nil
}

func (r memAccounts) MarkExpired(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		a.AccountStatus = repository.AccountStatusExpired
	}
	return nil
}

func (s *memStore) account(id int64) models.SocialAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.accounts[id]
}

type memMedia struct{ *memStore }

func (r memMedia) ListAssetsByPostID(ctx context.Context, postID int64) ([]*models.MediaAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.media[postID], nil
}

type memNotifications struct{ *memStore }

func (r memNotifications) Create(ctx context.Context, n *models.Notification) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.notifyErr != nil {
		return 0, r.notifyErr
	}
	r.notifications = append(r.notifications, *n)
	return int64(len(r.notifications)), nil
}

type recordingReporter struct {
	mu        sync.Mutex
	incidents []Incident
}

func (r *recordingReporter) Report(ctx context.Context, incident Incident) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incidents = append(r.incidents, incident)
}

// fakeQueue records enqueued posts and can be told to fail.
type fakeQueue struct {
	mu       sync.Mutex
	enqueued []int64
	requeued []int64
	err      error
}

func (q *fakeQueue) EnqueuePublish(ctx context.Context, post *models.Post) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, post.ID)
	return nil
}

func (q *fakeQueue) RequeuePublish(ctx context.Context, post *models.Post) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.requeued = append(q.requeued, post.ID)
	return nil
}

var errPlatformDown = errors.New("platform unavailable")
