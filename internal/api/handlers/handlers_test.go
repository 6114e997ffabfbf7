package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatus struct {
	got struct{ postID, workspaceID int64 }
	res *service.PublishStatus
	err error
}

func (f *fakeStatus) PublishStatus(ctx context.Context, postID, workspaceID int64) (*service.PublishStatus, error) {
	f.got.postID, f.got.workspaceID = postID, workspaceID
	return f.res, f.err
}

type fakeScan struct{ err error }

func (f fakeScan) EnqueueScan(context.Context) error { return f.err }

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

// asWorkspace stands in for the auth middleware.
func asWorkspace(workspaceID int64) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user_id", "17")
		c.Locals("workspace_id", workspaceID)
		return c.Next()
	}
}

func TestPublishStatus(t *testing.T) {
	svc := &fakeStatus{res: &service.PublishStatus{
		Post:    &models.Post{ID: 5, WorkspaceID: 2, Status: models.PostStatusPublished},
		Targets: []*models.PublishTarget{{ID: 1, Platform: "instagram", Status: models.TargetStatusPublished}},
	}}
	app := fiber.New()
	app.Get("/api/posts/:id/publish-status", asWorkspace(2), NewPostHandler(svc).PublishStatus)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/posts/5/publish-status?workspace_id=9", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(5), svc.got.postID)
	assert.Equal(t, int64(2), svc.got.workspaceID)

	body, _ := io.ReadAll(resp.Body)
	var decoded service.PublishStatus
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, models.PostStatusPublished, decoded.Post.Status)
	assert.Len(t, decoded.Targets, 1)
}

func TestPublishStatusErrors(t *testing.T) {
	h := NewPostHandler(&fakeStatus{err: service.ErrPostNotFound})
	app := fiber.New()
	app.Get("/api/posts/:id/publish-status", asWorkspace(2), h.PublishStatus)
	app.Get("/unscoped/:id", asWorkspace(0), h.PublishStatus)

	cases := map[string]int{
		"/api/posts/5/publish-status":   fiber.StatusNotFound,
		"/api/posts/abc/publish-status": fiber.StatusBadRequest,
		"/unscoped/5":                   fiber.StatusForbidden,
	}
	for url, want := range cases {
		resp, err := app.Test(httptest.NewRequest("GET", url, nil))
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, url)
	}
}

func TestSchedulerTick(t *testing.T) {
	app := fiber.New()
	app.Post("/ok", NewSchedulerHandler(fakeScan{}).Tick)
	app.Post("/down", NewSchedulerHandler(fakeScan{err: errors.New("redis down")}).Tick)

	resp, err := app.Test(httptest.NewRequest("POST", "/ok", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/down", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", NewHealthHandler(fakePinger{}).Health)
	app.Get("/unhealthy", NewHealthHandler(fakePinger{err: errors.New("no db")}).Health)

	resp, err := app.Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/unhealthy", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
