package job

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/robfig/cron"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	scans, sweeps, refreshes int
	err                      error
}

func (f *fakeEnqueuer) EnqueueScan(ctx context.Context) error {
	f.scans++
	return f.err
}

func (f *fakeEnqueuer) EnqueueSweep(ctx context.Context) error {
	f.sweeps++
	return f.err
}

func (f *fakeEnqueuer) EnqueueRefreshTokens(ctx context.Context) error {
	f.refreshes++
	return f.err
}

func TestTriggers(t *testing.T) {
	q := &fakeEnqueuer{err: errors.New("redis down")}
	j := NewPublishTriggerJob(q, slog.New(slog.NewTextHandler(io.Discard, nil)))

	j.TriggerScan()
	j.TriggerScan()
	j.TriggerSweep()
	j.TriggerTokenRefresh()

	assert.Equal(t, 2, q.scans)
	assert.Equal(t, 1, q.sweeps)
	assert.Equal(t, 1, q.refreshes)
}

func TestSchedule(t *testing.T) {
	c := cron.New()
	j := NewPublishTriggerJob(&fakeEnqueuer{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, j.Schedule(c, Intervals{Scan: time.Minute, Sweep: 5 * time.Minute, TokenRefresh: 10 * time.Minute}))
	assert.Len(t, c.Entries(), 3)
}

func TestEvery(t *testing.T) {
	assert.Equal(t, "@every 1m0s", every(time.Minute))
}
