package service

import (
	"context"
	"fmt"

	"github.com/getsentry/sentry-go"
)

// Incident describes a post that was forced into a terminal failure.
type Incident struct {
	PostID      int64
	WorkspaceID int64
	Attempts    int
	Err         error
}

type IncidentReporter interface {
	Report(ctx context.Context, incident Incident)
}

type sentryReporter struct{}

// NewSentryReporter reports incidents through the global sentry hub. It is
// a no-op when sentry was never initialised.
func NewSentryReporter() IncidentReporter {
	return &sentryReporter{}
}

func (r *sentryReporter) Report(ctx context.Context, incident Incident) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", "publisher")
		scope.SetTag("post_id", fmt.Sprint(incident.PostID))
		scope.SetTag("workspace_id", fmt.Sprint(incident.WorkspaceID))
		scope.SetExtra("attempts", incident.Attempts)
		scope.SetLevel(sentry.LevelError)
		hub.CaptureException(fmt.Errorf("post %d failed after %d attempt(s): %w",
			incident.PostID, incident.Attempts, incident.Err))
	})
}
