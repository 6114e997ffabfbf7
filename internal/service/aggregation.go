package service

import (
	"errors"
	"fmt"

	"github.com/maheshrc27/postflow/internal/models"
)

// MixedOutcomePolicy decides the post status when some targets published
// and others failed.
type MixedOutcomePolicy string

const (
	// MixedBestEffort keeps a partially delivered post PUBLISHED. A post that
	// reached a platform cannot be taken back, so the failed targets are only
	// reported.
	MixedBestEffort MixedOutcomePolicy = "best_effort"
	// MixedStrict fails the post unless every target published.
	MixedStrict MixedOutcomePolicy = "strict"
)

var (
	ErrNoTargets         = errors.New("post has no publish targets")
	ErrIncompleteAttempt = errors.New("publish attempt still has unfinished targets")
)

func ParseMixedOutcomePolicy(s string) (MixedOutcomePolicy, error) {
	switch p := MixedOutcomePolicy(s); p {
	case MixedBestEffort, MixedStrict:
		return p, nil
	case "":
		return MixedBestEffort, nil
	default:
		return "", fmt.Errorf("unknown mixed outcome policy %q", s)
	}
}

// Aggregation is the post-level verdict over one set of target statuses.
type Aggregation struct {
	Status    models.PostStatus
	Published int
	Failed    int
	// Partial is set when published and failed targets coexist.
	Partial bool
}

// Aggregate reduces target statuses to a terminal post status. It refuses to
// decide while any target is still PENDING or PUBLISHING.
func Aggregate(statuses []models.TargetStatus, policy MixedOutcomePolicy) (Aggregation, error) {
	if len(statuses) == 0 {
		return Aggregation{}, ErrNoTargets
	}

	var agg Aggregation
	for _, st := range statuses {
		switch st {
		case models.TargetStatusPublished:
			agg.Published++
		case models.TargetStatusFailed:
			agg.Failed++
		case models.TargetStatusPending, models.TargetStatusPublishing:
			return Aggregation{}, ErrIncompleteAttempt
		default:
			return Aggregation{}, fmt.Errorf("unknown target status %q", st)
		}
	}

	switch {
	case agg.Failed == 0:
		agg.Status = models.PostStatusPublished
	case agg.Published == 0:
		agg.Status = models.PostStatusFailed
	default:
		agg.Partial = true
		if policy == MixedStrict {
			agg.Status = models.PostStatusFailed
		} else {
			agg.Status = models.PostStatusPublished
		}
	}
	return agg, nil
}

func targetStatuses(targets []*models.PublishTarget) []models.TargetStatus {
	statuses := make([]models.TargetStatus, 0, len(targets))
	for _, t := range targets {
		statuses = append(statuses, t.Status)
	}
	return statuses
}
