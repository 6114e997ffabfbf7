package service

import "github.com/maheshrc27/postflow/internal/models"

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	// OutcomeSkipped means a precondition did not hold and nothing was done.
	OutcomeSkipped
	OutcomeRetryable
	OutcomeTerminal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeTerminal:
		return "terminal"
	}
	return "unknown"
}

// Outcome is what one publish attempt hands back to the job runner.
type Outcome struct {
	Kind OutcomeKind
	// Status is the post status written by a successful attempt.
	Status models.PostStatus
	Err    error
}

func Success(status models.PostStatus) Outcome {
	return Outcome{Kind: OutcomeSuccess, Status: status}
}

func Skipped(reason error) Outcome {
	return Outcome{Kind: OutcomeSkipped, Err: reason}
}

func Retryable(err error) Outcome {
	return Outcome{Kind: OutcomeRetryable, Err: err}
}

func Terminal(err error) Outcome {
	return Outcome{Kind: OutcomeTerminal, Err: err}
}
