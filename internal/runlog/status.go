// Package runlog records harvest runs in the sync_runs table.
//
// Valid status graph:
//
//	PENDING ──► RUNNING ──► COMPLETED
//	   │           ├──────► FAILED
//	   │           └──────► CANCELLED
//	   └──────────────────► CANCELLED
//
// COMPLETED, FAILED and CANCELLED are terminal states.
package runlog

import (
	"context"
	"errors"
	"fmt"

	"matchfeed/harvester/internal/pipeline"
)

// Status values stored in sync_runs.status.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusCancelled},
	StatusRunning: {StatusCompleted, StatusFailed, StatusCancelled},
}

// ParseStatus converts a raw string to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown run status %q", s)
}

// IsTransitionAllowed reports whether a run may move from → to.
func IsTransitionAllowed(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s Status) bool {
	_, ok := validTransitions[s]
	return !ok
}

// StatusFor maps the result of pipeline.Run to a terminal status. A run
// stopped on request, cleanly or after a drain timeout, is CANCELLED.
func StatusFor(sum pipeline.Summary, err error) Status {
	switch {
	case err == nil && !sum.Stopped:
		return StatusCompleted
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, pipeline.ErrDrainTimeout) && sum.Stopped:
		return StatusCancelled
	}
	return StatusFailed
}
