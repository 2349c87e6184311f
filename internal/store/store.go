// Package store persists match rows. Every backend keys rows on the natural
// composite key and supports insert-if-absent plus an all-columns goal
// update, so re-running a harvest is idempotent.
package store

import (
	"context"
	"errors"

	"matchfeed/harvester/internal/model"
)

var (
	// ErrUnknownMatch is returned by UpdateGoals when no row has the key.
	ErrUnknownMatch = errors.New("store: unknown match")
	// ErrLeagueExists is returned when adding a league whose URL is taken.
	ErrLeagueExists = errors.New("store: league already exists")
)

// Sink receives the output of the discovery and extraction stages.
type Sink interface {
	// InsertIfAbsent stores m with null goal columns and reports whether a
	// new row was created.
	InsertIfAbsent(ctx context.Context, m model.MatchDescriptor) (bool, error)
	// UpdateGoals overwrites every goal column of the row keyed by m.
	UpdateGoals(ctx context.Context, m model.MatchDescriptor, g model.GoalSummary) error
	Close() error
}

// LeagueSource lists the leagues a scheduled sync should harvest.
type LeagueSource interface {
	ActiveLeagues(ctx context.Context) ([]model.League, error)
}

// Fanout writes to several sinks. A row counts as inserted if any sink
// inserted it; errors from all sinks are joined.
type Fanout []Sink

func (f Fanout) InsertIfAbsent(ctx context.Context, m model.MatchDescriptor) (bool, error) {
	var (
		inserted bool
		errs     []error
	)
	for _, s := range f {
		ok, err := s.InsertIfAbsent(ctx, m)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		inserted = inserted || ok
	}
	return inserted, errors.Join(errs...)
}

func (f Fanout) UpdateGoals(ctx context.Context, m model.MatchDescriptor, g model.GoalSummary) error {
	var errs []error
	for _, s := range f {
		if err := s.UpdateGoals(ctx, m, g); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, s := range f {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
