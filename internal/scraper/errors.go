package scraper

import (
	"errors"
	"fmt"
)

// ErrNoListing means a listing page loaded but never showed a match row.
var ErrNoListing = errors.New("scraper: listing has no matches")

// FetchError is a page that could not be loaded after all attempts.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Outcome classifies a goal extraction.
type Outcome int

const (
	OutcomeParsed Outcome = iota + 1
	// OutcomeNoData: the page loaded but held no readable incidents.
	OutcomeNoData
	// OutcomeFetchFailed: the page never loaded.
	OutcomeFetchFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeParsed:
		return "parsed"
	case OutcomeNoData:
		return "no_data"
	case OutcomeFetchFailed:
		return "fetch_failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}
