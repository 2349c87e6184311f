// Package model defines the records that flow between the harvester stages
// and into storage.
package model

import (
	"fmt"
	"sort"
	"strings"
)

// UnknownPhase labels matches that appear before any phase header.
const UnknownPhase = "Unknown"

// League is one competition to harvest. It comes either from the CLI
// ("url|name") or from the leagues table of the hosted backend.
type League struct {
	ID         string `json:"id,omitempty" db:"id"`
	Name       string `json:"name" db:"name"`
	Country    string `json:"country" db:"country"`
	Slug       string `json:"slug" db:"slug"`
	BaseURL    string `json:"baseUrl" db:"base_url"`
	OutputName string `json:"outputName,omitempty" db:"output_name"`
	Active     bool   `json:"active" db:"is_active"`
}

// Output returns the name used to route rows to an embedded database file.
func (l League) Output() string {
	if l.OutputName != "" {
		return l.OutputName
	}
	if l.Slug != "" {
		return l.Slug
	}
	return "matches"
}

// SeasonDescriptor identifies one season page of a league.
type SeasonDescriptor struct {
	League
	Label     string `json:"season"`
	SourceURL string `json:"sourceUrl"`
}

func (s SeasonDescriptor) String() string {
	return fmt.Sprintf("%s/%s %s", s.Country, s.Slug, s.Label)
}

// MatchKey is the natural composite key of a match row.
type MatchKey struct {
	Country  string
	League   string
	Season   string
	Phase    string
	Matchday int
	Date     string
	Home     string
	Away     string
}

func (k MatchKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s|%d|%s|%s|%s",
		k.Country, k.League, k.Season, k.Phase, k.Matchday, k.Date, k.Home, k.Away)
}

// MatchDescriptor is one fixture found on a season listing. Matchday 0
// means the match has no numbered round.
type MatchDescriptor struct {
	Season    SeasonDescriptor `json:"-"`
	Phase     string           `json:"phase"`
	PhaseKind string           `json:"phaseKind"`
	Matchday  int              `json:"matchday"`
	Date      string           `json:"date"`
	Home      string           `json:"home"`
	Away      string           `json:"away"`
	DetailURL string           `json:"detailUrl"`
}

// Key returns the composite key used for insert-if-absent and updates.
func (m MatchDescriptor) Key() MatchKey {
	return MatchKey{
		Country:  m.Season.Country,
		League:   m.Season.Slug,
		Season:   m.Season.Label,
		Phase:    m.Phase,
		Matchday: m.Matchday,
		Date:     m.Date,
		Home:     m.Home,
		Away:     m.Away,
	}
}

// Side of the pitch a goal is credited to.
type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
)

// GoalEvent is a single goal read from a match detail page.
type GoalEvent struct {
	Side   Side   `json:"side"`
	Half   int    `json:"half"`
	Minute string `json:"minute"`
	Scorer string `json:"scorer,omitempty"`
	Assist string `json:"assist,omitempty"`
}

// GoalSummary is the persisted per-half aggregate of a match's goals.
type GoalSummary struct {
	HomeFirstHalf     int    `json:"homeFirstHalf" db:"g_home_1h"`
	AwayFirstHalf     int    `json:"awayFirstHalf" db:"g_away_1h"`
	HomeSecondHalf    int    `json:"homeSecondHalf" db:"g_home_2h"`
	AwaySecondHalf    int    `json:"awaySecondHalf" db:"g_away_2h"`
	MinutesHomeFirst  string `json:"minutesHomeFirst" db:"min_home_1h"`
	MinutesAwayFirst  string `json:"minutesAwayFirst" db:"min_away_1h"`
	MinutesHomeSecond string `json:"minutesHomeSecond" db:"min_home_2h"`
	MinutesAwaySecond string `json:"minutesAwaySecond" db:"min_away_2h"`
}

// MatchResult pairs a match with its goal summary. Goals is nil until the
// match has been processed by the detail stage.
type MatchResult struct {
	Match MatchDescriptor `json:"match"`
	Goals *GoalSummary    `json:"goals"`
}

// Summarize aggregates goals into per-half counts and minute lists. Events
// with a half other than 1 or 2 are ignored. less orders minute strings.
func Summarize(goals []GoalEvent, less func(a, b string) bool) GoalSummary {
	var buckets [2][2][]string // [half-1][side]
	for _, g := range goals {
		if g.Half != 1 && g.Half != 2 {
			continue
		}
		side := 0
		if g.Side == SideAway {
			side = 1
		}
		buckets[g.Half-1][side] = append(buckets[g.Half-1][side], g.Minute)
	}

	join := func(ms []string) string {
		sorted := append([]string(nil), ms...)
		sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
		return strings.Join(sorted, ", ")
	}

	return GoalSummary{
		HomeFirstHalf:     len(buckets[0][0]),
		AwayFirstHalf:     len(buckets[0][1]),
		HomeSecondHalf:    len(buckets[1][0]),
		AwaySecondHalf:    len(buckets[1][1]),
		MinutesHomeFirst:  join(buckets[0][0]),
		MinutesAwayFirst:  join(buckets[0][1]),
		MinutesHomeSecond: join(buckets[1][0]),
		MinutesAwaySecond: join(buckets[1][1]),
	}
}
