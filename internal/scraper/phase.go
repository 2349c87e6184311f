// Package scraper implements the three harvesting stages: season discovery,
// match discovery and goal-detail extraction, plus the pure parsers they use.
package scraper

import "strings"

// Phase kinds stored alongside every match.
const (
	PhaseRegular = "regular"
	PhaseSpecial = "special"
)

// DefaultSpecialPhaseKeywords mark knockout and split-season phases.
var DefaultSpecialPhaseKeywords = []string{
	"cuadrangular", "play off", "play-off", "playoffs", "play-out",
	"conference", "descenso", "grupo de campeonato", "clausura",
	"apertura", "final", "liguilla", "relegation", "championship round",
}

// PhaseKind returns PhaseSpecial if any keyword appears (case-insensitive)
// in the phase title, PhaseRegular otherwise.
func PhaseKind(phase string, keywords []string) string {
	if len(keywords) == 0 {
		return PhaseRegular
	}
	lower := strings.ToLower(phase)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return PhaseSpecial
		}
	}
	return PhaseRegular
}
