package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"matchfeed/harvester/internal/model"
)

// DetailReadySelector matches the events container of either strategy.
const DetailReadySelector = `.smv__verticalSections, [class*="verticalSections"]`

// IncidentStrategy describes one way of reading the incidents of a match
// summary. Strategies are tried in order; the first yielding rows wins.
type IncidentStrategy struct {
	Name        string
	Rows        string
	HeaderClass string // class marking a half header
	HalfLabel   string // optional selector for the header label
	GoalIcon    string
	TimeBox     string
	HomeClass   string
	Scorer      string
	Assist      string
	// Contains switches HeaderClass/HomeClass to substring matching.
	Contains bool
}

// DefaultStrategies is the precise markup first, then a looser fallback for
// class names with generated suffixes.
var DefaultStrategies = []IncidentStrategy{
	{
		Name:        "precise",
		Rows:        ".smv__verticalSections > div",
		HeaderClass: "wclHeaderSection--summary",
		HalfLabel:   `[class*="wcl-overline"]`,
		GoalIcon:    `[data-testid="wcl-icon-soccer"], svg.soccer`,
		TimeBox:     ".smv__timeBox",
		HomeClass:   "smv__homeParticipant",
		Scorer:      ".smv__playerName",
		Assist:      ".smv__assist .smv__playerName",
	},
	{
		Name:        "heuristic",
		Rows:        `[class*="verticalSections"] > div`,
		HeaderClass: "HeaderSection",
		GoalIcon:    `[data-testid*="soccer"], svg[class*="soccer"]`,
		TimeBox:     `[class*="timeBox"]`,
		HomeClass:   "homeParticipant",
		Scorer:      `[class*="playerName"]`,
		Assist:      `[class*="assist"] [class*="playerName"]`,
		Contains:    true,
	},
}

// IncidentNodeKind tags the rows of a match summary.
type IncidentNodeKind int

const (
	HalfHeader IncidentNodeKind = iota + 1
	IncidentNode
)

// Incident is one typed row of the summary, in document order.
type Incident struct {
	Kind   IncidentNodeKind
	Half   int // HalfHeader only: 1, 2, or 0 for any other period
	IsGoal bool
	Minute string
	Side   model.Side
	Scorer string
	Assist string
}

// ParseIncidents reads the summary rows with the first strategy that finds
// any. It returns the strategy name, or "" when none matched.
func ParseIncidents(html string, strategies []IncidentStrategy) ([]Incident, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, "", fmt.Errorf("parse incidents: %w", err)
	}

	for _, st := range strategies {
		rows := doc.Find(st.Rows)
		if rows.Length() == 0 {
			continue
		}
		out := make([]Incident, 0, rows.Length())
		rows.Each(func(_ int, s *goquery.Selection) {
			out = append(out, st.read(s))
		})
		return out, st.Name, nil
	}
	return nil, "", nil
}

func (st IncidentStrategy) hasClass(s *goquery.Selection, class string) bool {
	if !st.Contains {
		return s.HasClass(class)
	}
	attr, _ := s.Attr("class")
	return strings.Contains(attr, class)
}

func (st IncidentStrategy) read(s *goquery.Selection) Incident {
	if st.hasClass(s, st.HeaderClass) {
		label := s.Text()
		if st.HalfLabel != "" {
			if l := s.Find(st.HalfLabel); l.Length() > 0 {
				label = l.Text()
			}
		}
		return Incident{Kind: HalfHeader, Half: HalfFromLabel(label)}
	}

	inc := Incident{Kind: IncidentNode, Side: model.SideAway}
	if st.hasClass(s, st.HomeClass) {
		inc.Side = model.SideHome
	}
	inc.IsGoal = s.Find(st.GoalIcon).Length() > 0
	inc.Minute = cleanText(s.Find(st.TimeBox).First().Text())

	inc.Assist = cleanText(s.Find(st.Assist).First().Text())
	inc.Scorer = cleanText(s.Find(st.Scorer).Not(st.Assist).First().Text())
	return inc
}

// HalfFromLabel maps a header label to 1 or 2. Extra time, penalties and
// unknown labels map to 0.
func HalfFromLabel(label string) int {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "prórroga"), strings.Contains(l, "extra"),
		strings.Contains(l, "penal"):
		return 0
	case strings.Contains(l, "1º"), strings.Contains(l, "1ª"), strings.Contains(l, "1er"),
		strings.Contains(l, "1st"), strings.Contains(l, "primer"), strings.Contains(l, "first"):
		return 1
	case strings.Contains(l, "2º"), strings.Contains(l, "2ª"), strings.Contains(l, "2do"),
		strings.Contains(l, "2nd"), strings.Contains(l, "segundo"), strings.Contains(l, "second"):
		return 2
	}
	return 0
}

// FoldGoals keeps the goal incidents, attributing each to the half of the
// last header seen. Goals before any half header, after a non-half header,
// or with an invalid minute are dropped. Goals repeating (minute, side,
// scorer) are dropped too; an empty scorer never counts as a repeat.
func FoldGoals(incidents []Incident) []model.GoalEvent {
	half := 0
	seen := make(map[string]bool)

	var goals []model.GoalEvent
	for _, inc := range incidents {
		switch inc.Kind {
		case HalfHeader:
			half = inc.Half
		case IncidentNode:
			if !inc.IsGoal || half == 0 {
				continue
			}
			minute := CleanMinute(inc.Minute)
			if minute == "" {
				continue
			}
			if inc.Scorer != "" {
				key := minute + "|" + string(inc.Side) + "|" + inc.Scorer
				if seen[key] {
					continue
				}
				seen[key] = true
			}
			goals = append(goals, model.GoalEvent{
				Side:   inc.Side,
				Half:   half,
				Minute: minute,
				Scorer: inc.Scorer,
				Assist: inc.Assist,
			})
		}
	}
	return goals
}
