package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"matchfeed/harvester/internal/model"
)

// Listing selectors of the results/fixtures pages.
const (
	listingNodesSelector = `div.headerLeague__wrapper, div.event__round, div[class*="event__match"]`
	matchRowSelector     = `div[class*="event__match"]`
	ListingReadySelector = `div[class*="event__match"]`
	ShowMoreSelector     = `a[data-testid="wcl-buttonLink"]`
)

var roundRe = regexp.MustCompile(`(?i)\b(?:jornada|matchday|round|fecha)\s+(\d+)\b`)

// ListingNodeKind tags the nodes of a season listing.
type ListingNodeKind int

const (
	PhaseHeader ListingNodeKind = iota + 1
	RoundHeader
	MatchNode
)

func (k ListingNodeKind) String() string {
	switch k {
	case PhaseHeader:
		return "phase-header"
	case RoundHeader:
		return "round-header"
	case MatchNode:
		return "match"
	}
	return fmt.Sprintf("ListingNodeKind(%d)", int(k))
}

// ListingNode is one typed node of a listing, in document order.
type ListingNode struct {
	Kind   ListingNodeKind
	Text   string // header title
	NodeID string
	Date   string
	Home   string
	Away   string
	Href   string
}

// ListedMatch is a match row with the phase/matchday context it inherited.
type ListedMatch struct {
	Phase    string
	Matchday int
	Date     string
	Home     string
	Away     string
	Href     string
	NodeID   string
}

// ParseListing reads the typed nodes of a results or fixtures page.
func ParseListing(html string) ([]ListingNode, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	var nodes []ListingNode
	doc.Find(listingNodesSelector).Each(func(_ int, s *goquery.Selection) {
		switch {
		case s.HasClass("headerLeague__wrapper"):
			title := s.Find("strong.headerLeague__title-text").First()
			if title.Length() == 0 {
				title = s.Find(".headerLeague__title").First()
			}
			if text := cleanText(title.Text()); text != "" {
				nodes = append(nodes, ListingNode{Kind: PhaseHeader, Text: text})
			}
		case s.HasClass("event__round"):
			if text := cleanText(s.Text()); text != "" {
				nodes = append(nodes, ListingNode{Kind: RoundHeader, Text: text})
			}
		default:
			// nested divs of a row also carry event__match* classes
			if s.ParentsFiltered(matchRowSelector).Length() > 0 {
				return
			}
			id, _ := s.Attr("id")
			href, _ := s.Find("a.eventRowLink").First().Attr("href")
			nodes = append(nodes, ListingNode{
				Kind:   MatchNode,
				NodeID: id,
				Date:   cleanText(s.Find(".event__time").First().Text()),
				Home:   cleanText(s.Find(".event__homeParticipant").First().Text()),
				Away:   cleanText(s.Find(".event__awayParticipant").First().Text()),
				Href:   strings.TrimSpace(href),
			})
		}
	})
	return nodes, nil
}

// FoldListing walks nodes in order, carrying the current phase and
// matchday into each match. A phase header resets the matchday; a round
// header either sets the matchday ("Jornada 12") or, when it carries no
// number, starts a new phase. Matches before any header get
// model.UnknownPhase and matchday 0. Rows missing a team name are dropped.
func FoldListing(nodes []ListingNode) []ListedMatch {
	phase := ""
	matchday := 0

	var out []ListedMatch
	for _, n := range nodes {
		switch n.Kind {
		case PhaseHeader:
			phase = n.Text
			matchday = RoundNumber(n.Text)
		case RoundHeader:
			if md := RoundNumber(n.Text); md > 0 {
				matchday = md
			} else {
				phase = n.Text
				matchday = 0
			}
		case MatchNode:
			if n.Home == "" || n.Away == "" {
				continue
			}
			p := phase
			if p == "" {
				p = model.UnknownPhase
			}
			out = append(out, ListedMatch{
				Phase:    p,
				Matchday: matchday,
				Date:     n.Date,
				Home:     n.Home,
				Away:     n.Away,
				Href:     n.Href,
				NodeID:   n.NodeID,
			})
		}
	}
	return out
}

// RoundNumber extracts N from "Jornada N" style labels, or 0.
func RoundNumber(text string) int {
	m := roundRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
