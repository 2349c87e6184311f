package scraper_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchfeed/harvester/internal/model"
	"matchfeed/harvester/internal/scraper"
)

// ── ParseListing ───────────────────────────────────────────────────────────

func TestParseListing_TypedNodesInDocumentOrder(t *testing.T) {
	nodes, err := scraper.ParseListing(fixture(t, "listing.html"))
	require.NoError(t, err)

	kinds := make([]scraper.ListingNodeKind, 0, len(nodes))
	for _, n := range nodes {
		kinds = append(kinds, n.Kind)
	}
	assert.Equal(t, []scraper.ListingNodeKind{
		scraper.MatchNode,
		scraper.PhaseHeader,
		scraper.RoundHeader,
		scraper.MatchNode, // nested event__matchInfo is not a row
		scraper.MatchNode,
		scraper.MatchNode,
		scraper.RoundHeader,
		scraper.MatchNode,
		scraper.RoundHeader,
		scraper.MatchNode,
	}, kinds)

	assert.Equal(t, "Real Madrid", nodes[3].Home, "whitespace is collapsed")
	assert.Equal(t, "/partido/futbol/AbC123/#/resumen-del-partido", nodes[3].Href)
}

// ── FoldListing ────────────────────────────────────────────────────────────

func TestFoldListing_CarriesPhaseAndMatchday(t *testing.T) {
	nodes, err := scraper.ParseListing(fixture(t, "listing.html"))
	require.NoError(t, err)
	listed := scraper.FoldListing(nodes)
	require.Len(t, listed, 6)

	assert.Equal(t, model.UnknownPhase, listed[0].Phase, "rows before any header")
	assert.Zero(t, listed[0].Matchday)

	assert.Equal(t, "LaLiga EA Sports", listed[1].Phase)
	assert.Equal(t, 38, listed[1].Matchday)

	assert.Equal(t, 37, listed[4].Matchday)
	assert.Equal(t, "Girona", listed[4].Home)

	assert.Equal(t, "Play Offs", listed[5].Phase, "an unnumbered round header starts a phase")
	assert.Zero(t, listed[5].Matchday)
}

func TestFoldListing_PhaseHeaderResetsMatchday(t *testing.T) {
	listed := scraper.FoldListing([]scraper.ListingNode{
		{Kind: scraper.PhaseHeader, Text: "Apertura"},
		{Kind: scraper.RoundHeader, Text: "Fecha 5"},
		{Kind: scraper.MatchNode, Home: "A", Away: "B"},
		{Kind: scraper.PhaseHeader, Text: "Clausura"},
		{Kind: scraper.MatchNode, Home: "C", Away: "D"},
		{Kind: scraper.MatchNode, Home: "", Away: "E"},
	})
	require.Len(t, listed, 2)
	assert.Equal(t, 5, listed[0].Matchday)
	assert.Equal(t, "Clausura", listed[1].Phase)
	assert.Zero(t, listed[1].Matchday)
}

func TestFoldListing_HeaderTitleWithRound(t *testing.T) {
	listed := scraper.FoldListing([]scraper.ListingNode{
		{Kind: scraper.PhaseHeader, Text: "Primera División - Jornada 4"},
		{Kind: scraper.MatchNode, Home: "A", Away: "B"},
	})
	require.Len(t, listed, 1)
	assert.Equal(t, 4, listed[0].Matchday)
}

func TestRoundNumber(t *testing.T) {
	assert.Equal(t, 12, scraper.RoundNumber("Jornada 12"))
	assert.Equal(t, 3, scraper.RoundNumber("MATCHDAY 3"))
	assert.Equal(t, 0, scraper.RoundNumber("Semifinales"))
}

// ── PhaseKind ──────────────────────────────────────────────────────────────

func TestPhaseKind(t *testing.T) {
	kw := scraper.DefaultSpecialPhaseKeywords
	assert.Equal(t, scraper.PhaseSpecial, scraper.PhaseKind("Liga Profesional - Play Offs", kw))
	assert.Equal(t, scraper.PhaseSpecial, scraper.PhaseKind("APERTURA", kw))
	assert.Equal(t, scraper.PhaseRegular, scraper.PhaseKind("LaLiga EA Sports", kw))
	assert.Equal(t, scraper.PhaseRegular, scraper.PhaseKind("Final", nil), "no keywords means regular")
}
