package scraper_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchfeed/harvester/internal/scraper"
)

// ── ParseLeagueURL ─────────────────────────────────────────────────────────

func TestParseLeagueURL(t *testing.T) {
	cases := []struct {
		raw, country, slug, base, pinned string
	}{
		{
			raw:     "https://www.flashscore.co/futbol/espana/laliga-ea-sports/",
			country: "espana", slug: "laliga-ea-sports",
			base: "https://www.flashscore.co/futbol/espana/laliga-ea-sports/",
		},
		{
			raw:     "https://www.flashscore.co/futbol/inglaterra/premier-league/resultados/",
			country: "inglaterra", slug: "premier-league",
			base: "https://www.flashscore.co/futbol/inglaterra/premier-league/",
		},
		{
			raw:     "https://www.flashscore.co/futbol/espana/laliga-2021-2022",
			country: "espana", slug: "laliga",
			base:   "https://www.flashscore.co/futbol/espana/laliga/",
			pinned: "2021-2022",
		},
	}
	for _, tc := range cases {
		ref, err := scraper.ParseLeagueURL(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.country, ref.Country, tc.raw)
		assert.Equal(t, tc.slug, ref.Slug, tc.raw)
		assert.Equal(t, tc.base, ref.BaseURL, tc.raw)
		assert.Equal(t, tc.pinned, ref.PinnedSeason, tc.raw)
	}
}

func TestParseLeagueURL_PinnedKeepsSeasonPath(t *testing.T) {
	ref, err := scraper.ParseLeagueURL("https://www.flashscore.co/futbol/espana/laliga-2021-2022/resultados/")
	require.NoError(t, err)
	assert.Equal(t, "https://www.flashscore.co/futbol/espana/laliga-2021-2022/", ref.PinnedURL)
}

func TestParseLeagueURL_Rejects(t *testing.T) {
	for _, raw := range []string{"", "/futbol/espana/laliga/", "https://www.flashscore.co/", "https://www.flashscore.co/futbol/"} {
		_, err := scraper.ParseLeagueURL(raw)
		assert.Error(t, err, raw)
	}
}

func TestLeagueFromArg_OutputName(t *testing.T) {
	l, err := scraper.LeagueFromArg("https://www.flashscore.co/futbol/espana/laliga-ea-sports/|laliga")
	require.NoError(t, err)
	assert.Equal(t, "laliga", l.Output())
	assert.Equal(t, "espana", l.Country)

	l, err = scraper.LeagueFromArg("https://www.flashscore.co/futbol/italia/serie-a/")
	require.NoError(t, err)
	assert.Equal(t, "serie-a", l.Output())
}

// ── Season labels ──────────────────────────────────────────────────────────

func TestCurrentSeasonLabel(t *testing.T) {
	cases := map[time.Month]string{
		time.January:  "2024-2025",
		time.July:     "2024-2025",
		time.August:   "2025-2026",
		time.December: "2025-2026",
	}
	for month, want := range cases {
		now := time.Date(2025, month, 15, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, want, scraper.CurrentSeasonLabel(now), month.String())
	}
}

func TestSeasonLabelFromURL(t *testing.T) {
	assert.Equal(t, "2022-2023", scraper.SeasonLabelFromURL("/futbol/espana/laliga-2022-2023/"))
	assert.Equal(t, "2023-2024", scraper.SeasonLabelFromURL("/futbol/usa/mls-2023/"))
	assert.Equal(t, "", scraper.SeasonLabelFromURL("/futbol/espana/laliga/"))
}

// ── Detail URLs ────────────────────────────────────────────────────────────

func TestDetailPathFromNodeID(t *testing.T) {
	assert.Equal(t, "/partido/AbC123/", scraper.DetailPathFromNodeID("g_1_AbC123"))
	assert.Equal(t, "", scraper.DetailPathFromNodeID("row-1"))
	assert.Equal(t, "", scraper.DetailPathFromNodeID("g_1_"))
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "https://www.flashscore.co/partido/x/", scraper.Resolve(siteBase, "/partido/x/"))
	assert.Equal(t, "https://other.example/p/", scraper.Resolve(siteBase, "https://other.example/p/"))
	assert.Equal(t, "", scraper.Resolve(siteBase, "  "))
}

func TestListingURLs(t *testing.T) {
	base := "https://www.flashscore.co/futbol/espana/laliga/"
	assert.Equal(t, base+"resultados/", scraper.ResultsURL(base))
	assert.Equal(t, base+"resultados/", scraper.ResultsURL(base+"resultados"))
	assert.Equal(t, base+"partidos/", scraper.FixturesURL(base))
	assert.Equal(t, base+"archivo/", scraper.ArchiveURL(base))
}
