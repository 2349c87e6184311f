package scraper_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchfeed/harvester/internal/model"
	"matchfeed/harvester/internal/scraper"
)

// ── SummarizeDetail ────────────────────────────────────────────────────────

func TestSummarizeDetail_Fixture(t *testing.T) {
	ex, err := scraper.SummarizeDetail(fixture(t, "detail.html"), scraper.DefaultStrategies)
	require.NoError(t, err)

	assert.Equal(t, scraper.OutcomeParsed, ex.Outcome)
	assert.Equal(t, "precise", ex.Strategy)
	assert.Equal(t, model.GoalSummary{
		HomeFirstHalf:     1,
		AwayFirstHalf:     1,
		HomeSecondHalf:    2,
		AwaySecondHalf:    0,
		MinutesHomeFirst:  "12",
		MinutesAwayFirst:  "45+2",
		MinutesHomeSecond: "67, 90+3",
		MinutesAwaySecond: "",
	}, ex.Summary)

	require.NotEmpty(t, ex.Goals)
	assert.Equal(t, "Vinicius Junior", ex.Goals[0].Scorer)
	assert.Equal(t, "Bellingham J.", ex.Goals[0].Assist)
}

func TestSummarizeDetail_HeuristicFallback(t *testing.T) {
	html := `<div class="x_verticalSections_9f">
		<div class="x_HeaderSection_a1">1st Half</div>
		<div class="row homeParticipant_q"><span class="timeBox_z">9'</span><svg class="soccer-ball"></svg><span class="playerName_k">Kane H.</span></div>
		<div class="x_HeaderSection_a1">2nd Half</div>
		<div class="row awayParticipant_q"><span class="timeBox_z">88'</span><svg class="soccer-ball"></svg><span class="playerName_k">Saka B.</span></div>
	</div>`
	ex, err := scraper.SummarizeDetail(html, scraper.DefaultStrategies)
	require.NoError(t, err)
	assert.Equal(t, "heuristic", ex.Strategy)
	assert.Equal(t, 1, ex.Summary.HomeFirstHalf)
	assert.Equal(t, 1, ex.Summary.AwaySecondHalf)
	assert.Equal(t, "88", ex.Summary.MinutesAwaySecond)
}

func TestSummarizeDetail_OrdinalHalfHeaders(t *testing.T) {
	html := `<div class="x_verticalSections_9f">
		<div class="x_HeaderSection_a1">1º Tiempo</div>
		<div class="row homeParticipant_q"><span class="timeBox_z">12'</span><svg class="soccer-ball"></svg><span class="playerName_k">Morata A.</span></div>
		<div class="x_HeaderSection_a1">2º Tiempo</div>
		<div class="row awayParticipant_q"><span class="timeBox_z">70'</span><svg class="soccer-ball"></svg><span class="playerName_k">Griezmann A.</span></div>
	</div>`
	ex, err := scraper.SummarizeDetail(html, scraper.DefaultStrategies)
	require.NoError(t, err)
	assert.Equal(t, scraper.OutcomeParsed, ex.Outcome)
	assert.Equal(t, 1, ex.Summary.HomeFirstHalf)
	assert.Equal(t, "12", ex.Summary.MinutesHomeFirst)
	assert.Equal(t, 1, ex.Summary.AwaySecondHalf)
	assert.Equal(t, "70", ex.Summary.MinutesAwaySecond)
	assert.Zero(t, ex.Summary.AwayFirstHalf)
	assert.Zero(t, ex.Summary.HomeSecondHalf)
}

func TestSummarizeDetail_NoContainer(t *testing.T) {
	ex, err := scraper.SummarizeDetail(`<html><body><p>postponed</p></body></html>`, scraper.DefaultStrategies)
	require.NoError(t, err)
	assert.Equal(t, scraper.OutcomeNoData, ex.Outcome)
	assert.Equal(t, model.GoalSummary{}, ex.Summary)
}

// ── FoldGoals ──────────────────────────────────────────────────────────────

func TestFoldGoals_DropsGoalsOutsideHalves(t *testing.T) {
	goals := scraper.FoldGoals([]scraper.Incident{
		{Kind: scraper.IncidentNode, IsGoal: true, Minute: "3", Side: model.SideHome, Scorer: "A"},
		{Kind: scraper.HalfHeader, Half: 1},
		{Kind: scraper.IncidentNode, IsGoal: true, Minute: "20", Side: model.SideHome, Scorer: "B"},
		{Kind: scraper.IncidentNode, IsGoal: true, Minute: "abc", Side: model.SideHome, Scorer: "C"},
		{Kind: scraper.HalfHeader, Half: 0},
		{Kind: scraper.IncidentNode, IsGoal: true, Minute: "100", Side: model.SideAway, Scorer: "D"},
	})
	require.Len(t, goals, 1)
	assert.Equal(t, "B", goals[0].Scorer)
	assert.Equal(t, 1, goals[0].Half)
}

func TestFoldGoals_EmptyScorerNeverDeduplicated(t *testing.T) {
	goals := scraper.FoldGoals([]scraper.Incident{
		{Kind: scraper.HalfHeader, Half: 2},
		{Kind: scraper.IncidentNode, IsGoal: true, Minute: "50", Side: model.SideAway},
		{Kind: scraper.IncidentNode, IsGoal: true, Minute: "50", Side: model.SideAway},
		{Kind: scraper.IncidentNode, IsGoal: true, Minute: "50", Side: model.SideAway, Scorer: "Long Name Forward"},
		{Kind: scraper.IncidentNode, IsGoal: true, Minute: "50", Side: model.SideAway, Scorer: "Long Name Forward"},
		{Kind: scraper.IncidentNode, IsGoal: true, Minute: "50", Side: model.SideHome, Scorer: "Long Name Forward"},
	})
	assert.Len(t, goals, 4)
}

func TestHalfFromLabel(t *testing.T) {
	assert.Equal(t, 1, scraper.HalfFromLabel("1ER TIEMPO"))
	assert.Equal(t, 1, scraper.HalfFromLabel("1º TIEMPO"))
	assert.Equal(t, 1, scraper.HalfFromLabel("1ª parte"))
	assert.Equal(t, 2, scraper.HalfFromLabel("2ª parte"))
	assert.Equal(t, 2, scraper.HalfFromLabel("2º Tiempo"))
	assert.Equal(t, 2, scraper.HalfFromLabel("2nd Half"))
	assert.Equal(t, 0, scraper.HalfFromLabel("Prórroga"))
	assert.Equal(t, 0, scraper.HalfFromLabel("Penaltis"))
	assert.Equal(t, 0, scraper.HalfFromLabel(""))
}

// ── Minutes ────────────────────────────────────────────────────────────────

func TestCleanMinute(t *testing.T) {
	cases := map[string]string{
		"12'":    "12",
		" 45+2'": "45+2",
		"90 + 4": "90+4",
		"0":      "",
		"131":    "",
		"HT":     "",
		"":       "",
	}
	for in, want := range cases {
		assert.Equal(t, want, scraper.CleanMinute(in), in)
	}
}

func TestMinuteLess_StoppageTimeOrdering(t *testing.T) {
	assert.True(t, scraper.MinuteLess("45", "45+2"))
	assert.True(t, scraper.MinuteLess("45+2", "46"))
	assert.True(t, scraper.MinuteLess("9", "10"))
	assert.False(t, scraper.MinuteLess("90+1", "90"))
}
