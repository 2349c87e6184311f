package metrics_test

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchfeed/harvester/internal/metrics"
	"matchfeed/harvester/internal/model"
	"matchfeed/harvester/internal/pipeline"
	"matchfeed/harvester/internal/pool"
	"matchfeed/harvester/internal/scraper"
)

func TestObserverCounters(t *testing.T) {
	m := metrics.New(nil)
	ctx := context.Background()

	m.MatchStored(ctx, model.MatchDescriptor{}, true)
	m.MatchStored(ctx, model.MatchDescriptor{}, true)
	m.MatchStored(ctx, model.MatchDescriptor{}, false)
	m.GoalsStored(ctx, model.MatchDescriptor{}, scraper.Extraction{Outcome: scraper.OutcomeParsed})
	m.GoalsStored(ctx, model.MatchDescriptor{}, scraper.Extraction{Outcome: scraper.OutcomeFetchFailed})

	expected := `
# HELP harvester_matches_stored_total Match rows written by the discovery stage.
# TYPE harvester_matches_stored_total counter
harvester_matches_stored_total{inserted="false"} 1
harvester_matches_stored_total{inserted="true"} 2
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "harvester_matches_stored_total"))

	expected = `
# HELP harvester_goal_extractions_total Detail pages processed, by outcome.
# TYPE harvester_goal_extractions_total counter
harvester_goal_extractions_total{outcome="fetch_failed"} 1
harvester_goal_extractions_total{outcome="parsed"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "harvester_goal_extractions_total"))
}

func TestPoolGaugesReadLiveStats(t *testing.T) {
	st := pool.Stats{Created: 3, Reused: 9, Live: 2, Idle: 1, Leased: 1, ReusedPercent: 75}
	m := metrics.New(func() pool.Stats { return st })

	expected := `
# HELP harvester_pool_pages_live Open pages.
# TYPE harvester_pool_pages_live gauge
harvester_pool_pages_live 2
# HELP harvester_pool_pages_reused_total Acquisitions served by an idle page.
# TYPE harvester_pool_pages_reused_total counter
harvester_pool_pages_reused_total 9
# HELP harvester_pool_reused_ratio Share of acquisitions served by reuse.
# TYPE harvester_pool_reused_ratio gauge
harvester_pool_reused_ratio 0.75
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"harvester_pool_pages_live", "harvester_pool_pages_reused_total", "harvester_pool_reused_ratio"))
}

func TestRunFinishedAndHandler(t *testing.T) {
	m := metrics.New(nil)
	m.RunFinished("COMPLETED", pipeline.Summary{
		Matches:  pipeline.StageCounts{Discovered: 40, Processed: 38, Errored: 2},
		Duration: 90 * time.Second,
	})

	n, err := testutil.GatherAndCount(m.Registry(), "harvester_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `harvester_runs_total{status="COMPLETED"} 1`)
	assert.Contains(t, string(body), `harvester_last_run_items{count="processed",stage="matches"} 38`)
}
