// Package metrics exposes harvester counters and page pool gauges in the
// Prometheus text format.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"matchfeed/harvester/internal/model"
	"matchfeed/harvester/internal/pipeline"
	"matchfeed/harvester/internal/pool"
	"matchfeed/harvester/internal/scraper"
)

const namespace = "harvester"

// Metrics implements pipeline.Observer. Pool gauges read the pool on every
// scrape.
type Metrics struct {
	registry *prometheus.Registry

	matches  *prometheus.CounterVec
	goals    *prometheus.CounterVec
	runs     *prometheus.CounterVec
	lastRun  *prometheus.GaugeVec
	duration prometheus.Histogram
}

// New registers every collector on a private registry. poolStats may be nil
// when no page pool exists in the process.
func New(poolStats func() pool.Stats) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_stored_total",
			Help:      "Match rows written by the discovery stage.",
		}, []string{"inserted"}),
		goals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goal_extractions_total",
			Help:      "Detail pages processed, by outcome.",
		}, []string{"outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished harvest runs, by final status.",
		}, []string{"status"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_items",
			Help:      "Per-stage counts of the most recent run.",
		}, []string{"stage", "count"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of harvest runs.",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 10),
		}),
	}
	m.registry.MustRegister(
		m.matches, m.goals, m.runs, m.lastRun, m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if poolStats != nil {
		m.registerPool(poolStats)
	}
	return m
}

func (m *Metrics) registerPool(stats func() pool.Stats) {
	counter := func(name, help string, read func(pool.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pool", Name: name, Help: help,
		}, func() float64 { return float64(read(stats())) })
	}
	gauge := func(name, help string, read func(pool.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pool", Name: name, Help: help,
		}, func() float64 { return read(stats()) })
	}
	m.registry.MustRegister(
		counter("pages_created_total", "Browser pages opened.", func(s pool.Stats) uint64 { return s.Created }),
		counter("pages_reused_total", "Acquisitions served by an idle page.", func(s pool.Stats) uint64 { return s.Reused }),
		counter("pages_swept_total", "Pages closed by the age sweeper.", func(s pool.Stats) uint64 { return s.Swept }),
		counter("pages_discarded_total", "Pages closed after a failed reset or as stale.", func(s pool.Stats) uint64 { return s.Discarded }),
		gauge("pages_live", "Open pages.", func(s pool.Stats) float64 { return float64(s.Live) }),
		gauge("pages_idle", "Open pages waiting for reuse.", func(s pool.Stats) float64 { return float64(s.Idle) }),
		gauge("pages_leased", "Pages currently in use.", func(s pool.Stats) float64 { return float64(s.Leased) }),
		gauge("reused_ratio", "Share of acquisitions served by reuse.", func(s pool.Stats) float64 { return s.ReusedPercent / 100 }),
	)
}

func (m *Metrics) MatchStored(_ context.Context, _ model.MatchDescriptor, inserted bool) {
	m.matches.WithLabelValues(strconv.FormatBool(inserted)).Inc()
}

func (m *Metrics) GoalsStored(_ context.Context, _ model.MatchDescriptor, ex scraper.Extraction) {
	m.goals.WithLabelValues(ex.Outcome.String()).Inc()
}

// RunFinished records the outcome of a run.
func (m *Metrics) RunFinished(status string, sum pipeline.Summary) {
	m.runs.WithLabelValues(status).Inc()
	m.duration.Observe(sum.Duration.Seconds())
	for stage, c := range map[string]pipeline.StageCounts{
		"seasons": sum.Seasons,
		"matches": sum.Matches,
		"goals":   sum.Goals,
	} {
		m.lastRun.WithLabelValues(stage, "discovered").Set(float64(c.Discovered))
		m.lastRun.WithLabelValues(stage, "processed").Set(float64(c.Processed))
		m.lastRun.WithLabelValues(stage, "errored").Set(float64(c.Errored))
	}
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
