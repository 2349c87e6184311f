package pipeline

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"matchfeed/harvester/internal/pool"
	"matchfeed/harvester/internal/queue"
)

type stageCounters struct {
	discovered atomic.Int64
	processed  atomic.Int64
	errored    atomic.Int64
	skipped    atomic.Int64
}

func (c *stageCounters) snapshot() StageCounts {
	return StageCounts{
		Discovered: c.discovered.Load(),
		Processed:  c.processed.Load(),
		Errored:    c.errored.Load(),
		Skipped:    c.skipped.Load(),
	}
}

type counters struct {
	seasons  stageCounters
	matches  stageCounters
	goals    stageCounters
	inserted atomic.Int64
	noData   atomic.Int64
}

// StageCounts describe one stage of a run. For seasons, Discovered counts
// yielded seasons and Processed the listings read. For matches, Discovered
// counts descriptors and Processed those queued for detail. For goals,
// Discovered counts matches taken from the queue and Processed those stored
// with a parsed or empty-but-valid summary. Skipped items were dropped by a
// stop request.
type StageCounts struct {
	Discovered int64 `json:"discovered"`
	Processed  int64 `json:"processed"`
	Errored    int64 `json:"errored"`
	Skipped    int64 `json:"skipped,omitempty"`
}

// Summary is the outcome of one Run.
type Summary struct {
	RunID      string        `json:"runId"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Leagues    int           `json:"leagues"`
	Seasons    StageCounts   `json:"seasons"`
	Matches    StageCounts   `json:"matches"`
	Goals      StageCounts   `json:"goals"`
	Inserted   int64         `json:"inserted"`
	NoData     int64         `json:"noData"`
	Stopped    bool          `json:"stopped"`
	Pool       *pool.Stats   `json:"pool,omitempty"`
	SeasonQ    queue.Stats   `json:"seasonQueue"`
	MatchQ     queue.Stats   `json:"matchQueue"`
	Duration   time.Duration `json:"-"`
}

func (r *run) summary(started time.Time, leagues int) Summary {
	finished := time.Now()
	s := Summary{
		RunID:      r.id,
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
		Leagues:    leagues,
		Seasons:    r.counts.seasons.snapshot(),
		Matches:    r.counts.matches.snapshot(),
		Goals:      r.counts.goals.snapshot(),
		Inserted:   r.counts.inserted.Load(),
		NoData:     r.counts.noData.Load(),
		Stopped:    r.stopped(),
		SeasonQ:    r.seasonQ.Stats(),
		MatchQ:     r.matchQ.Stats(),
		Duration:   finished.Sub(started),
	}
	if r.PoolStats != nil {
		st := r.PoolStats()
		s.Pool = &st
	}
	return s
}

// Errored is the number of failed items across all stages.
func (s Summary) Errored() int64 {
	return s.Seasons.Errored + s.Matches.Errored + s.Goals.Errored
}

func (s Summary) fields() []zap.Field {
	fields := []zap.Field{
		zap.Int64("seasons", s.Seasons.Processed),
		zap.Int64("matches", s.Matches.Processed),
		zap.Int64("inserted", s.Inserted),
		zap.Int64("detailed", s.Goals.Processed),
		zap.Int64("no_data", s.NoData),
		zap.Int64("errored", s.Errored()),
		zap.Bool("stopped", s.Stopped),
		zap.Duration("took", s.Duration),
	}
	if s.Pool != nil {
		fields = append(fields,
			zap.Uint64("pages_created", s.Pool.Created),
			zap.Float64("pages_reused_pct", s.Pool.ReusedPercent))
	}
	return fields
}
