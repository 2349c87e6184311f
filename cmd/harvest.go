package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"matchfeed/harvester/internal/browser"
	"matchfeed/harvester/internal/config"
	"matchfeed/harvester/internal/model"
	"matchfeed/harvester/internal/pipeline"
	"matchfeed/harvester/internal/pool"
	"matchfeed/harvester/internal/scraper"
	"matchfeed/harvester/internal/store"
)

// harvestOptions are the per-invocation switches of a harvest.
type harvestOptions struct {
	lite bool
	now  func() time.Time
}

// harvester owns the browser, the page pool and the pipeline built on them.
type harvester struct {
	chrome *browser.Chrome
	pages  *pool.Pool[browser.Page]
	pipe   *pipeline.Pipeline
}

func newHarvester(cfg *config.Config, opts harvestOptions, sink store.Sink, log *zap.Logger) (*harvester, error) {
	if opts.now == nil {
		opts.now = time.Now
	}

	bopts := browser.DefaultOptions()
	bopts.Headless = cfg.Headless
	bopts.ExecPath = cfg.ChromePath
	if cfg.UserAgent != "" {
		bopts.UserAgent = cfg.UserAgent
	}
	chrome, err := browser.NewChrome(bopts, log)
	if err != nil {
		return nil, err
	}

	pages := pool.New[browser.Page](chrome.NewPage, pool.Options{
		MaxPages:      cfg.MaxPages,
		MaxAge:        cfg.PageMaxAge,
		SweepInterval: cfg.PoolSweepInterval,
		Logger:        log,
	})

	fetcher := scraper.NewListingFetcher(log.Named("listing"))
	fetcher.PageTimeout = cfg.PageTimeout
	fetcher.MaxShowMoreClicks = cfg.ShowMoreMaxClicks

	seasons := &scraper.SeasonDiscoverer{
		Pool:        pages,
		SiteBase:    cfg.SiteBaseURL,
		Historical:  cfg.HistoricalSeasons,
		PageTimeout: cfg.PageTimeout,
		Lite:        opts.lite,
		Now:         opts.now,
		Log:         log.Named("seasons"),
	}
	matches := &scraper.MatchDiscoverer{
		Pool:          pages,
		Fetcher:       fetcher,
		SiteBase:      cfg.SiteBaseURL,
		PhaseKeywords: scraper.DefaultSpecialPhaseKeywords,
		Log:           log.Named("matches"),
	}
	if opts.lite {
		matches.Filter = scraper.PlayedOn(opts.now())
	}
	goals := &scraper.GoalExtractor{
		Pool:          pages,
		DetailTimeout: cfg.DetailTimeout,
		Retries:       cfg.DetailRetries,
		Log:           log.Named("goals"),
	}

	pipe := pipeline.New(seasons, matches, goals, sink, pipeline.Config{
		MatchWorkers:    cfg.MatchWorkers,
		GoalWorkers:     cfg.GoalWorkers,
		SeasonQueueSize: cfg.QueueSize,
		MatchQueueSize:  cfg.QueueSize,
		DrainTimeout:    cfg.DrainTimeout,
	}, log)
	pipe.PoolStats = pages.Stats
	// closing the browser fails every in-flight page operation
	pipe.ForceStop = chrome.Close

	return &harvester{chrome: chrome, pages: pages, pipe: pipe}, nil
}

// Run implements syncer.Runner.
func (h *harvester) Run(ctx context.Context, leagues []model.League) (pipeline.Summary, error) {
	return h.pipe.Run(ctx, leagues)
}

func (h *harvester) Close() {
	h.pages.Close()
	h.chrome.Close()
}

// goalPrinter writes one JSON line per detailed match.
type goalPrinter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newGoalPrinter(w io.Writer) *goalPrinter {
	return &goalPrinter{enc: json.NewEncoder(w)}
}

type goalLine struct {
	Match   model.MatchDescriptor `json:"match"`
	Outcome string                `json:"outcome"`
	Summary model.GoalSummary     `json:"summary"`
	Goals   []model.GoalEvent     `json:"goals"`
}

func (p *goalPrinter) MatchStored(context.Context, model.MatchDescriptor, bool) {}

func (p *goalPrinter) GoalsStored(_ context.Context, m model.MatchDescriptor, ex scraper.Extraction) {
	goals := ex.Goals
	if goals == nil {
		goals = []model.GoalEvent{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.enc.Encode(goalLine{Match: m, Outcome: ex.Outcome.String(), Summary: ex.Summary, Goals: goals})
}

// reportOutputs logs, per league file, how many rows it holds and how many
// still lack goal detail.
func reportOutputs(ctx context.Context, files *store.SQLite, leagues store.LeagueSource, log *zap.Logger) {
	ls, err := leagues.ActiveLeagues(ctx)
	if err != nil {
		log.Warn("listing leagues for report", zap.Error(err))
		return
	}
	seen := make(map[string]bool)
	for _, l := range ls {
		out := l.Output()
		if seen[out] {
			continue
		}
		seen[out] = true

		rows, err := files.Results(ctx, out)
		if err != nil {
			log.Warn("reading output file", zap.String("path", files.Path(out)), zap.Error(err))
			continue
		}
		log.Info("output file",
			zap.String("path", files.Path(out)),
			zap.Int("rows", len(rows)),
			zap.Int("pending_detail", pendingDetail(rows)))
	}
}

// pendingDetail counts rows whose goal columns are still null.
func pendingDetail(rows []model.MatchResult) int {
	n := 0
	for _, r := range rows {
		if r.Goals == nil {
			n++
		}
	}
	return n
}

func leaguesFromArgs(args []string) ([]model.League, error) {
	leagues := make([]model.League, 0, len(args))
	for _, a := range args {
		l, err := scraper.LeagueFromArg(a)
		if err != nil {
			return nil, fmt.Errorf("league argument: %w", err)
		}
		leagues = append(leagues, l)
	}
	return leagues, nil
}
