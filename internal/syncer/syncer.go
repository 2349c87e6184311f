// Package syncer runs one harvest at a time over the configured leagues and
// records its outcome. The scheduler and the HTTP API both go through it.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"matchfeed/harvester/internal/model"
	"matchfeed/harvester/internal/pipeline"
	"matchfeed/harvester/internal/runlog"
	"matchfeed/harvester/internal/store"
)

var (
	// ErrRunInProgress is returned when a run is requested while another
	// one has not finished.
	ErrRunInProgress = errors.New("sync: run already in progress")
	// ErrNoLeagues is returned when the requested leagues match nothing.
	ErrNoLeagues = errors.New("sync: no leagues to harvest")
)

// Trigger names what started a run.
const (
	TriggerSchedule = "schedule"
	TriggerAPI      = "api"
	TriggerCLI      = "cli"
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, leagues []model.League) (pipeline.Summary, error)
}

// Recorder persists run state.
type Recorder interface {
	Create(ctx context.Context, id, trigger string, leagues []string) error
	Transition(ctx context.Context, id string, to runlog.Status) error
	Finish(ctx context.Context, id string, sum pipeline.Summary, runErr error) (runlog.Status, error)
}

// Notifier announces finished runs.
type Notifier interface {
	RunFinished(ctx context.Context, runID, status string, summary any)
}

// RunMetrics records finished runs.
type RunMetrics interface {
	RunFinished(status string, sum pipeline.Summary)
}

// Result is what a synchronous Run returns.
type Result struct {
	RunID   string
	Status  runlog.Status
	Summary pipeline.Summary
}

// Syncer serialises harvest runs. Recorder, Notifier and Metrics are
// optional.
type Syncer struct {
	Recorder Recorder
	Notifier Notifier
	Metrics  RunMetrics

	leagues store.LeagueSource
	runner  Runner
	base    context.Context
	log     *zap.Logger

	mu      sync.Mutex
	running string
	wg      sync.WaitGroup
}

// New returns a Syncer. Background runs started by Trigger inherit base and
// stop when it is cancelled.
func New(base context.Context, leagues store.LeagueSource, runner Runner, log *zap.Logger) *Syncer {
	return &Syncer{
		leagues: leagues,
		runner:  runner,
		base:    base,
		log:     log.Named("syncer"),
	}
}

// Running returns the id of the run in progress, if any.
func (s *Syncer) Running() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, s.running != ""
}

// Run harvests the leagues matching names, or every active league when
// names is empty, and blocks until the run ends.
func (s *Syncer) Run(ctx context.Context, trigger string, names []string) (Result, error) {
	id, err := s.claim()
	if err != nil {
		return Result{RunID: id}, err
	}
	defer s.release()
	return s.execute(ctx, id, trigger, names)
}

// Trigger starts a run in the background and returns its id.
func (s *Syncer) Trigger(trigger string, names []string) (string, error) {
	id, err := s.claim()
	if err != nil {
		return id, err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release()
		if _, err := s.execute(s.base, id, trigger, names); err != nil {
			s.log.Warn("background run failed", zap.String("run_id", id), zap.Error(err))
		}
	}()
	return id, nil
}

// Wait blocks until background runs have returned.
func (s *Syncer) Wait() { s.wg.Wait() }

func (s *Syncer) claim() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running != "" {
		return s.running, ErrRunInProgress
	}
	s.running = uuid.NewString()
	return s.running, nil
}

func (s *Syncer) release() {
	s.mu.Lock()
	s.running = ""
	s.mu.Unlock()
}

func (s *Syncer) execute(ctx context.Context, id, trigger string, names []string) (Result, error) {
	log := s.log.With(zap.String("run_id", id), zap.String("trigger", trigger))
	res := Result{RunID: id}

	leagues, err := s.resolve(ctx, names)
	if err != nil {
		return res, err
	}

	if s.Recorder != nil {
		if err := s.Recorder.Create(ctx, id, trigger, leagueNames(leagues)); err != nil {
			return res, err
		}
		if err := s.Recorder.Transition(ctx, id, runlog.StatusRunning); err != nil {
			return res, err
		}
	}

	log.Info("run started", zap.Int("leagues", len(leagues)))
	sum, runErr := s.runner.Run(pipeline.WithRunID(ctx, id), leagues)
	res.Summary = sum
	res.Status = runlog.StatusFor(sum, runErr)

	if s.Recorder != nil {
		// the run context may already be cancelled
		recCtx := context.WithoutCancel(ctx)
		if _, err := s.Recorder.Finish(recCtx, id, sum, runErr); err != nil {
			log.Error("run not recorded", zap.Error(err))
		}
	}
	if s.Metrics != nil {
		s.Metrics.RunFinished(string(res.Status), sum)
	}
	if s.Notifier != nil {
		s.Notifier.RunFinished(context.WithoutCancel(ctx), id, string(res.Status), sum)
	}

	if runErr != nil {
		log.Error("run ended", zap.String("status", string(res.Status)), zap.Error(runErr))
		return res, runErr
	}
	log.Info("run ended", zap.String("status", string(res.Status)))
	return res, nil
}

// resolve loads the active leagues and keeps those named. A name matches a
// league's slug, name, output name or base URL, case-insensitively.
func (s *Syncer) resolve(ctx context.Context, names []string) ([]model.League, error) {
	all, err := s.leagues.ActiveLeagues(ctx)
	if err != nil {
		return nil, fmt.Errorf("load leagues: %w", err)
	}
	if len(names) == 0 {
		if len(all) == 0 {
			return nil, ErrNoLeagues
		}
		return all, nil
	}

	var out []model.League
	for _, l := range all {
		for _, n := range names {
			n = strings.TrimSpace(n)
			if strings.EqualFold(n, l.Slug) || strings.EqualFold(n, l.Name) ||
				strings.EqualFold(n, l.Output()) || strings.EqualFold(strings.TrimRight(n, "/"), strings.TrimRight(l.BaseURL, "/")) {
				out = append(out, l)
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoLeagues, strings.Join(names, ", "))
	}
	return out, nil
}

func leagueNames(ls []model.League) []string {
	out := make([]string, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.Output())
	}
	return out
}

// StaticLeagues serves a fixed league list, used when harvesting from the
// command line without a database.
type StaticLeagues []model.League

func (s StaticLeagues) ActiveLeagues(context.Context) ([]model.League, error) {
	return s, nil
}
