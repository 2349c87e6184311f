// Package pipeline wires the season, match and goal stages together through
// two bounded queues and owns worker lifetimes, shutdown and draining.
//
//	leagues ─► producer ─► seasons queue ─► N match workers ─► matches queue ─► M goal workers
//	                                          │ InsertIfAbsent                     │ UpdateGoals
//	                                          ▼                                    ▼
//	                                                       store.Sink
package pipeline

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"matchfeed/harvester/internal/model"
	"matchfeed/harvester/internal/pool"
	"matchfeed/harvester/internal/queue"
	"matchfeed/harvester/internal/scraper"
	"matchfeed/harvester/internal/store"
)

// ErrDrainTimeout is returned by Run when workers had to be cancelled
// because they did not drain within Config.DrainTimeout after a stop.
var ErrDrainTimeout = errors.New("pipeline: drain timeout exceeded")

// ─── Stages ──────────────────────────────────────────────────────────────────

// SeasonSource lists the seasons of a league. *scraper.SeasonDiscoverer.
type SeasonSource interface {
	Seasons(ctx context.Context, league model.League) iter.Seq[model.SeasonDescriptor]
}

// MatchSource reads the matches of one season. *scraper.MatchDiscoverer.
type MatchSource interface {
	Discover(ctx context.Context, season model.SeasonDescriptor) (scraper.Discovery, error)
}

// GoalSource reads the goals of one match. *scraper.GoalExtractor.
type GoalSource interface {
	Extract(ctx context.Context, m model.MatchDescriptor) (scraper.Extraction, error)
}

// Observer is told about every stored row. Implementations must be safe
// for concurrent use and must not block.
type Observer interface {
	MatchStored(ctx context.Context, m model.MatchDescriptor, inserted bool)
	GoalsStored(ctx context.Context, m model.MatchDescriptor, ex scraper.Extraction)
}

// ─── Config ──────────────────────────────────────────────────────────────────

type Config struct {
	MatchWorkers    int
	GoalWorkers     int
	SeasonQueueSize int
	MatchQueueSize  int
	// Backpressure is the queue fill fraction producers wait for before
	// putting more items.
	Backpressure float64
	DrainTimeout time.Duration
}

const (
	DefaultMatchWorkers = 1
	DefaultGoalWorkers  = 4
	DefaultQueueSize    = 200
	DefaultDrainTimeout = 30 * time.Second
	defaultBackpressure = 0.5
)

func (c Config) withDefaults() Config {
	if c.MatchWorkers < 1 {
		c.MatchWorkers = DefaultMatchWorkers
	}
	if c.GoalWorkers < 1 {
		c.GoalWorkers = DefaultGoalWorkers
	}
	if c.SeasonQueueSize < 1 {
		c.SeasonQueueSize = DefaultQueueSize
	}
	if c.MatchQueueSize < 1 {
		c.MatchQueueSize = DefaultQueueSize
	}
	if c.Backpressure <= 0 || c.Backpressure > 1 {
		c.Backpressure = defaultBackpressure
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	return c
}

// ─── Pipeline ────────────────────────────────────────────────────────────────

// Pipeline runs harvests. One Pipeline may run several times but not
// concurrently with itself if the stages share a pool that ForceStop closes.
type Pipeline struct {
	seasons SeasonSource
	matches MatchSource
	goals   GoalSource
	sink    store.Sink
	cfg     Config
	log     *zap.Logger

	// Observer is optional.
	Observer Observer
	// PoolStats, when set, is sampled into the Summary at the end of a run.
	PoolStats func() pool.Stats
	// ForceStop is called once the drain timeout expires, typically to
	// close the page pool so in-flight browser work is torn down.
	ForceStop func()
}

func New(seasons SeasonSource, matches MatchSource, goals GoalSource, sink store.Sink, cfg Config, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		seasons: seasons,
		matches: matches,
		goals:   goals,
		sink:    sink,
		cfg:     cfg.withDefaults(),
		log:     log.Named("pipeline"),
	}
}

// run is the state of one Run call.
type run struct {
	*Pipeline
	id      string
	log     *zap.Logger
	seasonQ *queue.Queue[model.SeasonDescriptor]
	matchQ  *queue.Queue[model.MatchDescriptor]
	counts  counters

	workCtx    context.Context
	cancelWork context.CancelFunc

	stopOnce  sync.Once
	stopping  chan struct{}
	drainOver chan struct{}

	mu        sync.Mutex
	stopCause error
	drainStop *time.Timer
}

// Run harvests every league and returns once all workers have exited.
//
// Cancelling ctx is a stop request: no new items are accepted, queued
// matches are still extracted, and after DrainTimeout the remaining work is
// cancelled and ErrDrainTimeout returned. A clean stop returns a nil error
// with Summary.Stopped set. Unrecoverable page pool failures stop the run
// the same way and are returned.
func (p *Pipeline) Run(ctx context.Context, leagues []model.League) (Summary, error) {
	id := runIDFrom(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	r := &run{
		Pipeline:  p,
		id:        id,
		seasonQ:   queue.New[model.SeasonDescriptor](p.cfg.SeasonQueueSize),
		matchQ:    queue.New[model.MatchDescriptor](p.cfg.MatchQueueSize),
		stopping:  make(chan struct{}),
		drainOver: make(chan struct{}),
	}
	r.log = p.log.With(zap.String("run", r.id))
	r.workCtx, r.cancelWork = context.WithCancel(context.WithoutCancel(ctx))
	defer r.cancelWork()

	started := time.Now()
	r.log.Info("run started",
		zap.Int("leagues", len(leagues)),
		zap.Int("match_workers", p.cfg.MatchWorkers),
		zap.Int("goal_workers", p.cfg.GoalWorkers))

	if ctx.Err() != nil {
		r.stop(nil)
	}
	unwatch := context.AfterFunc(ctx, func() { r.stop(nil) })
	defer unwatch()

	var (
		producers errgroup.Group
		matchers  errgroup.Group
		extractor errgroup.Group
	)

	producers.Go(func() error {
		defer r.seasonQ.MarkProducerDone()
		return r.produce(leagues)
	})
	for i := range p.cfg.MatchWorkers {
		matchers.Go(func() error { return r.matchWorker(i) })
	}
	for i := range p.cfg.GoalWorkers {
		extractor.Go(func() error { return r.goalWorker(i) })
	}

	done := make(chan error, 1)
	go func() {
		errs := []error{producers.Wait()}
		errs = append(errs, matchers.Wait())
		r.matchQ.MarkProducerDone()
		errs = append(errs, extractor.Wait())
		done <- errors.Join(errs...)
	}()

	var (
		err        error
		timedOut   bool
		workersErr error
	)
	select {
	case workersErr = <-done:
	case <-r.drainOver:
		timedOut = true
		r.log.Warn("drain timeout exceeded, cancelling workers", zap.Duration("timeout", p.cfg.DrainTimeout))
		r.cancelWork()
		if p.ForceStop != nil {
			p.ForceStop()
		}
		workersErr = <-done
	}
	r.stopDrainTimer()

	switch {
	case timedOut:
		err = ErrDrainTimeout
	case r.cause() != nil:
		err = r.cause()
	case workersErr != nil:
		err = workersErr
	}

	sum := r.summary(started, len(leagues))
	logFn := r.log.Info
	if err != nil {
		logFn = r.log.Warn
	}
	logFn("run finished", append(sum.fields(), zap.Error(err))...)
	return sum, err
}

// stop closes both queues for new items and arms the drain timer. cause is
// nil for an external stop request.
func (r *run) stop(cause error) {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopCause = cause
		r.drainStop = time.AfterFunc(r.cfg.DrainTimeout, func() { close(r.drainOver) })
		r.mu.Unlock()

		close(r.stopping)
		r.seasonQ.MarkProducerDone()
		r.matchQ.MarkProducerDone()

		if cause != nil {
			r.log.Error("stopping run after unrecoverable failure", zap.Error(cause))
		} else {
			r.log.Info("stop requested, draining queues", zap.Duration("timeout", r.cfg.DrainTimeout))
		}
	})
}

func (r *run) cause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopCause
}

func (r *run) stopDrainTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.drainStop != nil {
		r.drainStop.Stop()
	}
}

func (r *run) stopped() bool {
	select {
	case <-r.stopping:
		return true
	default:
		return false
	}
}

// fatal reports whether err means the page pool can no longer serve work.
func fatal(err error) bool {
	return errors.Is(err, pool.ErrClosed) || errors.Is(err, pool.ErrCreate)
}

// workDone reports whether a worker should exit because its context ended.
func (r *run) workDone() bool { return r.workCtx.Err() != nil }
