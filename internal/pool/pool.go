// Package pool keeps a capped set of reusable, expensive resources (browser
// pages) shared by every pipeline stage.
//
// Invariants:
//   - idle + leased + resetting handles never exceed MaxPages;
//   - an idle handle older than MaxAge is closed instead of reused;
//   - the sweeper closes any handle, idle or leased, older than 2*MaxAge;
//   - a failed factory call frees the slot it reserved.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrClosed is returned by Acquire once Close has been called.
	ErrClosed = errors.New("pool: closed")
	// ErrCreate wraps factory failures returned by Acquire.
	ErrCreate = errors.New("pool: create resource")
)

// Resource is anything the pool can recycle.
type Resource interface {
	// Reset returns the resource to a neutral state before reuse.
	Reset(ctx context.Context) error
	Close() error
}

// Factory creates a new resource.
type Factory[R Resource] func(ctx context.Context) (R, error)

// Options tune the pool. Zero values fall back to the defaults below.
type Options struct {
	MaxPages      int
	MaxAge        time.Duration
	SweepInterval time.Duration
	Now           func() time.Time
	Logger        *zap.Logger
}

const (
	DefaultMaxPages      = 5
	DefaultMaxAge        = 5 * time.Minute
	DefaultSweepInterval = 30 * time.Second
)

// Stats are observational counters; nothing in the pool branches on them.
type Stats struct {
	Created       uint64  `json:"created"`
	Reused        uint64  `json:"reused"`
	Swept         uint64  `json:"swept"`
	Discarded     uint64  `json:"discarded"`
	Live          int     `json:"live"`
	Idle          int     `json:"idle"`
	Leased        int     `json:"leased"`
	ReusedPercent float64 `json:"reusedPercent"`
}

// Handle is a leased resource. It must be given back with Release.
type Handle[R Resource] struct {
	id       uint64
	res      R
	created  time.Time
	lastUsed time.Time
	leased   bool
	retired  bool
}

func (h *Handle[R]) Resource() R { return h.res }
func (h *Handle[R]) ID() uint64  { return h.id }

// Pool is safe for concurrent use.
type Pool[R Resource] struct {
	factory Factory[R]
	opts    Options
	log     *zap.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	idle   []*Handle[R]
	all    map[*Handle[R]]struct{}
	live   int // handles in all + slots reserved by in-flight factory calls
	nextID uint64
	closed bool

	created, reused, swept, discarded uint64

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// New builds a pool and starts its background sweeper.
func New[R Resource](factory Factory[R], opts Options) *Pool[R] {
	if opts.MaxPages < 1 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	p := &Pool[R]{
		factory:   factory,
		opts:      opts,
		log:       opts.Logger.Named("pool"),
		all:       make(map[*Handle[R]]struct{}),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	go p.sweepLoop()
	return p
}

func (p *Pool[R]) wake() {
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Acquire leases a handle, reusing a fresh idle one, creating one when under
// the cap, or waiting for capacity otherwise.
func (p *Pool[R]) Acquire(ctx context.Context) (*Handle[R], error) {
	var stale []*Handle[R]
	defer func() { p.closeAll(stale) }()

	p.mu.Lock()
	stop := context.AfterFunc(ctx, p.wake)
	defer stop()

	for {
		if p.closed {
			p.mu.Unlock()
			return nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			p.mu.Unlock()
			return nil, err
		}

		now := p.opts.Now()
		for len(p.idle) > 0 {
			h := p.idle[len(p.idle)-1]
			p.idle = p.idle[:len(p.idle)-1]
			if now.Sub(h.created) > p.opts.MaxAge {
				p.retireLocked(h)
				p.discarded++
				stale = append(stale, h)
				continue
			}
			h.leased = true
			h.lastUsed = now
			p.reused++
			p.mu.Unlock()
			return h, nil
		}

		if p.live < p.opts.MaxPages {
			p.live++
			p.mu.Unlock()
			return p.create(ctx)
		}

		p.cond.Wait()
	}
}

// create runs the factory for a slot already reserved in p.live.
func (p *Pool[R]) create(ctx context.Context) (*Handle[R], error) {
	res, err := p.factory(ctx)

	p.mu.Lock()
	if err != nil {
		p.live--
		p.cond.Signal()
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrCreate, err)
	}
	if p.closed {
		p.live--
		p.mu.Unlock()
		_ = res.Close()
		return nil, ErrClosed
	}

	p.nextID++
	now := p.opts.Now()
	h := &Handle[R]{id: p.nextID, res: res, created: now, lastUsed: now, leased: true}
	p.all[h] = struct{}{}
	p.created++
	p.mu.Unlock()

	p.log.Debug("resource created", zap.Uint64("id", h.id))
	return h, nil
}

// Release resets the resource and returns it to the idle set. A handle whose
// reset fails is closed and its slot freed. Releasing twice is a no-op.
func (p *Pool[R]) Release(ctx context.Context, h *Handle[R]) {
	if h == nil {
		return
	}

	p.mu.Lock()
	if !h.leased {
		p.mu.Unlock()
		return
	}
	h.leased = false
	if h.retired {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	err := h.res.Reset(ctx)

	p.mu.Lock()
	if h.retired {
		p.mu.Unlock()
		return
	}
	if err != nil || p.closed {
		p.retireLocked(h)
		p.discarded++
		p.mu.Unlock()
		if err != nil {
			p.log.Warn("reset failed, discarding resource", zap.Uint64("id", h.id), zap.Error(err))
		}
		_ = h.res.Close()
		return
	}
	h.lastUsed = p.opts.Now()
	p.idle = append(p.idle, h)
	p.cond.Signal()
	p.mu.Unlock()
}

// With acquires a handle, runs fn and always releases the handle, also when
// fn panics. Release runs detached from ctx cancellation so a stopping run
// still returns pages to a clean state.
func (p *Pool[R]) With(ctx context.Context, fn func(R) error) error {
	h, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(context.WithoutCancel(ctx), h)
	return fn(h.res)
}

// Sweep closes every handle older than 2*MaxAge, leased or not, and returns
// how many were closed. It runs periodically in the background.
func (p *Pool[R]) Sweep() int {
	limit := 2 * p.opts.MaxAge

	p.mu.Lock()
	now := p.opts.Now()
	var victims []*Handle[R]
	for h := range p.all {
		if now.Sub(h.created) > limit {
			victims = append(victims, h)
		}
	}
	for _, h := range victims {
		p.retireLocked(h)
		p.swept++
	}
	p.mu.Unlock()

	if len(victims) > 0 {
		p.log.Info("swept aged resources", zap.Int("count", len(victims)))
	}
	p.closeAll(victims)
	return len(victims)
}

func (p *Pool[R]) sweepLoop() {
	defer close(p.sweepDone)
	t := time.NewTicker(p.opts.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-p.stopSweep:
			return
		case <-t.C:
			p.Sweep()
		}
	}
}

// retireLocked removes h from the pool accounting. Caller holds p.mu and
// closes the resource after unlocking.
func (p *Pool[R]) retireLocked(h *Handle[R]) {
	if h.retired {
		return
	}
	h.retired = true
	delete(p.all, h)
	for i, ih := range p.idle {
		if ih == h {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			break
		}
	}
	p.live--
	p.cond.Broadcast()
}

func (p *Pool[R]) closeAll(hs []*Handle[R]) {
	for _, h := range hs {
		if err := h.res.Close(); err != nil {
			p.log.Debug("close resource", zap.Uint64("id", h.id), zap.Error(err))
		}
	}
}

// Close stops the sweeper and closes every handle, including leased ones.
// Blocked Acquire calls return ErrClosed.
func (p *Pool[R]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	victims := make([]*Handle[R], 0, len(p.all))
	for h := range p.all {
		victims = append(victims, h)
	}
	for _, h := range victims {
		p.retireLocked(h)
	}
	p.cond.Broadcast()
	p.mu.Unlock()

	close(p.stopSweep)
	<-p.sweepDone
	p.closeAll(victims)
	p.log.Info("pool closed", zap.Int("closed", len(victims)))
}

func (p *Pool[R]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	leased := 0
	for h := range p.all {
		if h.leased {
			leased++
		}
	}
	st := Stats{
		Created:   p.created,
		Reused:    p.reused,
		Swept:     p.swept,
		Discarded: p.discarded,
		Live:      p.live,
		Idle:      len(p.idle),
		Leased:    leased,
	}
	if total := p.created + p.reused; total > 0 {
		st.ReusedPercent = float64(p.reused) / float64(total) * 100
	}
	return st
}
