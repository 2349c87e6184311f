// Package scheduler wires up the cron job that periodically harvests every
// active league.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"matchfeed/harvester/internal/syncer"
)

// Syncer runs one harvest.
type Syncer interface {
	Run(ctx context.Context, trigger string, names []string) (syncer.Result, error)
}

// Scheduler wraps robfig/cron and manages the harvest loop.
type Scheduler struct {
	cron   *cron.Cron
	syncer Syncer
	spec   string // cron spec, e.g. "@every 6h"
	log    *zap.Logger
	wg     sync.WaitGroup // startup run
}

// New creates a Scheduler firing on spec.
func New(s Syncer, spec string, log *zap.Logger) *Scheduler {
	log = log.Named("scheduler")
	return &Scheduler{
		// a tick landing while a run is still going is skipped
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{log}))),
		syncer: s,
		spec:   spec,
		log:    log,
	}
}

// Start registers the job and starts the scheduler. Also runs one harvest
// immediately so the tables are populated without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.runHarvest(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.log.Info("cron started", zap.String("spec", s.spec))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runHarvest(ctx)
	}()

	return nil
}

// Stop halts the scheduler and waits for a running job to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.log.Info("cron stopped")
}

func (s *Scheduler) runHarvest(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res, err := s.syncer.Run(ctx, syncer.TriggerSchedule, nil)
	switch {
	case errors.Is(err, syncer.ErrRunInProgress):
		s.log.Info("harvest already running, tick skipped", zap.String("run_id", res.RunID))
	case errors.Is(err, syncer.ErrNoLeagues):
		s.log.Info("no active leagues, nothing to harvest")
	case err != nil:
		s.log.Error("harvest failed", zap.String("run_id", res.RunID), zap.Error(err))
	default:
		s.log.Info("harvest complete", zap.String("run_id", res.RunID),
			zap.String("status", string(res.Status)),
			zap.Int64("inserted", res.Summary.Inserted))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ log *zap.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Sugar().Debugw(msg, kv...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Sugar().Errorw(msg, append(kv, "error", err)...)
}
