package pipeline

import (
	"errors"

	"go.uber.org/zap"

	"matchfeed/harvester/internal/model"
	"matchfeed/harvester/internal/queue"
	"matchfeed/harvester/internal/scraper"
)

// produce feeds every league's seasons into the season queue in order.
func (r *run) produce(leagues []model.League) error {
	for _, league := range leagues {
		log := r.log.With(zap.String("league", league.BaseURL))
		n := 0
		for season := range r.seasons.Seasons(r.workCtx, league) {
			r.counts.seasons.discovered.Add(1)

			if err := r.seasonQ.WaitUntilDrainedBelow(r.workCtx, r.cfg.Backpressure); err != nil {
				return nil
			}
			if err := r.seasonQ.Put(r.workCtx, season); err != nil {
				if !errors.Is(err, queue.ErrProducerDone) && !r.workDone() {
					log.Warn("season not queued", zap.Stringer("season", season), zap.Error(err))
				}
				return nil
			}
			n++
		}
		log.Info("league seasons queued", zap.Int("seasons", n))
		if r.stopped() {
			return nil
		}
	}
	return nil
}

// matchWorker turns queued seasons into stored, queued match descriptors.
func (r *run) matchWorker(id int) error {
	log := r.log.Named("match-worker").With(zap.Int("worker", id))
	for {
		season, err := r.seasonQ.Get(r.workCtx)
		if err != nil {
			return nil // drained or cancelled
		}
		if r.stopped() {
			// nothing discovered now could be queued
			r.counts.seasons.skipped.Add(1)
			continue
		}

		seasonLog := log.With(zap.Stringer("season", season))
		d, err := r.matches.Discover(r.workCtx, season)
		if err != nil {
			if r.workDone() {
				return nil
			}
			if fatal(err) {
				r.counts.seasons.errored.Add(1)
				r.stop(err)
				return err
			}
			seasonLog.Warn("season discovery failed, skipping", zap.Error(err))
			r.counts.seasons.errored.Add(1)
			continue
		}
		r.counts.seasons.processed.Add(1)
		r.counts.matches.discovered.Add(int64(len(d.Matches)))
		seasonLog.Info("season discovered", zap.Stringer("discovery", d))

		if !r.enqueueMatches(seasonLog, d.Matches) && r.workDone() {
			return nil
		}
	}
}

// enqueueMatches stores and queues ms in order. It returns false once the
// match queue stops accepting items.
func (r *run) enqueueMatches(log *zap.Logger, ms []model.MatchDescriptor) bool {
	for _, m := range ms {
		inserted, err := r.sink.InsertIfAbsent(r.workCtx, m)
		if err != nil {
			if r.workDone() {
				return false
			}
			log.Warn("insert failed, skipping match", zap.Stringer("match", m.Key()), zap.Error(err))
			r.counts.matches.errored.Add(1)
			continue
		}
		if inserted {
			r.counts.inserted.Add(1)
		}
		if r.Observer != nil {
			r.Observer.MatchStored(r.workCtx, m, inserted)
		}

		if err := r.matchQ.WaitUntilDrainedBelow(r.workCtx, r.cfg.Backpressure); err != nil {
			return false
		}
		if err := r.matchQ.Put(r.workCtx, m); err != nil {
			// stored but not detailed; the next run picks it up again
			r.counts.matches.skipped.Add(1)
			return false
		}
		r.counts.matches.processed.Add(1)
	}
	return true
}

// goalWorker extracts and stores goals for queued matches until the match
// queue is drained.
func (r *run) goalWorker(id int) error {
	log := r.log.Named("goal-worker").With(zap.Int("worker", id))
	for {
		m, err := r.matchQ.Get(r.workCtx)
		if err != nil {
			return nil
		}
		r.counts.goals.discovered.Add(1)

		ex, err := r.goals.Extract(r.workCtx, m)
		if err != nil {
			if r.workDone() {
				return nil
			}
			r.counts.goals.errored.Add(1)
			if fatal(err) {
				r.stop(err)
				return err
			}
			log.Warn("goal extraction failed, skipping", zap.Stringer("match", m.Key()), zap.Error(err))
			continue
		}

		// an empty summary is still written for pages that failed to load
		if err := r.sink.UpdateGoals(r.workCtx, m, ex.Summary); err != nil {
			if r.workDone() {
				return nil
			}
			r.counts.goals.errored.Add(1)
			log.Warn("goal update failed", zap.Stringer("match", m.Key()), zap.Error(err))
			continue
		}
		if r.Observer != nil {
			r.Observer.GoalsStored(r.workCtx, m, ex)
		}

		switch ex.Outcome {
		case scraper.OutcomeFetchFailed:
			r.counts.goals.errored.Add(1)
			log.Warn("detail page unavailable, stored empty summary",
				zap.Stringer("match", m.Key()), zap.Error(ex.Err))
		case scraper.OutcomeNoData:
			r.counts.noData.Add(1)
			r.counts.goals.processed.Add(1)
		default:
			r.counts.goals.processed.Add(1)
			log.Debug("goals stored", zap.Stringer("match", m.Key()),
				zap.String("strategy", ex.Strategy), zap.Int("goals", len(ex.Goals)))
		}
	}
}
