package scraper

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"matchfeed/harvester/internal/browser"
	"matchfeed/harvester/internal/model"
	"matchfeed/harvester/internal/pool"
)

const (
	DefaultDetailTimeout    = 5 * time.Second
	DefaultContainerTimeout = 3 * time.Second
	DefaultDetailRetries    = 2
)

// Extraction is the result of reading one match detail page. Summary is
// always set; it is all zeros unless Outcome is OutcomeParsed.
type Extraction struct {
	Summary  model.GoalSummary
	Goals    []model.GoalEvent
	Outcome  Outcome
	Strategy string
	Err      error // *FetchError when Outcome is OutcomeFetchFailed
}

// GoalExtractor reads goal incidents from match detail pages.
type GoalExtractor struct {
	Pool             *pool.Pool[browser.Page]
	DetailTimeout    time.Duration
	ContainerTimeout time.Duration
	Retries          int
	RetryInterval    time.Duration
	Strategies       []IncidentStrategy
	Log              *zap.Logger
}

// Extract loads m.DetailURL and summarizes its goals. Navigation failures
// are retried; a missing events container is not. The returned error is
// only set for cancellation and pool failures.
func (g *GoalExtractor) Extract(ctx context.Context, m model.MatchDescriptor) (Extraction, error) {
	var ex Extraction
	err := g.Pool.With(ctx, func(page browser.Page) error {
		var err error
		ex, err = g.extract(ctx, page, m.DetailURL)
		return err
	})
	if err != nil {
		return Extraction{}, err
	}
	return ex, nil
}

func (g *GoalExtractor) extract(ctx context.Context, page browser.Page, url string) (Extraction, error) {
	attempts, err := g.navigate(ctx, page, url)
	if err != nil {
		if ctx.Err() != nil {
			return Extraction{}, ctx.Err()
		}
		return Extraction{
			Outcome: OutcomeFetchFailed,
			Err:     &FetchError{URL: url, Attempts: attempts, Err: err},
		}, nil
	}

	if err := page.WaitVisible(ctx, DetailReadySelector, g.containerTimeout()); err != nil {
		if ctx.Err() != nil {
			return Extraction{}, ctx.Err()
		}
		return Extraction{Outcome: OutcomeNoData}, nil
	}

	html, err := page.HTML(ctx, "body")
	if err != nil {
		if ctx.Err() != nil {
			return Extraction{}, ctx.Err()
		}
		return Extraction{Outcome: OutcomeNoData}, nil
	}
	return SummarizeDetail(html, g.strategies())
}

// SummarizeDetail parses a detail document into an Extraction.
func SummarizeDetail(html string, strategies []IncidentStrategy) (Extraction, error) {
	incidents, strategy, err := ParseIncidents(html, strategies)
	if err != nil {
		return Extraction{}, err
	}
	if strategy == "" {
		return Extraction{Outcome: OutcomeNoData}, nil
	}
	goals := FoldGoals(incidents)
	return Extraction{
		Summary:  model.Summarize(goals, MinuteLess),
		Goals:    goals,
		Outcome:  OutcomeParsed,
		Strategy: strategy,
	}, nil
}

func (g *GoalExtractor) navigate(ctx context.Context, page browser.Page, url string) (int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.retryInterval()
	b.MaxInterval = 4 * g.retryInterval()

	attempts := 0
	op := func() error {
		attempts++
		navCtx, cancel := context.WithTimeout(ctx, g.detailTimeout())
		defer cancel()
		err := page.Navigate(navCtx, url)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		g.logger().Debug("detail navigation failed, retrying",
			zap.String("url", url), zap.Int("attempt", attempts), zap.Duration("wait", wait), zap.Error(err))
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(g.Retries, 0))), ctx)
	return attempts, backoff.RetryNotify(op, policy, notify)
}

func (g *GoalExtractor) detailTimeout() time.Duration {
	if g.DetailTimeout > 0 {
		return g.DetailTimeout
	}
	return DefaultDetailTimeout
}

func (g *GoalExtractor) containerTimeout() time.Duration {
	if g.ContainerTimeout > 0 {
		return g.ContainerTimeout
	}
	return DefaultContainerTimeout
}

func (g *GoalExtractor) retryInterval() time.Duration {
	if g.RetryInterval > 0 {
		return g.RetryInterval
	}
	return 500 * time.Millisecond
}

func (g *GoalExtractor) strategies() []IncidentStrategy {
	if len(g.Strategies) > 0 {
		return g.Strategies
	}
	return DefaultStrategies
}

func (g *GoalExtractor) logger() *zap.Logger {
	if g.Log == nil {
		return zap.NewNop()
	}
	return g.Log
}
