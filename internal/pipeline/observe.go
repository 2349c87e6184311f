package pipeline

import (
	"context"

	"matchfeed/harvester/internal/model"
	"matchfeed/harvester/internal/scraper"
)

// Observers fans notifications out to several observers in order.
type Observers []Observer

func (o Observers) MatchStored(ctx context.Context, m model.MatchDescriptor, inserted bool) {
	for _, obs := range o {
		obs.MatchStored(ctx, m, inserted)
	}
}

func (o Observers) GoalsStored(ctx context.Context, m model.MatchDescriptor, ex scraper.Extraction) {
	for _, obs := range o {
		obs.GoalsStored(ctx, m, ex)
	}
}

type runIDKey struct{}

// WithRunID makes the next Run started with ctx use id instead of a fresh
// UUID, so callers can record a run before it starts.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

func runIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
