// Package notify publishes harvest events on a Redis pub/sub channel.
// Publishing is best effort: failures are logged and never fail a run.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"matchfeed/harvester/internal/model"
	"matchfeed/harvester/internal/scraper"
)

// Channel is the pub/sub channel every event is published on.
const Channel = "harvester:events"

const publishTimeout = 2 * time.Second

// Event types.
const (
	TypeMatchDiscovered = "MATCH_DISCOVERED"
	TypeMatchDetailed   = "MATCH_DETAILED"
	TypeRunFinished     = "RUN_FINISHED"
)

// Event is the JSON message published on Channel.
type Event struct {
	Type    string             `json:"type"`
	At      time.Time          `json:"at"`
	RunID   string             `json:"runId,omitempty"`
	Status  string             `json:"status,omitempty"`
	Match   *matchPayload      `json:"match,omitempty"`
	Goals   *model.GoalSummary `json:"goals,omitempty"`
	Outcome string             `json:"outcome,omitempty"`
	Summary any                `json:"summary,omitempty"`
}

type matchPayload struct {
	Country string `json:"country"`
	League  string `json:"league"`
	Season  string `json:"season"`
	model.MatchDescriptor
}

func payload(m model.MatchDescriptor) *matchPayload {
	return &matchPayload{
		Country:         m.Season.Country,
		League:          m.Season.Slug,
		Season:          m.Season.Label,
		MatchDescriptor: m,
	}
}

// publisher is the part of *redis.Client used here.
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Redis publishes events through a go-redis client. A nil *Redis is a
// valid no-op notifier.
type Redis struct {
	rdb publisher
	log *zap.Logger
	now func() time.Time
}

func NewRedis(rdb *redis.Client, log *zap.Logger) *Redis {
	return newRedis(rdb, log)
}

func newRedis(rdb publisher, log *zap.Logger) *Redis {
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{rdb: rdb, log: log.Named("notify"), now: time.Now}
}

// Publish sends e on Channel.
func (n *Redis) Publish(ctx context.Context, e Event) error {
	if n == nil {
		return nil
	}
	if e.At.IsZero() {
		e.At = n.now().UTC()
	}
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return n.rdb.Publish(ctx, Channel, body).Err()
}

func (n *Redis) publish(ctx context.Context, e Event) {
	if err := n.Publish(ctx, e); err != nil {
		n.log.Warn("publish failed", zap.String("type", e.Type), zap.Error(err))
	}
}

// MatchStored publishes newly inserted matches only.
func (n *Redis) MatchStored(ctx context.Context, m model.MatchDescriptor, inserted bool) {
	if n == nil || !inserted {
		return
	}
	n.publish(ctx, Event{Type: TypeMatchDiscovered, Match: payload(m)})
}

func (n *Redis) GoalsStored(ctx context.Context, m model.MatchDescriptor, ex scraper.Extraction) {
	if n == nil {
		return
	}
	goals := ex.Summary
	n.publish(ctx, Event{
		Type:    TypeMatchDetailed,
		Match:   payload(m),
		Goals:   &goals,
		Outcome: ex.Outcome.String(),
	})
}

// RunFinished publishes the final state of a run.
func (n *Redis) RunFinished(ctx context.Context, runID, status string, summary any) {
	if n == nil {
		return
	}
	n.publish(ctx, Event{Type: TypeRunFinished, RunID: runID, Status: status, Summary: summary})
}
