// Package api implements the HTTP surface of the hosted harvester.
//
// Routes:
//
//	GET  /health       → database ping
//	POST /sync         → start a background run (all or named leagues)
//	GET  /leagues      → list registered leagues
//	POST /leagues      → register a league from its URL
//	GET  /runs/latest  → most recent run and its summary
//	GET  /metrics      → Prometheus exposition
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"matchfeed/harvester/internal/model"
	"matchfeed/harvester/internal/runlog"
)

const version = "1.0.0"

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LeagueStore lists and registers leagues.
type LeagueStore interface {
	Leagues(ctx context.Context) ([]model.League, error)
	AddLeague(ctx context.Context, l model.League) (model.League, error)
}

// SyncTrigger starts background runs.
type SyncTrigger interface {
	Trigger(trigger string, names []string) (string, error)
}

// RunReader reads the run log.
type RunReader interface {
	Latest(ctx context.Context) (*runlog.Run, error)
}

// Deps groups what the handlers need. Metrics may be nil.
type Deps struct {
	DB      Pinger
	Leagues LeagueStore
	Sync    SyncTrigger
	Runs    RunReader
	Metrics http.Handler
	Log     *zap.Logger
}

// SetupRouter mounts every route on a new gin engine.
func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(d.Log))
	h := NewHandler(d)

	r.GET("/health", h.Health)
	r.POST("/sync", h.StartSync)
	r.GET("/leagues", h.ListLeagues)
	r.POST("/leagues", h.CreateLeague)
	r.GET("/runs/latest", h.LatestRun)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}
	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("http")
	return func(c *gin.Context) {
		c.Next()
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()))
	}
}
