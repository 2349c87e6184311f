package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"matchfeed/harvester/internal/runlog"
	"matchfeed/harvester/internal/scraper"
	"matchfeed/harvester/internal/store"
	"matchfeed/harvester/internal/syncer"
)

// Handler holds shared dependencies.
type Handler struct {
	deps Deps
	log  *zap.Logger
}

// NewHandler returns a configured Handler.
func NewHandler(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{deps: d, log: log.Named("api")}
}

// ─── Request types ───────────────────────────────────────────────────────────

type syncRequest struct {
	Leagues []string `json:"leagues"`
}

type leagueRequest struct {
	URL        string `json:"url" binding:"required"`
	Name       string `json:"name"`
	OutputName string `json:"outputName"`
}

// ─── Handlers ────────────────────────────────────────────────────────────────

// Health pings the database.
func (h *Handler) Health(c *gin.Context) {
	if err := h.deps.DB.Ping(c.Request.Context()); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "harvester", "version": version})
}

// StartSync handles POST /sync. An empty body harvests every active league.
func (h *Handler) StartSync(c *gin.Context) {
	var req syncRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
			return
		}
	}

	id, err := h.deps.Sync.Trigger(syncer.TriggerAPI, req.Leagues)
	if errors.Is(err, syncer.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": "a run is already in progress", "runId": id})
		return
	}
	if err != nil {
		h.log.Error("sync trigger failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"runId": id})
}

// ListLeagues handles GET /leagues.
func (h *Handler) ListLeagues(c *gin.Context) {
	leagues, err := h.deps.Leagues.Leagues(c.Request.Context())
	if err != nil {
		h.log.Error("list leagues failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"leagues": leagues})
}

// CreateLeague handles POST /leagues.
func (h *Handler) CreateLeague(c *gin.Context) {
	var req leagueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	l, err := scraper.LeagueFromArg(req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	l.Name = strings.TrimSpace(req.Name)
	if l.Name == "" {
		l.Name = l.Slug
	}
	l.OutputName = strings.TrimSpace(req.OutputName)

	created, err := h.deps.Leagues.AddLeague(c.Request.Context(), l)
	if errors.Is(err, store.ErrLeagueExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "league already registered"})
		return
	}
	if err != nil {
		h.log.Error("add league failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusCreated, created)
}

// LatestRun handles GET /runs/latest.
func (h *Handler) LatestRun(c *gin.Context) {
	run, err := h.deps.Runs.Latest(c.Request.Context())
	if errors.Is(err, runlog.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no runs yet"})
		return
	}
	if err != nil {
		h.log.Error("latest run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, run)
}
