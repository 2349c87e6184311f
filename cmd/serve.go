package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"matchfeed/harvester/internal/api"
	"matchfeed/harvester/internal/config"
	"matchfeed/harvester/internal/db"
	"matchfeed/harvester/internal/grpcserver"
	"matchfeed/harvester/internal/logging"
	"matchfeed/harvester/internal/metrics"
	"matchfeed/harvester/internal/notify"
	"matchfeed/harvester/internal/pipeline"
	"matchfeed/harvester/internal/runlog"
	"matchfeed/harvester/internal/scheduler"
	"matchfeed/harvester/internal/store"
	"matchfeed/harvester/internal/syncer"
)

const (
	maxDBConns          = 10
	healthCheckInterval = 30 * time.Second
	shutdownTimeout     = 10 * time.Second
)

// serveCmd runs the hosted harvester.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "scheduled sync with HTTP API and gRPC health",
	Long: `Harvests every active league of the hosted database on SYNC_CRON and
serves the HTTP API on HTTP_PORT and the gRPC health service on GRPC_PORT.`,
	Args: cobra.NoArgs,
	RunE: serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, _ []string) error {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(config.ModeServe); err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── PostgreSQL ──────────────────────────────────────────────────────────
	pg, err := openPostgres(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pg.Close()
	log.Info("postgres connected")
	hosted := store.NewPostgres(pg)

	// ── Redis ───────────────────────────────────────────────────────────────
	var notifier *notify.Redis
	if cfg.RedisURL != "" {
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rdb.Close()
		notifier = notify.NewRedis(rdb, log)
		log.Info("redis connected")
	}

	// ── Harvest ─────────────────────────────────────────────────────────────
	sinks := store.Fanout{hosted, store.NewSQLite(cfg.SQLiteDir, log)}
	defer sinks.Close() //nolint:errcheck

	h, err := newHarvester(cfg, harvestOptions{}, sinks, log)
	if err != nil {
		return err
	}
	defer h.Close()

	m := metrics.New(h.pages.Stats)
	observers := pipeline.Observers{m}
	if notifier != nil {
		observers = append(observers, notifier)
	}
	h.pipe.Observer = observers

	s := syncer.New(ctx, hosted, h, log)
	s.Recorder = runlog.NewService(pg)
	s.Metrics = m
	if notifier != nil {
		s.Notifier = notifier
	}

	// ── Scheduler ───────────────────────────────────────────────────────────
	sched := scheduler.New(s, cfg.SyncCron, log)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	// ── HTTP server ─────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.SetupRouter(api.Deps{
			DB:      hosted,
			Leagues: hosted,
			Sync:    s,
			Runs:    runlog.NewService(pg),
			Metrics: m.Handler(),
			Log:     log,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("http listening", zap.String("version", version), zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	// ── gRPC health ────────────────────────────────────────────────────────
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	gs := grpcserver.NewServer(hosted, log)
	go gs.Watch(ctx, healthCheckInterval)
	go func() {
		if err := gs.Serve(lis); err != nil {
			log.Error("grpc server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ───────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	gs.Stop()

	// runs see the cancelled context and drain their queues
	sched.Stop()
	s.Wait()
	log.Info("stopped")
	return nil
}
