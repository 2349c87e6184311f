package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"matchfeed/harvester/internal/config"
	"matchfeed/harvester/internal/db"
	"matchfeed/harvester/internal/logging"
	"matchfeed/harvester/internal/notify"
	"matchfeed/harvester/internal/pipeline"
	"matchfeed/harvester/internal/runlog"
	"matchfeed/harvester/internal/store"
	"matchfeed/harvester/internal/syncer"
)

var (
	runLite      bool
	runEmitGoals bool
	runDryRun    bool
)

// runCmd harvests the leagues given on the command line.
var runCmd = &cobra.Command{
	Use:   "run <url[|name]>...",
	Short: "harvest leagues once and exit",
	Long: `Harvests every league URL given, or every active league of the hosted
database when no URL is given and DATABASE_URL is set. Rows are written to
<SQLITE_DIR>/<name>.db and, with DATABASE_URL, to Postgres. A JSON summary
line is printed to stdout when the run ends. Interrupting the run stops
discovery and lets queued matches finish.`,
	RunE: runHarvest,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runLite, "lite", false, "only today's matches from the fixtures page")
	runCmd.Flags().BoolVar(&runEmitGoals, "emit-goals", false, "print one JSON line per detailed match")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "keep rows in memory instead of writing them")
}

func runHarvest(cmd *cobra.Command, args []string) error {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(config.ModeRun); err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	leagues, err := leaguesFromArgs(args)
	if err != nil {
		return err
	}
	if len(leagues) == 0 && cfg.DatabaseURL == "" {
		return errors.New("no league given: pass league URLs or set DATABASE_URL")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		// a second signal kills the process
		stop()
	}()

	// ── Storage ─────────────────────────────────────────────────────────────
	var (
		sinks    store.Fanout
		source   store.LeagueSource = syncer.StaticLeagues(leagues)
		recorder syncer.Recorder
		mem      *store.Memory
		files    *store.SQLite
	)
	if runDryRun {
		mem = store.NewMemory()
		sinks = append(sinks, mem)
	} else {
		files = store.NewSQLite(cfg.SQLiteDir, log)
		sinks = append(sinks, files)
		if cfg.DatabaseURL != "" {
			pg, err := openPostgres(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer pg.Close()
			hosted := store.NewPostgres(pg)
			sinks = append(sinks, hosted)
			recorder = runlog.NewService(pg)
			if len(leagues) == 0 {
				source = hosted
			}
		}
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			log.Warn("closing stores", zap.Error(err))
		}
	}()

	// ── Harvest ─────────────────────────────────────────────────────────────
	h, err := newHarvester(cfg, harvestOptions{lite: runLite}, sinks, log)
	if err != nil {
		return err
	}
	defer h.Close()

	var observers pipeline.Observers
	if runEmitGoals {
		observers = append(observers, newGoalPrinter(cmd.OutOrStdout()))
	}
	s := syncer.New(ctx, source, h, log)
	s.Recorder = recorder
	if cfg.RedisURL != "" && !runDryRun {
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		n := notify.NewRedis(rdb, log)
		observers = append(observers, n)
		s.Notifier = n
	}
	if len(observers) > 0 {
		h.pipe.Observer = observers
	}

	res, err := s.Run(ctx, syncer.TriggerCLI, nil)
	if res.Summary.RunID != "" {
		if encErr := json.NewEncoder(cmd.OutOrStdout()).Encode(res.Summary); encErr != nil {
			return encErr
		}
	}
	if files != nil {
		reportOutputs(context.WithoutCancel(ctx), files, source, log)
	}
	if mem != nil {
		log.Info("dry run finished", zap.Int("rows", len(mem.Rows())))
	}
	if err != nil && res.Status != runlog.StatusCancelled {
		return err
	}
	if err != nil {
		log.Warn("run cancelled", zap.Error(err))
	}
	return nil
}

func openPostgres(ctx context.Context, cfg *config.Config, log *zap.Logger) (*pgxpool.Pool, error) {
	version, err := db.MigratePostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("postgres schema ready", zap.Uint("version", version))
	return db.NewPostgresPool(ctx, cfg.DatabaseURL, maxDBConns)
}
