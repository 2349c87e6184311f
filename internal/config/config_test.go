package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchfeed/harvester/internal/config"
)

// ── Load ───────────────────────────────────────────────────────────────────

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8083", cfg.HTTPPort)
	assert.Equal(t, "9093", cfg.GRPCPort)
	assert.Equal(t, "data", cfg.SQLiteDir)
	assert.Equal(t, "https://www.flashscore.co", cfg.SiteBaseURL)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 5, cfg.MaxPages)
	assert.Equal(t, 5*time.Minute, cfg.PageMaxAge)
	assert.Equal(t, 30*time.Second, cfg.PoolSweepInterval)
	assert.Equal(t, 1, cfg.MatchWorkers)
	assert.Equal(t, 4, cfg.GoalWorkers)
	assert.Equal(t, 200, cfg.QueueSize)
	assert.Equal(t, 4, cfg.HistoricalSeasons)
	assert.Equal(t, 60*time.Second, cfg.PageTimeout)
	assert.Equal(t, 5*time.Second, cfg.DetailTimeout)
	assert.Equal(t, 2, cfg.DetailRetries)
	assert.Equal(t, 50, cfg.ShowMoreMaxClicks)
	assert.Equal(t, 30*time.Second, cfg.DrainTimeout)
	assert.Equal(t, "@every 6h", cfg.SyncCron)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/harvester")
	t.Setenv("GOAL_WORKERS", "8")
	t.Setenv("DETAIL_TIMEOUT", "7s")
	t.Setenv("HEADLESS", "false")
	t.Setenv("SITE_BASE_URL", "https://www.flashscore.com/")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/harvester", cfg.DatabaseURL)
	assert.Equal(t, 8, cfg.GoalWorkers)
	assert.Equal(t, 7*time.Second, cfg.DetailTimeout)
	assert.False(t, cfg.Headless)
	assert.Equal(t, "https://www.flashscore.com", cfg.SiteBaseURL)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_RejectsMalformedValues(t *testing.T) {
	cases := []struct {
		key, value string
	}{
		{"MAX_PAGES", "0"},
		{"MAX_PAGES", "five"},
		{"GOAL_WORKERS", "-1"},
		{"DETAIL_RETRIES", "-2"},
		{"PAGE_MAX_AGE", "5"},
		{"DRAIN_TIMEOUT", "0s"},
		{"HEADLESS", "maybe"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := config.Load()
			require.Error(t, err)

			var ve *config.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Contains(t, err.Error(), tc.key)
		})
	}
}

func TestLoad_ZeroRetriesAllowed(t *testing.T) {
	t.Setenv("DETAIL_RETRIES", "0")
	t.Setenv("HISTORICAL_SEASONS", "0")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.DetailRetries)
	assert.Zero(t, cfg.HistoricalSeasons)
}

// ── Validate ───────────────────────────────────────────────────────────────

func TestValidate_RunNeedsNoDatabase(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate(config.ModeRun))
}

func TestValidate_ServeAndMigrateNeedDatabase(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.DatabaseURL = ""

	for _, mode := range []config.Mode{config.ModeServe, config.ModeMigrate} {
		err := cfg.Validate(mode)
		var ve *config.ValidationError
		require.True(t, errors.As(err, &ve), "mode %s", mode)
		assert.Equal(t, "database_url", ve.Key)
	}

	cfg.DatabaseURL = "postgres://localhost/harvester"
	assert.NoError(t, cfg.Validate(config.ModeServe))
	assert.NoError(t, cfg.Validate(config.ModeMigrate))
}

func TestValidate_RejectsBadSiteURL(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.SiteBaseURL = "flashscore.co"
	assert.Error(t, cfg.Validate(config.ModeRun))
}

func TestValidate_UnknownMode(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Error(t, cfg.Validate("deploy"))
}
