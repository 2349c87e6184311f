// Package config loads and validates the harvester configuration at startup.
// Fail-fast: a malformed value or a missing credential for the selected
// mode is reported before any browser or connection is started.
//
// Sources, lowest priority first: built-in defaults, config/harvester.yaml
// (optional), a .env file (optional), then the process environment.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Mode is the command the configuration is validated for.
type Mode string

const (
	ModeRun     Mode = "run"
	ModeServe   Mode = "serve"
	ModeMigrate Mode = "migrate"
)

// Config holds all runtime configuration of the harvester.
type Config struct {
	DatabaseURL string
	RedisURL    string
	HTTPPort    string
	GRPCPort    string
	SQLiteDir   string
	SiteBaseURL string

	Headless   bool
	ChromePath string
	UserAgent  string

	MaxPages          int
	PageMaxAge        time.Duration
	PoolSweepInterval time.Duration

	MatchWorkers      int
	GoalWorkers       int
	QueueSize         int
	HistoricalSeasons int
	PageTimeout       time.Duration
	DetailTimeout     time.Duration
	DetailRetries     int
	ShowMoreMaxClicks int
	DrainTimeout      time.Duration

	SyncCron string
	LogLevel string
	LogFile  string
}

var defaults = map[string]any{
	"http_port":            "8083",
	"grpc_port":            "9093",
	"sqlite_dir":           "data",
	"site_base_url":        "https://www.flashscore.co",
	"headless":             "true",
	"max_pages":            "5",
	"page_max_age":         "5m",
	"pool_sweep_interval":  "30s",
	"match_workers":        "1",
	"goal_workers":         "4",
	"queue_size":           "200",
	"historical_seasons":   "4",
	"page_timeout":         "60s",
	"detail_timeout":       "5s",
	"detail_retries":       "2",
	"show_more_max_clicks": "50",
	"drain_timeout":        "30s",
	"sync_cron":            "@every 6h",
	"log_level":            "info",
}

// ValidationError names the offending key.
type ValidationError struct {
	Key string
	Msg string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", strings.ToUpper(e.Key), e.Msg)
}

// Load reads the configuration sources and returns a parsed Config. It does
// not check mode-specific requirements; see Validate.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env is optional

	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	v.SetConfigName("harvester")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	p := parser{v: v}
	cfg := &Config{
		DatabaseURL: strings.TrimSpace(v.GetString("database_url")),
		RedisURL:    strings.TrimSpace(v.GetString("redis_url")),
		HTTPPort:    v.GetString("http_port"),
		GRPCPort:    v.GetString("grpc_port"),
		SQLiteDir:   v.GetString("sqlite_dir"),
		SiteBaseURL: strings.TrimRight(v.GetString("site_base_url"), "/"),

		Headless:   p.boolean("headless"),
		ChromePath: v.GetString("chrome_path"),
		UserAgent:  v.GetString("user_agent"),

		MaxPages:          p.positive("max_pages"),
		PageMaxAge:        p.duration("page_max_age"),
		PoolSweepInterval: p.duration("pool_sweep_interval"),

		MatchWorkers:      p.positive("match_workers"),
		GoalWorkers:       p.positive("goal_workers"),
		QueueSize:         p.positive("queue_size"),
		HistoricalSeasons: p.nonNegative("historical_seasons"),
		PageTimeout:       p.duration("page_timeout"),
		DetailTimeout:     p.duration("detail_timeout"),
		DetailRetries:     p.nonNegative("detail_retries"),
		ShowMoreMaxClicks: p.nonNegative("show_more_max_clicks"),
		DrainTimeout:      p.duration("drain_timeout"),

		SyncCron: v.GetString("sync_cron"),
		LogLevel: strings.ToLower(v.GetString("log_level")),
		LogFile:  v.GetString("log_file"),
	}
	if p.err != nil {
		return nil, p.err
	}
	return cfg, nil
}

// Validate checks the settings mode depends on.
func (c *Config) Validate(mode Mode) error {
	switch mode {
	case ModeServe, ModeMigrate:
		if c.DatabaseURL == "" {
			return &ValidationError{Key: "database_url", Msg: "is required"}
		}
	case ModeRun:
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
	if mode == ModeServe {
		if c.SyncCron == "" {
			return &ValidationError{Key: "sync_cron", Msg: "is required"}
		}
		if c.HTTPPort == "" {
			return &ValidationError{Key: "http_port", Msg: "is required"}
		}
	}
	if mode == ModeMigrate {
		return nil
	}
	if !strings.HasPrefix(c.SiteBaseURL, "http://") && !strings.HasPrefix(c.SiteBaseURL, "https://") {
		return &ValidationError{Key: "site_base_url", Msg: fmt.Sprintf("must be an http(s) URL, got %q", c.SiteBaseURL)}
	}
	return nil
}

// parser converts raw values and keeps the first error.
type parser struct {
	v   *viper.Viper
	err error
}

func (p *parser) fail(key, format string, args ...any) {
	if p.err == nil {
		p.err = &ValidationError{Key: key, Msg: fmt.Sprintf(format, args...)}
	}
}

func (p *parser) integer(key string) (int, bool) {
	s := strings.TrimSpace(p.v.GetString(key))
	n, err := strconv.Atoi(s)
	if err != nil {
		p.fail(key, "must be an integer, got %q", s)
		return 0, false
	}
	return n, true
}

func (p *parser) positive(key string) int {
	n, ok := p.integer(key)
	if ok && n < 1 {
		p.fail(key, "must be a positive integer, got %d", n)
	}
	return n
}

func (p *parser) nonNegative(key string) int {
	n, ok := p.integer(key)
	if ok && n < 0 {
		p.fail(key, "must not be negative, got %d", n)
	}
	return n
}

func (p *parser) duration(key string) time.Duration {
	s := strings.TrimSpace(p.v.GetString(key))
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		p.fail(key, "must be a positive duration like 30s, got %q", s)
	}
	return d
}

func (p *parser) boolean(key string) bool {
	s := strings.TrimSpace(p.v.GetString(key))
	b, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(key, "must be a boolean, got %q", s)
	}
	return b
}
