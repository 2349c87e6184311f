package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"matchfeed/harvester/internal/db"
	"matchfeed/harvester/internal/model"
)

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// matchRow is the column mapping shared by the SQL backends.
type matchRow struct {
	Country   string `db:"country"`
	League    string `db:"league"`
	Season    string `db:"season"`
	Phase     string `db:"phase"`
	PhaseKind string `db:"phase_kind"`
	Matchday  int    `db:"matchday"`
	Date      string `db:"match_date"`
	Home      string `db:"home"`
	Away      string `db:"away"`
	DetailURL string `db:"detail_url"`

	HomeFirst  sql.NullInt64  `db:"g_home_1h"`
	AwayFirst  sql.NullInt64  `db:"g_away_1h"`
	HomeSecond sql.NullInt64  `db:"g_home_2h"`
	AwaySecond sql.NullInt64  `db:"g_away_2h"`
	MinHomeFst sql.NullString `db:"min_home_1h"`
	MinAwayFst sql.NullString `db:"min_away_1h"`
	MinHomeSnd sql.NullString `db:"min_home_2h"`
	MinAwaySnd sql.NullString `db:"min_away_2h"`
}

func rowFor(m model.MatchDescriptor) matchRow {
	k := m.Key()
	return matchRow{
		Country: k.Country, League: k.League, Season: k.Season,
		Phase: k.Phase, PhaseKind: m.PhaseKind, Matchday: k.Matchday,
		Date: k.Date, Home: k.Home, Away: k.Away, DetailURL: m.DetailURL,
	}
}

func (r *matchRow) setGoals(g model.GoalSummary) {
	r.HomeFirst = sql.NullInt64{Int64: int64(g.HomeFirstHalf), Valid: true}
	r.AwayFirst = sql.NullInt64{Int64: int64(g.AwayFirstHalf), Valid: true}
	r.HomeSecond = sql.NullInt64{Int64: int64(g.HomeSecondHalf), Valid: true}
	r.AwaySecond = sql.NullInt64{Int64: int64(g.AwaySecondHalf), Valid: true}
	r.MinHomeFst = sql.NullString{String: g.MinutesHomeFirst, Valid: true}
	r.MinAwayFst = sql.NullString{String: g.MinutesAwayFirst, Valid: true}
	r.MinHomeSnd = sql.NullString{String: g.MinutesHomeSecond, Valid: true}
	r.MinAwaySnd = sql.NullString{String: g.MinutesAwaySecond, Valid: true}
}

// goals returns nil while the row has not been through the detail stage.
func (r matchRow) goals() *model.GoalSummary {
	if !r.HomeFirst.Valid {
		return nil
	}
	return &model.GoalSummary{
		HomeFirstHalf:     int(r.HomeFirst.Int64),
		AwayFirstHalf:     int(r.AwayFirst.Int64),
		HomeSecondHalf:    int(r.HomeSecond.Int64),
		AwaySecondHalf:    int(r.AwaySecond.Int64),
		MinutesHomeFirst:  r.MinHomeFst.String,
		MinutesAwayFirst:  r.MinAwayFst.String,
		MinutesHomeSecond: r.MinHomeSnd.String,
		MinutesAwaySecond: r.MinAwaySnd.String,
	}
}

const (
	sqliteInsert = `
		INSERT OR IGNORE INTO matches
			(country, league, season, phase, phase_kind, matchday, match_date, home, away, detail_url)
		VALUES
			(:country, :league, :season, :phase, :phase_kind, :matchday, :match_date, :home, :away, :detail_url)`

	sqliteUpdate = `
		UPDATE matches SET
			g_home_1h = :g_home_1h, g_away_1h = :g_away_1h,
			g_home_2h = :g_home_2h, g_away_2h = :g_away_2h,
			min_home_1h = :min_home_1h, min_away_1h = :min_away_1h,
			min_home_2h = :min_home_2h, min_away_2h = :min_away_2h,
			updated_at = CURRENT_TIMESTAMP
		WHERE country = :country AND league = :league AND season = :season
		  AND phase = :phase AND matchday = :matchday AND match_date = :match_date
		  AND home = :home AND away = :away`

	sqliteSelect = `
		SELECT country, league, season, phase, phase_kind, matchday, match_date, home, away, detail_url,
		       g_home_1h, g_away_1h, g_home_2h, g_away_2h,
		       min_home_1h, min_away_1h, min_home_2h, min_away_2h
		FROM matches ORDER BY id`
)

// SQLite routes rows to one database file per league output name, opened
// lazily under dir.
type SQLite struct {
	dir string
	log *zap.Logger

	mu  sync.Mutex
	dbs map[string]*sqlx.DB
}

func NewSQLite(dir string, log *zap.Logger) *SQLite {
	if log == nil {
		log = zap.NewNop()
	}
	return &SQLite{dir: dir, log: log.Named("sqlite"), dbs: make(map[string]*sqlx.DB)}
}

// Path returns the database file used for an output name.
func (s *SQLite) Path(output string) string {
	name := unsafeFileChars.ReplaceAllString(output, "_")
	if name == "" {
		name = "matches"
	}
	return filepath.Join(s.dir, name+".db")
}

func (s *SQLite) conn(output string) (*sqlx.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.dbs[output]; ok {
		return c, nil
	}
	c, err := db.OpenSQLite(s.Path(output))
	if err != nil {
		return nil, err
	}
	s.dbs[output] = c
	s.log.Info("database opened", zap.String("path", s.Path(output)))
	return c, nil
}

func (s *SQLite) InsertIfAbsent(ctx context.Context, m model.MatchDescriptor) (bool, error) {
	c, err := s.conn(m.Season.Output())
	if err != nil {
		return false, err
	}
	res, err := c.NamedExecContext(ctx, sqliteInsert, rowFor(m))
	if err != nil {
		return false, fmt.Errorf("sqlite insert %s: %w", m.Key(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLite) UpdateGoals(ctx context.Context, m model.MatchDescriptor, g model.GoalSummary) error {
	c, err := s.conn(m.Season.Output())
	if err != nil {
		return err
	}
	row := rowFor(m)
	row.setGoals(g)
	res, err := c.NamedExecContext(ctx, sqliteUpdate, row)
	if err != nil {
		return fmt.Errorf("sqlite update %s: %w", m.Key(), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownMatch, m.Key())
	}
	return nil
}

// Results reads every row of one output database in insertion order.
func (s *SQLite) Results(ctx context.Context, output string) ([]model.MatchResult, error) {
	c, err := s.conn(output)
	if err != nil {
		return nil, err
	}
	var rows []matchRow
	if err := c.SelectContext(ctx, &rows, sqliteSelect); err != nil {
		return nil, fmt.Errorf("sqlite select: %w", err)
	}

	out := make([]model.MatchResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.MatchResult{
			Match: model.MatchDescriptor{
				Season: model.SeasonDescriptor{
					League: model.League{Country: r.Country, Slug: r.League, OutputName: output},
					Label:  r.Season,
				},
				Phase:     r.Phase,
				PhaseKind: r.PhaseKind,
				Matchday:  r.Matchday,
				Date:      r.Date,
				Home:      r.Home,
				Away:      r.Away,
				DetailURL: r.DetailURL,
			},
			Goals: r.goals(),
		})
	}
	return out, nil
}

func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for name, c := range s.dbs {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(s.dbs, name)
	}
	return errors.Join(errs...)
}
