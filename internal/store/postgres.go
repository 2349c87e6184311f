package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"matchfeed/harvester/internal/model"
)

// ─── Postgres ────────────────────────────────────────────────────────────────

// Postgres is the hosted backend: one shared matches table plus the leagues
// registry read by scheduled syncs.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an open pool. Closing the store does not close the pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Ping reports whether the database answers.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Postgres) Close() error { return nil }

// ─── Matches ─────────────────────────────────────────────────────────────────

func (s *Postgres) InsertIfAbsent(ctx context.Context, m model.MatchDescriptor) (bool, error) {
	k := m.Key()
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO matches
		   (country, league, season, phase, phase_kind, matchday, match_date, home, away, detail_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT ON CONSTRAINT matches_natural_key DO NOTHING`,
		k.Country, k.League, k.Season, k.Phase, m.PhaseKind, k.Matchday,
		k.Date, k.Home, k.Away, m.DetailURL,
	)
	if err != nil {
		return false, fmt.Errorf("insert match %s: %w", k, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Postgres) UpdateGoals(ctx context.Context, m model.MatchDescriptor, g model.GoalSummary) error {
	k := m.Key()
	tag, err := s.pool.Exec(ctx,
		`UPDATE matches
		 SET g_home_1h = $1, g_away_1h = $2, g_home_2h = $3, g_away_2h = $4,
		     min_home_1h = $5, min_away_1h = $6, min_home_2h = $7, min_away_2h = $8,
		     updated_at = NOW()
		 WHERE country = $9 AND league = $10 AND season = $11 AND phase = $12
		   AND matchday = $13 AND match_date = $14 AND home = $15 AND away = $16`,
		g.HomeFirstHalf, g.AwayFirstHalf, g.HomeSecondHalf, g.AwaySecondHalf,
		g.MinutesHomeFirst, g.MinutesAwayFirst, g.MinutesHomeSecond, g.MinutesAwaySecond,
		k.Country, k.League, k.Season, k.Phase, k.Matchday, k.Date, k.Home, k.Away,
	)
	if err != nil {
		return fmt.Errorf("update goals %s: %w", k, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownMatch, k)
	}
	return nil
}

// ─── Leagues ─────────────────────────────────────────────────────────────────

// ActiveLeagues returns every league with is_active = true, oldest first.
func (s *Postgres) ActiveLeagues(ctx context.Context) ([]model.League, error) {
	return s.leagues(ctx, true)
}

// Leagues returns every registered league, oldest first.
func (s *Postgres) Leagues(ctx context.Context) ([]model.League, error) {
	return s.leagues(ctx, false)
}

func (s *Postgres) leagues(ctx context.Context, activeOnly bool) ([]model.League, error) {
	const base = `
		SELECT id::text, name, country, slug, base_url, output_name, is_active
		FROM leagues`

	query := base + ` ORDER BY created_at`
	if activeOnly {
		query = base + ` WHERE is_active = true ORDER BY created_at`
	}
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query leagues: %w", err)
	}
	defer rows.Close()

	leagues := make([]model.League, 0)
	for rows.Next() {
		var l model.League
		if err := rows.Scan(
			&l.ID, &l.Name, &l.Country, &l.Slug,
			&l.BaseURL, &l.OutputName, &l.Active,
		); err != nil {
			return nil, fmt.Errorf("scan league: %w", err)
		}
		leagues = append(leagues, l)
	}
	return leagues, rows.Err()
}

// AddLeague registers l and returns it with its generated ID. A league whose
// base URL is already registered yields ErrLeagueExists.
func (s *Postgres) AddLeague(ctx context.Context, l model.League) (model.League, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO leagues (name, country, slug, base_url, output_name, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (base_url) DO NOTHING
		 RETURNING id::text`,
		l.Name, l.Country, l.Slug, l.BaseURL, l.OutputName, l.Active,
	).Scan(&l.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.League{}, fmt.Errorf("%w: %s", ErrLeagueExists, l.BaseURL)
	}
	if err != nil {
		return model.League{}, fmt.Errorf("insert league: %w", err)
	}
	return l, nil
}
