package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"matchfeed/harvester/internal/pipeline"
)

// ─── Sentinel errors ─────────────────────────────────────────────────────────

// ErrNotFound is returned when no run has the requested id.
var ErrNotFound = errors.New("run not found")

// TransitionError is returned when the state machine rejects a move.
type TransitionError struct{ From, To Status }

func (e *TransitionError) Error() string {
	return fmt.Sprintf("run transition %s → %s is not allowed", e.From, e.To)
}

// ─── Service ─────────────────────────────────────────────────────────────────

// Run is one row of sync_runs.
type Run struct {
	ID         string            `json:"id"`
	Status     Status            `json:"status"`
	Trigger    string            `json:"trigger"`
	Leagues    []string          `json:"leagues"`
	Summary    *pipeline.Summary `json:"summary,omitempty"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
}

// Service persists runs and enforces the status graph.
type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Create inserts a PENDING run.
func (s *Service) Create(ctx context.Context, id, trigger string, leagues []string) error {
	if leagues == nil {
		leagues = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_runs (id, status, trigger, leagues) VALUES ($1, $2, $3, $4)`,
		id, string(StatusPending), trigger, leagues,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// Transition moves a run to a non-terminal status.
func (s *Service) Transition(ctx context.Context, id string, to Status) error {
	return s.move(ctx, id, to, nil, "")
}

// Finish moves a run to the terminal status matching its result and stores
// the summary.
func (s *Service) Finish(ctx context.Context, id string, sum pipeline.Summary, runErr error) (Status, error) {
	status := StatusFor(sum, runErr)
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	return status, s.move(ctx, id, status, &sum, msg)
}

func (s *Service) move(ctx context.Context, id string, to Status, sum *pipeline.Summary, errMsg string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM sync_runs WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}

	from, _ := ParseStatus(current)
	if !IsTransitionAllowed(from, to) {
		return &TransitionError{From: from, To: to}
	}

	var summary []byte
	if sum != nil {
		if summary, err = json.Marshal(sum); err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE sync_runs
		 SET status      = $1,
		     summary     = COALESCE($2::jsonb, summary),
		     error       = NULLIF($3, ''),
		     finished_at = CASE WHEN $4 THEN NOW() ELSE finished_at END
		 WHERE id = $5`,
		string(to), summary, errMsg, IsTerminal(to), id,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return tx.Commit(ctx)
}

// Latest returns the most recently started run.
func (s *Service) Latest(ctx context.Context) (*Run, error) {
	var (
		r       Run
		status  string
		summary []byte
		errMsg  *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, status, trigger, leagues, summary, error, started_at, finished_at
		 FROM sync_runs
		 ORDER BY started_at DESC
		 LIMIT 1`,
	).Scan(&r.ID, &status, &r.Trigger, &r.Leagues, &summary, &errMsg, &r.StartedAt, &r.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}

	r.Status, _ = ParseStatus(status)
	if errMsg != nil {
		r.Error = *errMsg
	}
	if len(summary) > 0 {
		var sum pipeline.Summary
		if err := json.Unmarshal(summary, &sum); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
		r.Summary = &sum
	}
	return &r, nil
}
