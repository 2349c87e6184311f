package store

import (
	"context"
	"sync"

	"matchfeed/harvester/internal/model"
)

// Memory keeps rows in process. It backs dry runs and tests.
type Memory struct {
	mu   sync.Mutex
	rows map[model.MatchKey]*model.MatchResult
	keys []model.MatchKey // insertion order
}

func NewMemory() *Memory {
	return &Memory{rows: make(map[model.MatchKey]*model.MatchResult)}
}

func (s *Memory) InsertIfAbsent(_ context.Context, m model.MatchDescriptor) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := m.Key()
	if _, ok := s.rows[k]; ok {
		return false, nil
	}
	s.rows[k] = &model.MatchResult{Match: m}
	s.keys = append(s.keys, k)
	return true, nil
}

func (s *Memory) UpdateGoals(_ context.Context, m model.MatchDescriptor, g model.GoalSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[m.Key()]
	if !ok {
		return ErrUnknownMatch
	}
	summary := g
	row.Goals = &summary
	return nil
}

// Rows returns a copy of every row in insertion order.
func (s *Memory) Rows() []model.MatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.MatchResult, 0, len(s.keys))
	for _, k := range s.keys {
		r := *s.rows[k]
		if r.Goals != nil {
			g := *r.Goals
			r.Goals = &g
		}
		out = append(out, r)
	}
	return out
}

func (s *Memory) Close() error { return nil }
