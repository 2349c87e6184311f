package syncer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"matchfeed/harvester/internal/model"
	"matchfeed/harvester/internal/pipeline"
	"matchfeed/harvester/internal/runlog"
	"matchfeed/harvester/internal/syncer"
)

// ── Fakes ──────────────────────────────────────────────────────────────────

type fakeRunner struct {
	mu      sync.Mutex
	got     [][]model.League
	block   chan struct{}
	started chan struct{}
	sum     pipeline.Summary
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, leagues []model.League) (pipeline.Summary, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, leagues)
	return f.sum, f.err
}

type fakeRecorder struct {
	mu          sync.Mutex
	created     []string
	transitions []runlog.Status
	finished    []runlog.Status
}

func (f *fakeRecorder) Create(_ context.Context, id, _ string, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, id)
	return nil
}

func (f *fakeRecorder) Transition(_ context.Context, _ string, to runlog.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, to)
	return nil
}

func (f *fakeRecorder) Finish(_ context.Context, _ string, sum pipeline.Summary, err error) (runlog.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := runlog.StatusFor(sum, err)
	f.finished = append(f.finished, st)
	return st, nil
}

type fakeNotifier struct{ statuses []string }

func (f *fakeNotifier) RunFinished(_ context.Context, _ string, status string, _ any) {
	f.statuses = append(f.statuses, status)
}

var leagues = syncer.StaticLeagues{
	{Name: "LaLiga", Slug: "laliga", Country: "spain", BaseURL: "https://www.flashscore.co/football/spain/laliga/"},
	{Name: "Premier League", Slug: "premier-league", Country: "england", BaseURL: "https://www.flashscore.co/football/england/premier-league/"},
}

// ── Run ────────────────────────────────────────────────────────────────────

func TestRun_AllActiveLeagues(t *testing.T) {
	runner := &fakeRunner{}
	rec := &fakeRecorder{}
	note := &fakeNotifier{}
	s := syncer.New(context.Background(), leagues, runner, zap.NewNop())
	s.Recorder = rec
	s.Notifier = note

	res, err := s.Run(context.Background(), syncer.TriggerCLI, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, runlog.StatusCompleted, res.Status)
	require.Len(t, runner.got, 1)
	assert.Len(t, runner.got[0], 2)
	assert.Equal(t, []string{res.RunID}, rec.created)
	assert.Equal(t, []runlog.Status{runlog.StatusRunning}, rec.transitions)
	assert.Equal(t, []runlog.Status{runlog.StatusCompleted}, rec.finished)
	assert.Equal(t, []string{"COMPLETED"}, note.statuses)

	_, running := s.Running()
	assert.False(t, running)
}

func TestRun_FiltersByName(t *testing.T) {
	runner := &fakeRunner{}
	s := syncer.New(context.Background(), leagues, runner, zap.NewNop())

	_, err := s.Run(context.Background(), syncer.TriggerAPI, []string{"Premier-League"})
	require.NoError(t, err)
	require.Len(t, runner.got, 1)
	require.Len(t, runner.got[0], 1)
	assert.Equal(t, "premier-league", runner.got[0][0].Slug)

	_, err = s.Run(context.Background(), syncer.TriggerAPI, []string{"https://www.flashscore.co/football/spain/laliga"})
	require.NoError(t, err)
	assert.Equal(t, "laliga", runner.got[1][0].Slug)
}

func TestRun_UnknownLeague(t *testing.T) {
	runner := &fakeRunner{}
	s := syncer.New(context.Background(), leagues, runner, zap.NewNop())

	_, err := s.Run(context.Background(), syncer.TriggerAPI, []string{"serie-a"})
	assert.ErrorIs(t, err, syncer.ErrNoLeagues)
	assert.Empty(t, runner.got)
}

func TestRun_NoActiveLeagues(t *testing.T) {
	s := syncer.New(context.Background(), syncer.StaticLeagues{}, &fakeRunner{}, zap.NewNop())
	_, err := s.Run(context.Background(), syncer.TriggerSchedule, nil)
	assert.ErrorIs(t, err, syncer.ErrNoLeagues)
}

func TestRun_FailureIsRecorded(t *testing.T) {
	boom := errors.New("pool: closed")
	runner := &fakeRunner{err: boom}
	rec := &fakeRecorder{}
	s := syncer.New(context.Background(), leagues, runner, zap.NewNop())
	s.Recorder = rec

	res, err := s.Run(context.Background(), syncer.TriggerCLI, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, runlog.StatusFailed, res.Status)
	assert.Equal(t, []runlog.Status{runlog.StatusFailed}, rec.finished)
}

func TestRun_StoppedRunIsCancelled(t *testing.T) {
	runner := &fakeRunner{sum: pipeline.Summary{Stopped: true}}
	s := syncer.New(context.Background(), leagues, runner, zap.NewNop())

	res, err := s.Run(context.Background(), syncer.TriggerCLI, nil)
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusCancelled, res.Status)
}

// ── Trigger ────────────────────────────────────────────────────────────────

func TestTrigger_RejectsOverlap(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	s := syncer.New(context.Background(), leagues, runner, zap.NewNop())

	id, err := s.Trigger(syncer.TriggerAPI, nil)
	require.NoError(t, err)
	<-runner.started

	running, ok := s.Running()
	require.True(t, ok)
	assert.Equal(t, id, running)

	again, err := s.Trigger(syncer.TriggerAPI, nil)
	assert.ErrorIs(t, err, syncer.ErrRunInProgress)
	assert.Equal(t, id, again)

	_, err = s.Run(context.Background(), syncer.TriggerSchedule, nil)
	assert.ErrorIs(t, err, syncer.ErrRunInProgress)

	close(runner.block)
	s.Wait()

	assert.Eventually(t, func() bool {
		_, ok := s.Running()
		return !ok
	}, time.Second, 10*time.Millisecond)
	_, err = s.Run(context.Background(), syncer.TriggerSchedule, nil)
	assert.NoError(t, err)
}
