package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OCAP2/battlesim/internal/scenario"
	"github.com/OCAP2/battlesim/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_RunsToCompletion(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Start(scenarioA()))

	// 1ms of wall time per simulated second
	r := NewRunner(e, time.Millisecond, 1000)
	require.NoError(t, r.Run(context.Background()))

	st := e.GetState()
	assert.Equal(t, core.StatusComplete, st.Status)
	assert.Equal(t, core.WinnerBlue, st.Winner)

	// commands after Run returned are no-ops
	r.Pause()
	r.Stop()
	<-r.Done()
}

func TestRunner_NoEventAfterStop(t *testing.T) {
	sc, ok := scenario.Builtin("standard")
	require.True(t, ok)

	var (
		events    atomic.Int64
		callbacks atomic.Int64
		firstHit  = make(chan struct{})
		once      sync.Once
	)
	e := newTestEngine(t, WithCallbacks(Callbacks{
		OnAttackLaunched: func(core.Attack) {
			callbacks.Add(1)
			once.Do(func() { close(firstHit) })
		},
		OnScoreUpdate: func(core.BattleScore) { callbacks.Add(1) },
	}))
	e.Subscribe(func(core.BattleEvent) { events.Add(1) })
	require.NoError(t, e.Start(sc))

	r := NewRunner(e, time.Millisecond, 100)
	errc := make(chan error, 1)
	go func() { errc <- r.Run(context.Background()) }()

	<-firstHit
	r.Stop()
	seenEvents, seenCallbacks := events.Load(), callbacks.Load()

	// cross an async boundary and make sure nothing else arrived
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, seenEvents, events.Load())
	assert.Equal(t, seenCallbacks, callbacks.Load())
	assert.ErrorIs(t, <-errc, ErrRunnerStopped)
	assert.Equal(t, core.StatusIdle, e.GetState().Status)
}

func TestRunner_PauseResume(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Start(scenarioA()))

	r := NewRunner(e, time.Millisecond, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	r.Pause()
	frozen := e.GetState()
	assert.True(t, frozen.Paused)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, frozen.Elapsed, e.GetState().Elapsed)

	r.Resume()
	assert.True(t, e.GetState().Running || e.GetState().Status == core.StatusComplete)

	cancel()
	err := <-errc
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
