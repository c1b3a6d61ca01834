package engine

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/OCAP2/battlesim/internal/scenario"
	"github.com/OCAP2/battlesim/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithClock(ClockFunc(func() time.Time { return epoch })),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithStrictInvariants(true),
	}
	e, err := New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

// scenarioA is one 10s reconnaissance phase with brute force every 5s
// against an always-on firewall.
func scenarioA() core.BattleScenario {
	return core.BattleScenario{
		Name: "scenario-a",
		Phases: []core.PhaseConfig{{
			Name:            core.PhaseReconnaissance,
			Duration:        10 * time.Second,
			EnabledAttacks:  []core.AttackKind{core.AttackBruteForce},
			EnabledDefenses: []core.DefenseKind{core.DefenseFirewall},
		}},
		Duration: 10 * time.Second,
		AutoAttack: core.AutoAttackPolicy{
			Enabled:  true,
			Interval: 5 * time.Second,
			Kinds:    []core.AttackKind{core.AttackBruteForce},
		},
	}
}

func scenarioB() core.BattleScenario {
	sc := scenarioA()
	sc.Name = "scenario-b"
	sc.Phases[0].EnabledDefenses = nil
	return sc
}

// mixed runs two phases with several kinds so a run exercises blocks,
// breaches, reactive defenses and phase changes.
func mixed() core.BattleScenario {
	return core.BattleScenario{
		Name: "mixed",
		Seed: 11,
		Phases: []core.PhaseConfig{
			{
				Name:            core.PhaseReconnaissance,
				Duration:        4 * time.Second,
				EnabledAttacks:  []core.AttackKind{core.AttackPortScan, core.AttackXSS, core.AttackBruteForce},
				EnabledDefenses: []core.DefenseKind{core.DefenseHoneypot},
			},
			{
				Name:             core.PhaseExploitation,
				Duration:         6 * time.Second,
				EnabledAttacks:   []core.AttackKind{core.AttackXSS, core.AttackSQLInjection, core.AttackDataExfiltration},
				EnabledDefenses:  []core.DefenseKind{core.DefenseWAF},
				ReactiveDefenses: []core.DefenseKind{core.DefenseDLP},
				Intensity:        core.IntensityCritical,
			},
		},
		AutoAttack: core.AutoAttackPolicy{
			Enabled:  true,
			Interval: time.Second,
			Kinds:    core.AllAttackKinds(),
		},
		Scoring: core.ScoringRules{
			ZeroBreachBonus:      50,
			FastResponseBonus:    3,
			FastResponseWindow:   2 * time.Second,
			BaselineSuccessBonus: 5,
		},
	}
}

func countKinds(events []core.BattleEvent) map[core.EventKind]int {
	out := make(map[core.EventKind]int)
	for _, e := range events {
		out[e.Kind]++
	}
	return out
}

func runToEnd(t *testing.T, e *Engine, step time.Duration) {
	t.Helper()
	for i := 0; i < 10000 && e.GetState().Status == core.StatusRunning; i++ {
		require.NoError(t, e.Tick(step))
	}
	require.Equal(t, core.StatusComplete, e.GetState().Status)
}

func TestScenarioA_DefendedBruteForce(t *testing.T) {
	var (
		winner    core.Winner
		completes int
	)
	e := newTestEngine(t, WithCallbacks(Callbacks{
		OnBattleComplete: func(w core.Winner, _ core.BattleScore) {
			winner = w
			completes++
		},
	}))
	require.NoError(t, e.Start(scenarioA()))

	for i := 0; i < 10; i++ {
		require.NoError(t, e.Tick(time.Second))
	}

	st := e.GetState()
	kinds := countKinds(st.Events)
	assert.Equal(t, 2, kinds[core.EventAttackLaunched])
	assert.Equal(t, 2, kinds[core.EventAttackBlocked])
	assert.Zero(t, kinds[core.EventAttackSuccess])
	assert.Equal(t, int64(2*25), st.Score.Blue.Points)
	assert.Equal(t, int64(2*10), st.Score.Red.Points)
	assert.Equal(t, 2, st.Score.Blue.Bans)
	assert.Equal(t, core.WinnerBlue, st.Winner)
	assert.Equal(t, core.WinnerBlue, winner)
	assert.Equal(t, 1, completes)
	assert.Empty(t, st.Compromised)
	assert.Equal(t, core.PhaseComplete, st.Phase)

	// ticking a finished battle changes nothing
	require.NoError(t, e.Tick(time.Second))
	assert.Equal(t, 1, completes)
	assert.Len(t, e.Events(), len(st.Events))
}

func TestScenarioB_UndefendedAlwaysSucceeds(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Start(scenarioB()))

	for i := 0; i < 10; i++ {
		require.NoError(t, e.Tick(time.Second))
	}

	st := e.GetState()
	kinds := countKinds(st.Events)
	assert.Equal(t, 2, kinds[core.EventAttackSuccess])
	assert.Equal(t, 1, kinds[core.EventBreach], "breach fires on first compromise only")
	assert.NotEmpty(t, st.Compromised)
	assert.True(t, st.IsCompromised(core.SubsystemAuth))
	assert.Equal(t, int64(2*10+2*25), st.Score.Red.Points)
	assert.Equal(t, core.WinnerRed, st.Winner)
}

func TestScenarioA_EventTimeline(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Start(scenarioA()))
	runToEnd(t, e, time.Second)

	type entry struct {
		kind    core.EventKind
		elapsed time.Duration
	}
	var got []entry
	for _, ev := range e.Events() {
		got = append(got, entry{ev.Kind, ev.Elapsed})
	}
	assert.Equal(t, []entry{
		{core.EventDefenseActivated, 0},
		{core.EventAttackLaunched, time.Second},
		{core.EventAttackBlocked, 4 * time.Second},
		{core.EventCriticalMoment, 4 * time.Second},
		{core.EventAttackLaunched, 5 * time.Second},
		{core.EventAttackBlocked, 8 * time.Second},
		{core.EventPhaseChange, 10 * time.Second},
		{core.EventBattleComplete, 10 * time.Second},
	}, got)

	events := e.Events()
	for i, ev := range events {
		assert.Equal(t, uint64(i+1), ev.ID)
		assert.Equal(t, epoch.Add(ev.Elapsed), ev.Timestamp)
	}
	assert.Equal(t, "blue", events[len(events)-1].Metadata["winner"])
}

func TestEndBonuses_AreEvents(t *testing.T) {
	sc := scenarioA()
	sc.Scoring = core.ScoringRules{
		ZeroBreachBonus:    100,
		FastResponseBonus:  5,
		FastResponseWindow: 3 * time.Second,
	}
	e := newTestEngine(t)
	require.NoError(t, e.Start(sc))
	runToEnd(t, e, time.Second)

	st := e.GetState()
	assert.Equal(t, 3, countKinds(st.Events)[core.EventBonusAwarded])
	assert.Equal(t, int64(50+100+2*5), st.Score.Blue.Points)

	var red, blue int64
	for _, ev := range st.Events {
		switch ev.Team {
		case core.TeamRed:
			red += ev.Points
		case core.TeamBlue:
			blue += ev.Points
		}
	}
	assert.Equal(t, st.Score.Red.Points, red)
	assert.Equal(t, st.Score.Blue.Points, blue)
}

func TestMultipliersScalePoints(t *testing.T) {
	sc := scenarioB()
	sc.Multipliers = core.Multipliers{Red: 2, Blue: 1}
	sc.Scoring.BaselineSuccessBonus = 5
	e := newTestEngine(t)
	require.NoError(t, e.Start(sc))
	runToEnd(t, e, time.Second)

	// (10 launch + 25 bonus + 5 baseline) x 2, twice
	assert.Equal(t, int64(2*2*(10+25+5)), e.GetState().Score.Red.Points)
}

func TestPause_IsTimingAndContentNeutral(t *testing.T) {
	unpaused := newTestEngine(t)
	require.NoError(t, unpaused.Start(mixed()))
	for i := 0; i < 10; i++ {
		require.NoError(t, unpaused.Tick(time.Second))
	}

	paused := newTestEngine(t)
	require.NoError(t, paused.Start(mixed()))
	for i := 0; i < 13; i++ {
		switch i {
		case 3:
			paused.Pause()
			paused.Pause()
		case 6:
			paused.Resume()
			paused.Resume()
		}
		require.NoError(t, paused.Tick(time.Second))
		if i >= 3 && i < 6 {
			st := paused.GetState()
			assert.True(t, st.Paused)
			assert.Equal(t, 3*time.Second, st.Elapsed, "paused ticks advance nothing")
		}
	}

	want := unpaused.Events()
	require.NotEmpty(t, want)
	assert.Equal(t, want, paused.Events())
	assert.Equal(t, unpaused.GetState().Score, paused.GetState().Score)
	assert.Equal(t, core.StatusComplete, paused.GetState().Status)
}

func TestDeterministicWithSeed(t *testing.T) {
	run := func() []core.BattleEvent {
		e := newTestEngine(t, WithSeed(5))
		require.NoError(t, e.Start(mixed()))
		runToEnd(t, e, 500*time.Millisecond)
		return e.Events()
	}
	assert.Equal(t, run(), run())
}

func TestTick_LargeDeltaStopsAtBattleEnd(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Start(mixed()))
	require.NoError(t, e.Tick(time.Hour))

	st := e.GetState()
	assert.Equal(t, core.StatusComplete, st.Status)
	assert.Equal(t, 10*time.Second, st.Elapsed)
	assert.Equal(t, 2, countKinds(st.Events)[core.EventPhaseChange], "each boundary is crossed once")
	assert.Empty(t, st.ActiveAttacks)
}

func TestInvariants_HoldAtEveryObservation(t *testing.T) {
	for _, name := range scenario.Names() {
		t.Run(name, func(t *testing.T) {
			sc, ok := scenario.Builtin(name)
			require.True(t, ok)

			var last core.BattleScore
			e := newTestEngine(t, WithCallbacks(Callbacks{
				OnScoreUpdate: func(s core.BattleScore) {
					assert.GreaterOrEqual(t, s.Red.Points, last.Red.Points)
					assert.GreaterOrEqual(t, s.Blue.Points, last.Blue.Points)
					last = s
				},
			}))
			require.NoError(t, e.Start(sc))

			durations := make(map[core.Phase]time.Duration)
			for _, p := range sc.Phases {
				durations[p.Name] = p.Duration
			}

			var prev core.BattleState
			seen := []core.Phase{core.PhaseReconnaissance}
			for i := 0; i < 1000; i++ {
				require.NoError(t, e.Tick(700*time.Millisecond))
				st := e.GetState()

				assert.GreaterOrEqual(t, st.Score.Red.Points, prev.Score.Red.Points)
				assert.GreaterOrEqual(t, st.Score.Blue.Points, prev.Score.Blue.Points)

				diff := st.Score.Blue.Points - st.Score.Red.Points
				switch {
				case diff > 0:
					assert.Equal(t, core.SideBlue, st.Score.Advantage)
				case diff < 0:
					assert.Equal(t, core.SideRed, st.Score.Advantage)
				default:
					assert.Equal(t, core.SideNeutral, st.Score.Advantage)
				}
				assert.Equal(t, max(diff, -diff), st.Score.AdvantagePoints)

				assert.GreaterOrEqual(t, st.PhaseTimeRemaining, time.Duration(0))
				if d, ok := durations[st.Phase]; ok {
					assert.LessOrEqual(t, st.PhaseTimeRemaining, d)
				}
				if st.Phase != seen[len(seen)-1] {
					seen = append(seen, st.Phase)
				}

				prev = st
				if st.Status == core.StatusComplete {
					break
				}
			}
			require.Equal(t, core.StatusComplete, prev.Status)

			want := append([]core.Phase{}, core.PhaseOrder[:len(sc.Phases)]...)
			want = append(want, core.PhaseComplete)
			assert.Equal(t, want, seen)

			// every attack terminal, archived once, nothing left in flight
			assert.Empty(t, prev.ActiveAttacks)
			ids := make(map[string]int)
			for _, a := range prev.AttackHistory {
				ids[a.ID]++
				assert.True(t, a.Status.Terminal(), a.ID)
			}
			for id, n := range ids {
				assert.Equal(t, 1, n, id)
			}
			assert.Len(t, ids, countKinds(prev.Events)[core.EventAttackLaunched])

			for i := 1; i < len(prev.Events); i++ {
				assert.False(t, prev.Events[i].Timestamp.Before(prev.Events[i-1].Timestamp))
			}
		})
	}
}

func TestStart_RejectsInvalidScenario(t *testing.T) {
	e := newTestEngine(t)
	sc := scenarioA()
	sc.Phases[0].Duration = 0
	sc.Phases[0].EnabledAttacks = append(sc.Phases[0].EnabledAttacks, core.AttackKind(200))

	err := e.Start(sc)
	var cfgErr *scenario.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Len(t, cfgErr.Problems, 3)
	assert.Equal(t, core.StatusIdle, e.GetState().Status)
	assert.Empty(t, e.Events())
}

func TestStart_OnlyFromIdle(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Start(scenarioA()))
	assert.ErrorIs(t, e.Start(scenarioA()), ErrNotIdle)

	runToEnd(t, e, time.Second)
	assert.ErrorIs(t, e.Start(scenarioA()), ErrNotIdle)

	// stop resets for a replay
	e.Stop()
	assert.Equal(t, core.StatusIdle, e.GetState().Status)
	require.NoError(t, e.Start(scenarioA()))
	runToEnd(t, e, time.Second)
	assert.Equal(t, core.WinnerBlue, e.GetState().Winner)
}

func TestStop_FromCallbackSilencesRest(t *testing.T) {
	var (
		e         *Engine
		delivered int
		atStop    int
	)
	e = newTestEngine(t, WithCallbacks(Callbacks{
		OnAttackLaunched: func(core.Attack) {
			atStop = delivered
			e.Stop()
		},
		OnAttackBlocked: func(core.Attack, core.Defense) {
			t.Error("callback fired after stop")
		},
	}))
	e.Subscribe(func(core.BattleEvent) { delivered++ })
	require.NoError(t, e.Start(scenarioA()))

	for i := 0; i < 10; i++ {
		require.NoError(t, e.Tick(time.Second))
	}

	assert.Positive(t, atStop)
	assert.Equal(t, atStop, delivered)
	st := e.GetState()
	assert.Equal(t, core.StatusIdle, st.Status)
	assert.Empty(t, st.Events)
	assert.Empty(t, st.AttackHistory)
}

func TestTick_ReentrantIsViolation(t *testing.T) {
	var (
		e     *Engine
		inner error
	)
	e = newTestEngine(t, WithStrictInvariants(false), WithCallbacks(Callbacks{
		OnAttackLaunched: func(core.Attack) {
			inner = e.Tick(time.Second)
		},
	}))
	require.NoError(t, e.Start(scenarioA()))
	require.NoError(t, e.Tick(time.Second))

	require.Error(t, inner)
	assert.ErrorIs(t, inner, ErrInvariant)
	var v *InvariantViolation
	require.ErrorAs(t, inner, &v)
	assert.Equal(t, "tick", v.Op)

	// the outer tick was not corrupted
	assert.Equal(t, time.Second, e.GetState().Elapsed)
}

func TestTick_ReentrantPanicsWhenStrict(t *testing.T) {
	var e *Engine
	e = newTestEngine(t, WithCallbacks(Callbacks{
		OnAttackLaunched: func(core.Attack) {
			_ = e.Tick(time.Second)
		},
	}))
	require.NoError(t, e.Start(scenarioA()))

	assert.PanicsWithError(t, (&InvariantViolation{Op: "tick", Reason: "re-entrant tick"}).Error(), func() {
		_ = e.Tick(time.Second)
	})
}

func TestCallbackPanicDoesNotHaltBattle(t *testing.T) {
	var completed bool
	e := newTestEngine(t, WithCallbacks(Callbacks{
		OnAttackLaunched: func(core.Attack) { panic("renderer bug") },
		OnBattleComplete: func(core.Winner, core.BattleScore) { completed = true },
	}))
	e.Subscribe(func(core.BattleEvent) { panic("subscriber bug") })
	require.NoError(t, e.Start(scenarioA()))

	assert.NotPanics(t, func() { runToEnd(t, e, time.Second) })
	assert.True(t, completed)
}

func TestCallbacks_ReceiveEntities(t *testing.T) {
	var (
		launched  []core.Attack
		blocked   []string
		activated []core.DefenseKind
		phases    [][2]core.Phase
		critical  []core.BattleEvent
		updates   int
	)
	e := newTestEngine(t, WithCallbacks(Callbacks{
		OnAttackLaunched:   func(a core.Attack) { launched = append(launched, a) },
		OnAttackBlocked:    func(a core.Attack, d core.Defense) { blocked = append(blocked, a.ID+"/"+d.ID) },
		OnDefenseActivated: func(d core.Defense) { activated = append(activated, d.Kind) },
		OnPhaseChange:      func(from, to core.Phase) { phases = append(phases, [2]core.Phase{from, to}) },
		OnCriticalMoment:   func(ev core.BattleEvent) { critical = append(critical, ev) },
		OnScoreUpdate:      func(core.BattleScore) { updates++ },
	}))
	require.NoError(t, e.Start(scenarioA()))
	runToEnd(t, e, time.Second)

	require.Len(t, launched, 2)
	assert.Equal(t, core.AttackLaunching, launched[0].Status)
	assert.Equal(t, []string{"atk-0001/def-firewall", "atk-0002/def-firewall"}, blocked)
	assert.Equal(t, []core.DefenseKind{core.DefenseFirewall}, activated)
	assert.Equal(t, [][2]core.Phase{{core.PhaseReconnaissance, core.PhaseComplete}}, phases)
	require.Len(t, critical, 1)
	assert.Equal(t, "lead_change", critical[0].Metadata["reason"])
	assert.Equal(t, 4, updates)
}

func TestHoneypotAndReactiveDefense(t *testing.T) {
	sc := core.BattleScenario{
		Name: "trap",
		Phases: []core.PhaseConfig{{
			Name:             core.PhaseReconnaissance,
			Duration:         20 * time.Second,
			EnabledAttacks:   []core.AttackKind{core.AttackPortScan, core.AttackDataExfiltration},
			EnabledDefenses:  []core.DefenseKind{core.DefenseHoneypot},
			ReactiveDefenses: []core.DefenseKind{core.DefenseDLP},
		}},
		AutoAttack: core.AutoAttackPolicy{
			Enabled:  true,
			Interval: time.Second,
			Kinds:    []core.AttackKind{core.AttackPortScan, core.AttackDataExfiltration},
		},
	}

	var honeypots int
	e := newTestEngine(t, WithSeed(3), WithCallbacks(Callbacks{
		OnHoneypotTriggered: func(a core.Attack, d core.Defense) {
			assert.Equal(t, core.AttackPortScan, a.Kind)
			assert.Equal(t, core.DefenseHoneypot, d.Kind)
			honeypots++
		},
	}))
	require.NoError(t, e.Start(sc))
	runToEnd(t, e, time.Second)

	st := e.GetState()
	kinds := countKinds(st.Events)
	assert.Equal(t, honeypots, kinds[core.EventHoneypotTriggered])
	assert.Equal(t, honeypots, st.Score.Blue.HoneypotsTriggered)

	// the first exfiltration is undefended, breaches and brings dlp online
	var dlp core.Defense
	for _, d := range st.Defenses {
		if d.Kind == core.DefenseDLP {
			dlp = d
		}
	}
	assert.NotEmpty(t, dlp.TriggeredBy)
	assert.True(t, st.IsCompromised(core.SubsystemDataStore))
	assert.GreaterOrEqual(t, st.Score.Red.DataExfiltrated, 1)
	assert.Positive(t, kinds[core.EventCriticalMoment])
}

func TestGetState_IsASnapshot(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Start(scenarioA()))
	for i := 0; i < 4; i++ {
		require.NoError(t, e.Tick(time.Second))
	}

	st := e.GetState()
	require.NotEmpty(t, st.Events)
	st.Events[0].Message = "tampered"
	st.Defenses[0].Strength = -1
	st.AttackHistory[0].Status = core.AttackSuccess
	st.Score.Red.Points = 1_000_000

	fresh := e.GetState()
	assert.NotEqual(t, "tampered", fresh.Events[0].Message)
	assert.NotEqual(t, -1, fresh.Defenses[0].Strength)
	assert.Equal(t, core.AttackBlocked, fresh.AttackHistory[0].Status)
	assert.Equal(t, int64(10), fresh.Score.Red.Points)
}
