// Package engine drives a battle: it owns the BattleState and composes the
// phase controller, attack generator, defense resolver and scoring into one
// deterministic tick.
//
// Control methods (Start, Tick, Pause, Resume, Stop) must be called from a
// single driver goroutine; Runner provides that goroutine for wall-clock
// use. GetState, Events and Subscribe are safe from any goroutine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/OCAP2/battlesim/internal/attack"
	"github.com/OCAP2/battlesim/internal/catalog"
	"github.com/OCAP2/battlesim/internal/defense"
	"github.com/OCAP2/battlesim/internal/eventlog"
	"github.com/OCAP2/battlesim/internal/phase"
	"github.com/OCAP2/battlesim/internal/scenario"
	"github.com/OCAP2/battlesim/internal/scoring"
	"github.com/OCAP2/battlesim/pkg/core"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Engine is the battle driver.
type Engine struct {
	opts   options
	log    *eventlog.Log
	logger Logger
	instr  instruments

	// driver-goroutine state
	status      core.EngineStatus
	sc          core.BattleScenario
	battleID    string
	startedAt   time.Time
	phases      *phase.Controller
	attacks     *attack.Generator
	defenses    *defense.Resolver
	score       core.BattleScore
	lead        scoring.LeadTracker
	history     []core.Attack
	compromised []core.Subsystem
	blocks      []scoring.BlockTiming
	winner      core.Winner
	completed   bool

	// generation is bumped by Stop; emissions check it first.
	generation  atomic.Uint64
	busy        atomic.Bool
	stopPending atomic.Bool
	snapshot    atomic.Pointer[core.BattleState]
}

// New creates an idle engine.
func New(opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	log, err := eventlog.New(o.logger)
	if err != nil {
		return nil, fmt.Errorf("creating event log: %w", err)
	}
	in, err := newInstruments()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		opts:   o,
		log:    log,
		logger: o.logger,
		instr:  in,
		status: core.StatusIdle,
	}
	e.publish()
	return e, nil
}

// Start validates sc and begins a battle. It fails with ErrNotIdle unless
// the engine is idle and with a *scenario.ConfigError for an invalid
// scenario; in both cases the engine does not enter running.
func (e *Engine) Start(sc core.BattleScenario) error {
	if e.status != core.StatusIdle {
		return fmt.Errorf("starting battle: %w (status %s)", ErrNotIdle, e.status)
	}
	if err := scenario.Validate(sc); err != nil {
		return fmt.Errorf("starting battle: %w", err)
	}
	if !e.busy.CompareAndSwap(false, true) {
		return e.violation(&InvariantViolation{Op: "start", Reason: "called from inside a tick"})
	}
	defer e.busy.Store(false)
	defer e.finishPendingStop()

	sc = scenario.Normalize(sc)
	seed := sc.Seed
	if e.opts.seed != nil {
		seed = *e.opts.seed
	}

	e.sc = sc
	e.battleID = uuid.NewString()
	e.startedAt = e.opts.clock.Now()
	e.log.Reset(e.startedAt)
	e.phases = phase.New(sc.Phases)
	e.attacks = attack.New(sc, seed)
	e.defenses = defense.New(sc)
	e.status = core.StatusRunning

	e.logger.Info("battle started",
		"battle", e.battleID, "scenario", sc.Name, "phases", len(sc.Phases),
		"duration", sc.Duration, "seed", seed)

	gen := e.generation.Load()
	if cfg, ok := e.phases.CurrentConfig(); ok {
		e.enterPhase(gen, cfg, 0)
	}
	e.publish()
	return nil
}

// Tick advances the battle by delta of simulated time. It is a no-op unless
// the battle is running. A delta spanning a phase boundary is processed in
// per-phase steps, each running the full pipeline: phase countdown, attack
// generation, resolution, scoring. Invariant violations are returned, or
// raised in strict mode; a re-entrant call is itself a violation.
func (e *Engine) Tick(delta time.Duration) error {
	if !e.busy.CompareAndSwap(false, true) {
		return e.violation(&InvariantViolation{Op: "tick", Reason: "re-entrant tick"})
	}
	defer e.busy.Store(false)
	defer e.finishPendingStop()

	if e.status != core.StatusRunning || delta <= 0 {
		return nil
	}

	began := time.Now()
	gen := e.generation.Load()
	var errs []error
	for delta > 0 && e.status == core.StatusRunning && !e.phases.Complete() && e.live(gen) {
		step := min(delta, e.phases.Remaining())
		delta -= step
		if err := e.step(gen, step); err != nil {
			errs = append(errs, err)
		}
	}
	if e.phases.Complete() && e.status == core.StatusRunning && e.live(gen) {
		e.complete(gen)
	}
	if e.live(gen) {
		e.publish()
	}

	e.instr.ticks.Add(context.Background(), 1)
	e.instr.tickDuration.Record(context.Background(), float64(time.Since(began).Microseconds())/1000)
	return errors.Join(errs...)
}

// Pause freezes every simulated timer at once. Idempotent.
func (e *Engine) Pause() {
	if e.status != core.StatusRunning {
		return
	}
	e.status = core.StatusPaused
	e.phases.Pause()
	e.logger.Debug("battle paused", "battle", e.battleID, "elapsed", e.phases.Elapsed())
	e.publish()
}

// Resume continues a paused battle. Idempotent.
func (e *Engine) Resume() {
	if e.status != core.StatusPaused {
		return
	}
	e.status = core.StatusRunning
	e.phases.Resume()
	e.logger.Debug("battle resumed", "battle", e.battleID, "elapsed", e.phases.Elapsed())
	e.publish()
}

// Stop abandons the battle and resets the engine to idle. No event or
// callback is delivered after Stop returns. Called from inside a callback,
// the reset happens as soon as the current tick unwinds.
func (e *Engine) Stop() {
	e.generation.Add(1)
	if e.busy.Load() {
		e.stopPending.Store(true)
		return
	}
	e.reset()
}

// GetState returns a deep copy of the latest published state.
func (e *Engine) GetState() core.BattleState {
	return e.snapshot.Load().Clone()
}

// Events returns a copy of the event log of the current battle.
func (e *Engine) Events() []core.BattleEvent {
	return e.log.Events()
}

// Subscribe registers a handler on the event log. See eventlog.Option.
func (e *Engine) Subscribe(h eventlog.Handler, opts ...eventlog.Option) (unsubscribe func()) {
	return e.log.Subscribe(h, opts...)
}

// Close drains and removes every subscription.
func (e *Engine) Close() {
	e.log.Close()
}

func (e *Engine) finishPendingStop() {
	if e.stopPending.CompareAndSwap(true, false) {
		e.reset()
	}
}

func (e *Engine) reset() {
	if e.status != core.StatusIdle {
		e.logger.Info("battle stopped", "battle", e.battleID, "status", e.status)
	}
	e.status = core.StatusIdle
	e.sc = core.BattleScenario{}
	e.battleID = ""
	e.startedAt = time.Time{}
	e.phases = nil
	e.attacks = nil
	e.defenses = nil
	e.score = core.BattleScore{}
	e.lead = scoring.LeadTracker{}
	e.history = nil
	e.compromised = nil
	e.blocks = nil
	e.winner = core.WinnerNone
	e.completed = false
	e.log.Reset(time.Time{})
	e.publish()
}

func (e *Engine) live(gen uint64) bool {
	return e.generation.Load() == gen
}

func (e *Engine) step(gen uint64, d time.Duration) error {
	before := e.score

	_, steps := e.phases.Tick(d)
	now := e.phases.Elapsed()
	for _, s := range steps {
		e.transition(gen, s)
	}

	var violation error
	launched, err := e.attacks.Fire(now)
	if err != nil {
		violation = e.violation(&InvariantViolation{Op: "generate", Reason: "attack outside phase catalog", Err: err})
	}
	for _, a := range launched {
		e.launch(gen, a)
	}

	for _, o := range e.defenses.Advance(now) {
		if o.Blocked {
			e.block(gen, o, now)
		} else {
			e.breach(gen, o, now)
		}
	}

	e.scoreChanged(gen, before, now)
	return violation
}

func (e *Engine) transition(gen uint64, s phase.Transition) {
	e.emit(gen, core.BattleEvent{
		Kind:     core.EventPhaseChange,
		Elapsed:  s.At,
		Team:     core.TeamSystem,
		Message:  fmt.Sprintf("phase %s ended, %s begins", s.From, s.To),
		Metadata: map[string]any{"from": s.From.String(), "to": s.To.String()},
	})
	if cb := e.opts.callbacks.OnPhaseChange; cb != nil {
		e.notify(gen, "onPhaseChange", func() { cb(s.From, s.To) })
	}
	e.logger.Info("phase change", "battle", e.battleID, "from", s.From, "to", s.To, "elapsed", s.At)

	if cfg, ok := e.phases.CurrentConfig(); ok {
		e.enterPhase(gen, cfg, s.At)
		return
	}
	e.attacks.Disarm()
}

func (e *Engine) enterPhase(gen uint64, cfg core.PhaseConfig, at time.Duration) {
	e.attacks.EnterPhase(cfg, at)
	for _, d := range e.defenses.EnterPhase(cfg) {
		e.activate(gen, d, at, "")
	}
}

func (e *Engine) activate(gen uint64, d core.Defense, at time.Duration, trigger string) {
	ev := core.BattleEvent{
		Kind:      core.EventDefenseActivated,
		Elapsed:   at,
		Team:      core.TeamBlue,
		Message:   fmt.Sprintf("%s online", d.Kind),
		DefenseID: d.ID,
		Metadata:  map[string]any{"defense": d.Kind.String()},
	}
	if trigger != "" {
		ev.Message = fmt.Sprintf("%s online after breach by %s", d.Kind, trigger)
		ev.AttackID = trigger
		ev.Metadata["reactive"] = true
	}
	e.emit(gen, ev)
	if cb := e.opts.callbacks.OnDefenseActivated; cb != nil {
		e.notify(gen, "onDefenseActivated", func() { cb(d) })
	}
}

func (e *Engine) launch(gen uint64, a core.Attack) {
	p, _ := catalog.Attack(a.Kind)
	pts := scoring.Scale(p.BasePoints, e.sc.Multipliers.Red)
	e.credit(core.TeamRed, pts, core.CategoryAttackLaunched)
	e.defenses.Track(a)

	e.emit(gen, core.BattleEvent{
		Kind:     core.EventAttackLaunched,
		Elapsed:  a.LaunchedAt,
		Team:     core.TeamRed,
		Message:  fmt.Sprintf("%s launched against %s", a.Kind, a.Target),
		Severity: a.Severity,
		Points:   pts,
		AttackID: a.ID,
		Metadata: map[string]any{"kind": a.Kind.String(), "target": string(a.Target), "phase": a.Phase.String()},
	})
	if cb := e.opts.callbacks.OnAttackLaunched; cb != nil {
		e.notify(gen, "onAttackLaunched", func() { cb(a) })
	}
}

func (e *Engine) block(gen uint64, o defense.Outcome, now time.Duration) {
	a, d := o.Attack, o.Defense
	pts := scoring.Scale(o.Profile.BlockValue, e.sc.Multipliers.Blue)
	e.credit(core.TeamBlue, pts, core.CategoryAttackBlocked)
	if o.Profile.Counter != core.CategoryNone {
		e.credit(core.TeamBlue, 0, o.Profile.Counter)
	}
	e.archive(a)
	e.blocks = append(e.blocks, scoring.BlockTiming{AttackID: a.ID, LaunchedAt: a.LaunchedAt, BlockedAt: now})

	e.emit(gen, core.BattleEvent{
		Kind:      core.EventAttackBlocked,
		Elapsed:   now,
		Team:      core.TeamBlue,
		Message:   fmt.Sprintf("%s stopped %s", d.Kind, a.Kind),
		Severity:  a.Severity,
		Points:    pts,
		AttackID:  a.ID,
		DefenseID: d.ID,
		Metadata: map[string]any{
			"kind":     a.Kind.String(),
			"defense":  d.Kind.String(),
			"strength": d.Strength,
			"latency":  (now - a.LaunchedAt).String(),
		},
	})
	if cb := e.opts.callbacks.OnAttackBlocked; cb != nil {
		e.notify(gen, "onAttackBlocked", func() { cb(a, d) })
	}

	if d.Kind == core.DefenseHoneypot {
		e.emit(gen, core.BattleEvent{
			Kind:      core.EventHoneypotTriggered,
			Elapsed:   now,
			Team:      core.TeamBlue,
			Message:   fmt.Sprintf("honeypot captured %s", a.Kind),
			Severity:  a.Severity,
			AttackID:  a.ID,
			DefenseID: d.ID,
		})
		if cb := e.opts.callbacks.OnHoneypotTriggered; cb != nil {
			e.notify(gen, "onHoneypotTriggered", func() { cb(a, d) })
		}
	}

	if o.DefenseCompromised {
		e.emit(gen, core.BattleEvent{
			Kind:      core.EventDefenseCompromised,
			Elapsed:   now,
			Team:      core.TeamRed,
			Message:   fmt.Sprintf("%s worn down and offline", d.Kind),
			Severity:  core.SeverityHigh,
			AttackID:  a.ID,
			DefenseID: d.ID,
		})
		e.logger.Info("defense compromised", "battle", e.battleID, "defense", d.ID, "blocked", d.Blocked)
	}
}

func (e *Engine) breach(gen uint64, o defense.Outcome, now time.Duration) {
	a := o.Attack
	p, _ := catalog.Attack(a.Kind)
	pts := scoring.Scale(p.SuccessBonus+e.sc.Scoring.BaselineSuccessBonus, e.sc.Multipliers.Red)
	e.credit(core.TeamRed, pts, core.CategoryAttackSuccess)
	if p.Counter != core.CategoryNone {
		e.credit(core.TeamRed, 0, p.Counter)
	}
	e.archive(a)

	e.emit(gen, core.BattleEvent{
		Kind:     core.EventAttackSuccess,
		Elapsed:  now,
		Team:     core.TeamRed,
		Message:  fmt.Sprintf("%s hit %s", a.Kind, a.Target),
		Severity: a.Severity,
		Points:   pts,
		AttackID: a.ID,
		Metadata: map[string]any{"kind": a.Kind.String(), "target": string(a.Target)},
	})
	if cb := e.opts.callbacks.OnAttackSuccess; cb != nil {
		e.notify(gen, "onAttackSuccess", func() { cb(a) })
	}

	if !slices.Contains(e.compromised, a.Target) {
		e.compromised = append(e.compromised, a.Target)
		e.emit(gen, core.BattleEvent{
			Kind:     core.EventBreach,
			Elapsed:  now,
			Team:     core.TeamRed,
			Message:  fmt.Sprintf("%s compromised", a.Target),
			Severity: a.Severity,
			AttackID: a.ID,
			Metadata: map[string]any{"subsystem": string(a.Target)},
		})
	}

	if a.Severity == core.SeverityCritical {
		e.critical(gen, core.BattleEvent{
			Elapsed:  now,
			Team:     core.TeamRed,
			Message:  fmt.Sprintf("critical breach: %s on %s", a.Kind, a.Target),
			Severity: core.SeverityCritical,
			AttackID: a.ID,
			Metadata: map[string]any{"reason": "critical_breach"},
		})
	}

	for _, d := range o.Activated {
		e.activate(gen, d, now, a.ID)
	}
}

func (e *Engine) scoreChanged(gen uint64, before core.BattleScore, now time.Duration) {
	if e.lead.Observe(e.score.Advantage) {
		e.critical(gen, core.BattleEvent{
			Elapsed:  now,
			Team:     core.Team(e.score.Advantage),
			Message:  fmt.Sprintf("%s team takes the lead by %d", e.score.Advantage, e.score.AdvantagePoints),
			Severity: core.SeverityHigh,
			Metadata: map[string]any{"reason": "lead_change", "advantagePoints": e.score.AdvantagePoints},
		})
	}
	if e.score == before {
		return
	}
	if cb := e.opts.callbacks.OnScoreUpdate; cb != nil {
		score := e.score
		e.notify(gen, "onScoreUpdate", func() { cb(score) })
	}
}

func (e *Engine) critical(gen uint64, ev core.BattleEvent) {
	ev.Kind = core.EventCriticalMoment
	stored, ok := e.emit(gen, ev)
	if !ok {
		return
	}
	if cb := e.opts.callbacks.OnCriticalMoment; cb != nil {
		e.notify(gen, "onCriticalMoment", func() { cb(stored.Clone()) })
	}
}

func (e *Engine) complete(gen uint64) {
	now := e.phases.Elapsed()
	before := e.score

	for _, a := range e.defenses.Expire(now) {
		e.archive(a)
		e.emit(gen, core.BattleEvent{
			Kind:     core.EventAttackFailed,
			Elapsed:  now,
			Team:     core.TeamRed,
			Message:  fmt.Sprintf("%s still in flight at the end of the battle", a.Kind),
			Severity: a.Severity,
			AttackID: a.ID,
		})
	}

	for _, b := range scoring.EndBonuses(e.sc.Scoring, len(e.compromised) > 0, e.blocks) {
		e.credit(b.Team, b.Points, core.CategoryNone)
		msg := "no subsystem was breached"
		if b.Reason == scoring.ReasonFastResponse {
			msg = fmt.Sprintf("fast response to %s", b.AttackID)
		}
		e.emit(gen, core.BattleEvent{
			Kind:     core.EventBonusAwarded,
			Elapsed:  now,
			Team:     b.Team,
			Message:  msg,
			Points:   b.Points,
			AttackID: b.AttackID,
			Metadata: map[string]any{"reason": b.Reason},
		})
	}
	e.scoreChanged(gen, before, now)

	e.winner = scoring.Winner(e.score)
	e.status = core.StatusComplete
	e.emit(gen, core.BattleEvent{
		Kind:    core.EventBattleComplete,
		Elapsed: now,
		Team:    core.TeamSystem,
		Message: fmt.Sprintf("battle over: %s", e.winner),
		Metadata: map[string]any{
			"winner": string(e.winner),
			"red":    e.score.Red.Points,
			"blue":   e.score.Blue.Points,
		},
	})
	e.logger.Info("battle complete",
		"battle", e.battleID, "winner", e.winner,
		"red", e.score.Red.Points, "blue", e.score.Blue.Points,
		"attacks", len(e.history), "events", e.log.Len())

	if !e.completed {
		e.completed = true
		if cb := e.opts.callbacks.OnBattleComplete; cb != nil {
			winner, score := e.winner, e.score
			e.notify(gen, "onBattleComplete", func() { cb(winner, score) })
		}
	}
}

func (e *Engine) credit(team core.Team, pts int64, cat core.ScoreCategory) {
	if err := scoring.Apply(&e.score, team, pts, cat); err != nil {
		// only reachable through a broken catalog or multiplier
		e.logger.Error("scoring rejected", "battle", e.battleID, "team", team, "points", pts, "error", err)
	}
}

// archive records a terminal attack. Each attack reaches here exactly once
// because the resolver hands out terminal attacks only as it drops them.
func (e *Engine) archive(a core.Attack) {
	e.history = append(e.history, a)
}

// emit appends ev unless the battle has been stopped since gen was read.
func (e *Engine) emit(gen uint64, ev core.BattleEvent) (core.BattleEvent, bool) {
	if !e.live(gen) {
		return core.BattleEvent{}, false
	}
	return e.log.Append(ev), true
}

// notify runs a callback unless the battle has been stopped, isolating
// panics. Invariant violations raised in strict mode pass through.
func (e *Engine) notify(gen uint64, name string, f func()) {
	if !e.live(gen) {
		return
	}
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if v, ok := r.(*InvariantViolation); ok {
			panic(v)
		}
		e.instr.callbackPanics.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("callback", name)))
		e.logger.Error("callback panicked", "battle", e.battleID, "callback", name, "panic", r)
	}()
	f()
}

func (e *Engine) violation(v *InvariantViolation) error {
	e.instr.violations.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("op", v.Op)))
	e.logger.Error("invariant violation", "battle", e.battleID, "op", v.Op, "reason", v.Reason, "error", v.Err)
	if e.opts.strict {
		panic(v)
	}
	return v
}

func (e *Engine) publish() {
	st := &core.BattleState{
		BattleID:      e.battleID,
		Scenario:      e.sc.Name,
		Status:        e.status,
		StartedAt:     e.startedAt,
		Score:         e.score,
		AttackHistory: slices.Clip(e.history),
		Events:        e.log.View(),
		Compromised:   slices.Clip(e.compromised),
		Running:       e.status == core.StatusRunning,
		Paused:        e.status == core.StatusPaused,
		Winner:        e.winner,
	}
	if e.phases != nil {
		st.Phase = e.phases.Current()
		st.PhaseTimeRemaining = e.phases.Remaining()
		st.Elapsed = e.phases.Elapsed()
	}
	if e.defenses != nil {
		st.ActiveAttacks = e.defenses.Active()
		st.Defenses = e.defenses.Defenses()
	}
	e.snapshot.Store(st)
}
