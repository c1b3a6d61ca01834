// Package attack synthesizes attacks on the auto-attack schedule.
//
// Kind selection is uniform over the intersection of the phase's enabled
// attacks and the scenario's auto-attack kinds, iterated in catalog order,
// using a seeded PCG source. The same scenario and seed therefore always
// produce the same attack sequence.
package attack

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/OCAP2/battlesim/internal/catalog"
	"github.com/OCAP2/battlesim/internal/scenario"
	"github.com/OCAP2/battlesim/pkg/core"
)

// OutsidePhaseError reports a drawn kind the current phase does not enable.
type OutsidePhaseError struct {
	Kind  core.AttackKind
	Phase core.Phase
}

func (e *OutsidePhaseError) Error() string {
	return fmt.Sprintf("generated %s outside the enabled set of phase %s", e.Kind, e.Phase)
}

// DrawFunc picks one kind from a non-empty candidate list.
type DrawFunc func(r *rand.Rand, kinds []core.AttackKind) core.AttackKind

// Uniform is the default draw policy.
func Uniform(r *rand.Rand, kinds []core.AttackKind) core.AttackKind {
	return kinds[r.IntN(len(kinds))]
}

// Option configures a Generator.
type Option func(*Generator)

// WithDraw replaces the draw policy.
func WithDraw(f DrawFunc) Option {
	return func(g *Generator) {
		g.draw = f
	}
}

// Generator fires attacks on a simulated-time schedule. Not safe for
// concurrent use.
type Generator struct {
	sc   core.BattleScenario
	rng  *rand.Rand
	draw DrawFunc

	phase    core.PhaseConfig
	armed    bool
	eligible []core.AttackKind
	interval time.Duration
	nextAt   time.Duration
	seq      int
}

// New creates a generator for sc seeded with seed. The generator is idle
// until EnterPhase is called.
func New(sc core.BattleScenario, seed uint64, opts ...Option) *Generator {
	g := &Generator{
		sc:   sc,
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		draw: Uniform,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// EnterPhase re-arms the schedule at phase entry. The first attack of the
// phase fires on the first Fire call at or after at.
func (g *Generator) EnterPhase(cfg core.PhaseConfig, at time.Duration) {
	g.phase = cfg
	g.eligible = scenario.EligibleKinds(g.sc, cfg)
	g.interval = effectiveInterval(g.sc.AutoAttack.Interval, cfg.Intensity)
	g.armed = g.sc.AutoAttack.Enabled && g.interval > 0 && len(g.eligible) > 0
	g.nextAt = at
}

// Disarm stops all further firing, as on battle completion.
func (g *Generator) Disarm() { g.armed = false }

// Armed reports whether the generator will fire in the current phase.
func (g *Generator) Armed() bool { return g.armed }

// NextAt is the simulated time of the next scheduled firing.
func (g *Generator) NextAt() time.Duration { return g.nextAt }

// Fire returns every attack due at simulated time now, in launch order, with
// status launching. Slots are scheduled from phase entry, so late ticks never
// shift later firings. A drawn kind outside the phase's enabled set is
// discarded and reported as *OutsidePhaseError after the remaining slots are
// processed.
func (g *Generator) Fire(now time.Duration) ([]core.Attack, error) {
	if !g.armed {
		return nil, nil
	}
	var (
		out []core.Attack
		bad error
	)
	for g.nextAt <= now {
		g.nextAt += g.interval
		kind := g.draw(g.rng, g.eligible)
		if !g.phase.EnablesAttack(kind) {
			bad = &OutsidePhaseError{Kind: kind, Phase: g.phase.Name}
			continue
		}
		a, err := g.instantiate(kind, now)
		if err != nil {
			bad = err
			continue
		}
		out = append(out, a)
	}
	return out, bad
}

func (g *Generator) instantiate(kind core.AttackKind, now time.Duration) (core.Attack, error) {
	p, ok := catalog.Attack(kind)
	if !ok {
		return core.Attack{}, fmt.Errorf("no catalog profile for %s", kind)
	}
	g.seq++
	return core.Attack{
		ID:         fmt.Sprintf("atk-%04d", g.seq),
		Kind:       kind,
		Severity:   p.Severity,
		Status:     core.AttackLaunching,
		Target:     p.Target,
		Phase:      g.phase.Name,
		LaunchedAt: now,
		Duration:   p.Duration,
	}, nil
}

func effectiveInterval(base time.Duration, in core.Intensity) time.Duration {
	f, ok := in.IntervalFactor()
	if !ok {
		f = 1
	}
	return time.Duration(math.Round(float64(base) * f))
}
