// Package scenario validates, normalises and loads battle scenarios.
package scenario

import (
	"fmt"
	"strings"

	"github.com/OCAP2/battlesim/internal/catalog"
	"github.com/OCAP2/battlesim/pkg/core"
)

// FieldError is a single problem with a scenario field.
type FieldError struct {
	Field   string
	Problem string
}

func (f FieldError) String() string {
	return f.Field + ": " + f.Problem
}

// ConfigError lists every problem found in a scenario, not just the first.
type ConfigError struct {
	Scenario string
	Problems []FieldError
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid scenario %q: %d problem(s)", e.Scenario, len(e.Problems))
	for _, p := range e.Problems {
		b.WriteString("; ")
		b.WriteString(p.String())
	}
	return b.String()
}

// Fields returns the offending field paths in the order they were found.
func (e *ConfigError) Fields() []string {
	out := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		out[i] = p.Field
	}
	return out
}

type problems []FieldError

func (p *problems) add(field, format string, args ...any) {
	*p = append(*p, FieldError{Field: field, Problem: fmt.Sprintf(format, args...)})
}

func (p problems) err(name string) error {
	if len(p) == 0 {
		return nil
	}
	return &ConfigError{Scenario: name, Problems: p}
}

// Validate checks a scenario and returns a *ConfigError enumerating every
// offending field, or nil.
func Validate(sc core.BattleScenario) error {
	var ps problems
	validateInto(&ps, sc)
	return ps.err(sc.Name)
}

func validateInto(ps *problems, sc core.BattleScenario) {
	if len(sc.Phases) == 0 {
		ps.add("phases", "must not be empty")
	}
	if len(sc.Phases) > len(core.PhaseOrder) {
		ps.add("phases", "at most %d phases may be configured, got %d", len(core.PhaseOrder), len(sc.Phases))
	}

	for i, p := range sc.Phases {
		field := fmt.Sprintf("phases[%d]", i)
		switch {
		case !p.Name.Valid() || p.Name == core.PhaseComplete:
			ps.add(field+".name", "%s is not a configurable phase", p.Name)
		case i < len(core.PhaseOrder) && p.Name != core.PhaseOrder[i]:
			ps.add(field+".name", "expected %s, got %s (phases run in fixed order)", core.PhaseOrder[i], p.Name)
		}
		if p.Duration <= 0 {
			ps.add(field+".duration", "must be > 0, got %s", p.Duration)
		}
		for j, k := range p.EnabledAttacks {
			if _, ok := catalog.Attack(k); !ok {
				ps.add(fmt.Sprintf("%s.enabledAttacks[%d]", field, j), "unknown attack kind %s", k)
			}
		}
		for j, k := range p.EnabledDefenses {
			if _, ok := catalog.Defense(k); !ok {
				ps.add(fmt.Sprintf("%s.enabledDefenses[%d]", field, j), "unknown defense kind %s", k)
			}
		}
		for j, k := range p.ReactiveDefenses {
			if _, ok := catalog.Defense(k); !ok {
				ps.add(fmt.Sprintf("%s.reactiveDefenses[%d]", field, j), "unknown defense kind %s", k)
			}
		}
		if _, ok := p.Intensity.IntervalFactor(); !ok {
			ps.add(field+".intensity", "unknown intensity %q", p.Intensity)
		}
	}

	if sum := sc.PhaseDurationSum(); sc.Duration != 0 && sc.Duration != sum {
		ps.add("duration", "must equal the sum of phase durations (%s), got %s", sum, sc.Duration)
	}

	if sc.Multipliers.Red < 0 {
		ps.add("multipliers.red", "must not be negative")
	}
	if sc.Multipliers.Blue < 0 {
		ps.add("multipliers.blue", "must not be negative")
	}

	if sc.AutoAttack.Enabled {
		if sc.AutoAttack.Interval <= 0 {
			ps.add("autoAttack.interval", "must be > 0 when auto-attacks are enabled")
		}
		if len(sc.AutoAttack.Kinds) == 0 {
			ps.add("autoAttack.kinds", "must not be empty when auto-attacks are enabled")
		}
	}
	for j, k := range sc.AutoAttack.Kinds {
		if _, ok := catalog.Attack(k); !ok {
			ps.add(fmt.Sprintf("autoAttack.kinds[%d]", j), "unknown attack kind %s", k)
		}
	}

	if sc.Scoring.ZeroBreachBonus < 0 {
		ps.add("scoring.zeroBreachBonus", "must not be negative")
	}
	if sc.Scoring.FastResponseBonus < 0 {
		ps.add("scoring.fastResponseBonus", "must not be negative")
	}
	if sc.Scoring.FastResponseWindow < 0 {
		ps.add("scoring.fastResponseWindow", "must not be negative")
	}
	if sc.Scoring.BaselineSuccessBonus < 0 {
		ps.add("scoring.baselineSuccessBonus", "must not be negative")
	}
}

// Normalize fills the defaults a hand-written scenario may leave out:
// the total duration, unit multipliers and medium intensity. The input is
// not modified.
func Normalize(sc core.BattleScenario) core.BattleScenario {
	out := sc
	out.Phases = make([]core.PhaseConfig, len(sc.Phases))
	copy(out.Phases, sc.Phases)
	for i := range out.Phases {
		if out.Phases[i].Intensity == "" {
			out.Phases[i].Intensity = core.IntensityMedium
		}
	}
	if out.Duration == 0 {
		out.Duration = out.PhaseDurationSum()
	}
	if out.Multipliers.Red == 0 {
		out.Multipliers.Red = 1
	}
	if out.Multipliers.Blue == 0 {
		out.Multipliers.Blue = 1
	}
	return out
}

// CurrentPhaseConfig returns the configuration of the state's current phase.
// ok is false once the battle is complete.
func CurrentPhaseConfig(sc core.BattleScenario, state core.BattleState) (core.PhaseConfig, bool) {
	return PhaseConfig(sc, state.Phase)
}

// PhaseConfig returns the configuration for phase p.
func PhaseConfig(sc core.BattleScenario, p core.Phase) (core.PhaseConfig, bool) {
	for _, cfg := range sc.Phases {
		if cfg.Name == p {
			return cfg, true
		}
	}
	return core.PhaseConfig{}, false
}

// EligibleKinds is the intersection of the phase's enabled attacks and the
// auto-attack policy kinds, in catalog order.
func EligibleKinds(sc core.BattleScenario, p core.PhaseConfig) []core.AttackKind {
	allowed := make(map[core.AttackKind]bool, len(sc.AutoAttack.Kinds))
	for _, k := range sc.AutoAttack.Kinds {
		allowed[k] = true
	}
	var out []core.AttackKind
	for _, k := range core.AllAttackKinds() {
		if allowed[k] && p.EnablesAttack(k) {
			out = append(out, k)
		}
	}
	return out
}
