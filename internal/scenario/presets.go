package scenario

import (
	"sort"
	"time"

	"github.com/OCAP2/battlesim/pkg/core"
)

var presets = map[string]func() core.BattleScenario{
	"standard":   standard,
	"blitz":      blitz,
	"undefended": undefended,
}

// Names lists the built-in scenarios.
func Names() []string {
	out := make([]string, 0, len(presets))
	for n := range presets {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Builtin returns a normalised copy of a built-in scenario.
func Builtin(name string) (core.BattleScenario, bool) {
	f, ok := presets[name]
	if !ok {
		return core.BattleScenario{}, false
	}
	return Normalize(f()), true
}

func standard() core.BattleScenario {
	return core.BattleScenario{
		Name: "standard",
		Seed: 1337,
		Phases: []core.PhaseConfig{
			{
				Name:            core.PhaseReconnaissance,
				Duration:        40 * time.Second,
				EnabledAttacks:  []core.AttackKind{core.AttackPortScan, core.AttackPhishing},
				EnabledDefenses: []core.DefenseKind{core.DefenseFirewall, core.DefenseHoneypot},
				Intensity:       core.IntensityLow,
			},
			{
				Name:     core.PhaseExploitation,
				Duration: 60 * time.Second,
				EnabledAttacks: []core.AttackKind{
					core.AttackPhishing, core.AttackBruteForce, core.AttackSQLInjection,
					core.AttackXSS, core.AttackPrivilegeEscalation,
				},
				EnabledDefenses:  []core.DefenseKind{core.DefenseFirewall, core.DefenseWAF, core.DefenseMFA, core.DefenseIDS},
				ReactiveDefenses: []core.DefenseKind{core.DefenseEDR},
				Intensity:        core.IntensityHigh,
			},
			{
				Name:     core.PhaseContainment,
				Duration: 40 * time.Second,
				EnabledAttacks: []core.AttackKind{
					core.AttackDDoS, core.AttackLateralMovement,
					core.AttackDataExfiltration, core.AttackRansomware,
				},
				EnabledDefenses:  []core.DefenseKind{core.DefenseFirewall, core.DefenseRateLimiter, core.DefenseEDR},
				ReactiveDefenses: []core.DefenseKind{core.DefenseDLP},
				Intensity:        core.IntensityCritical,
			},
		},
		AutoAttack: core.AutoAttackPolicy{
			Enabled:  true,
			Interval: 4 * time.Second,
			Kinds:    core.AllAttackKinds(),
		},
		Scoring: core.ScoringRules{
			ZeroBreachBonus:      100,
			FastResponseBonus:    5,
			FastResponseWindow:   3 * time.Second,
			BaselineSuccessBonus: 15,
		},
	}
}

func blitz() core.BattleScenario {
	return core.BattleScenario{
		Name: "blitz",
		Seed: 7,
		Phases: []core.PhaseConfig{
			{
				Name:            core.PhaseReconnaissance,
				Duration:        20 * time.Second,
				EnabledAttacks:  []core.AttackKind{core.AttackBruteForce, core.AttackSQLInjection, core.AttackXSS},
				EnabledDefenses: []core.DefenseKind{core.DefenseFirewall, core.DefenseWAF},
				Intensity:       core.IntensityHigh,
			},
		},
		Multipliers: core.Multipliers{Red: 1.5, Blue: 1},
		AutoAttack: core.AutoAttackPolicy{
			Enabled:  true,
			Interval: 2 * time.Second,
			Kinds:    []core.AttackKind{core.AttackBruteForce, core.AttackSQLInjection, core.AttackXSS},
		},
		Scoring: core.ScoringRules{BaselineSuccessBonus: 10},
	}
}

func undefended() core.BattleScenario {
	return core.BattleScenario{
		Name: "undefended",
		Seed: 42,
		Phases: []core.PhaseConfig{
			{
				Name:           core.PhaseReconnaissance,
				Duration:       15 * time.Second,
				EnabledAttacks: []core.AttackKind{core.AttackPortScan, core.AttackPhishing},
			},
			{
				Name:           core.PhaseExploitation,
				Duration:       15 * time.Second,
				EnabledAttacks: []core.AttackKind{core.AttackSQLInjection, core.AttackDataExfiltration},
			},
		},
		AutoAttack: core.AutoAttackPolicy{
			Enabled:  true,
			Interval: 5 * time.Second,
			Kinds:    core.AllAttackKinds(),
		},
		Scoring: core.ScoringRules{ZeroBreachBonus: 100, BaselineSuccessBonus: 15},
	}
}
