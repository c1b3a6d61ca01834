// pkg/core/scenario.go
package core

import "time"

// PhaseConfig declares one stage of a battle.
type PhaseConfig struct {
	Name             Phase         `json:"name"`
	Duration         time.Duration `json:"duration"`
	EnabledAttacks   []AttackKind  `json:"enabledAttacks"`
	EnabledDefenses  []DefenseKind `json:"enabledDefenses"`
	ReactiveDefenses []DefenseKind `json:"reactiveDefenses,omitempty"`
	Intensity        Intensity     `json:"intensity,omitempty"`
}

// EnablesAttack reports whether k is in the phase's enabled set.
func (p PhaseConfig) EnablesAttack(k AttackKind) bool {
	for _, e := range p.EnabledAttacks {
		if e == k {
			return true
		}
	}
	return false
}

// Multipliers scale the points each side earns.
type Multipliers struct {
	Red  float64 `json:"red"`
	Blue float64 `json:"blue"`
}

// AutoAttackPolicy controls the attack generator cadence.
type AutoAttackPolicy struct {
	Enabled  bool          `json:"enabled"`
	Interval time.Duration `json:"interval"`
	Kinds    []AttackKind  `json:"kinds"`
}

// ScoringRules holds end-of-battle bonus configuration.
type ScoringRules struct {
	ZeroBreachBonus    int64         `json:"zeroBreachBonus"`
	FastResponseBonus  int64         `json:"fastResponseBonus"`
	FastResponseWindow time.Duration `json:"fastResponseWindow"`
	// BaselineSuccessBonus is added to every successful attack on top of the
	// kind-specific bonus.
	BaselineSuccessBonus int64 `json:"baselineSuccessBonus"`
}

// BattleScenario is the declarative description of one battle run.
type BattleScenario struct {
	Name        string           `json:"name"`
	Phases      []PhaseConfig    `json:"phases"`
	Duration    time.Duration    `json:"duration"`
	Multipliers Multipliers      `json:"multipliers"`
	AutoAttack  AutoAttackPolicy `json:"autoAttack"`
	Scoring     ScoringRules     `json:"scoring"`
	Seed        uint64           `json:"seed"`
}

// PhaseDurationSum returns the total of every phase duration.
func (s BattleScenario) PhaseDurationSum() time.Duration {
	var total time.Duration
	for _, p := range s.Phases {
		total += p.Duration
	}
	return total
}
