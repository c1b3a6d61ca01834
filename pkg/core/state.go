// pkg/core/state.go
package core

import (
	"slices"
	"time"
)

// EngineStatus is the driver state machine position.
type EngineStatus string

const (
	StatusIdle     EngineStatus = "idle"
	StatusRunning  EngineStatus = "running"
	StatusPaused   EngineStatus = "paused"
	StatusComplete EngineStatus = "complete"
)

// BattleState is the aggregate root of a battle. Values handed out by the
// engine are snapshots; mutating them has no effect on the engine.
type BattleState struct {
	BattleID           string        `json:"battleId"`
	Scenario           string        `json:"scenario"`
	Status             EngineStatus  `json:"status"`
	Phase              Phase         `json:"phase"`
	PhaseTimeRemaining time.Duration `json:"phaseTimeRemaining"`
	Elapsed            time.Duration `json:"elapsed"`
	StartedAt          time.Time     `json:"startedAt"`
	Score              BattleScore   `json:"score"`
	ActiveAttacks      []Attack      `json:"activeAttacks"`
	AttackHistory      []Attack      `json:"attackHistory"`
	Defenses           []Defense     `json:"defenses"`
	Events             []BattleEvent `json:"events"`
	Compromised        []Subsystem   `json:"compromised"`
	Running            bool          `json:"running"`
	Paused             bool          `json:"paused"`
	Winner             Winner        `json:"winner,omitempty"`
}

// IsCompromised reports whether sub has been breached at least once.
func (s BattleState) IsCompromised(sub Subsystem) bool {
	return slices.Contains(s.Compromised, sub)
}

// Clone deep-copies the state so the result shares no backing arrays.
func (s BattleState) Clone() BattleState {
	s.ActiveAttacks = slices.Clone(s.ActiveAttacks)
	s.AttackHistory = slices.Clone(s.AttackHistory)
	s.Defenses = slices.Clone(s.Defenses)
	s.Compromised = slices.Clone(s.Compromised)
	if s.Events != nil {
		events := make([]BattleEvent, len(s.Events))
		for i, e := range s.Events {
			events[i] = e.Clone()
		}
		s.Events = events
	}
	return s
}
