// pkg/core/events.go
package core

import (
	"maps"
	"time"
)

// EventKind names a BattleEvent.
type EventKind string

const (
	EventAttackLaunched     EventKind = "attack_launched"
	EventAttackBlocked      EventKind = "attack_blocked"
	EventAttackSuccess      EventKind = "attack_success"
	EventAttackFailed       EventKind = "attack_failed"
	EventDefenseActivated   EventKind = "defense_activated"
	EventDefenseCompromised EventKind = "defense_compromised"
	EventHoneypotTriggered  EventKind = "honeypot_triggered"
	EventPhaseChange        EventKind = "phase_change"
	EventBreach             EventKind = "breach"
	EventCriticalMoment     EventKind = "critical_moment"
	EventBonusAwarded       EventKind = "bonus_awarded"
	EventBattleComplete     EventKind = "battle_complete"
)

// BattleEvent is one entry of the append-only event log.
// ID and Timestamp are assigned by the log on append.
type BattleEvent struct {
	ID        uint64         `json:"id"`
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Elapsed   time.Duration  `json:"elapsed"`
	Team      Team           `json:"team"`
	Message   string         `json:"message"`
	Severity  Severity       `json:"severity"`
	Points    int64          `json:"points"`
	AttackID  string         `json:"attackId,omitempty"`
	DefenseID string         `json:"defenseId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Clone returns a copy that shares nothing mutable with e.
func (e BattleEvent) Clone() BattleEvent {
	if e.Metadata != nil {
		e.Metadata = maps.Clone(e.Metadata)
	}
	return e
}
