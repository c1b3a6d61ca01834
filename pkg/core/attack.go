// pkg/core/attack.go
package core

import "time"

// AttackStatus is the lifecycle position of an Attack.
type AttackStatus string

const (
	AttackLaunching AttackStatus = "launching"
	AttackInFlight  AttackStatus = "in_flight"
	AttackBlocked   AttackStatus = "blocked"
	AttackSuccess   AttackStatus = "success"
	AttackFailed    AttackStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s AttackStatus) Terminal() bool {
	return s == AttackBlocked || s == AttackSuccess || s == AttackFailed
}

// Attack is a synthetic offensive action. The engine owns every Attack;
// consumers only ever see copies.
type Attack struct {
	ID         string        `json:"id"`
	Kind       AttackKind    `json:"kind"`
	Severity   Severity      `json:"severity"`
	Status     AttackStatus  `json:"status"`
	Progress   float64       `json:"progress"`
	Target     Subsystem     `json:"target"`
	Phase      Phase         `json:"phase"`
	LaunchedAt time.Duration `json:"launchedAt"`
	Duration   time.Duration `json:"duration"`
	ResolvedAt time.Duration `json:"resolvedAt,omitempty"`
	// BlockedBy is the defense id that stopped the attack, if any.
	BlockedBy string `json:"blockedBy,omitempty"`
}

// Age returns how long the attack has been in the air at simulated time now.
func (a Attack) Age(now time.Duration) time.Duration {
	if now < a.LaunchedAt {
		return 0
	}
	return now - a.LaunchedAt
}
