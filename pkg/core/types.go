// pkg/core/types.go
package core

import (
	"fmt"
	"strings"
)

// Team identifies the owner of a score or an event.
type Team string

const (
	TeamRed    Team = "red"
	TeamBlue   Team = "blue"
	TeamSystem Team = "system"
)

// Side is the advantage classification of a BattleScore.
type Side string

const (
	SideRed     Side = "red"
	SideBlue    Side = "blue"
	SideNeutral Side = "neutral"
)

// Winner is decided once at battle completion. Empty until then.
type Winner string

const (
	WinnerNone Winner = ""
	WinnerRed  Winner = "red"
	WinnerBlue Winner = "blue"
	WinnerDraw Winner = "draw"
)

// Phase is a stage of the battle. The order of the constants is the only
// order the phase controller will ever walk.
type Phase uint8

const (
	PhaseReconnaissance Phase = iota
	PhaseExploitation
	PhaseContainment
	PhaseComplete
)

var phaseNames = []string{"reconnaissance", "exploitation", "containment", "complete"}

// PhaseOrder lists the configurable phases in their fixed sequence.
var PhaseOrder = []Phase{PhaseReconnaissance, PhaseExploitation, PhaseContainment}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// Valid reports whether p is one of the declared phases.
func (p Phase) Valid() bool { return int(p) < len(phaseNames) }

func (p Phase) MarshalText() ([]byte, error) { return marshalName(phaseNames, int(p), "phase") }

func (p *Phase) UnmarshalText(b []byte) error {
	i, err := lookupName(phaseNames, string(b), "phase")
	if err != nil {
		return err
	}
	*p = Phase(i)
	return nil
}

// ParsePhase resolves a phase by name.
func ParsePhase(name string) (Phase, error) {
	var p Phase
	err := p.UnmarshalText([]byte(name))
	return p, err
}

// AttackKind enumerates every attack the engine can synthesize.
type AttackKind uint8

const (
	AttackPortScan AttackKind = iota
	AttackPhishing
	AttackBruteForce
	AttackSQLInjection
	AttackXSS
	AttackDDoS
	AttackPrivilegeEscalation
	AttackLateralMovement
	AttackDataExfiltration
	AttackRansomware
)

var attackKindNames = []string{
	"port_scan",
	"phishing",
	"brute_force",
	"sql_injection",
	"xss",
	"ddos",
	"privilege_escalation",
	"lateral_movement",
	"data_exfiltration",
	"ransomware",
}

// AllAttackKinds returns every attack kind in catalog order.
func AllAttackKinds() []AttackKind {
	out := make([]AttackKind, len(attackKindNames))
	for i := range out {
		out[i] = AttackKind(i)
	}
	return out
}

func (k AttackKind) String() string {
	if int(k) < len(attackKindNames) {
		return attackKindNames[k]
	}
	return fmt.Sprintf("attack(%d)", uint8(k))
}

func (k AttackKind) Valid() bool { return int(k) < len(attackKindNames) }

func (k AttackKind) MarshalText() ([]byte, error) {
	return marshalName(attackKindNames, int(k), "attack kind")
}

func (k *AttackKind) UnmarshalText(b []byte) error {
	i, err := lookupName(attackKindNames, string(b), "attack kind")
	if err != nil {
		return err
	}
	*k = AttackKind(i)
	return nil
}

// ParseAttackKind resolves an attack kind by name.
func ParseAttackKind(name string) (AttackKind, error) {
	var k AttackKind
	err := k.UnmarshalText([]byte(name))
	return k, err
}

// DefenseKind enumerates every defensive mechanism.
type DefenseKind uint8

const (
	DefenseFirewall DefenseKind = iota
	DefenseWAF
	DefenseIDS
	DefenseRateLimiter
	DefenseMFA
	DefenseEDR
	DefenseDLP
	DefenseHoneypot
)

var defenseKindNames = []string{
	"firewall",
	"waf",
	"ids",
	"rate_limiter",
	"mfa",
	"edr",
	"dlp",
	"honeypot",
}

// AllDefenseKinds returns every defense kind in catalog order.
func AllDefenseKinds() []DefenseKind {
	out := make([]DefenseKind, len(defenseKindNames))
	for i := range out {
		out[i] = DefenseKind(i)
	}
	return out
}

func (k DefenseKind) String() string {
	if int(k) < len(defenseKindNames) {
		return defenseKindNames[k]
	}
	return fmt.Sprintf("defense(%d)", uint8(k))
}

func (k DefenseKind) Valid() bool { return int(k) < len(defenseKindNames) }

func (k DefenseKind) MarshalText() ([]byte, error) {
	return marshalName(defenseKindNames, int(k), "defense kind")
}

func (k *DefenseKind) UnmarshalText(b []byte) error {
	i, err := lookupName(defenseKindNames, string(b), "defense kind")
	if err != nil {
		return err
	}
	*k = DefenseKind(i)
	return nil
}

// ParseDefenseKind resolves a defense kind by name.
func ParseDefenseKind(name string) (DefenseKind, error) {
	var k DefenseKind
	err := k.UnmarshalText([]byte(name))
	return k, err
}

// Severity grades an attack.
type Severity uint8

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = []string{"low", "medium", "high", "critical"}

func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}
	return fmt.Sprintf("severity(%d)", uint8(s))
}

func (s Severity) MarshalText() ([]byte, error) { return marshalName(severityNames, int(s), "severity") }

func (s *Severity) UnmarshalText(b []byte) error {
	i, err := lookupName(severityNames, string(b), "severity")
	if err != nil {
		return err
	}
	*s = Severity(i)
	return nil
}

// Subsystem is the part of the defended estate an attack aims at.
type Subsystem string

const (
	SubsystemNetwork   Subsystem = "network"
	SubsystemWebApp    Subsystem = "web_app"
	SubsystemAuth      Subsystem = "auth"
	SubsystemDatabase  Subsystem = "database"
	SubsystemEndpoints Subsystem = "endpoints"
	SubsystemDataStore Subsystem = "data_store"
)

// Intensity scales the auto-attack cadence of a phase.
type Intensity string

const (
	IntensityLow      Intensity = "low"
	IntensityMedium   Intensity = "medium"
	IntensityHigh     Intensity = "high"
	IntensityCritical Intensity = "critical"
)

// IntervalFactor returns the multiplier applied to the auto-attack interval.
// ok is false for an unknown intensity. The empty intensity means medium.
func (i Intensity) IntervalFactor() (factor float64, ok bool) {
	switch i {
	case IntensityLow:
		return 1.5, true
	case IntensityMedium, "":
		return 1, true
	case IntensityHigh:
		return 0.75, true
	case IntensityCritical:
		return 0.5, true
	default:
		return 0, false
	}
}

func marshalName(names []string, i int, what string) ([]byte, error) {
	if i < 0 || i >= len(names) {
		return nil, fmt.Errorf("unknown %s %d", what, i)
	}
	return []byte(names[i]), nil
}

func lookupName(names []string, s, what string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range names {
		if n == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", what, s)
}
