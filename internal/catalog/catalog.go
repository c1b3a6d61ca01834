// Package catalog holds the static attack and defense profiles. Lookups are
// switches over the typed kinds so adding a kind without a profile is caught
// by the exhaustiveness tests rather than by a missing map key at runtime.
package catalog

import (
	"time"

	"github.com/OCAP2/battlesim/pkg/core"
)

// AttackProfile is the static description of an attack kind.
type AttackProfile struct {
	Kind         core.AttackKind
	Severity     core.Severity
	BasePoints   int64
	SuccessBonus int64
	Duration     time.Duration
	Target       core.Subsystem
	// Counter is credited to red on success in addition to AttacksSuccessful.
	Counter core.ScoreCategory
}

// DefenseProfile is the static description of a defense kind.
type DefenseProfile struct {
	Kind       core.DefenseKind
	Blocks     []core.AttackKind
	Strength   int
	BlockValue int64
	// Counter is credited to blue on every block in addition to AttacksBlocked.
	Counter core.ScoreCategory
}

// Attack returns the profile of k. ok is false for an undeclared kind.
func Attack(k core.AttackKind) (p AttackProfile, ok bool) {
	p.Kind = k
	switch k {
	case core.AttackPortScan:
		p.Severity, p.BasePoints, p.SuccessBonus = core.SeverityLow, 5, 10
		p.Duration, p.Target = 2*time.Second, core.SubsystemNetwork
	case core.AttackPhishing:
		p.Severity, p.BasePoints, p.SuccessBonus = core.SeverityMedium, 10, 30
		p.Duration, p.Target = 4*time.Second, core.SubsystemAuth
	case core.AttackBruteForce:
		p.Severity, p.BasePoints, p.SuccessBonus = core.SeverityMedium, 10, 25
		p.Duration, p.Target = 3*time.Second, core.SubsystemAuth
	case core.AttackSQLInjection:
		p.Severity, p.BasePoints, p.SuccessBonus = core.SeverityHigh, 15, 40
		p.Duration, p.Target = 3*time.Second, core.SubsystemDatabase
	case core.AttackXSS:
		p.Severity, p.BasePoints, p.SuccessBonus = core.SeverityMedium, 10, 20
		p.Duration, p.Target = 2*time.Second, core.SubsystemWebApp
	case core.AttackDDoS:
		p.Severity, p.BasePoints, p.SuccessBonus = core.SeverityHigh, 15, 35
		p.Duration, p.Target = 5*time.Second, core.SubsystemNetwork
	case core.AttackPrivilegeEscalation:
		p.Severity, p.BasePoints, p.SuccessBonus = core.SeverityHigh, 20, 50
		p.Duration, p.Target = 4*time.Second, core.SubsystemEndpoints
	case core.AttackLateralMovement:
		p.Severity, p.BasePoints, p.SuccessBonus = core.SeverityHigh, 20, 45
		p.Duration, p.Target = 4*time.Second, core.SubsystemEndpoints
	case core.AttackDataExfiltration:
		p.Severity, p.BasePoints, p.SuccessBonus = core.SeverityCritical, 25, 75
		p.Duration, p.Target = 5*time.Second, core.SubsystemDataStore
		p.Counter = core.CategoryDataExfiltrated
	case core.AttackRansomware:
		p.Severity, p.BasePoints, p.SuccessBonus = core.SeverityCritical, 30, 100
		p.Duration, p.Target = 6*time.Second, core.SubsystemEndpoints
	default:
		return AttackProfile{}, false
	}
	return p, true
}

// Defense returns the profile of k. ok is false for an undeclared kind.
func Defense(k core.DefenseKind) (p DefenseProfile, ok bool) {
	p.Kind = k
	p.Strength = 100
	switch k {
	case core.DefenseFirewall:
		p.Blocks = []core.AttackKind{core.AttackPortScan, core.AttackBruteForce, core.AttackDDoS}
		p.BlockValue, p.Counter = 25, core.CategoryBan
	case core.DefenseWAF:
		p.Blocks = []core.AttackKind{core.AttackSQLInjection, core.AttackXSS}
		p.BlockValue = 30
	case core.DefenseIDS:
		p.Blocks = []core.AttackKind{core.AttackPortScan, core.AttackLateralMovement, core.AttackPrivilegeEscalation}
		p.BlockValue, p.Counter = 20, core.CategoryIncidentResolved
		p.Strength = 80
	case core.DefenseRateLimiter:
		p.Blocks = []core.AttackKind{core.AttackBruteForce, core.AttackDDoS}
		p.BlockValue, p.Counter = 20, core.CategoryBan
		p.Strength = 90
	case core.DefenseMFA:
		p.Blocks = []core.AttackKind{core.AttackPhishing, core.AttackBruteForce}
		p.BlockValue = 30
	case core.DefenseEDR:
		p.Blocks = []core.AttackKind{core.AttackRansomware, core.AttackPrivilegeEscalation, core.AttackLateralMovement}
		p.BlockValue, p.Counter = 40, core.CategoryIncidentResolved
		p.Strength = 120
	case core.DefenseDLP:
		p.Blocks = []core.AttackKind{core.AttackDataExfiltration}
		p.BlockValue = 50
	case core.DefenseHoneypot:
		p.Blocks = []core.AttackKind{core.AttackPortScan, core.AttackLateralMovement, core.AttackBruteForce}
		p.BlockValue, p.Counter = 35, core.CategoryHoneypotTriggered
		p.Strength = 60
	default:
		return DefenseProfile{}, false
	}
	return p, true
}

// BlocksKind reports whether the profile lists k.
func (p DefenseProfile) BlocksKind(k core.AttackKind) bool {
	for _, b := range p.Blocks {
		if b == k {
			return true
		}
	}
	return false
}

// Wear is the strength a defense loses for stopping an attack of severity s.
func Wear(s core.Severity) int {
	switch s {
	case core.SeverityLow:
		return 2
	case core.SeverityMedium:
		return 5
	case core.SeverityHigh:
		return 10
	case core.SeverityCritical:
		return 20
	default:
		return 0
	}
}

// DefendedKinds returns the attack kinds at least one of the given defenses
// can block.
func DefendedKinds(defenses []core.DefenseKind) map[core.AttackKind]bool {
	out := make(map[core.AttackKind]bool)
	for _, d := range defenses {
		p, ok := Defense(d)
		if !ok {
			continue
		}
		for _, k := range p.Blocks {
			out[k] = true
		}
	}
	return out
}
