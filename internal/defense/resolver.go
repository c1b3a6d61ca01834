// Package defense resolves in-flight attacks against the defense roster.
//
// When more than one defense could stop an attack, the one with the highest
// current strength wins; equal strengths fall back to catalog order.
package defense

import (
	"slices"
	"time"

	"github.com/OCAP2/battlesim/internal/catalog"
	"github.com/OCAP2/battlesim/pkg/core"
)

// Outcome is the terminal result of one attack.
type Outcome struct {
	Attack core.Attack
	// Blocked is set when Defense stopped the attack.
	Blocked bool
	Defense core.Defense
	Profile catalog.DefenseProfile
	// DefenseCompromised is set when the block wore Defense down to zero.
	DefenseCompromised bool
	// Activated lists reactive defenses brought online by a breach.
	Activated []core.Defense
}

// Resolver owns every in-flight attack and every defense of a battle. It is
// the only component allowed to mutate an attack after launch.
type Resolver struct {
	defenses []core.Defense
	profiles []catalog.DefenseProfile
	armed    []bool
	inFlight []core.Attack
}

// New builds the roster from every defense kind sc references in any phase.
// All defenses start idle; EnterPhase brings them online.
func New(sc core.BattleScenario) *Resolver {
	used := make(map[core.DefenseKind]bool)
	for _, p := range sc.Phases {
		for _, k := range p.EnabledDefenses {
			used[k] = true
		}
		for _, k := range p.ReactiveDefenses {
			used[k] = true
		}
	}

	r := &Resolver{}
	for _, k := range core.AllDefenseKinds() {
		if !used[k] {
			continue
		}
		p, ok := catalog.Defense(k)
		if !ok {
			continue
		}
		r.defenses = append(r.defenses, core.Defense{
			ID:       "def-" + k.String(),
			Kind:     k,
			Status:   core.DefenseIdle,
			Strength: p.Strength,
		})
		r.profiles = append(r.profiles, p)
	}
	r.armed = make([]bool, len(r.defenses))
	return r
}

// EnterPhase applies the defense configuration of cfg and returns the
// defenses it switched from idle to active. Defenses the phase neither
// enables nor arms go back to idle; compromised defenses stay compromised.
func (r *Resolver) EnterPhase(cfg core.PhaseConfig) []core.Defense {
	var activated []core.Defense
	for i := range r.defenses {
		d := &r.defenses[i]
		r.armed[i] = false
		if d.Status == core.DefenseCompromised {
			continue
		}
		switch {
		case slices.Contains(cfg.EnabledDefenses, d.Kind):
			d.Reactive = false
			if d.Status == core.DefenseIdle {
				d.Status = core.DefenseActive
				activated = append(activated, *d)
			}
		case slices.Contains(cfg.ReactiveDefenses, d.Kind):
			d.Reactive = true
			r.armed[i] = true
			if d.TriggeredBy == "" {
				d.Status = core.DefenseIdle
			}
		default:
			d.Status = core.DefenseIdle
		}
	}
	return activated
}

// Track hands a freshly launched attack to the resolver.
func (r *Resolver) Track(a core.Attack) {
	r.inFlight = append(r.inFlight, a)
}

// Advance moves every tracked attack forward to simulated time now and
// resolves those whose flight duration has elapsed, in launch order.
func (r *Resolver) Advance(now time.Duration) []Outcome {
	for i := range r.defenses {
		if r.defenses[i].Status == core.DefenseBlocking {
			r.defenses[i].Status = core.DefenseActive
		}
	}

	var outcomes []Outcome
	kept := r.inFlight[:0]
	for _, a := range r.inFlight {
		if a.Status == core.AttackLaunching {
			a.Status = core.AttackInFlight
		}
		age := a.Age(now)
		a.Progress = progress(age, a.Duration)
		if age < a.Duration {
			kept = append(kept, a)
			continue
		}
		a.ResolvedAt = now
		outcomes = append(outcomes, r.resolve(a))
	}
	clear(r.inFlight[len(kept):])
	r.inFlight = kept
	return outcomes
}

func (r *Resolver) resolve(a core.Attack) Outcome {
	if i := r.pick(a.Kind); i >= 0 {
		d := &r.defenses[i]
		d.Blocked++
		d.Strength -= catalog.Wear(a.Severity)
		out := Outcome{Blocked: true, Profile: r.profiles[i]}
		if d.Strength <= 0 {
			d.Strength = 0
			d.Status = core.DefenseCompromised
			out.DefenseCompromised = true
		} else {
			d.Status = core.DefenseBlocking
		}
		a.Status = core.AttackBlocked
		a.BlockedBy = d.ID
		out.Attack = a
		out.Defense = *d
		return out
	}

	a.Status = core.AttackSuccess
	out := Outcome{Attack: a}
	for i := range r.defenses {
		d := &r.defenses[i]
		if r.armed[i] && d.Status == core.DefenseIdle && r.profiles[i].BlocksKind(a.Kind) {
			d.Status = core.DefenseActive
			d.TriggeredBy = a.ID
			out.Activated = append(out.Activated, *d)
		}
	}
	return out
}

// pick returns the index of the defense that stops kind, or -1.
func (r *Resolver) pick(kind core.AttackKind) int {
	best := -1
	for i, d := range r.defenses {
		if !d.CanBlock() || !r.profiles[i].BlocksKind(kind) {
			continue
		}
		if best < 0 || d.Strength > r.defenses[best].Strength {
			best = i
		}
	}
	return best
}

// Expire fails every attack still in flight, as on battle completion.
func (r *Resolver) Expire(now time.Duration) []core.Attack {
	out := make([]core.Attack, 0, len(r.inFlight))
	for _, a := range r.inFlight {
		a.Status = core.AttackFailed
		a.Progress = progress(a.Age(now), a.Duration)
		a.ResolvedAt = now
		out = append(out, a)
	}
	r.inFlight = nil
	return out
}

// Active returns a copy of the attacks still in flight.
func (r *Resolver) Active() []core.Attack { return slices.Clone(r.inFlight) }

// Defenses returns a copy of the roster in catalog order.
func (r *Resolver) Defenses() []core.Defense { return slices.Clone(r.defenses) }

// Defended reports whether any defense on the roster could ever block kind.
func (r *Resolver) Defended(kind core.AttackKind) bool {
	for _, p := range r.profiles {
		if p.BlocksKind(kind) {
			return true
		}
	}
	return false
}

func progress(age, duration time.Duration) float64 {
	if duration <= 0 || age >= duration {
		return 1
	}
	return float64(age) / float64(duration)
}
