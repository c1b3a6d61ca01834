// Package scoring accumulates team points and derives the advantage.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/OCAP2/battlesim/pkg/core"
)

var (
	// ErrNegativePoints is returned for a negative amount; no penalty
	// mechanism exists.
	ErrNegativePoints = errors.New("points must not be negative")
	// ErrNoTeam is returned when points are credited to the system team.
	ErrNoTeam = errors.New("only red and blue can score")
)

// Apply credits amount to team and bumps the counter for category, then
// refreshes the advantage.
func Apply(s *core.BattleScore, team core.Team, amount int64, category core.ScoreCategory) error {
	if amount < 0 {
		return fmt.Errorf("%w: %d for %s", ErrNegativePoints, amount, team)
	}
	ts := s.Team(team)
	if ts == nil {
		return fmt.Errorf("%w: %q", ErrNoTeam, team)
	}
	ts.Points += amount
	switch category {
	case core.CategoryAttackLaunched:
		ts.AttacksLaunched++
	case core.CategoryAttackSuccess:
		ts.AttacksSuccessful++
	case core.CategoryDataExfiltrated:
		ts.DataExfiltrated++
	case core.CategoryAttackBlocked:
		ts.AttacksBlocked++
	case core.CategoryHoneypotTriggered:
		ts.HoneypotsTriggered++
	case core.CategoryBan:
		ts.Bans++
	case core.CategoryIncidentResolved:
		ts.IncidentsResolved++
	}
	s.Advantage, s.AdvantagePoints = ComputeAdvantage(*s)
	return nil
}

// ComputeAdvantage classifies the lead by the raw sign of the point
// difference. There is no dead-band: any lead counts.
func ComputeAdvantage(s core.BattleScore) (core.Side, int64) {
	diff := s.Blue.Points - s.Red.Points
	switch {
	case diff > 0:
		return core.SideBlue, diff
	case diff < 0:
		return core.SideRed, -diff
	default:
		return core.SideNeutral, 0
	}
}

// Winner decides the final result. Exact ties are a draw.
func Winner(s core.BattleScore) core.Winner {
	switch side, _ := ComputeAdvantage(s); side {
	case core.SideRed:
		return core.WinnerRed
	case core.SideBlue:
		return core.WinnerBlue
	default:
		return core.WinnerDraw
	}
}

// Scale applies a side multiplier to a catalog value, rounding to the
// nearest point. Negative results are clamped to zero.
func Scale(base int64, multiplier float64) int64 {
	v := math.Round(float64(base) * multiplier)
	if v < 0 {
		return 0
	}
	return int64(v)
}

// LeadTracker detects lead changes between red and blue. Passing through
// neutral does not reset the last leader, so red -> neutral -> blue is one
// change and red -> neutral -> red is none.
type LeadTracker struct {
	leader core.Side
}

// Observe records the current side and reports whether the lead flipped.
func (l *LeadTracker) Observe(side core.Side) bool {
	if side == core.SideNeutral {
		return false
	}
	flipped := l.leader != "" && l.leader != side
	l.leader = side
	return flipped
}

// Leader is the last non-neutral side observed.
func (l *LeadTracker) Leader() core.Side { return l.leader }

// BlockTiming is the launch-to-block latency of one blocked attack.
type BlockTiming struct {
	AttackID   string
	LaunchedAt time.Duration
	BlockedAt  time.Duration
}

// Latency is the time from launch to block.
func (b BlockTiming) Latency() time.Duration { return b.BlockedAt - b.LaunchedAt }

// Bonus is one end-of-battle award.
type Bonus struct {
	Team     core.Team
	Points   int64
	Reason   string
	AttackID string
}

const (
	ReasonZeroBreach   = "zero_breach"
	ReasonFastResponse = "fast_response"
)

// EndBonuses computes the awards due at completion: the zero-breach bonus
// when no subsystem was ever compromised and one fast-response bonus per
// block that landed within the latency window. Zero-point awards are
// omitted.
func EndBonuses(rules core.ScoringRules, breached bool, blocks []BlockTiming) []Bonus {
	var out []Bonus
	if !breached && rules.ZeroBreachBonus > 0 {
		out = append(out, Bonus{Team: core.TeamBlue, Points: rules.ZeroBreachBonus, Reason: ReasonZeroBreach})
	}
	if rules.FastResponseBonus > 0 && rules.FastResponseWindow > 0 {
		for _, b := range blocks {
			if b.Latency() <= rules.FastResponseWindow {
				out = append(out, Bonus{
					Team:     core.TeamBlue,
					Points:   rules.FastResponseBonus,
					Reason:   ReasonFastResponse,
					AttackID: b.AttackID,
				})
			}
		}
	}
	return out
}
