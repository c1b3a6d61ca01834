// Package replay rebuilds a battle's outcome from its event log alone.
package replay

import (
	"errors"
	"fmt"

	"github.com/OCAP2/battlesim/internal/scoring"
	"github.com/OCAP2/battlesim/pkg/core"
)

// Report is what an event log says about its battle.
type Report struct {
	Score    core.BattleScore
	Winner   core.Winner
	Events   int
	Complete bool
	// Claimed is the winner recorded in the battle_complete event.
	Claimed core.Winner
}

// Rebuild folds the events into a score. Counters are rebuilt for the
// categories an event kind implies; catalog extras such as bans are not
// recoverable from the log and stay zero.
func Rebuild(events []core.BattleEvent) Report {
	var r Report
	r.Events = len(events)
	for _, e := range events {
		if ts := r.Score.Team(e.Team); ts != nil {
			ts.Points += e.Points
		}
		switch e.Kind {
		case core.EventAttackLaunched:
			r.Score.Red.AttacksLaunched++
		case core.EventAttackSuccess:
			r.Score.Red.AttacksSuccessful++
		case core.EventAttackBlocked:
			r.Score.Blue.AttacksBlocked++
		case core.EventHoneypotTriggered:
			r.Score.Blue.HoneypotsTriggered++
		case core.EventBattleComplete:
			r.Complete = true
			if w, ok := e.Metadata["winner"].(string); ok {
				r.Claimed = core.Winner(w)
			}
		}
	}
	r.Score.Advantage, r.Score.AdvantagePoints = scoring.ComputeAdvantage(r.Score)
	if r.Complete {
		r.Winner = scoring.Winner(r.Score)
	}
	return r
}

// Verify checks the ordering invariants of an event log and that it
// reproduces final. Every problem is reported, joined into one error.
func Verify(events []core.BattleEvent, final core.BattleScore) (Report, error) {
	var errs []error
	for i, e := range events {
		if want := uint64(i + 1); e.ID != want {
			errs = append(errs, fmt.Errorf("event %d: id %d, want %d", i, e.ID, want))
		}
		if e.Points < 0 {
			errs = append(errs, fmt.Errorf("event %d: negative points %d", e.ID, e.Points))
		}
		if i == 0 {
			continue
		}
		prev := events[i-1]
		if e.Timestamp.Before(prev.Timestamp) {
			errs = append(errs, fmt.Errorf("event %d: timestamp %s before event %d", e.ID, e.Timestamp, prev.ID))
		}
		if prev.Kind == core.EventBattleComplete {
			errs = append(errs, fmt.Errorf("event %d: %s after battle_complete", e.ID, e.Kind))
		}
	}

	r := Rebuild(events)
	if r.Score.Red.Points != final.Red.Points {
		errs = append(errs, fmt.Errorf("red points: log says %d, final %d", r.Score.Red.Points, final.Red.Points))
	}
	if r.Score.Blue.Points != final.Blue.Points {
		errs = append(errs, fmt.Errorf("blue points: log says %d, final %d", r.Score.Blue.Points, final.Blue.Points))
	}
	if r.Complete && r.Claimed != r.Winner {
		errs = append(errs, fmt.Errorf("winner: recorded %q, log says %q", r.Claimed, r.Winner))
	}
	return r, errors.Join(errs...)
}
