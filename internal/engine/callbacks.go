package engine

import "github.com/OCAP2/battlesim/pkg/core"

// Callbacks is the push interface of the engine. Every field is optional.
// Values handed to a callback are copies; mutating them has no effect.
// Callbacks run on the ticking goroutine, after the matching event has been
// appended to the log.
type Callbacks struct {
	OnAttackLaunched    func(core.Attack)
	OnAttackBlocked     func(core.Attack, core.Defense)
	OnAttackSuccess     func(core.Attack)
	OnDefenseActivated  func(core.Defense)
	OnHoneypotTriggered func(core.Attack, core.Defense)
	OnPhaseChange       func(from, to core.Phase)
	OnScoreUpdate       func(core.BattleScore)
	OnCriticalMoment    func(core.BattleEvent)
	OnBattleComplete    func(core.Winner, core.BattleScore)
}
