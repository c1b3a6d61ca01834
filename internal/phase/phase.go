// Package phase implements the countdown that walks a battle through its
// fixed phase sequence.
package phase

import (
	"time"

	"github.com/OCAP2/battlesim/pkg/core"
)

// Transition records one step of the phase sequence.
type Transition struct {
	From core.Phase
	To   core.Phase
	// At is the simulated elapsed time at which the step happened.
	At time.Duration
}

// Controller owns the current phase and its remaining time. It is not safe
// for concurrent use; the engine driver is its only caller.
type Controller struct {
	phases    []core.PhaseConfig
	idx       int
	remaining time.Duration
	elapsed   time.Duration
	paused    bool
}

// New starts a controller at the first configured phase. An empty phase
// list yields a controller that is already complete.
func New(phases []core.PhaseConfig) *Controller {
	c := &Controller{phases: phases}
	if len(phases) > 0 {
		c.remaining = phases[0].Duration
	}
	return c
}

// Current returns the phase in effect.
func (c *Controller) Current() core.Phase {
	if c.idx >= len(c.phases) {
		return core.PhaseComplete
	}
	return c.phases[c.idx].Name
}

// CurrentConfig returns the configuration of the current phase. ok is false
// once the sequence is complete.
func (c *Controller) CurrentConfig() (core.PhaseConfig, bool) {
	if c.idx >= len(c.phases) {
		return core.PhaseConfig{}, false
	}
	return c.phases[c.idx], true
}

// Remaining is the time left in the current phase, within [0, duration].
func (c *Controller) Remaining() time.Duration { return c.remaining }

// Elapsed is the total simulated time the controller has advanced.
func (c *Controller) Elapsed() time.Duration { return c.elapsed }

// Complete reports whether the final phase has expired.
func (c *Controller) Complete() bool { return c.idx >= len(c.phases) }

// Paused reports whether ticks are currently ignored.
func (c *Controller) Paused() bool { return c.paused }

// Pause freezes the countdown. Idempotent.
func (c *Controller) Pause() { c.paused = true }

// Resume unfreezes the countdown. Idempotent.
func (c *Controller) Resume() { c.paused = false }

// Tick advances the countdown by delta and returns how much time was
// actually consumed together with every phase step taken, in order. A delta
// longer than the current phase cascades through the following phases. Once
// complete, or while paused, Tick consumes nothing.
func (c *Controller) Tick(delta time.Duration) (consumed time.Duration, steps []Transition) {
	if c.paused || delta <= 0 {
		return 0, nil
	}
	for delta > 0 && !c.Complete() {
		if delta < c.remaining {
			c.remaining -= delta
			c.elapsed += delta
			consumed += delta
			break
		}
		delta -= c.remaining
		c.elapsed += c.remaining
		consumed += c.remaining
		steps = append(steps, c.advance())
	}
	return consumed, steps
}

func (c *Controller) advance() Transition {
	from := c.Current()
	c.idx++
	if c.Complete() {
		c.remaining = 0
	} else {
		c.remaining = c.phases[c.idx].Duration
	}
	return Transition{From: from, To: c.Current(), At: c.elapsed}
}
