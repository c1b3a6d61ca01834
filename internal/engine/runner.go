package engine

import (
	"context"
	"errors"
	"time"

	"github.com/OCAP2/battlesim/pkg/core"
)

// ErrRunnerStopped is returned by Run after Stop.
var ErrRunnerStopped = errors.New("runner stopped")

type command int

const (
	cmdPause command = iota
	cmdResume
	cmdStop
)

type request struct {
	cmd  command
	done chan struct{}
}

// Runner drives an engine from a fixed-cadence wall-clock ticker. Every
// engine call happens on the goroutine executing Run, so Pause, Resume and
// Stop are safe from any goroutine.
type Runner struct {
	engine   *Engine
	interval time.Duration
	step     time.Duration
	logger   Logger

	requests chan request
	finished chan struct{}
}

// NewRunner ticks e every interval of wall time, advancing speed times as
// much simulated time per tick. A non-positive speed means real time.
func NewRunner(e *Engine, interval time.Duration, speed float64) *Runner {
	if speed <= 0 {
		speed = 1
	}
	return &Runner{
		engine:   e,
		interval: interval,
		step:     time.Duration(float64(interval) * speed),
		logger:   e.logger,
		requests: make(chan request),
		finished: make(chan struct{}),
	}
}

// Run ticks until the battle completes (nil), ctx is cancelled (ctx.Err())
// or Stop is called (ErrRunnerStopped). A non-nil tick error is logged and
// ticking continues; in strict mode the engine panics instead. The battle
// must already have been started.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.finished)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.engine.Stop()
			r.logger.Info("runner stopped by context")
			return ctx.Err()
		case req := <-r.requests:
			stop := r.handle(req.cmd)
			close(req.done)
			if stop {
				r.logger.Info("runner stopped manually")
				return ErrRunnerStopped
			}
		case <-ticker.C:
			if err := r.engine.Tick(r.step); err != nil {
				r.logger.Error("tick failed", "error", err)
			}
			if r.engine.status == core.StatusComplete {
				return nil
			}
		}
	}
}

func (r *Runner) handle(cmd command) (stop bool) {
	switch cmd {
	case cmdPause:
		r.engine.Pause()
	case cmdResume:
		r.engine.Resume()
	case cmdStop:
		r.engine.Stop()
		return true
	}
	return false
}

// Pause pauses the engine and returns once it is paused.
func (r *Runner) Pause() { r.send(cmdPause) }

// Resume resumes the engine and returns once it is running.
func (r *Runner) Resume() { r.send(cmdResume) }

// Stop stops the engine and returns once no further callback can fire.
func (r *Runner) Stop() { r.send(cmdStop) }

// Done is closed when Run returns.
func (r *Runner) Done() <-chan struct{} { return r.finished }

func (r *Runner) send(cmd command) {
	req := request{cmd: cmd, done: make(chan struct{})}
	select {
	case r.requests <- req:
		<-req.done
	case <-r.finished:
	}
}
