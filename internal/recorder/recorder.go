// Package recorder feeds a battle's event stream into a storage backend.
package recorder

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/OCAP2/battlesim/internal/eventlog"
	"github.com/OCAP2/battlesim/internal/storage"
	"github.com/OCAP2/battlesim/pkg/core"
)

// DefaultBuffer is the subscription queue size used when none is given.
const DefaultBuffer = 256

// Source is what the recorder reads a battle from. *engine.Engine
// satisfies it.
type Source interface {
	GetState() core.BattleState
	Subscribe(h eventlog.Handler, opts ...eventlog.Option) (unsubscribe func())
}

// PendingProvider is an optional interface for backends that buffer
// writes and can report how many are outstanding.
type PendingProvider interface {
	Pending() int
}

// Recorder copies every event of one battle into a backend.
type Recorder struct {
	backend storage.Backend
	logger  eventlog.Logger
	buffer  int

	mu          sync.Mutex
	unsubscribe func()
	battleID    string

	recorded atomic.Int64
	failed   atomic.Int64
	firstErr atomic.Pointer[error]
}

// New creates a recorder writing into backend. A buffer <= 0 uses
// DefaultBuffer.
func New(backend storage.Backend, logger eventlog.Logger, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Recorder{backend: backend, logger: logger, buffer: buffer}
}

// Attach starts recording the battle src is running. It must be called
// from the goroutine driving src, after Start and before the next Tick:
// events already in the log are copied first, later ones arrive through
// a buffered, blocking subscription so none are dropped.
func (r *Recorder) Attach(src Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.unsubscribe != nil {
		return fmt.Errorf("recorder already attached to battle %s", r.battleID)
	}

	state := src.GetState()
	if state.Status == core.StatusIdle {
		return fmt.Errorf("no battle to record")
	}
	if err := r.backend.StartBattle(state); err != nil {
		return fmt.Errorf("starting recording: %w", err)
	}
	for _, e := range state.Events {
		r.record(e)
	}

	r.battleID = state.BattleID
	r.unsubscribe = src.Subscribe(r.record,
		eventlog.Named("recorder"),
		eventlog.Buffered(r.buffer),
		eventlog.Blocking(),
	)
	r.logger.Info("recording battle", "battle", state.BattleID, "backlog", len(state.Events))
	return nil
}

// Finish drains the subscription and hands final to the backend. The
// first RecordEvent failure, if any, is returned alongside.
func (r *Recorder) Finish(final core.BattleState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.unsubscribe == nil {
		return fmt.Errorf("recorder not attached")
	}
	r.unsubscribe()
	r.unsubscribe = nil

	var errs []error
	if p := r.firstErr.Load(); p != nil {
		errs = append(errs, fmt.Errorf("%d event(s) not recorded: %w", r.failed.Load(), *p))
	}
	if err := r.backend.EndBattle(final); err != nil {
		errs = append(errs, fmt.Errorf("ending recording: %w", err))
	}

	r.logger.Info("recording finished",
		"battle", r.battleID, "recorded", r.recorded.Load(), "failed", r.failed.Load())
	if ex, ok := r.backend.(storage.Exporter); ok && ex.GetExportedFilePath() != "" {
		r.logger.Info("battle exported", "battle", r.battleID, "path", ex.GetExportedFilePath())
	}
	return errors.Join(errs...)
}

// Recorded returns how many events the backend accepted.
func (r *Recorder) Recorded() int64 { return r.recorded.Load() }

// Failed returns how many events the backend rejected.
func (r *Recorder) Failed() int64 { return r.failed.Load() }

// Pending reports events accepted by the backend but not yet written.
// Zero for backends that write synchronously.
func (r *Recorder) Pending() int {
	if p, ok := r.backend.(PendingProvider); ok {
		return p.Pending()
	}
	return 0
}

func (r *Recorder) record(e core.BattleEvent) {
	if err := r.backend.RecordEvent(e); err != nil {
		if r.failed.Add(1) == 1 {
			r.firstErr.Store(&err)
		}
		r.logger.Error("recording event failed", "event", e.ID, "kind", e.Kind, "error", err)
		return
	}
	r.recorded.Add(1)
}
