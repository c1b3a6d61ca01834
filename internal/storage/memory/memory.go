// internal/storage/memory/memory.go
package memory

import (
	"errors"
	"sync"

	"github.com/OCAP2/battlesim/internal/config"
	"github.com/OCAP2/battlesim/pkg/core"
)

var (
	// ErrNoBattle is returned when events arrive before StartBattle.
	ErrNoBattle = errors.New("no battle started")
)

// Backend stores battle events in memory and exports them to JSON
type Backend struct {
	cfg    config.MemoryConfig
	battle *core.BattleState
	events []core.BattleEvent

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartBattle begins recording a new battle. Events of a previous battle
// are discarded.
func (b *Backend) StartBattle(state core.BattleState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := state.Clone()
	st.Events = nil
	b.battle = &st
	b.events = b.events[:0]
	b.lastExportPath = ""
	return nil
}

// RecordEvent appends e to the current battle.
func (b *Backend) RecordEvent(e core.BattleEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.battle == nil {
		return ErrNoBattle
	}
	b.events = append(b.events, e.Clone())
	return nil
}

// EndBattle exports the recorded battle with final's outcome.
func (b *Backend) EndBattle(final core.BattleState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.battle == nil {
		return ErrNoBattle
	}
	return b.exportJSON(final)
}

// Events returns a copy of the events recorded so far.
func (b *Backend) Events() []core.BattleEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.BattleEvent, len(b.events))
	for i, e := range b.events {
		out[i] = e.Clone()
	}
	return out
}

// GetExportedFilePath returns the path of the last export, empty before
// the first EndBattle.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
