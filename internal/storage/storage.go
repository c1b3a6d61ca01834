// internal/storage/storage.go
package storage

import "github.com/OCAP2/battlesim/pkg/core"

// Backend is the interface all storage implementations must satisfy.
// A backend only ever receives copies; nothing it does feeds back into
// the engine.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Battle management
	StartBattle(state core.BattleState) error
	EndBattle(final core.BattleState) error

	// Event recording, in log order
	RecordEvent(e core.BattleEvent) error
}

// Exporter is an optional interface for backends that write a replay
// file when the battle ends.
type Exporter interface {
	GetExportedFilePath() string
}
