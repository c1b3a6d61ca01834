package sqlitestorage

import (
	"maps"
	"time"

	"github.com/OCAP2/battlesim/pkg/core"
	"gorm.io/datatypes"
)

// BattleRecord is one row per recorded battle.
type BattleRecord struct {
	ID         string `gorm:"primaryKey"`
	Scenario   string
	StartedAt  time.Time
	EndedAt    *time.Time
	Status     string
	Winner     string
	ElapsedMs  int64
	RedPoints  int64
	BluePoints int64
	Score      datatypes.JSONType[core.BattleScore]
}

// EventRecord is one battle event. Seq is the log-assigned event ID.
type EventRecord struct {
	ID        uint   `gorm:"primarykey"`
	BattleID  string `gorm:"index:idx_battle_seq,priority:1;index:idx_battle_kind,priority:1"`
	Seq       uint64 `gorm:"index:idx_battle_seq,priority:2"`
	Kind      string `gorm:"index:idx_battle_kind,priority:2"`
	Timestamp time.Time
	ElapsedMs int64
	Team      string
	Message   string
	Severity  string
	Points    int64
	AttackID  string
	DefenseID string
	Metadata  datatypes.JSONMap
}

// Models lists every table the backend migrates.
var Models = []any{&BattleRecord{}, &EventRecord{}}

func newEventRecord(battleID string, e core.BattleEvent) EventRecord {
	r := EventRecord{
		BattleID:  battleID,
		Seq:       e.ID,
		Kind:      string(e.Kind),
		Timestamp: e.Timestamp,
		ElapsedMs: e.Elapsed.Milliseconds(),
		Team:      string(e.Team),
		Message:   e.Message,
		Severity:  e.Severity.String(),
		Points:    e.Points,
		AttackID:  e.AttackID,
		DefenseID: e.DefenseID,
	}
	if e.Metadata != nil {
		r.Metadata = datatypes.JSONMap(maps.Clone(e.Metadata))
	}
	return r
}

// Event converts the row back into a BattleEvent. Elapsed keeps
// millisecond precision and metadata numbers decode as float64.
func (r EventRecord) Event() core.BattleEvent {
	e := core.BattleEvent{
		ID:        r.Seq,
		Kind:      core.EventKind(r.Kind),
		Timestamp: r.Timestamp,
		Elapsed:   time.Duration(r.ElapsedMs) * time.Millisecond,
		Team:      core.Team(r.Team),
		Message:   r.Message,
		Points:    r.Points,
		AttackID:  r.AttackID,
		DefenseID: r.DefenseID,
	}
	_ = e.Severity.UnmarshalText([]byte(r.Severity))
	if r.Metadata != nil {
		e.Metadata = map[string]any(r.Metadata)
	}
	return e
}
