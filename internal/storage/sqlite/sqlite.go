// Package sqlitestorage records battles into a session-scoped in-memory
// SQLite database, with optional periodic disk dumps via VACUUM INTO.
package sqlitestorage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OCAP2/battlesim/internal/config"
	"github.com/OCAP2/battlesim/internal/database"
	"github.com/OCAP2/battlesim/internal/queue"
	"github.com/OCAP2/battlesim/pkg/core"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultBatchSize = 500

var (
	// ErrNotInitialized is returned by operations that need Init first.
	ErrNotInitialized = errors.New("sqlite backend not initialized")
	// ErrNoBattle is returned when events arrive before StartBattle.
	ErrNoBattle = errors.New("no battle started")
)

// Backend buffers events in a queue and writes them in batches.
type Backend struct {
	cfg     config.SQLiteConfig
	log     zerolog.Logger
	db      *gorm.DB
	pending *queue.Queue[EventRecord]

	mu       sync.Mutex // guards battleID and serialises flushes
	battleID string

	stopChan  chan struct{}
	loops     sync.WaitGroup
	closeOnce sync.Once
}

// New creates a new SQLite storage backend. The database is opened by Init.
func New(cfg config.SQLiteConfig, log zerolog.Logger) *Backend {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Backend{
		cfg:      cfg,
		log:      log.With().Str("component", "sqlite").Logger(),
		pending:  queue.New[EventRecord](),
		stopChan: make(chan struct{}),
	}
}

// Init opens the in-memory database, migrates the schema and starts the
// flush and dump goroutines.
func (b *Backend) Init() error {
	db, err := database.OpenSqlite("", b.log)
	if err != nil {
		return fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}
	if err := db.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	b.db = db

	if b.cfg.FlushInterval > 0 {
		b.loops.Add(1)
		go b.every(b.cfg.FlushInterval, func() {
			if err := b.Flush(); err != nil {
				b.log.Error().Err(err).Msg("Error flushing events")
			}
		})
	}
	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.loops.Add(1)
		go b.every(b.cfg.DumpInterval, func() {
			if err := b.Dump(); err != nil {
				b.log.Error().Err(err).Msg("Error dumping to disk")
			}
		})
	}
	return nil
}

// Close stops the background goroutines, flushes what is pending and
// closes the database.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.stopChan)
		b.loops.Wait()
		if b.db == nil {
			return
		}
		err = b.Flush()
		sqlDB, dbErr := b.db.DB()
		if dbErr == nil {
			err = errors.Join(err, sqlDB.Close())
		}
	})
	return err
}

// StartBattle inserts the battle row; later events are attributed to it.
func (b *Backend) StartBattle(state core.BattleState) error {
	if b.db == nil {
		return ErrNotInitialized
	}
	if err := b.Flush(); err != nil {
		return err
	}
	rec := BattleRecord{
		ID:        state.BattleID,
		Scenario:  state.Scenario,
		StartedAt: state.StartedAt,
		Status:    string(state.Status),
		Score:     datatypes.NewJSONType(state.Score),
	}
	if err := b.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to insert battle %s: %w", state.BattleID, err)
	}

	b.mu.Lock()
	b.battleID = state.BattleID
	b.mu.Unlock()
	b.log.Info().Str("battle", state.BattleID).Str("scenario", state.Scenario).Msg("Recording battle")
	return nil
}

// RecordEvent queues e, flushing once a full batch is pending.
func (b *Backend) RecordEvent(e core.BattleEvent) error {
	b.mu.Lock()
	id := b.battleID
	b.mu.Unlock()
	if id == "" {
		return ErrNoBattle
	}

	b.pending.Push(newEventRecord(id, e))
	if b.pending.Len() >= b.cfg.BatchSize {
		return b.Flush()
	}
	return nil
}

// EndBattle flushes pending events and stores the outcome.
func (b *Backend) EndBattle(final core.BattleState) error {
	b.mu.Lock()
	id := b.battleID
	b.mu.Unlock()
	if id == "" {
		return ErrNoBattle
	}
	if err := b.Flush(); err != nil {
		return err
	}

	ended := time.Now()
	err := b.db.Model(&BattleRecord{ID: id}).Updates(map[string]any{
		"ended_at":    &ended,
		"status":      string(final.Status),
		"winner":      string(final.Winner),
		"elapsed_ms":  final.Elapsed.Milliseconds(),
		"red_points":  final.Score.Red.Points,
		"blue_points": final.Score.Blue.Points,
		"score":       datatypes.NewJSONType(final.Score),
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update battle %s: %w", id, err)
	}

	b.log.Info().Str("battle", id).Str("winner", string(final.Winner)).
		Int64("red", final.Score.Red.Points).Int64("blue", final.Score.Blue.Points).
		Msg("Battle recorded")

	if b.cfg.DumpPath != "" {
		return b.Dump()
	}
	return nil
}

// Flush writes every pending event. On failure the batch is put back.
func (b *Backend) Flush() error {
	if b.db == nil {
		return ErrNotInitialized
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		batch := b.pending.TakeBatch(b.cfg.BatchSize)
		if len(batch) == 0 {
			return nil
		}
		start := time.Now()
		if err := b.db.CreateInBatches(&batch, len(batch)).Error; err != nil {
			b.pending.PushFront(batch...)
			return fmt.Errorf("failed to write %d events: %w", len(batch), err)
		}
		b.log.Debug().Int("events", len(batch)).Dur("duration", time.Since(start)).Msg("Flushed events")
	}
}

// Dump writes a snapshot of the database to the configured path.
func (b *Backend) Dump() error {
	if b.db == nil {
		return ErrNotInitialized
	}
	return database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath, b.log)
}

// Pending returns the number of events not yet written.
func (b *Backend) Pending() int {
	return b.pending.Len()
}

// KindCounts returns the number of stored events per kind for a battle.
func (b *Backend) KindCounts(battleID string) (map[core.EventKind]int64, error) {
	if b.db == nil {
		return nil, ErrNotInitialized
	}
	var rows []struct {
		Kind  string
		Count int64
	}
	err := b.db.Model(&EventRecord{}).
		Select("kind, count(*) as count").
		Where("battle_id = ?", battleID).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}

	counts := make(map[core.EventKind]int64, len(rows))
	for _, r := range rows {
		counts[core.EventKind(r.Kind)] = r.Count
	}
	return counts, nil
}

// Events returns the stored events of a battle in log order.
func (b *Backend) Events(battleID string) ([]core.BattleEvent, error) {
	if b.db == nil {
		return nil, ErrNotInitialized
	}
	var recs []EventRecord
	if err := b.db.Where("battle_id = ?", battleID).Order("seq").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	events := make([]core.BattleEvent, len(recs))
	for i, r := range recs {
		events[i] = r.Event()
	}
	return events, nil
}

// Battle returns the stored battle row.
func (b *Backend) Battle(battleID string) (BattleRecord, error) {
	var rec BattleRecord
	if b.db == nil {
		return rec, ErrNotInitialized
	}
	if err := b.db.First(&rec, "id = ?", battleID).Error; err != nil {
		return rec, fmt.Errorf("failed to read battle %s: %w", battleID, err)
	}
	return rec, nil
}

func (b *Backend) every(interval time.Duration, fn func()) {
	defer b.loops.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			fn()
		}
	}
}
