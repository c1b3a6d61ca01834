package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OCAP2/battlesim/internal/config"
	"github.com/OCAP2/battlesim/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newBackend(t *testing.T, cfg config.SQLiteConfig) *Backend {
	t.Helper()
	b := New(cfg, zerolog.Nop())
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func start(t *testing.T, b *Backend, id string) {
	t.Helper()
	require.NoError(t, b.StartBattle(core.BattleState{
		BattleID:  id,
		Scenario:  "standard",
		Status:    core.StatusRunning,
		StartedAt: epoch,
	}))
}

func event(id uint64, kind core.EventKind, team core.Team, pts int64) core.BattleEvent {
	return core.BattleEvent{
		ID:        id,
		Kind:      kind,
		Timestamp: epoch.Add(time.Duration(id) * time.Second),
		Elapsed:   time.Duration(id) * time.Second,
		Team:      team,
		Message:   string(kind),
		Severity:  core.SeverityHigh,
		Points:    pts,
		AttackID:  "atk-0001",
	}
}

func TestNew_DefaultBatchSize(t *testing.T) {
	b := New(config.SQLiteConfig{}, zerolog.Nop())
	assert.Equal(t, defaultBatchSize, b.cfg.BatchSize)
}

func TestOperations_BeforeInit(t *testing.T) {
	b := New(config.SQLiteConfig{}, zerolog.Nop())

	assert.ErrorIs(t, b.StartBattle(core.BattleState{BattleID: "x"}), ErrNotInitialized)
	assert.ErrorIs(t, b.Flush(), ErrNotInitialized)
	_, err := b.KindCounts("x")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.NoError(t, b.Close())
}

func TestRecordEvent_BeforeStart(t *testing.T) {
	b := newBackend(t, config.SQLiteConfig{})
	assert.ErrorIs(t, b.RecordEvent(event(1, core.EventAttackLaunched, core.TeamRed, 10)), ErrNoBattle)
	assert.ErrorIs(t, b.EndBattle(core.BattleState{}), ErrNoBattle)
}

func TestRecordEvent_FlushesFullBatches(t *testing.T) {
	b := newBackend(t, config.SQLiteConfig{BatchSize: 3})
	start(t, b, "b-1")

	for i := uint64(1); i <= 4; i++ {
		require.NoError(t, b.RecordEvent(event(i, core.EventAttackLaunched, core.TeamRed, 10)))
	}
	assert.Equal(t, 1, b.Pending())

	events, err := b.Events("b-1")
	require.NoError(t, err)
	assert.Len(t, events, 3)

	require.NoError(t, b.Flush())
	assert.Equal(t, 0, b.Pending())
	events, err = b.Events("b-1")
	require.NoError(t, err)
	assert.Len(t, events, 4)
}

func TestEvents_RoundTrip(t *testing.T) {
	b := newBackend(t, config.SQLiteConfig{})
	start(t, b, "b-1")

	in := event(1, core.EventAttackSuccess, core.TeamRed, 60)
	in.DefenseID = "def-firewall"
	in.Metadata = map[string]any{"target": "auth", "reactive": true}
	require.NoError(t, b.RecordEvent(in))
	require.NoError(t, b.Flush())

	events, err := b.Events("b-1")
	require.NoError(t, err)
	require.Len(t, events, 1)

	got := events[0]
	assert.Equal(t, uint64(1), got.ID)
	assert.Equal(t, core.EventAttackSuccess, got.Kind)
	assert.True(t, in.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, time.Second, got.Elapsed)
	assert.Equal(t, core.TeamRed, got.Team)
	assert.Equal(t, core.SeverityHigh, got.Severity)
	assert.Equal(t, int64(60), got.Points)
	assert.Equal(t, "atk-0001", got.AttackID)
	assert.Equal(t, "def-firewall", got.DefenseID)
	assert.Equal(t, "auth", got.Metadata["target"])
	assert.Equal(t, true, got.Metadata["reactive"])
}

func TestKindCounts(t *testing.T) {
	b := newBackend(t, config.SQLiteConfig{})
	start(t, b, "b-1")

	kinds := []core.EventKind{
		core.EventAttackLaunched, core.EventAttackBlocked,
		core.EventAttackLaunched, core.EventAttackBlocked,
		core.EventAttackLaunched, core.EventBattleComplete,
	}
	for i, k := range kinds {
		require.NoError(t, b.RecordEvent(event(uint64(i+1), k, core.TeamRed, 0)))
	}
	require.NoError(t, b.Flush())

	counts, err := b.KindCounts("b-1")
	require.NoError(t, err)
	assert.Equal(t, map[core.EventKind]int64{
		core.EventAttackLaunched: 3,
		core.EventAttackBlocked:  2,
		core.EventBattleComplete: 1,
	}, counts)

	other, err := b.KindCounts("nope")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestEndBattle_StoresOutcome(t *testing.T) {
	b := newBackend(t, config.SQLiteConfig{})
	start(t, b, "b-1")
	require.NoError(t, b.RecordEvent(event(1, core.EventAttackBlocked, core.TeamBlue, 25)))

	final := core.BattleState{
		BattleID: "b-1",
		Status:   core.StatusComplete,
		Elapsed:  10 * time.Second,
		Winner:   core.WinnerBlue,
		Score: core.BattleScore{
			Blue:            core.TeamScore{Points: 25, AttacksBlocked: 1},
			Advantage:       core.SideBlue,
			AdvantagePoints: 25,
		},
	}
	require.NoError(t, b.EndBattle(final))
	assert.Equal(t, 0, b.Pending())

	rec, err := b.Battle("b-1")
	require.NoError(t, err)
	assert.Equal(t, "standard", rec.Scenario)
	assert.Equal(t, string(core.StatusComplete), rec.Status)
	assert.Equal(t, string(core.WinnerBlue), rec.Winner)
	assert.Equal(t, int64(10000), rec.ElapsedMs)
	assert.Equal(t, int64(25), rec.BluePoints)
	assert.NotNil(t, rec.EndedAt)
	assert.Equal(t, 1, rec.Score.Data().Blue.AttacksBlocked)
}

func TestEndBattle_DumpsToDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battle.db")
	b := newBackend(t, config.SQLiteConfig{DumpPath: path})
	start(t, b, "b-1")
	require.NoError(t, b.RecordEvent(event(1, core.EventAttackLaunched, core.TeamRed, 10)))

	require.NoError(t, b.EndBattle(core.BattleState{Status: core.StatusComplete}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestFlushLoop(t *testing.T) {
	b := newBackend(t, config.SQLiteConfig{FlushInterval: 5 * time.Millisecond})
	start(t, b, "b-1")
	require.NoError(t, b.RecordEvent(event(1, core.EventAttackLaunched, core.TeamRed, 10)))

	assert.Eventually(t, func() bool { return b.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestClose_FlushesAndIsIdempotent(t *testing.T) {
	b := New(config.SQLiteConfig{FlushInterval: time.Hour}, zerolog.Nop())
	require.NoError(t, b.Init())
	start(t, b, "b-1")
	require.NoError(t, b.RecordEvent(event(1, core.EventAttackLaunched, core.TeamRed, 10)))

	require.NoError(t, b.Close())
	assert.Equal(t, 0, b.Pending())
	assert.NoError(t, b.Close())
}
