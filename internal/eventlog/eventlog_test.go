package eventlog

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OCAP2/battlesim/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) { l.add("DEBUG", msg, keysAndValues) }
func (l *testLogger) Info(msg string, keysAndValues ...any) { l.add("INFO", msg, keysAndValues) }
func (l *testLogger) Error(msg string, keysAndValues ...any) { l.add("ERROR", msg, keysAndValues) }

func (l *testLogger) add(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, kv))
}

func (l *testLogger) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages...)
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLog(t *testing.T) (*Log, *testLogger) {
	logger := &testLogger{}
	l, err := New(logger)
	require.NoError(t, err)
	l.Reset(epoch)
	t.Cleanup(l.Close)
	return l, logger
}

func TestAppend_AssignsIDAndTimestamp(t *testing.T) {
	l, _ := newTestLog(t)

	a := l.Append(core.BattleEvent{Kind: core.EventAttackLaunched, Elapsed: time.Second})
	b := l.Append(core.BattleEvent{Kind: core.EventAttackBlocked, Elapsed: 4 * time.Second})
	// an event stamped earlier than its predecessor is clamped
	c := l.Append(core.BattleEvent{Kind: core.EventBreach, Elapsed: 2 * time.Second})

	assert.Equal(t, []uint64{1, 2, 3}, []uint64{a.ID, b.ID, c.ID})
	assert.Equal(t, epoch.Add(time.Second), a.Timestamp)
	assert.Equal(t, epoch.Add(4*time.Second), b.Timestamp)
	assert.Equal(t, b.Timestamp, c.Timestamp)
	assert.Equal(t, 3, l.Len())
}

func TestAppend_SyncSubscribersInOrder(t *testing.T) {
	l, _ := newTestLog(t)

	var order []string
	l.Subscribe(func(e core.BattleEvent) { order = append(order, fmt.Sprintf("first:%d", e.ID)) })
	l.Subscribe(func(e core.BattleEvent) { order = append(order, fmt.Sprintf("second:%d", e.ID)) })

	l.Append(core.BattleEvent{Kind: core.EventPhaseChange})
	l.Append(core.BattleEvent{Kind: core.EventPhaseChange})

	assert.Equal(t, []string{"first:1", "second:1", "first:2", "second:2"}, order)
	assert.Equal(t, 2, l.Subscribers())
}

func TestSubscribe_KindFilter(t *testing.T) {
	l, _ := newTestLog(t)

	var got []core.EventKind
	l.Subscribe(func(e core.BattleEvent) { got = append(got, e.Kind) },
		Kinds(core.EventBreach, core.EventBattleComplete))

	l.Append(core.BattleEvent{Kind: core.EventAttackLaunched})
	l.Append(core.BattleEvent{Kind: core.EventBreach})
	l.Append(core.BattleEvent{Kind: core.EventAttackSuccess})
	l.Append(core.BattleEvent{Kind: core.EventBattleComplete})

	assert.Equal(t, []core.EventKind{core.EventBreach, core.EventBattleComplete}, got)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	l, _ := newTestLog(t)

	var count int
	unsubscribe := l.Subscribe(func(core.BattleEvent) { count++ })
	l.Append(core.BattleEvent{Kind: core.EventBreach})
	unsubscribe()
	unsubscribe()
	l.Append(core.BattleEvent{Kind: core.EventBreach})

	assert.Equal(t, 1, count)
	assert.Zero(t, l.Subscribers())
}

func TestAppend_SubscriberPanicIsIsolated(t *testing.T) {
	l, logger := newTestLog(t)

	var after int
	l.Subscribe(func(core.BattleEvent) { panic("boom") }, Named("bad"))
	l.Subscribe(func(core.BattleEvent) { after++ })

	assert.NotPanics(t, func() {
		l.Append(core.BattleEvent{Kind: core.EventBreach})
	})
	assert.Equal(t, 1, after)

	msgs := logger.all()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "subscriber panicked")
	assert.Contains(t, msgs[0], "bad")
}

func TestAppend_SubscribersCannotMutateLog(t *testing.T) {
	l, _ := newTestLog(t)

	l.Subscribe(func(e core.BattleEvent) {
		e.Metadata["winner"] = "tampered"
	})
	l.Append(core.BattleEvent{Kind: core.EventBattleComplete, Metadata: map[string]any{"winner": "blue"}})

	assert.Equal(t, "blue", l.Events()[0].Metadata["winner"])

	events := l.Events()
	events[0].Metadata["winner"] = "again"
	assert.Equal(t, "blue", l.View()[0].Metadata["winner"])
}

func TestSubscribe_BufferedBlockingDrainsOnUnsubscribe(t *testing.T) {
	l, _ := newTestLog(t)

	var processed atomic.Int32
	unsubscribe := l.Subscribe(func(core.BattleEvent) {
		time.Sleep(time.Millisecond)
		processed.Add(1)
	}, Buffered(2), Blocking())

	for i := 0; i < 10; i++ {
		l.Append(core.BattleEvent{Kind: core.EventAttackLaunched})
	}
	unsubscribe()

	assert.Equal(t, int32(10), processed.Load())
}

func TestSubscribe_BufferedDropsWhenFull(t *testing.T) {
	l, _ := newTestLog(t)

	release := make(chan struct{})
	var processed atomic.Int32
	unsubscribe := l.Subscribe(func(core.BattleEvent) {
		<-release
		processed.Add(1)
	}, Buffered(1))

	for i := 0; i < 5; i++ {
		l.Append(core.BattleEvent{Kind: core.EventAttackLaunched})
	}
	close(release)
	unsubscribe()

	// one in the handler, one queued, the rest dropped
	assert.LessOrEqual(t, processed.Load(), int32(2))
	assert.GreaterOrEqual(t, processed.Load(), int32(1))
	assert.Equal(t, 5, l.Len())
}

func TestSubscribe_Logged(t *testing.T) {
	l, logger := newTestLog(t)

	l.Subscribe(func(core.BattleEvent) {}, Logged(), Named("audit"))
	l.Append(core.BattleEvent{Kind: core.EventBreach})

	msgs := logger.all()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "delivering event")
	assert.Contains(t, msgs[1], "event delivered")
}

func TestReset(t *testing.T) {
	l, _ := newTestLog(t)
	l.Append(core.BattleEvent{Kind: core.EventBreach})

	view := l.View()
	later := epoch.Add(time.Hour)
	l.Reset(later)

	assert.Zero(t, l.Len())
	assert.Len(t, view, 1, "views taken before a reset keep their events")
	e := l.Append(core.BattleEvent{Kind: core.EventBreach})
	assert.Equal(t, uint64(1), e.ID)
	assert.Equal(t, later, e.Timestamp)
}
