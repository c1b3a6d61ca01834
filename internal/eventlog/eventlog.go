// Package eventlog is the append-only record of a battle and the fan-out
// of its events to subscribers.
package eventlog

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/OCAP2/battlesim/pkg/core"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Handler receives one event. It must not retain or mutate Metadata beyond
// the call; every subscriber gets its own copy.
type Handler func(core.BattleEvent)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures a subscription.
type Option func(*config)

type config struct {
	name       string
	kinds      map[core.EventKind]bool
	bufferSize int
	blocking   bool
	logged     bool
}

// Named labels the subscription in logs and metrics.
func Named(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// Kinds restricts delivery to the given event kinds.
func Kinds(kinds ...core.EventKind) Option {
	return func(c *config) {
		if c.kinds == nil {
			c.kinds = make(map[core.EventKind]bool, len(kinds))
		}
		for _, k := range kinds {
			c.kinds[k] = true
		}
	}
}

// Buffered makes delivery async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered subscription block when the queue is full
// instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging around every delivery.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

type subscription struct {
	id      uint64
	name    string
	kinds   map[core.EventKind]bool
	deliver func(core.BattleEvent)
	buffer  chan core.BattleEvent
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

func (s *subscription) wants(k core.EventKind) bool {
	return s.kinds == nil || s.kinds[k]
}

// Log is the append-only event record. Append and Subscribe are safe for
// concurrent use, though the engine appends from a single goroutine.
type Log struct {
	logger Logger

	mu     sync.RWMutex
	events []core.BattleEvent
	nextID uint64
	epoch  time.Time
	last   time.Time

	subMu   sync.RWMutex
	subs    []*subscription
	nextSub uint64

	appended  metric.Int64Counter
	delivered metric.Int64Counter
	dropped   metric.Int64Counter
	panics    metric.Int64Counter
	queueSize metric.Int64ObservableGauge
}

// New creates an empty log. Uses the global OTel meter for metrics (no-op
// if not configured).
func New(logger Logger) (*Log, error) {
	l := &Log{logger: logger, nextID: 1}

	m := meter()
	var err error

	l.appended, err = m.Int64Counter(
		"eventlog.events.appended",
		metric.WithDescription("Total battle events appended"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating appended counter: %w", err)
	}

	l.delivered, err = m.Int64Counter(
		"eventlog.events.delivered",
		metric.WithDescription("Total events handed to subscribers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating delivered counter: %w", err)
	}

	l.dropped, err = m.Int64Counter(
		"eventlog.events.dropped",
		metric.WithDescription("Total events dropped due to a full subscriber queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	l.panics, err = m.Int64Counter(
		"eventlog.subscriber.panics",
		metric.WithDescription("Subscriber panics recovered during delivery"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating panic counter: %w", err)
	}

	l.queueSize, err = m.Int64ObservableGauge(
		"eventlog.subscriber.queue.size",
		metric.WithDescription("Current number of events waiting in a subscriber queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			l.subMu.RLock()
			defer l.subMu.RUnlock()
			for _, s := range l.subs {
				if s.buffer != nil {
					o.ObserveInt64(l.queueSize, int64(len(s.buffer)),
						metric.WithAttributes(attribute.String("subscriber", s.name)))
				}
			}
			return nil
		},
		l.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	return l, nil
}

// Reset empties the log and anchors timestamps at epoch. Subscriptions are
// kept.
func (l *Log) Reset(epoch time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
	l.nextID = 1
	l.epoch = epoch
	l.last = epoch
}

// Append assigns the next id and a timestamp of epoch plus e.Elapsed, never
// earlier than the previous event, records the event and delivers it to
// every matching subscriber in subscription order. The stored event is
// returned.
func (l *Log) Append(e core.BattleEvent) core.BattleEvent {
	l.mu.Lock()
	e.ID = l.nextID
	l.nextID++
	ts := l.epoch.Add(e.Elapsed)
	if ts.Before(l.last) {
		ts = l.last
	}
	e.Timestamp = ts
	l.last = ts
	e = e.Clone()
	l.events = append(l.events, e)
	l.mu.Unlock()

	l.appended.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("kind", string(e.Kind))))

	l.subMu.RLock()
	subs := l.subs
	l.subMu.RUnlock()
	for _, s := range subs {
		if s.wants(e.Kind) {
			s.deliver(e.Clone())
		}
	}
	return e
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Events returns a deep copy of the log.
func (l *Log) Events() []core.BattleEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]core.BattleEvent, len(l.events))
	for i, e := range l.events {
		out[i] = e.Clone()
	}
	return out
}

// View returns the recorded events without copying them. Recorded events
// are never modified, so the result is safe to read from any goroutine, but
// callers must not write to it.
func (l *Log) View() []core.BattleEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clip(l.events)
}

// Subscribe registers h and returns a function that removes it. Buffered
// subscriptions are drained before the returned function returns.
func (l *Log) Subscribe(h Handler, opts ...Option) (unsubscribe func()) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	l.subMu.Lock()
	l.nextSub++
	s := &subscription{
		id:    l.nextSub,
		name:  cfg.name,
		kinds: cfg.kinds,
	}
	if s.name == "" {
		s.name = fmt.Sprintf("subscriber-%d", s.id)
	}
	l.subMu.Unlock()

	handler := l.guarded(s.name, h)
	if cfg.logged {
		handler = l.withLogging(s.name, handler)
	}
	if cfg.bufferSize > 0 {
		s.deliver = l.withBuffer(s, cfg.bufferSize, cfg.blocking, handler)
	} else {
		nameAttr := attribute.String("subscriber", s.name)
		s.deliver = func(e core.BattleEvent) {
			handler(e)
			l.delivered.Add(context.Background(), 1, metric.WithAttributes(nameAttr))
		}
	}

	l.subMu.Lock()
	// copy-on-write so Append can iterate without holding the lock
	l.subs = append(slices.Clip(l.subs), s)
	l.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(s) })
	}
}

// Subscribers returns the number of live subscriptions.
func (l *Log) Subscribers() int {
	l.subMu.RLock()
	defer l.subMu.RUnlock()
	return len(l.subs)
}

// Close removes every subscription, draining buffered ones.
func (l *Log) Close() {
	l.subMu.Lock()
	subs := l.subs
	l.subs = nil
	l.subMu.Unlock()
	for _, s := range subs {
		s.stop()
	}
}

func (l *Log) remove(s *subscription) {
	l.subMu.Lock()
	i := slices.Index(l.subs, s)
	if i >= 0 {
		l.subs = slices.Delete(slices.Clone(l.subs), i, i+1)
	}
	l.subMu.Unlock()
	if i >= 0 {
		s.stop()
	}
}

func (s *subscription) stop() {
	if s.buffer == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.buffer)
	s.mu.Unlock()
	<-s.done
}

// guarded isolates a misbehaving subscriber: its panic is logged and
// counted and delivery moves on.
func (l *Log) guarded(name string, h Handler) Handler {
	nameAttr := attribute.String("subscriber", name)
	return func(e core.BattleEvent) {
		defer func() {
			if r := recover(); r != nil {
				l.panics.Add(context.Background(), 1, metric.WithAttributes(nameAttr))
				l.logger.Error("subscriber panicked", "subscriber", name, "event", e.ID, "kind", e.Kind, "panic", r)
			}
		}()
		h(e)
	}
}

func (l *Log) withBuffer(s *subscription, size int, blocking bool, h Handler) func(core.BattleEvent) {
	s.buffer = make(chan core.BattleEvent, size)
	s.done = make(chan struct{})
	nameAttr := attribute.String("subscriber", s.name)

	go func() {
		defer close(s.done)
		for e := range s.buffer {
			h(e)
			l.delivered.Add(context.Background(), 1, metric.WithAttributes(nameAttr))
		}
	}()

	if blocking {
		return func(e core.BattleEvent) {
			s.mu.RLock()
			defer s.mu.RUnlock()
			if !s.closed {
				s.buffer <- e
			}
		}
	}

	return func(e core.BattleEvent) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.closed {
			return
		}
		select {
		case s.buffer <- e:
		default:
			l.dropped.Add(context.Background(), 1, metric.WithAttributes(nameAttr))
			l.logger.Debug("subscriber queue full, event dropped", "subscriber", s.name, "event", e.ID)
		}
	}
}

func (l *Log) withLogging(name string, h Handler) Handler {
	return func(e core.BattleEvent) {
		start := time.Now()
		l.logger.Debug("delivering event", "subscriber", name, "event", e.ID, "kind", e.Kind)
		h(e)
		l.logger.Debug("event delivered", "subscriber", name, "event", e.ID, "duration", time.Since(start))
	}
}
