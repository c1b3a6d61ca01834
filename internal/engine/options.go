package engine

import (
	"log/slog"
	"time"

	"github.com/OCAP2/battlesim/internal/eventlog"
)

// Logger is the logging surface the engine needs. *slog.Logger satisfies it.
type Logger = eventlog.Logger

// Clock supplies the wall time a battle's event timestamps are anchored to.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type options struct {
	clock     Clock
	seed      *uint64
	logger    Logger
	strict    bool
	callbacks Callbacks
}

// Option configures an Engine.
type Option func(*options)

// WithClock sets the clock read once per Start.
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithSeed overrides every scenario's seed.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = &seed
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithStrictInvariants turns invariant violations into panics.
func WithStrictInvariants(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

// WithCallbacks installs the push interface.
func WithCallbacks(cb Callbacks) Option {
	return func(o *options) {
		o.callbacks = cb
	}
}

func defaultOptions() options {
	return options{
		clock:  systemClock{},
		logger: slog.Default(),
	}
}
