package engine

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/battlesim/internal/engine"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type instruments struct {
	ticks          metric.Int64Counter
	tickDuration   metric.Float64Histogram
	violations     metric.Int64Counter
	callbackPanics metric.Int64Counter
}

func newInstruments() (instruments, error) {
	m := meter()
	var (
		in  instruments
		err error
	)

	in.ticks, err = m.Int64Counter(
		"engine.ticks",
		metric.WithDescription("Total engine ticks processed"),
	)
	if err != nil {
		return in, fmt.Errorf("creating tick counter: %w", err)
	}

	in.tickDuration, err = m.Float64Histogram(
		"engine.tick.duration",
		metric.WithDescription("Wall time spent inside one tick"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return in, fmt.Errorf("creating tick duration histogram: %w", err)
	}

	in.violations, err = m.Int64Counter(
		"engine.invariant.violations",
		metric.WithDescription("Invariant violations detected"),
	)
	if err != nil {
		return in, fmt.Errorf("creating violation counter: %w", err)
	}

	in.callbackPanics, err = m.Int64Counter(
		"engine.callback.panics",
		metric.WithDescription("Callback panics recovered"),
	)
	if err != nil {
		return in, fmt.Errorf("creating callback panic counter: %w", err)
	}

	return in, nil
}
