package eventlog

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/battlesim/internal/eventlog"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
