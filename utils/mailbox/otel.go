package mailbox

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "go.viam.com/hoopbot/utils/mailbox"

func defaultMeter() metric.Meter {
	return otel.Meter(instrumentationName)
}
