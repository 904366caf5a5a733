package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName  = "github.com/wolfeidau/credseal"
	tracerName = "github.com/wolfeidau/credseal"
)

// Attribute keys shared by spans and metrics.
var (
	AttrStrategy = attribute.Key("credseal.strategy")
	AttrEndpoint = attribute.Key("credseal.endpoint")
	AttrKind     = attribute.Key("credseal.error.kind")
	AttrStatus   = attribute.Key("http.response.status_code")
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Seal operation metrics
	SealTotal       metric.Int64Counter
	SealErrorsTotal metric.Int64Counter
	SealDuration    metric.Float64Histogram

	// Remote signing service metrics
	RemoteCallsTotal   metric.Int64Counter
	RemoteCallDuration metric.Float64Histogram
	RemoteRetriesTotal metric.Int64Counter

	// Local signing metrics
	SignaturesTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary.
// Instruments are bound to the global meter provider, a no-op until InitTelemetry runs.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.SealTotal, _ = meter.Int64Counter(
		"credseal.seal.total",
		metric.WithDescription("Total number of seal attempts"),
		metric.WithUnit("{seal}"),
	)

	m.SealErrorsTotal, _ = meter.Int64Counter(
		"credseal.seal.errors.total",
		metric.WithDescription("Total number of failed seal operations"),
		metric.WithUnit("{error}"),
	)

	m.SealDuration, _ = meter.Float64Histogram(
		"credseal.seal.duration",
		metric.WithDescription("Duration of seal operations end to end"),
		metric.WithUnit("ms"),
	)

	m.RemoteCallsTotal, _ = meter.Int64Counter(
		"credseal.remote.calls.total",
		metric.WithDescription("Total number of calls to signing services"),
		metric.WithUnit("{call}"),
	)

	m.RemoteCallDuration, _ = meter.Float64Histogram(
		"credseal.remote.calls.duration",
		metric.WithDescription("Duration of calls to signing services"),
		metric.WithUnit("ms"),
	)

	m.RemoteRetriesTotal, _ = meter.Int64Counter(
		"credseal.remote.retries.total",
		metric.WithDescription("Total number of retries after transport failures"),
		metric.WithUnit("{retry}"),
	)

	m.SignaturesTotal, _ = meter.Int64Counter(
		"credseal.signatures.total",
		metric.WithDescription("Total number of local signatures produced"),
		metric.WithUnit("{signature}"),
	)

	return m
}

// RecordRemoteCall records one call to a signing service. resp is nil when the
// call failed before a response arrived.
func RecordRemoteCall(ctx context.Context, endpoint string, resp *http.Response, started time.Time) {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	attrs := metric.WithAttributes(
		AttrEndpoint.String(endpoint),
		AttrStatus.Int(status),
	)

	m := GetMetrics()
	m.RemoteCallsTotal.Add(ctx, 1, attrs)
	m.RemoteCallDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)
}
