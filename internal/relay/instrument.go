package relay

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/voicerelay/internal/observe"
	"github.com/MrWong99/voicerelay/pkg/audio"
	"github.com/MrWong99/voicerelay/pkg/provider/langdetect"
)

func metricEvent(e audio.PlaybackEvent) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("event", e.String()))
}

// timedDetector records latency, a span and provider counters around every
// detection.
type timedDetector struct {
	next    langdetect.Detector
	name    string
	metrics *observe.Metrics
}

// InstrumentDetector wraps d so each call is traced and measured. name labels
// the provider in metrics. A nil metrics uses [observe.DefaultMetrics].
func InstrumentDetector(d langdetect.Detector, name string, m *observe.Metrics) langdetect.Detector {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &timedDetector{next: d, name: name, metrics: m}
}

// Detect implements [langdetect.Detector].
func (d *timedDetector) Detect(ctx context.Context, text string) (string, error) {
	ctx, span := observe.StartSpan(ctx, "relay.detect")
	defer span.End()

	start := time.Now()
	tag, err := d.next.Detect(ctx, text)
	d.metrics.DetectionDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		observe.SpanError(span, err)
		d.metrics.RecordProviderRequest(ctx, d.name, "langdetect", "error")
		d.metrics.RecordProviderError(ctx, d.name, "langdetect")
		return "", err
	}
	span.SetAttributes(attribute.String("language", tag))
	d.metrics.RecordProviderRequest(ctx, d.name, "langdetect", "ok")
	return tag, nil
}
