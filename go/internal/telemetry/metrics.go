package telemetry

import (
	"context"
	"time"

	"github.com/mcdev12/tasktimer/go/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/mcdev12/tasktimer/telemetry"

// TimerMetrics records timer client activity as OpenTelemetry instruments.
type TimerMetrics struct {
	writes        metric.Int64Counter
	writeDuration metric.Float64Histogram
	writeFields   metric.Int64Histogram
	skipped       metric.Int64Counter
	conflicts     metric.Int64Counter
	dropped       metric.Int64Counter
	snapshots     metric.Int64Counter
}

// NewTimerMetrics creates the timer instruments on meter. A nil meter uses
// the global provider.
func NewTimerMetrics(meter metric.Meter) (*TimerMetrics, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	writes, err := meter.Int64Counter(
		"timer.writes",
		metric.WithDescription("Writes sent to the shared timer record"),
		metric.WithUnit("{writes}"),
	)
	if err != nil {
		return nil, err
	}

	writeDuration, err := meter.Float64Histogram(
		"timer.write.duration",
		metric.WithDescription("Write duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	writeFields, err := meter.Int64Histogram(
		"timer.write.fields",
		metric.WithDescription("Fields carried by a write"),
		metric.WithUnit("{fields}"),
	)
	if err != nil {
		return nil, err
	}

	skipped, err := meter.Int64Counter(
		"timer.writes.skipped",
		metric.WithDescription("Writes suppressed while offline"),
		metric.WithUnit("{writes}"),
	)
	if err != nil {
		return nil, err
	}

	conflicts, err := meter.Int64Counter(
		"timer.pause.conflicts",
		metric.WithDescription("Pauses abandoned because a newer pause was already published"),
		metric.WithUnit("{pauses}"),
	)
	if err != nil {
		return nil, err
	}

	dropped, err := meter.Int64Counter(
		"timer.fields.dropped",
		metric.WithDescription("Fields removed from a write because the remote value was newer"),
		metric.WithUnit("{fields}"),
	)
	if err != nil {
		return nil, err
	}

	snapshots, err := meter.Int64Counter(
		"timer.snapshots",
		metric.WithDescription("Snapshots observed on the shared record"),
		metric.WithUnit("{snapshots}"),
	)
	if err != nil {
		return nil, err
	}

	return &TimerMetrics{
		writes:        writes,
		writeDuration: writeDuration,
		writeFields:   writeFields,
		skipped:       skipped,
		conflicts:     conflicts,
		dropped:       dropped,
		snapshots:     snapshots,
	}, nil
}

func (m *TimerMetrics) RecordWrite(op string, fields int, success bool, duration time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.Bool("success", success),
	)
	m.writes.Add(ctx, 1, attrs)
	m.writeDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	m.writeFields.Record(ctx, int64(fields), metric.WithAttributes(attribute.String("op", op)))
}

func (m *TimerMetrics) RecordSkippedWrite(op string) {
	m.skipped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *TimerMetrics) RecordPauseConflict() {
	m.conflicts.Add(context.Background(), 1)
}

func (m *TimerMetrics) RecordDroppedField(field string) {
	m.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("field", field)))
}

func (m *TimerMetrics) RecordSnapshot(state models.TimerState) {
	m.snapshots.Add(context.Background(), 1, metric.WithAttributes(attribute.String("state", string(state))))
}
