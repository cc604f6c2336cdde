package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	sessions     metric.Int64Counter
	audioSeconds metric.Float64Histogram
	stageLatency metric.Float64Histogram
	typedChars   metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	meter := otel.Meter("github.com/quilldict/quill/session")
	m := &metrics{}
	var err error
	if m.sessions, err = meter.Int64Counter("quill.sessions.total",
		metric.WithDescription("Dictation sessions by outcome")); err != nil {
		return nil, err
	}
	if m.audioSeconds, err = meter.Float64Histogram("quill.audio.duration.seconds",
		metric.WithDescription("Captured audio length per session")); err != nil {
		return nil, err
	}
	if m.stageLatency, err = meter.Float64Histogram("quill.stage.latency.seconds",
		metric.WithDescription("Pipeline stage latency")); err != nil {
		return nil, err
	}
	if m.typedChars, err = meter.Int64Counter("quill.typed.characters.total",
		metric.WithDescription("Characters injected into the focused window")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *metrics) recordOutcome(outcome string, audio time.Duration) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if audio > 0 {
		m.audioSeconds.Record(ctx, audio.Seconds())
	}
}

func (m *metrics) recordStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageLatency.Record(context.Background(), d.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)))
}

func (m *metrics) recordTyped(n int) {
	if m == nil {
		return
	}
	m.typedChars.Add(context.Background(), int64(n))
}
