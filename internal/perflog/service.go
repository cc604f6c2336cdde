package perflog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/quilldict/quill/internal/bus"
	"github.com/quilldict/quill/internal/protocol"
)

// Service subscribes to perf records on the bus and persists them.
type Service struct {
	store *Store
	bus   *bus.Client
	log   *slog.Logger
	sub   *nats.Subscription
}

func NewService(store *Store, busClient *bus.Client, log *slog.Logger) *Service {
	return &Service{store: store, bus: busClient, log: log}
}

// Start subscribes to session.perf and writes each record to the store.
func (s *Service) Start(ctx context.Context) error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectPerfRecord, func(msg *nats.Msg) {
		var rec protocol.PerfRecord
		if err := json.Unmarshal(msg.Data, &rec); err != nil {
			s.log.Warn("malformed perf record", slog.String("error", err.Error()))
			return
		}
		writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.Append(writeCtx, fromProtocol(rec)); err != nil {
			s.log.Error("perf record append failed",
				slog.Uint64("session_id", rec.SessionID),
				slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return err
	}
	s.sub = sub
	s.log.Info("perf log service started", slog.String("subject", protocol.SubjectPerfRecord))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop drains the subscription.
func (s *Service) Stop() {
	if s.sub != nil {
		_ = s.sub.Drain()
		s.sub = nil
	}
}

func fromProtocol(rec protocol.PerfRecord) Record {
	return Record{
		SessionID:       rec.SessionID,
		StartedAt:       rec.StartedAt,
		StoppedAt:       rec.StoppedAt,
		AudioMS:         rec.AudioMS,
		TranscribeMS:    rec.TranscribeMS,
		EnhanceMS:       rec.EnhanceMS,
		TotalMS:         rec.TotalMS,
		Outcome:         rec.Outcome,
		EnhanceFallback: rec.EnhanceFallback,
		TextLength:      rec.TextLength,
		Model:           rec.Model,
	}
}
