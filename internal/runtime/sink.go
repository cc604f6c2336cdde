package runtime

import (
	"encoding/json"
	"log/slog"

	"github.com/quilldict/quill/internal/bus"
	"github.com/quilldict/quill/internal/protocol"
)

// busSink publishes session events on the NATS bus. Publishes are
// best-effort; a bus hiccup is logged and the pipeline moves on.
type busSink struct {
	bus *bus.Client
	log *slog.Logger
}

func newBusSink(busClient *bus.Client, log *slog.Logger) *busSink {
	return &busSink{bus: busClient, log: log.With(slog.String("component", "event-sink"))}
}

func (s *busSink) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("marshal event", slog.String("subject", subject), slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Conn().Publish(subject, data); err != nil {
		s.log.Warn("publish event", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}

func (s *busSink) SessionState(e protocol.SessionState) {
	s.publish(protocol.SubjectSessionState, e)
}

func (s *busSink) Transcript(t protocol.Transcript) {
	s.publish(protocol.SubjectTranscript, t)
}

func (s *busSink) Perf(r protocol.PerfRecord) {
	s.publish(protocol.SubjectPerfRecord, r)
}
