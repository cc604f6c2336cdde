package session

import (
	"sync"

	"github.com/quilldict/quill/internal/protocol"
)

// EventSink receives session lifecycle events. Implementations must be
// non-blocking best-effort; a slow or failing sink never stalls the
// dictation pipeline.
type EventSink interface {
	SessionState(protocol.SessionState)
	Transcript(protocol.Transcript)
	Perf(protocol.PerfRecord)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) SessionState(protocol.SessionState) {}
func (NopSink) Transcript(protocol.Transcript)     {}
func (NopSink) Perf(protocol.PerfRecord)           {}

// CaptureSink retains events in memory for tests. Safe for concurrent
// publishers.
type CaptureSink struct {
	mu          sync.Mutex
	states      []protocol.SessionState
	transcripts []protocol.Transcript
	records     []protocol.PerfRecord
}

func (c *CaptureSink) SessionState(s protocol.SessionState) {
	c.mu.Lock()
	c.states = append(c.states, s)
	c.mu.Unlock()
}

func (c *CaptureSink) Transcript(t protocol.Transcript) {
	c.mu.Lock()
	c.transcripts = append(c.transcripts, t)
	c.mu.Unlock()
}

func (c *CaptureSink) Perf(r protocol.PerfRecord) {
	c.mu.Lock()
	c.records = append(c.records, r)
	c.mu.Unlock()
}

func (c *CaptureSink) States() []protocol.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.SessionState(nil), c.states...)
}

func (c *CaptureSink) Transcripts() []protocol.Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Transcript(nil), c.transcripts...)
}

func (c *CaptureSink) Records() []protocol.PerfRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.PerfRecord(nil), c.records...)
}
