package protocol

import "time"

// SessionState announces a session state transition on the bus.
type SessionState struct {
	SessionID uint64    `json:"session_id"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
	Truncated bool      `json:"truncated,omitempty"`
}

// Transcript carries the text produced for a session. Raw always holds the
// recognizer output; Enhanced is set only when the enhancement stage
// succeeded. Both are retained for logging.
type Transcript struct {
	SessionID  uint64    `json:"session_id"`
	Raw        string    `json:"raw"`
	Enhanced   string    `json:"enhanced,omitempty"`
	Final      string    `json:"final"`
	Language   string    `json:"language,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	AudioMS    int64     `json:"audio_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// PerfRecord is emitted exactly once per session when its pipeline
// terminates. EnhanceMS is nil when enhancement was not attempted, so a
// fallback to the raw transcript stays distinguishable from a disabled
// enhancer.
type PerfRecord struct {
	SessionID       uint64    `json:"session_id"`
	StartedAt       time.Time `json:"started_at"`
	StoppedAt       time.Time `json:"stopped_at"`
	AudioMS         int64     `json:"audio_ms"`
	TranscribeMS    int64     `json:"transcribe_ms"`
	EnhanceMS       *int64    `json:"enhance_ms,omitempty"`
	TotalMS         int64     `json:"total_ms"`
	Outcome         string    `json:"outcome"`
	EnhanceFallback bool      `json:"enhance_fallback,omitempty"`
	TextLength      int       `json:"text_length"`
	Model           string    `json:"model,omitempty"`
}

const (
	SubjectSessionState = "session.state"
	SubjectTranscript   = "session.transcript"
	SubjectPerfRecord   = "session.perf"
)
