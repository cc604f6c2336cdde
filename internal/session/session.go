// Package session implements the push-to-talk state machine: one
// recording at a time, a processing pipeline per finished recording, and
// a single typing worker so text lands in the order pipelines complete.
package session

import (
	"time"

	"github.com/quilldict/quill/internal/audio"
)

// State is the lifecycle position of one dictation session.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateTranscribing
	StateEnhancing
	StateTyping
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	case StateEnhancing:
		return "enhancing"
	case StateTyping:
		return "typing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session is one press-to-release dictation. IDs are monotonic for the
// lifetime of the process.
type Session struct {
	ID        uint64
	State     State
	StartedAt time.Time
	StoppedAt time.Time
	Buffer    *audio.RingBuffer
	Truncated bool
}

// Outcome values recorded in the performance log.
const (
	OutcomeCompleted   = "completed"
	OutcomeEmpty       = "empty_recording"
	OutcomeTranscribe  = "transcription_failed"
	OutcomeTypingError = "typing_failed"
)
