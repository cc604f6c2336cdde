package transcribe

import (
	"context"
	"fmt"
	"time"

	"github.com/quilldict/quill/internal/config"
)

// Segment is one timed piece of a transcription.
type Segment struct {
	Text  string
	Start time.Duration
	End   time.Duration
}

// Result captures recognizer output for one frozen session buffer.
type Result struct {
	Text       string
	Language   string
	Confidence float64
	Segments   []Segment
}

// Recognizer abstracts speech-to-text backends. Implementations must be
// safe for concurrent callers; the backend may serialize internally. A
// failed attempt is final — the wrapper never retries.
type Recognizer interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate, channels int) (Result, error)
}

// New builds a recognizer from config.
func New(cfg config.TranscribeConfig) (Recognizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockRecognizer(), nil
	case "exec", "":
		return NewExecRecognizer(cfg)
	case "native":
		return NewNativeRecognizer(cfg)
	default:
		return nil, fmt.Errorf("unknown transcribe mode %q", cfg.Mode)
	}
}
