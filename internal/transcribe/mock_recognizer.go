package transcribe

import (
	"context"
	"fmt"
	"time"
)

// MockRecognizer returns canned results. Tests script it per call with
// Next; unscripted calls describe the buffer they received.
type MockRecognizer struct {
	next chan func() (Result, error)
}

func NewMockRecognizer() *MockRecognizer {
	return &MockRecognizer{next: make(chan func() (Result, error), 32)}
}

// Next queues a scripted response; latency is applied inside Transcribe
// so tests can invert pipeline completion order.
func (m *MockRecognizer) Next(latency time.Duration, res Result, err error) {
	m.next <- func() (Result, error) {
		if latency > 0 {
			time.Sleep(latency)
		}
		return res, err
	}
}

func (m *MockRecognizer) Transcribe(ctx context.Context, pcm []byte, sampleRate, channels int) (Result, error) {
	select {
	case fn := <-m.next:
		return fn()
	default:
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	bytesPerSecond := sampleRate * channels * 2
	var secs float64
	if bytesPerSecond > 0 {
		secs = float64(len(pcm)) / float64(bytesPerSecond)
	}
	return Result{
		Text:       fmt.Sprintf("[mock transcript %.1fs]", secs),
		Language:   "en",
		Confidence: 0,
	}, nil
}
