package audio

import (
	"sync"
	"time"
)

// Frame is one fixed-duration chunk of signed 16-bit little-endian PCM.
type Frame struct {
	PCM      []byte
	Captured time.Time
}

// RingBuffer accumulates the PCM frames of one recording session. It is
// append-only while the session records and becomes immutable once Freeze
// is called; appends after that are dropped and counted instead of
// buffered. The buffer grows with session length, bounded only by the
// controller's maximum recording duration.
type RingBuffer struct {
	mu         sync.Mutex
	data       []byte
	frames     int
	dropped    int
	frozen     bool
	sampleRate int
	channels   int
}

func NewRingBuffer(sampleRate, channels int) *RingBuffer {
	return &RingBuffer{sampleRate: sampleRate, channels: channels}
}

// Append adds a frame to the buffer. It reports false when the buffer has
// been frozen, in which case the frame is counted as dropped.
func (b *RingBuffer) Append(f Frame) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		b.dropped++
		return false
	}
	b.data = append(b.data, f.PCM...)
	b.frames++
	return true
}

// Freeze makes the buffer read-only. Safe to call more than once.
func (b *RingBuffer) Freeze() {
	b.mu.Lock()
	b.frozen = true
	b.mu.Unlock()
}

func (b *RingBuffer) Frozen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frozen
}

// Bytes returns the accumulated PCM. Callers must not mutate the returned
// slice; after Freeze the contents are stable.
func (b *RingBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

func (b *RingBuffer) Frames() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames
}

// Dropped reports how many frames arrived after Freeze.
func (b *RingBuffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

func (b *RingBuffer) SampleRate() int { return b.sampleRate }
func (b *RingBuffer) Channels() int   { return b.channels }

// Duration derives the captured audio length from the byte count.
func (b *RingBuffer) Duration() time.Duration {
	b.mu.Lock()
	n := len(b.data)
	b.mu.Unlock()
	bytesPerSecond := b.sampleRate * b.channels * 2
	if bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bytesPerSecond)
}
