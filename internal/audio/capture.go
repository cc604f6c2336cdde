package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/quilldict/quill/internal/config"
)

// ErrCaptureDevice marks a failure to open the microphone. It is fatal at
// startup; the daemon cannot run without audio input.
var ErrCaptureDevice = errors.New("audio capture device unavailable")

// CaptureSource produces an unbounded sequence of fixed-duration PCM
// frames from the microphone. The stream is lazy and non-restartable: once
// Start succeeds the channel stays open until ctx is cancelled or the
// underlying device fails.
type CaptureSource interface {
	Start(ctx context.Context) (<-chan Frame, error)
}

// NewCaptureSource builds a capture source from config.
func NewCaptureSource(cfg config.AudioConfig, log *slog.Logger) (CaptureSource, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockCapture(cfg), nil
	case "exec", "":
		return NewExecCapture(cfg, log)
	default:
		return nil, fmt.Errorf("unknown audio mode %q", cfg.Mode)
	}
}

type execCapture struct {
	cmd       []string
	frameSize int
	frameDur  time.Duration
	log       *slog.Logger
}

// NewExecCapture spawns a subprocess that writes raw s16le PCM to stdout
// (arecord, ffmpeg, sox) and re-chunks the stream into frames.
func NewExecCapture(cfg config.AudioConfig, log *slog.Logger) (CaptureSource, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse audio command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("audio command is empty")
	}
	if cfg.Device != "" {
		args = append(args, "-D", cfg.Device)
	}
	frameSize := cfg.SampleRate * cfg.Channels * 2 * cfg.FrameDurationMS / 1000
	if frameSize <= 0 {
		return nil, fmt.Errorf("invalid frame size for rate=%d channels=%d frame_ms=%d",
			cfg.SampleRate, cfg.Channels, cfg.FrameDurationMS)
	}
	return &execCapture{
		cmd:       args,
		frameSize: frameSize,
		frameDur:  time.Duration(cfg.FrameDurationMS) * time.Millisecond,
		log:       log.With(slog.String("component", "audio-capture")),
	}, nil
}

func (c *execCapture) Start(ctx context.Context) (<-chan Frame, error) {
	command := exec.CommandContext(ctx, c.cmd[0], c.cmd[1:]...)
	stdout, err := command.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureDevice, err)
	}
	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %q: %v", ErrCaptureDevice, c.cmd[0], err)
	}

	// Buffered so a slow consumer never stalls the device read loop.
	frames := make(chan Frame, 64)
	go func() {
		defer close(frames)
		defer command.Wait()
		for {
			buf := make([]byte, c.frameSize)
			if _, err := io.ReadFull(stdout, buf); err != nil {
				if ctx.Err() == nil {
					c.log.Error("capture stream ended", slog.String("error", err.Error()))
				}
				return
			}
			frame := Frame{PCM: buf, Captured: time.Now()}
			select {
			case frames <- frame:
			default:
				// Consumer is behind; dropping beats blocking the device.
				c.log.Warn("capture frame dropped, consumer too slow")
			}
		}
	}()
	return frames, nil
}

type mockCapture struct {
	frameSize int
	frameDur  time.Duration
}

// NewMockCapture emits silent frames on a ticker. Useful for development
// without a microphone and for runtime wiring tests.
func NewMockCapture(cfg config.AudioConfig) CaptureSource {
	return &mockCapture{
		frameSize: cfg.SampleRate * cfg.Channels * 2 * cfg.FrameDurationMS / 1000,
		frameDur:  time.Duration(cfg.FrameDurationMS) * time.Millisecond,
	}
}

func (c *mockCapture) Start(ctx context.Context) (<-chan Frame, error) {
	frames := make(chan Frame, 64)
	go func() {
		defer close(frames)
		ticker := time.NewTicker(c.frameDur)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				select {
				case frames <- Frame{PCM: make([]byte, c.frameSize), Captured: now}:
				default:
				}
			}
		}
	}()
	return frames, nil
}
