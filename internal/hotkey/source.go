package hotkey

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/quilldict/quill/internal/config"
)

// ErrHotkeyHook marks a failure to observe key state. The daemon cannot
// run without it, so this is fatal at startup (typically a missing helper
// or missing input-group/accessibility permission).
var ErrHotkeyHook = errors.New("cannot install hotkey hook")

// Edge is one raw key-state transition as reported by the OS hook, before
// debouncing.
type Edge struct {
	Key     string    `json:"key"`
	Pressed bool      `json:"pressed"`
	At      time.Time `json:"-"`
}

// Source produces raw key edges. Implementations must deliver edges in
// observation order and close the channel when the hook dies.
type Source interface {
	Events(ctx context.Context) (<-chan Edge, error)
}

// NewSource builds a key-edge source from config.
func NewSource(cfg config.HotkeyConfig, log *slog.Logger) (Source, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockSource(), nil
	case "exec", "":
		return NewExecSource(cfg.Command, log)
	default:
		return nil, fmt.Errorf("unknown hotkey mode %q", cfg.Mode)
	}
}

type execSource struct {
	cmd []string
	log *slog.Logger
}

// NewExecSource spawns a helper process that observes system-wide key
// state and prints one JSON object per line: {"key":"rightshift","pressed":true}.
func NewExecSource(command string, log *slog.Logger) (Source, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse hotkey command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("hotkey command is empty")
	}
	return &execSource{cmd: args, log: log.With(slog.String("component", "hotkey-source"))}, nil
}

func (s *execSource) Events(ctx context.Context) (<-chan Edge, error) {
	command := exec.CommandContext(ctx, s.cmd[0], s.cmd[1:]...)
	stdout, err := command.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHotkeyHook, err)
	}
	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %q: %v", ErrHotkeyHook, s.cmd[0], err)
	}

	edges := make(chan Edge, 32)
	go func() {
		defer close(edges)
		defer command.Wait()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var e Edge
			if err := json.Unmarshal(line, &e); err != nil {
				s.log.Warn("failed to decode key edge", slog.String("error", err.Error()))
				continue
			}
			e.At = time.Now()
			select {
			case edges <- e:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			s.log.Error("hotkey helper stream ended", slog.String("error", err.Error()))
		}
	}()
	return edges, nil
}

// MockSource lets tests and development builds inject key edges directly.
type MockSource struct {
	ch chan Edge
}

func NewMockSource() *MockSource {
	return &MockSource{ch: make(chan Edge, 32)}
}

func (s *MockSource) Events(ctx context.Context) (<-chan Edge, error) {
	return s.ch, nil
}

// Emit injects a raw edge, stamping it with the current time when unset.
func (s *MockSource) Emit(e Edge) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.ch <- e
}

func (s *MockSource) CloseEvents() {
	close(s.ch)
}
