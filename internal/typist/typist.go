// Package typist injects finished text into whatever has input focus.
// The side effect is irreversible and externally visible, so errors are
// reported but never retried: retried keystrokes risk duplicated text in
// the target application.
package typist

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/quilldict/quill/internal/config"
)

// Typist performs one injection per call. Serialization across sessions
// is the session controller's job; implementations only need to survive
// concurrent construction-time use.
type Typist interface {
	Type(ctx context.Context, text string) error
}

// New builds a typist from config.
func New(cfg config.OutputConfig) (Typist, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockTypist(), nil
	case "exec", "":
		return NewExecTypist(cfg.Command)
	default:
		return nil, fmt.Errorf("unknown output mode %q", cfg.Mode)
	}
}

type execTypist struct {
	cmd []string
}

// NewExecTypist pipes text to an injection helper's stdin (wtype -,
// xdotool type --file -, or an equivalent per platform). UTF-8 passes
// through untouched; fidelity is the helper's concern.
func NewExecTypist(command string) (Typist, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse output command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("output command is empty")
	}
	return &execTypist{cmd: args}, nil
}

func (t *execTypist) Type(ctx context.Context, text string) error {
	command := exec.CommandContext(ctx, t.cmd[0], t.cmd[1:]...)
	command.Stdin = strings.NewReader(text)
	if out, err := command.CombinedOutput(); err != nil {
		return fmt.Errorf("inject text: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// MockTypist records every injection for assertions on content and order.
type MockTypist struct {
	mu    sync.Mutex
	calls []Call
	Err   error
}

type Call struct {
	Text string
	At   time.Time
}

func NewMockTypist() *MockTypist { return &MockTypist{} }

func (t *MockTypist) Type(ctx context.Context, text string) error {
	t.mu.Lock()
	t.calls = append(t.calls, Call{Text: text, At: time.Now()})
	err := t.Err
	t.mu.Unlock()
	return err
}

func (t *MockTypist) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Call, len(t.calls))
	copy(out, t.calls)
	return out
}
