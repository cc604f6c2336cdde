package hotkey

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quilldict/quill/internal/config"
)

// SignalKind distinguishes the two debounced transitions of the trigger key.
type SignalKind int

const (
	Press SignalKind = iota
	Release
)

func (k SignalKind) String() string {
	if k == Press {
		return "press"
	}
	return "release"
}

// Signal is a debounced press or release of the trigger key. The monitor
// guarantees strict press/release alternation starting with a press.
type Signal struct {
	Kind SignalKind
	At   time.Time
}

// Monitor debounces raw key edges into paired press/release signals.
// Jitter around a single physical press never yields two presses without
// an intervening release; a genuine tap shorter than the debounce window
// still yields its release once the window settles.
type Monitor struct {
	src      Source
	key      string
	debounce time.Duration
	log      *slog.Logger
}

func NewMonitor(cfg config.HotkeyConfig, src Source, log *slog.Logger) *Monitor {
	return &Monitor{
		src:      src,
		key:      cfg.Key,
		debounce: time.Duration(cfg.DebounceMS) * time.Millisecond,
		log:      log.With(slog.String("component", "hotkey")),
	}
}

// Start installs the hook and returns the debounced signal stream. A
// source failure here is ErrHotkeyHook and fatal to the caller.
func (m *Monitor) Start(ctx context.Context) (<-chan Signal, error) {
	edges, err := m.src.Events(ctx)
	if err != nil {
		return nil, fmt.Errorf("install hotkey hook: %w", err)
	}
	out := make(chan Signal, 16)
	go m.run(ctx, edges, out)
	return out, nil
}

func (m *Monitor) run(ctx context.Context, edges <-chan Edge, out chan<- Signal) {
	defer close(out)

	var (
		emittedPressed bool
		rawPressed     bool
		lastEmit       time.Time
		settle         *time.Timer
		settleC        <-chan time.Time
	)

	emit := func(pressed bool, at time.Time) {
		kind := Release
		if pressed {
			kind = Press
		}
		emittedPressed = pressed
		lastEmit = at
		select {
		case out <- Signal{Kind: kind, At: at}:
		case <-ctx.Done():
		}
	}

	stopSettle := func() {
		if settle != nil {
			settle.Stop()
			settle = nil
			settleC = nil
		}
	}
	defer stopSettle()

	for {
		select {
		case <-ctx.Done():
			return

		case e, ok := <-edges:
			if !ok {
				return
			}
			if m.key != "" && e.Key != "" && e.Key != m.key {
				continue
			}
			at := e.At
			if at.IsZero() {
				at = time.Now()
			}
			rawPressed = e.Pressed
			if rawPressed == emittedPressed {
				// Duplicate edge or jitter back to the emitted state.
				stopSettle()
				continue
			}
			if at.Sub(lastEmit) >= m.debounce {
				stopSettle()
				emit(rawPressed, at)
				continue
			}
			// State changed inside the debounce window: re-evaluate once
			// the window closes so a short tap still gets its release.
			if settleC == nil {
				settle = time.NewTimer(m.debounce - at.Sub(lastEmit))
				settleC = settle.C
			}

		case <-settleC:
			settle = nil
			settleC = nil
			if rawPressed != emittedPressed {
				emit(rawPressed, time.Now())
			}
		}
	}
}
