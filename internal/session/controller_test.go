package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/quilldict/quill/internal/audio"
	"github.com/quilldict/quill/internal/config"
	"github.com/quilldict/quill/internal/enhance"
	"github.com/quilldict/quill/internal/hotkey"
	"github.com/quilldict/quill/internal/textproc"
	"github.com/quilldict/quill/internal/transcribe"
	"github.com/quilldict/quill/internal/typist"
)

// stubCapture hands the controller an unbuffered frame channel so tests
// can inject frames with precise ordering relative to hotkey signals.
type stubCapture struct {
	ch chan audio.Frame
}

func (s *stubCapture) Start(ctx context.Context) (<-chan audio.Frame, error) {
	return s.ch, nil
}

type harness struct {
	ctrl   *Controller
	src    *hotkey.MockSource
	frames chan audio.Frame
	rec    *transcribe.MockRecognizer
	typ    *typist.MockTypist
	sink   *CaptureSink
	cancel context.CancelFunc
	done   chan error
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Hotkey.DebounceMS = 0
	cfg.Audio.MinDurationMS = 100
	cfg.Audio.MaxDurationS = 1
	cfg.Output.TrailingSpace = false
	return cfg
}

func newHarness(t *testing.T, cfg config.Config, enh enhance.Enhancer, post *textproc.PostProcessor) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &harness{
		src:    hotkey.NewMockSource(),
		frames: make(chan audio.Frame),
		rec:    transcribe.NewMockRecognizer(),
		typ:    typist.NewMockTypist(),
		sink:   &CaptureSink{},
	}
	monitor := hotkey.NewMonitor(cfg.Hotkey, h.src, log)
	h.ctrl = NewController(cfg, monitor, &stubCapture{ch: h.frames}, h.rec, enh, post, h.typ, h.sink, log)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	go func() { h.done <- h.ctrl.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			t.Error("controller did not shut down")
		}
	})
	return h
}

func (h *harness) press() {
	h.src.Emit(hotkey.Edge{Key: "rightshift", Pressed: true, At: time.Now()})
}

func (h *harness) release() {
	h.src.Emit(hotkey.Edge{Key: "rightshift", Pressed: false, At: time.Now()})
}

// pushFrames sends n frames of 30 ms mono s16le audio. Sends are
// synchronous, so every frame is appended before the caller continues.
func (h *harness) pushFrames(n int) {
	frame := make([]byte, 960)
	for i := 0; i < n; i++ {
		h.frames <- audio.Frame{PCM: frame, Captured: time.Now()}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) waitRecording(t *testing.T) {
	waitFor(t, "recording state", func() bool { return h.ctrl.Status().State == "recording" })
}

func (h *harness) waitRecords(t *testing.T, n int) {
	waitFor(t, "perf records", func() bool { return len(h.sink.Records()) >= n })
}

func TestPressReleaseSingleSession(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil)

	h.press()
	h.waitRecording(t)
	h.pushFrames(10)
	h.release()
	h.waitRecords(t, 1)

	recs := h.sink.Records()
	if len(recs) != 1 {
		t.Fatalf("expected 1 perf record, got %d", len(recs))
	}
	if recs[0].Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %q, want %q", recs[0].Outcome, OutcomeCompleted)
	}
	if recs[0].AudioMS != 300 {
		t.Fatalf("audio_ms = %d, want 300", recs[0].AudioMS)
	}
	if recs[0].EnhanceMS != nil {
		t.Fatal("enhance_ms should be nil when enhancement is disabled")
	}

	calls := h.typ.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 typed text, got %d", len(calls))
	}
	if calls[0].Text != "[mock transcript 0.3s]" {
		t.Fatalf("typed %q", calls[0].Text)
	}

	var got []string
	for _, s := range h.sink.States() {
		if s.SessionID == 1 {
			got = append(got, s.State)
		}
	}
	want := []string{"recording", "transcribing", "typing", "done"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("state sequence %v, want %v", got, want)
	}
}

func TestOnlyInWindowFramesAreBuffered(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil)

	// Frames before the press must be discarded.
	h.pushFrames(5)
	h.press()
	h.waitRecording(t)
	h.pushFrames(10)
	h.release()
	h.waitRecords(t, 1)

	if got := h.sink.Records()[0].AudioMS; got != 300 {
		t.Fatalf("audio_ms = %d, want 300 (pre-press frames buffered?)", got)
	}
}

func TestZeroFrameReleaseIsEmptyRecording(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil)

	h.press()
	h.waitRecording(t)
	h.release()
	h.waitRecords(t, 1)

	rec := h.sink.Records()[0]
	if rec.Outcome != OutcomeEmpty {
		t.Fatalf("outcome = %q, want %q", rec.Outcome, OutcomeEmpty)
	}
	if len(h.typ.Calls()) != 0 {
		t.Fatal("nothing should be typed for an empty recording")
	}
	if len(h.sink.Transcripts()) != 0 {
		t.Fatal("no transcript should be published for an empty recording")
	}
	states := h.sink.States()
	last := states[len(states)-1]
	if last.State != "failed" || last.Error == "" {
		t.Fatalf("expected terminal failed state with error, got %+v", last)
	}
}

func TestBelowMinDurationIsEmptyRecording(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil)

	h.press()
	h.waitRecording(t)
	h.pushFrames(2) // 60 ms, below the 100 ms minimum
	h.release()
	h.waitRecords(t, 1)

	if got := h.sink.Records()[0].Outcome; got != OutcomeEmpty {
		t.Fatalf("outcome = %q, want %q", got, OutcomeEmpty)
	}
	if len(h.typ.Calls()) != 0 {
		t.Fatal("nothing should be typed")
	}
}

func TestMaxDurationForcesCutover(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil)

	h.press()
	h.waitRecording(t)
	h.pushFrames(10)
	// No release; the 1 s maximum must freeze the session on its own.
	h.waitRecords(t, 1)

	rec := h.sink.Records()[0]
	if rec.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %q, want %q", rec.Outcome, OutcomeCompleted)
	}
	truncated := false
	for _, s := range h.sink.States() {
		if s.State == "transcribing" && s.Truncated {
			truncated = true
		}
	}
	if !truncated {
		t.Fatal("transcribing state should be flagged truncated after cutover")
	}
	if len(h.typ.Calls()) != 1 {
		t.Fatalf("expected the truncated session to be typed, got %d calls", len(h.typ.Calls()))
	}

	// The belated physical release must not spawn a session.
	h.release()
	time.Sleep(50 * time.Millisecond)
	if got := h.ctrl.Status().SessionsTotal; got != 1 {
		t.Fatalf("sessions_total = %d after stray release, want 1", got)
	}
}

func TestTypingFollowsPipelineCompletionOrder(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil)

	h.rec.Next(250*time.Millisecond, transcribe.Result{Text: "slow one"}, nil)
	h.rec.Next(10*time.Millisecond, transcribe.Result{Text: "fast one"}, nil)

	h.press()
	h.waitRecording(t)
	h.pushFrames(10)
	h.release()
	waitFor(t, "first pipeline started", func() bool { return h.ctrl.Status().InFlight >= 1 })

	h.press()
	h.waitRecording(t)
	h.pushFrames(10)
	h.release()
	h.waitRecords(t, 2)

	calls := h.typ.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 typed texts, got %d", len(calls))
	}
	if calls[0].Text != "fast one" || calls[1].Text != "slow one" {
		t.Fatalf("typing order %q then %q, want arrival order", calls[0].Text, calls[1].Text)
	}
}

func TestEnhancementFailureFallsBackToRaw(t *testing.T) {
	enh := &enhance.MockEnhancer{Err: errors.New("model offline")}
	h := newHarness(t, testConfig(), enh, nil)

	h.press()
	h.waitRecording(t)
	h.pushFrames(10)
	h.release()
	h.waitRecords(t, 1)

	rec := h.sink.Records()[0]
	if rec.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %q, want %q", rec.Outcome, OutcomeCompleted)
	}
	if !rec.EnhanceFallback {
		t.Fatal("fallback must be recorded when enhancement fails")
	}
	if rec.EnhanceMS == nil {
		t.Fatal("enhance_ms must be set when enhancement was attempted")
	}
	calls := h.typ.Calls()
	if len(calls) != 1 || calls[0].Text != "[mock transcript 0.3s]" {
		t.Fatalf("expected raw transcript typed verbatim, got %v", calls)
	}
}

func TestEnhancementRewritesText(t *testing.T) {
	h := newHarness(t, testConfig(), enhance.NewMockEnhancer(), nil)

	h.rec.Next(0, transcribe.Result{Text: "hello there"}, nil)

	h.press()
	h.waitRecording(t)
	h.pushFrames(10)
	h.release()
	h.waitRecords(t, 1)

	calls := h.typ.Calls()
	if len(calls) != 1 || calls[0].Text != "Hello there." {
		t.Fatalf("typed %v, want enhanced text", calls)
	}
	tr := h.sink.Transcripts()
	if len(tr) != 1 || tr[0].Raw != "hello there" || tr[0].Enhanced != "Hello there." {
		t.Fatalf("transcript event %+v", tr)
	}
	if h.sink.Records()[0].EnhanceFallback {
		t.Fatal("successful enhancement must not be flagged as fallback")
	}
}

func TestEmptyTranscriptFailsSession(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil)

	h.rec.Next(0, transcribe.Result{Text: "   "}, nil)

	h.press()
	h.waitRecording(t)
	h.pushFrames(10)
	h.release()
	h.waitRecords(t, 1)

	rec := h.sink.Records()[0]
	if rec.Outcome != OutcomeTranscribe {
		t.Fatalf("outcome = %q, want %q", rec.Outcome, OutcomeTranscribe)
	}
	if len(h.typ.Calls()) != 0 {
		t.Fatal("zero characters must be typed for an empty transcript")
	}
}

func TestTranscriptionErrorFailsSession(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil)

	h.rec.Next(0, transcribe.Result{}, errors.New("backend crashed"))

	h.press()
	h.waitRecording(t)
	h.pushFrames(10)
	h.release()
	h.waitRecords(t, 1)

	rec := h.sink.Records()[0]
	if rec.Outcome != OutcomeTranscribe {
		t.Fatalf("outcome = %q, want %q", rec.Outcome, OutcomeTranscribe)
	}
	if len(h.typ.Calls()) != 0 {
		t.Fatal("nothing should be typed after a transcription error")
	}
}

func TestTypistErrorStillCompletesSession(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil)
	h.typ.Err = errors.New("no display")

	h.press()
	h.waitRecording(t)
	h.pushFrames(10)
	h.release()
	h.waitRecords(t, 1)

	rec := h.sink.Records()[0]
	if rec.Outcome != OutcomeTypingError {
		t.Fatalf("outcome = %q, want %q", rec.Outcome, OutcomeTypingError)
	}
	states := h.sink.States()
	last := states[len(states)-1]
	if last.State != "done" {
		t.Fatalf("terminal state %q, want done", last.State)
	}
}

func TestTrailingSpaceAppended(t *testing.T) {
	cfg := testConfig()
	cfg.Output.TrailingSpace = true
	h := newHarness(t, cfg, nil, nil)

	h.rec.Next(0, transcribe.Result{Text: "hello"}, nil)

	h.press()
	h.waitRecording(t)
	h.pushFrames(10)
	h.release()
	h.waitRecords(t, 1)

	calls := h.typ.Calls()
	if len(calls) != 1 || calls[0].Text != "hello " {
		t.Fatalf("typed %v, want trailing space", calls)
	}
}

func TestCorrectionsAppliedBeforeTyping(t *testing.T) {
	post := textproc.NewPostProcessor(map[string]string{"i": "I"})
	h := newHarness(t, testConfig(), nil, post)

	h.rec.Next(0, transcribe.Result{Text: "i think i agree"}, nil)

	h.press()
	h.waitRecording(t)
	h.pushFrames(10)
	h.release()
	h.waitRecords(t, 1)

	calls := h.typ.Calls()
	if len(calls) != 1 || calls[0].Text != "I think I agree" {
		t.Fatalf("typed %v", calls)
	}
}

func TestShutdownDrainsInFlightPipeline(t *testing.T) {
	h := newHarness(t, testConfig(), nil, nil)

	h.rec.Next(200*time.Millisecond, transcribe.Result{Text: "last words"}, nil)

	h.press()
	h.waitRecording(t)
	h.pushFrames(10)
	h.release()
	waitFor(t, "pipeline started", func() bool { return h.ctrl.Status().InFlight >= 1 })

	h.cancel()
	waitFor(t, "drained pipeline", func() bool { return len(h.typ.Calls()) == 1 })

	calls := h.typ.Calls()
	if len(calls) != 1 || calls[0].Text != "last words" {
		t.Fatalf("in-flight session should finish typing on shutdown, got %v", calls)
	}
}
