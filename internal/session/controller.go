package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/quilldict/quill/internal/audio"
	"github.com/quilldict/quill/internal/config"
	"github.com/quilldict/quill/internal/enhance"
	"github.com/quilldict/quill/internal/hotkey"
	"github.com/quilldict/quill/internal/protocol"
	"github.com/quilldict/quill/internal/textproc"
	"github.com/quilldict/quill/internal/transcribe"
	"github.com/quilldict/quill/internal/typist"
)

// typingQueueDepth bounds how many finished transcripts can wait for the
// typing worker before pipelines start blocking on enqueue.
const typingQueueDepth = 16

// Controller owns the dictation state machine. Hotkey signals, capture
// frames and the max-duration timer are consumed in one serialized loop,
// so at most one session records at a time. Finished recordings hand off
// to per-session pipeline goroutines; a single typing worker serializes
// text injection in pipeline completion order.
type Controller struct {
	cfg     config.Config
	monitor *hotkey.Monitor
	capture audio.CaptureSource
	rec     transcribe.Recognizer
	enh     enhance.Enhancer
	post    *textproc.PostProcessor
	typ     typist.Typist
	sink    EventSink
	log     *slog.Logger
	metrics *metrics

	minDur time.Duration
	maxDur time.Duration

	typeQueue chan typeJob
	pipelines sync.WaitGroup

	mu       sync.Mutex
	nextID   uint64
	activeID uint64
	inFlight int
	lastID   uint64
	last     State
}

type typeJob struct {
	sess *Session
	text string
	perf protocol.PerfRecord
}

func NewController(
	cfg config.Config,
	monitor *hotkey.Monitor,
	capture audio.CaptureSource,
	rec transcribe.Recognizer,
	enh enhance.Enhancer,
	post *textproc.PostProcessor,
	typ typist.Typist,
	sink EventSink,
	log *slog.Logger,
) *Controller {
	c := &Controller{
		cfg:       cfg,
		monitor:   monitor,
		capture:   capture,
		rec:       rec,
		enh:       enh,
		post:      post,
		typ:       typ,
		sink:      sink,
		log:       log.With(slog.String("component", "session-controller")),
		minDur:    time.Duration(cfg.Audio.MinDurationMS) * time.Millisecond,
		maxDur:    time.Duration(cfg.Audio.MaxDurationS) * time.Second,
		typeQueue: make(chan typeJob, typingQueueDepth),
		last:      StateIdle,
	}
	if sink == nil {
		c.sink = NopSink{}
	}
	m, err := newMetrics()
	if err != nil {
		c.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	} else {
		c.metrics = m
	}
	return c
}

// Status is a point-in-time snapshot served by the status endpoint.
type Status struct {
	State         string `json:"state"`
	ActiveSession uint64 `json:"active_session,omitempty"`
	InFlight      int    `json:"in_flight"`
	LastSession   uint64 `json:"last_session,omitempty"`
	LastState     string `json:"last_state"`
	SessionsTotal uint64 `json:"sessions_total"`
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		State:         "idle",
		ActiveSession: c.activeID,
		InFlight:      c.inFlight,
		LastSession:   c.lastID,
		LastState:     c.last.String(),
		SessionsTotal: c.nextID,
	}
	if c.activeID != 0 {
		st.State = "recording"
	}
	return st
}

// Run blocks until ctx is cancelled. Startup failures of the hotkey hook
// or the capture device are returned immediately; the daemon cannot run
// without either. On shutdown a recording in progress is abandoned, but
// pipelines already past their recording are drained to completion.
func (c *Controller) Run(ctx context.Context) error {
	signals, err := c.monitor.Start(ctx)
	if err != nil {
		return err
	}
	frames, err := c.capture.Start(ctx)
	if err != nil {
		return err
	}

	workerDone := make(chan struct{})
	go c.typeWorker(workerDone)

	var (
		active *Session
		maxT   *time.Timer
		maxC   <-chan time.Time
	)
	clearTimer := func() {
		if maxT != nil {
			maxT.Stop()
			maxT = nil
			maxC = nil
		}
	}

	defer func() {
		clearTimer()
		c.pipelines.Wait()
		close(c.typeQueue)
		<-workerDone
	}()

	for {
		select {
		case <-ctx.Done():
			if active != nil {
				active.Buffer.Freeze()
				c.log.Warn("shutdown during recording, session abandoned",
					slog.Uint64("session_id", active.ID))
				c.setState(active, StateFailed, "shutdown during recording")
				c.setActive(0)
			}
			return nil

		case sig, ok := <-signals:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: event stream ended", hotkey.ErrHotkeyHook)
			}
			switch sig.Kind {
			case hotkey.Press:
				if active != nil {
					// One recording at a time. The monitor alternates
					// edges, so this is a spurious press.
					continue
				}
				active = c.beginSession(sig.At)
				maxT = time.NewTimer(c.maxDur)
				maxC = maxT.C
			case hotkey.Release:
				if active == nil {
					continue
				}
				clearTimer()
				c.finishRecording(active, sig.At, false)
				active = nil
			}

		case <-maxC:
			if active == nil {
				continue
			}
			c.log.Warn("max recording duration exceeded, cutting over",
				slog.Uint64("session_id", active.ID),
				slog.Duration("max", c.maxDur))
			clearTimer()
			c.finishRecording(active, time.Now(), true)
			active = nil

		case f, ok := <-frames:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: frame stream ended", audio.ErrCaptureDevice)
			}
			if active != nil {
				active.Buffer.Append(f)
			}
		}
	}
}

func (c *Controller) beginSession(at time.Time) *Session {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	s := &Session{
		ID:        id,
		StartedAt: at,
		Buffer:    audio.NewRingBuffer(c.cfg.Audio.SampleRate, c.cfg.Audio.Channels),
	}
	c.setActive(id)
	c.setState(s, StateRecording, "")
	c.log.Info("recording started", slog.Uint64("session_id", id))
	return s
}

// finishRecording freezes the buffer and either short-circuits an empty
// recording or hands the session to its pipeline goroutine. Runs on the
// serialized loop.
func (c *Controller) finishRecording(s *Session, at time.Time, truncated bool) {
	s.Buffer.Freeze()
	s.StoppedAt = at
	s.Truncated = truncated
	c.setActive(0)

	audioDur := s.Buffer.Duration()
	c.log.Info("recording stopped",
		slog.Uint64("session_id", s.ID),
		slog.Duration("audio", audioDur),
		slog.Bool("truncated", truncated))

	if c.cfg.Audio.DumpDir != "" {
		name := fmt.Sprintf("session-%d.wav", s.ID)
		if path, err := audio.DumpClip(c.cfg.Audio.DumpDir, name, s.Buffer); err != nil {
			c.log.Warn("audio dump failed", slog.String("error", err.Error()))
		} else {
			c.log.Debug("audio dumped", slog.String("path", path))
		}
	}

	if s.Buffer.Frames() == 0 || audioDur < c.minDur {
		c.setState(s, StateFailed, ErrEmptyRecording.Error())
		c.metrics.recordOutcome(OutcomeEmpty, audioDur)
		c.sink.Perf(c.perfRecord(s, protocol.PerfRecord{
			AudioMS: audioDur.Milliseconds(),
			Outcome: OutcomeEmpty,
		}))
		return
	}

	c.setState(s, StateTranscribing, "")
	c.mu.Lock()
	c.inFlight++
	c.mu.Unlock()
	c.pipelines.Add(1)
	go c.pipeline(s, audioDur)
}

// pipeline runs the post-recording stages for one session. It uses a
// background context so shutdown drains in-flight work instead of
// cancelling it.
func (c *Controller) pipeline(s *Session, audioDur time.Duration) {
	defer func() {
		c.pipelines.Done()
		c.mu.Lock()
		c.inFlight--
		c.mu.Unlock()
	}()

	ctx := context.Background()
	buf := s.Buffer

	tStart := time.Now()
	res, err := c.rec.Transcribe(ctx, buf.Bytes(), buf.SampleRate(), buf.Channels())
	transcribeDur := time.Since(tStart)
	c.metrics.recordStage("transcribe", transcribeDur)

	perf := protocol.PerfRecord{
		AudioMS:      audioDur.Milliseconds(),
		TranscribeMS: transcribeDur.Milliseconds(),
		Model:        c.cfg.Transcribe.Model,
	}

	if err != nil {
		c.log.Error("transcription failed",
			slog.Uint64("session_id", s.ID),
			slog.String("error", err.Error()))
		c.fail(s, OutcomeTranscribe, err.Error(), perf)
		return
	}

	raw := strings.TrimSpace(res.Text)
	if raw == "" {
		c.log.Warn("empty transcript", slog.Uint64("session_id", s.ID))
		c.fail(s, OutcomeTranscribe, ErrEmptyTranscript.Error(), perf)
		return
	}

	text := raw
	enhanced := ""
	if c.enh != nil {
		c.setState(s, StateEnhancing, "")
		eStart := time.Now()
		out, err := c.enh.Enhance(ctx, raw)
		enhanceDur := time.Since(eStart)
		c.metrics.recordStage("enhance", enhanceDur)
		ms := enhanceDur.Milliseconds()
		perf.EnhanceMS = &ms
		if err != nil {
			c.log.Warn("enhancement failed, using raw transcript",
				slog.Uint64("session_id", s.ID),
				slog.String("error", err.Error()))
			perf.EnhanceFallback = true
		} else {
			enhanced = out
			text = out
		}
	}

	final := text
	if c.post != nil {
		final = c.post.Apply(text)
	}
	perf.TextLength = utf8.RuneCountInString(final)

	c.sink.Transcript(protocol.Transcript{
		SessionID:  s.ID,
		Raw:        raw,
		Enhanced:   enhanced,
		Final:      final,
		Language:   res.Language,
		Confidence: res.Confidence,
		AudioMS:    audioDur.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	})

	typed := final
	if c.cfg.Output.TrailingSpace {
		typed += " "
	}

	c.setState(s, StateTyping, "")
	c.typeQueue <- typeJob{sess: s, text: typed, perf: perf}
}

func (c *Controller) typeWorker(done chan<- struct{}) {
	defer close(done)
	for job := range c.typeQueue {
		s := job.sess
		err := c.typ.Type(context.Background(), job.text)
		outcome := OutcomeCompleted
		errMsg := ""
		if err != nil {
			// Text injection failures are not retried; the transcript
			// is already logged on the bus.
			outcome = OutcomeTypingError
			errMsg = err.Error()
			c.log.Error("typing failed",
				slog.Uint64("session_id", s.ID),
				slog.String("error", err.Error()))
		} else {
			c.metrics.recordTyped(job.perf.TextLength)
		}

		c.setState(s, StateDone, errMsg)
		job.perf.Outcome = outcome
		c.metrics.recordOutcome(outcome, time.Duration(job.perf.AudioMS)*time.Millisecond)
		c.sink.Perf(c.perfRecord(s, job.perf))
		c.log.Info("session done",
			slog.Uint64("session_id", s.ID),
			slog.String("outcome", outcome),
			slog.Int("text_length", job.perf.TextLength))
	}
}

func (c *Controller) fail(s *Session, outcome, errMsg string, perf protocol.PerfRecord) {
	c.setState(s, StateFailed, errMsg)
	perf.Outcome = outcome
	c.metrics.recordOutcome(outcome, time.Duration(perf.AudioMS)*time.Millisecond)
	c.sink.Perf(c.perfRecord(s, perf))
}

func (c *Controller) perfRecord(s *Session, perf protocol.PerfRecord) protocol.PerfRecord {
	perf.SessionID = s.ID
	perf.StartedAt = s.StartedAt.UTC()
	perf.StoppedAt = s.StoppedAt.UTC()
	perf.TotalMS = time.Since(s.StartedAt).Milliseconds()
	return perf
}

func (c *Controller) setActive(id uint64) {
	c.mu.Lock()
	c.activeID = id
	c.mu.Unlock()
}

func (c *Controller) setState(s *Session, st State, errMsg string) {
	s.State = st
	c.mu.Lock()
	c.lastID = s.ID
	c.last = st
	c.mu.Unlock()
	c.sink.SessionState(protocol.SessionState{
		SessionID: s.ID,
		State:     st.String(),
		Timestamp: time.Now().UTC(),
		Error:     errMsg,
		Truncated: s.Truncated,
	})
}
