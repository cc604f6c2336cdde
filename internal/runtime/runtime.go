// Package runtime assembles the dictation daemon: telemetry, the event
// bus, the performance log, the capture and hotkey adapters, and the
// session controller, plus the local HTTP surface for health, status and
// metrics.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quilldict/quill/internal/audio"
	"github.com/quilldict/quill/internal/bus"
	"github.com/quilldict/quill/internal/config"
	"github.com/quilldict/quill/internal/enhance"
	"github.com/quilldict/quill/internal/hotkey"
	"github.com/quilldict/quill/internal/natsserver"
	"github.com/quilldict/quill/internal/perflog"
	"github.com/quilldict/quill/internal/session"
	"github.com/quilldict/quill/internal/textproc"
	"github.com/quilldict/quill/internal/transcribe"
	"github.com/quilldict/quill/internal/typist"
)

type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	ready      atomic.Bool
	controller *session.Controller
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start wires every component and blocks until ctx is cancelled or a
// fatal error occurs. The capture device and the hotkey hook are probed
// inside the controller; either failing aborts startup.
func (r *Runtime) Start(ctx context.Context) error {
	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownTelemetry(closeCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()

	if r.cfg.Bus.Embedded {
		embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
		defer embedded.Shutdown()
	}

	busClient, err := bus.Connect(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer busClient.Close()

	store, err := perflog.Open(ctx, r.cfg.PerfLog, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open performance log: %w", err)
	}
	defer store.Close()

	perfService := perflog.NewService(store, busClient, r.logger)
	if err := perfService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start perf log service: %w", err)
	}
	defer perfService.Stop()

	post, err := textproc.Load(r.cfg.Corrections)
	if err != nil {
		return fmt.Errorf("failed to load corrections: %w", err)
	}

	capture, err := audio.NewCaptureSource(r.cfg.Audio, r.logger)
	if err != nil {
		return err
	}
	keySource, err := hotkey.NewSource(r.cfg.Hotkey, r.logger)
	if err != nil {
		return err
	}
	monitor := hotkey.NewMonitor(r.cfg.Hotkey, keySource, r.logger)

	recognizer, err := transcribe.New(r.cfg.Transcribe)
	if err != nil {
		return fmt.Errorf("failed to initialize recognizer: %w", err)
	}
	enhancer, err := enhance.New(r.cfg.Enhance)
	if err != nil {
		return fmt.Errorf("failed to initialize enhancer: %w", err)
	}
	injector, err := typist.New(r.cfg.Output)
	if err != nil {
		return fmt.Errorf("failed to initialize typist: %w", err)
	}

	sink := newBusSink(busClient, r.logger)
	r.controller = session.NewController(r.cfg, monitor, capture, recognizer, enhancer, post, injector, sink, r.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/statusz", r.handleStatus)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return r.controller.Run(gctx)
	})
	g.Go(func() error {
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		r.ready.Store(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("hotkey", r.cfg.Hotkey.Key),
		slog.Bool("enhance", r.cfg.Enhance.Enabled))

	err = g.Wait()
	r.logger.Info("runtime stopped")
	return err
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

// handleStatus serves the recording-status indicator: whether a session
// is recording right now and how many pipelines are still in flight.
func (r *Runtime) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.controller == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if err := json.NewEncoder(w).Encode(r.controller.Status()); err != nil {
		r.logger.Warn("status encode failed", slog.String("error", err.Error()))
	}
}
