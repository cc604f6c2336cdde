package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("expected default sample rate 16000, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Enhance.Endpoint != "http://localhost:11434" {
		t.Fatalf("expected default ollama endpoint, got %s", cfg.Enhance.Endpoint)
	}
	if cfg.Enhance.Model != "gemma3:12b" {
		t.Fatalf("expected default enhance model, got %s", cfg.Enhance.Model)
	}
	if cfg.Hotkey.DebounceMS != 50 {
		t.Fatalf("expected default debounce 50ms, got %d", cfg.Hotkey.DebounceMS)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("QUILL_AUDIO_SAMPLE_RATE", "48000")
	t.Setenv("QUILL_AUDIO_MAX_DURATION_S", "30")
	t.Setenv("QUILL_ENHANCE_ENABLED", "true")
	t.Setenv("QUILL_ENHANCE_MODE", "ollama")
	t.Setenv("QUILL_ENHANCE_MODEL", "llama3:8b")
	t.Setenv("QUILL_ENHANCE_TEMPERATURE", "0.1")
	t.Setenv("QUILL_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("QUILL_OUTPUT_TRAILING_SPACE", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audio.SampleRate != 48000 {
		t.Fatalf("expected sample rate override, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.MaxDurationS != 30 {
		t.Fatalf("expected max duration override, got %d", cfg.Audio.MaxDurationS)
	}
	if !cfg.Enhance.Enabled || cfg.Enhance.Model != "llama3:8b" {
		t.Fatalf("expected enhance overrides, got %+v", cfg.Enhance)
	}
	if cfg.Enhance.Temperature != 0.1 {
		t.Fatalf("expected temperature override, got %f", cfg.Enhance.Temperature)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Output.TrailingSpace {
		t.Fatal("expected trailing space override false")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quill.yaml")
	body := []byte("audio:\n  mode: mock\n  sample_rate: 8000\ntranscribe:\n  mode: mock\noutput:\n  mode: mock\nhotkey:\n  mode: mock\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audio.Mode != "mock" || cfg.Audio.SampleRate != 8000 {
		t.Fatalf("expected file values, got %+v", cfg.Audio)
	}
	// values not present in the file keep defaults
	if cfg.Audio.FrameDurationMS != 30 {
		t.Fatalf("expected default frame duration, got %d", cfg.Audio.FrameDurationMS)
	}
}

func TestValidateRejectsBadModes(t *testing.T) {
	t.Setenv("QUILL_TRANSCRIBE_MODE", "cloud")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown transcribe mode")
	}
}

func TestValidateNativeNeedsModelPath(t *testing.T) {
	t.Setenv("QUILL_TRANSCRIBE_MODE", "native")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for native mode without model path")
	}
}
