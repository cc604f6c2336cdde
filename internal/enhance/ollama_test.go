package enhance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quilldict/quill/internal/config"
)

func ollamaConfig(endpoint string) config.EnhanceConfig {
	return config.EnhanceConfig{
		Enabled:     true,
		Mode:        "ollama",
		Endpoint:    endpoint,
		Model:       "gemma3:12b",
		TimeoutMS:   500,
		MaxTokens:   150,
		Temperature: 0.3,
	}
}

func TestOllamaEnhance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "gemma3:12b" || req.Stream {
			t.Errorf("unexpected request %+v", req)
		}
		json.NewEncoder(w).Encode(ollamaResponse{Response: "Hello, world.", Done: true})
	}))
	t.Cleanup(srv.Close)

	e := NewOllamaEnhancer(ollamaConfig(srv.URL))
	out, err := e.Enhance(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Hello, world." {
		t.Fatalf("unexpected enhancement: %q", out)
	}
}

func TestOllamaEnhanceNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	e := NewOllamaEnhancer(ollamaConfig(srv.URL))
	if _, err := e.Enhance(context.Background(), "hello world"); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestOllamaEnhanceTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	t.Cleanup(srv.Close)

	e := NewOllamaEnhancer(ollamaConfig(srv.URL))
	start := time.Now()
	_, err := e.Enhance(context.Background(), "hello world")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not bounded, took %v", time.Since(start))
	}
}

func TestOllamaRejectsImplausibleOutput(t *testing.T) {
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'a'
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaResponse{Response: string(long), Done: true})
	}))
	t.Cleanup(srv.Close)

	e := NewOllamaEnhancer(ollamaConfig(srv.URL))
	if _, err := e.Enhance(context.Background(), "short"); err == nil {
		t.Fatal("expected rejection of runaway output")
	}
}
