// Package enhance sends raw transcripts to a language model for grammar
// and punctuation cleanup. Enhancement is best-effort by contract: every
// error here is non-fatal and the session falls back to the raw text.
package enhance

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/quilldict/quill/internal/config"
)

// enhancePrompt mirrors the instruction given to the model: revise only,
// no commentary.
const enhancePrompt = "Fix any punctuation errors and rewrite the following text to improve brevity and clarity while preserving the original meaning. Keep slang where appropriate and only use standard ASCII characters. ONLY return revised text."

// Enhancer improves transcript text. Implementations apply the configured
// timeout themselves and report errors without retrying.
type Enhancer interface {
	Enhance(ctx context.Context, text string) (string, error)
}

// New builds an enhancer from config; returns nil when disabled.
func New(cfg config.EnhanceConfig) (Enhancer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Mode {
	case "mock":
		return NewMockEnhancer(), nil
	case "ollama", "":
		return NewOllamaEnhancer(cfg), nil
	case "openai":
		apiKey := os.Getenv(cfg.APIKeyEnv)
		return NewOpenAIEnhancer(cfg, apiKey)
	default:
		return nil, fmt.Errorf("unknown enhance mode %q", cfg.Mode)
	}
}

func timeout(cfg config.EnhanceConfig) time.Duration {
	if cfg.TimeoutMS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(cfg.TimeoutMS) * time.Millisecond
}

// plausible rejects degenerate model output: empty responses and runaway
// expansions beyond three times the input length.
func plausible(in, out string) bool {
	return out != "" && len(out) < len(in)*3
}
