package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/quilldict/quill/internal/config"
)

type ollamaEnhancer struct {
	endpoint    string
	model       string
	timeout     time.Duration
	maxTokens   int
	temperature float64
	client      *http.Client
}

// NewOllamaEnhancer talks to an Ollama server's generate API with a
// single non-streamed request per transcript.
func NewOllamaEnhancer(cfg config.EnhanceConfig) Enhancer {
	return &ollamaEnhancer{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		model:       cfg.Model,
		timeout:     timeout(cfg),
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		client:      &http.Client{},
	}
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (e *ollamaEnhancer) Enhance(ctx context.Context, text string) (string, error) {
	payload := ollamaRequest{
		Model:  e.model,
		Prompt: text,
		System: enhancePrompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature: e.temperature,
			NumPredict:  e.maxTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("ollama returned status %s", resp.Status)
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}

	enhanced := strings.TrimSpace(out.Response)
	if !plausible(text, enhanced) {
		return "", fmt.Errorf("ollama returned implausible enhancement (len=%d)", len(enhanced))
	}
	return enhanced, nil
}
