package enhance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/quilldict/quill/internal/config"
)

type openaiEnhancer struct {
	client      oai.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAIEnhancer uses chat completions against OpenAI or any
// compatible endpoint (Azure deployments via base URL override).
func NewOpenAIEnhancer(cfg config.EnhanceConfig, apiKey string) (Enhancer, error) {
	if apiKey == "" {
		return nil, errors.New("openai enhancer requires an API key")
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout(cfg)}),
	}
	if cfg.Endpoint != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.Endpoint))
	}
	return &openaiEnhancer{
		client:      oai.NewClient(reqOpts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (e *openaiEnhancer) Enhance(ctx context.Context, text string) (string, error) {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(e.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(enhancePrompt),
			oai.UserMessage(text),
		},
	}
	if e.temperature != 0 {
		params.Temperature = param.NewOpt(e.temperature)
	}
	if e.maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(e.maxTokens))
	}

	resp, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}

	enhanced := strings.TrimSpace(resp.Choices[0].Message.Content)
	if !plausible(text, enhanced) {
		return "", fmt.Errorf("openai returned implausible enhancement (len=%d)", len(enhanced))
	}
	return enhanced, nil
}
