package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/YoungLulu/auto-digest/internal/metrics"
)

// OpenAI talks to any OpenAI-compatible chat completions API
// (OpenAI, OpenRouter, DeepSeek).
type OpenAI struct {
	client *openai.Client
	opts   clientOptions
}

func newOpenAI(opts clientOptions) *OpenAI {
	clientCfg := openai.DefaultConfig(opts.apiKey)
	if opts.baseURL != "" {
		clientCfg.BaseURL = opts.baseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		opts:   opts,
	}
}

func (o *OpenAI) Provider() string { return o.opts.name }
func (o *OpenAI) Model() string    { return o.opts.model }

// Complete implements Completer.
func (o *OpenAI) Complete(ctx context.Context, system, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.opts.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   o.opts.maxTokens,
		Temperature: o.opts.temperature,
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(o.opts.name, o.opts.model, "error").Inc()
		return "", parseAPIError(o.opts.name, err)
	}
	if len(resp.Choices) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(o.opts.name, o.opts.model, "error").Inc()
		return "", fmt.Errorf("%s: no choices returned", o.opts.name)
	}

	metrics.LLMRequestsTotal.WithLabelValues(o.opts.name, o.opts.model, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(o.opts.name, o.opts.model).Observe(elapsed.Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.LLMTokensTotal.WithLabelValues(o.opts.name, o.opts.model, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.LLMTokensTotal.WithLabelValues(o.opts.name, o.opts.model, "completion").Add(float64(resp.Usage.CompletionTokens))
	}

	o.opts.logger.Debug("completion done",
		zap.Duration("elapsed", elapsed),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	return resp.Choices[0].Message.Content, nil
}

func parseAPIError(provider string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s API error %d: %s: %w", provider, apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%s API error %d: %w", provider, reqErr.HTTPStatusCode, err)
	}
	return fmt.Errorf("%s request failed: %w", provider, err)
}
