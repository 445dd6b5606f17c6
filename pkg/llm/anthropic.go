package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/YoungLulu/auto-digest/internal/metrics"
)

const anthropicVersion = "2023-06-01"

// Anthropic calls the Messages API directly.
type Anthropic struct {
	client *http.Client
	opts   clientOptions
}

func newAnthropic(opts clientOptions) *Anthropic {
	if opts.baseURL == "" {
		opts.baseURL = "https://api.anthropic.com"
	}
	return &Anthropic{
		client: &http.Client{Timeout: 60 * time.Second},
		opts:   opts,
	}
}

func (a *Anthropic) Provider() string { return a.opts.name }
func (a *Anthropic) Model() string    { return a.opts.model }

// Complete implements Completer.
func (a *Anthropic) Complete(ctx context.Context, system, prompt string) (string, error) {
	payload := map[string]any{
		"model":      a.opts.model,
		"max_tokens": a.opts.maxTokens,
		"system":     system,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	if a.opts.temperature > 0 {
		payload["temperature"] = a.opts.temperature
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode anthropic request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(a.opts.baseURL, "/")+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.opts.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(a.opts.name, a.opts.model, "error").Inc()
		return "", fmt.Errorf("call anthropic: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.LLMRequestsTotal.WithLabelValues(a.opts.name, a.opts.model, "error").Inc()
		var errResp struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("anthropic status %d: %s", resp.StatusCode, errResp.Error.Message)
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(a.opts.name, a.opts.model, "error").Inc()
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}

	var text strings.Builder
	for _, c := range result.Content {
		if c.Type == "" || c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	if text.Len() == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(a.opts.name, a.opts.model, "error").Inc()
		return "", fmt.Errorf("anthropic: no content returned")
	}

	elapsed := time.Since(start)
	metrics.LLMRequestsTotal.WithLabelValues(a.opts.name, a.opts.model, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(a.opts.name, a.opts.model).Observe(elapsed.Seconds())
	metrics.LLMTokensTotal.WithLabelValues(a.opts.name, a.opts.model, "prompt").Add(float64(result.Usage.InputTokens))
	metrics.LLMTokensTotal.WithLabelValues(a.opts.name, a.opts.model, "completion").Add(float64(result.Usage.OutputTokens))

	a.opts.logger.Debug("completion done", zap.Duration("elapsed", elapsed))
	return text.String(), nil
}
