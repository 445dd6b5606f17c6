// Package llm resolves a configured language-model provider into a single
// Completer used by the summarizer.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"
)

// ErrNoAPIKey is returned by Resolve when the provider's credential is unset.
var ErrNoAPIKey = errors.New("llm api key not set")

// ErrUnknownProvider is returned by Resolve for a name missing from the table.
var ErrUnknownProvider = errors.New("unknown llm provider")

// Completer sends one system+user prompt and returns the model's text.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Provider() string
	Model() string
}

// Wire protocol spoken by a provider.
const (
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
)

// Provider describes how to reach one backend.
type Provider struct {
	Kind      string `yaml:"kind"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// DefaultProviders returns the built-in provider table.
func DefaultProviders() map[string]Provider {
	return map[string]Provider{
		"openrouter": {
			Kind:      KindOpenAI,
			BaseURL:   "https://openrouter.ai/api/v1",
			APIKeyEnv: "OPENROUTER_API_KEY",
			Model:     "google/gemini-2.5-pro",
		},
		"deepseek": {
			Kind:      KindOpenAI,
			BaseURL:   "https://api.deepseek.com/v1",
			APIKeyEnv: "DEEPSEEK_API_KEY",
			Model:     "deepseek-chat",
		},
		"openai": {
			Kind:      KindOpenAI,
			BaseURL:   "https://api.openai.com/v1",
			APIKeyEnv: "OPENAI_API_KEY",
			Model:     "gpt-4o-mini",
		},
		"anthropic": {
			Kind:      KindAnthropic,
			BaseURL:   "https://api.anthropic.com",
			APIKeyEnv: "ANTHROPIC_API_KEY",
			Model:     "claude-sonnet-4-20250514",
		},
	}
}

// Config selects a provider and tunes requests.
type Config struct {
	Provider    string
	Model       string // overrides the provider default
	APIKey      string // overrides the provider's env var
	MaxTokens   int
	Temperature float32
	Providers   map[string]Provider // merged over DefaultProviders
	Logger      *zap.Logger
	Getenv      func(string) string // defaults to os.Getenv
}

// Resolve looks the configured provider up once and returns its Completer.
func Resolve(cfg Config) (Completer, error) {
	if cfg.Provider == "" {
		cfg.Provider = "openrouter"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 800
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Getenv == nil {
		cfg.Getenv = os.Getenv
	}

	table := Providers(cfg.Providers)
	p, ok := table[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %v)", ErrUnknownProvider, cfg.Provider, names(table))
	}

	model := p.Model
	if cfg.Model != "" {
		model = cfg.Model
	}
	if model == "" {
		return nil, fmt.Errorf("provider %q: no model configured", cfg.Provider)
	}

	key := cfg.APIKey
	if key == "" && p.APIKeyEnv != "" {
		key = cfg.Getenv(p.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("provider %q (%s): %w", cfg.Provider, p.APIKeyEnv, ErrNoAPIKey)
	}

	opts := clientOptions{
		name:        cfg.Provider,
		baseURL:     p.BaseURL,
		apiKey:      key,
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      cfg.Logger.With(zap.String("provider", cfg.Provider), zap.String("model", model)),
	}

	switch p.Kind {
	case KindOpenAI, "":
		return newOpenAI(opts), nil
	case KindAnthropic:
		return newAnthropic(opts), nil
	default:
		return nil, fmt.Errorf("provider %q: unsupported kind %q", cfg.Provider, p.Kind)
	}
}

// Providers merges overrides onto the built-in table. Empty override
// fields keep the built-in value.
func Providers(overrides map[string]Provider) map[string]Provider {
	table := DefaultProviders()
	for name, o := range overrides {
		base := table[name]
		if o.Kind != "" {
			base.Kind = o.Kind
		}
		if o.BaseURL != "" {
			base.BaseURL = o.BaseURL
		}
		if o.APIKeyEnv != "" {
			base.APIKeyEnv = o.APIKeyEnv
		}
		if o.Model != "" {
			base.Model = o.Model
		}
		table[name] = base
	}
	return table
}

func names(table map[string]Provider) []string {
	out := make([]string, 0, len(table))
	for n := range table {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

type clientOptions struct {
	name        string
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}
