package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/YoungLulu/auto-digest/pkg/llm"
)

// Config is the root configuration.
type Config struct {
	Keywords   KeywordsConfig   `yaml:"keywords"`
	Sources    SourcesConfig    `yaml:"sources"`
	LLM        LLMConfig        `yaml:"llm"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Cache      CacheConfig      `yaml:"cache"`
	Output     OutputConfig     `yaml:"output"`
	Email      EmailConfig      `yaml:"email"`
	Notifiers  NotifiersConfig  `yaml:"notifiers"`
	Logging    LoggingConfig    `yaml:"logging"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Database   DatabaseConfig   `yaml:"database"`
	Server     ServerConfig     `yaml:"server"`
}

// KeywordsConfig drives both source queries and the relevance filter.
type KeywordsConfig struct {
	Include      []string `yaml:"include"`
	Exclude      []string `yaml:"exclude"`
	GitHubTopics []string `yaml:"github_topics"`
}

// SourcesConfig holds configuration for all data sources.
type SourcesConfig struct {
	ArXiv  ArXivConfig  `yaml:"arxiv"`
	GitHub GitHubConfig `yaml:"github"`
}

// ArXivConfig for the arXiv collector.
type ArXivConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Categories []string `yaml:"categories"`
	MaxResults int      `yaml:"max_results"`
	DaysBack   int      `yaml:"days_back"`
}

// GitHubConfig for the GitHub search collector.
type GitHubConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Token           string `yaml:"token"`
	MaxPerQuery     int    `yaml:"max_per_query"`
	DaysBack        int    `yaml:"days_back"`
	RequestInterval string `yaml:"request_interval"`
}

// ParseRequestInterval returns the spacing between search calls.
func (g GitHubConfig) ParseRequestInterval() time.Duration {
	return parseDuration(g.RequestInterval, 2*time.Second)
}

// LLMConfig selects the summarization model.
type LLMConfig struct {
	Enabled     bool                    `yaml:"enabled"`
	Provider    string                  `yaml:"provider"`
	Model       string                  `yaml:"model"`
	APIKey      string                  `yaml:"api_key"`
	MaxTokens   int                     `yaml:"max_tokens"`
	Temperature float32                 `yaml:"temperature"`
	Providers   map[string]llm.Provider `yaml:"providers"`
}

// SummarizerConfig tunes the summarization stage.
type SummarizerConfig struct {
	PromptFile      string `yaml:"prompt_file"`
	Concurrency     int    `yaml:"concurrency"`
	RequestInterval string `yaml:"request_interval"`
}

// ParseRequestInterval returns the spacing between LLM calls.
func (s SummarizerConfig) ParseRequestInterval() time.Duration {
	return parseDuration(s.RequestInterval, time.Second)
}

// CacheConfig configures the optional summary cache.
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig for the Redis summary cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTL      string `yaml:"ttl"`
	Prefix   string `yaml:"prefix"`
}

// ParseTTL returns how long cached summaries live.
func (r RedisConfig) ParseTTL() time.Duration {
	return parseDuration(r.TTL, 7*24*time.Hour)
}

// OutputConfig configures report generation.
type OutputConfig struct {
	Dir       string `yaml:"dir"`
	PDF       bool   `yaml:"pdf"`
	Pandoc    string `yaml:"pandoc"`
	PDFEngine string `yaml:"pdf_engine"`
}

// EmailConfig configures digest delivery by email.
type EmailConfig struct {
	Enabled         bool       `yaml:"enabled"`
	RecipientEnv    string     `yaml:"recipient_env"`
	From            string     `yaml:"from"`
	SendAttachments bool       `yaml:"send_attachments"`
	SMTP            SMTPConfig `yaml:"smtp"`
}

// Recipients reads the comma-separated recipient list from the env var
// named by RecipientEnv.
func (e EmailConfig) Recipients(getenv func(string) string) []string {
	if getenv == nil {
		getenv = os.Getenv
	}
	if e.RecipientEnv == "" {
		return nil
	}
	var out []string
	for _, r := range strings.Split(getenv(e.RecipientEnv), ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// SMTPConfig holds the outgoing mail server settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UseTLS   bool   `yaml:"use_tls"`
}

// NotifiersConfig configures chat and webhook destinations.
type NotifiersConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook notifications.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook notifications.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook notifications.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
	File   string `yaml:"file"`
}

// ScheduleConfig configures the daemon loop.
type ScheduleConfig struct {
	Interval   string `yaml:"interval"`
	RunOnStart bool   `yaml:"run_on_start"`
}

// ParseInterval returns the run interval as time.Duration.
func (s ScheduleConfig) ParseInterval() time.Duration {
	return parseDuration(s.Interval, 24*time.Hour)
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Keywords: KeywordsConfig{
			Include: []string{
				"code generation", "program synthesis", "code completion",
				"program repair", "code review", "software engineering agent",
				"large language model", "coding assistant",
			},
			GitHubTopics: []string{"code-generation", "ai-coding", "llm-agent"},
		},
		Sources: SourcesConfig{
			ArXiv: ArXivConfig{
				Enabled:    true,
				Categories: []string{"cs.AI", "cs.SE", "cs.CL", "cs.LG"},
				MaxResults: 100,
				DaysBack:   7,
			},
			GitHub: GitHubConfig{
				Enabled:         true,
				MaxPerQuery:     20,
				DaysBack:        7,
				RequestInterval: "2s",
			},
		},
		LLM: LLMConfig{
			Enabled:   true,
			Provider:    "openrouter",
			MaxTokens:   800,
			Temperature: 0.3,
		},
		Summarizer: SummarizerConfig{
			Concurrency:     3,
			RequestInterval: "1s",
		},
		Cache: CacheConfig{
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				TTL:    "168h",
				Prefix: "autodigest:summary:",
			},
		},
		Output: OutputConfig{
			Dir:       "outputs",
			Pandoc:    "pandoc",
			PDFEngine: "xelatex",
		},
		Email: EmailConfig{
			RecipientEnv:    "SMTP_USERNAME",
			SendAttachments: true,
			SMTP: SMTPConfig{
				Host:   "smtp.gmail.com",
				Port:   587,
				UseTLS: true,
			},
		},
		Logging:  LoggingConfig{Level: "info", Format: "console"},
		Schedule: ScheduleConfig{Interval: "24h", RunOnStart: true},
		Database: DatabaseConfig{Path: "./autodigest.db"},
		Server:   ServerConfig{Port: 8080},
	}
}

// Load reads configuration from a YAML file, expands ${VAR} references
// and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AUTODIGEST_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("AUTODIGEST_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("AUTODIGEST_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.Sources.GitHub.Token = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTP.Port = port
		}
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		cfg.Email.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Email.SMTP.Password = v
	}
	if v := os.Getenv("SMTP_USE_TLS"); v != "" {
		cfg.Email.SMTP.UseTLS = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.Redis.Addr = v
		cfg.Cache.Redis.Enabled = true
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Notifiers.Slack.WebhookURL = v
		cfg.Notifiers.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Notifiers.Discord.WebhookURL = v
		cfg.Notifiers.Discord.Enabled = true
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if !c.Sources.ArXiv.Enabled && !c.Sources.GitHub.Enabled {
		errs = append(errs, errors.New("sources: at least one of arxiv or github must be enabled"))
	}
	if c.Sources.GitHub.Enabled && len(c.Keywords.Include) == 0 && len(c.Keywords.GitHubTopics) == 0 {
		errs = append(errs, errors.New("sources.github: needs keywords.include or keywords.github_topics"))
	}
	if c.LLM.Enabled && c.LLM.Provider == "" {
		errs = append(errs, errors.New("llm.provider: required when llm is enabled"))
	}
	if c.LLM.Enabled && c.LLM.Provider != "" {
		if _, ok := llm.Providers(c.LLM.Providers)[c.LLM.Provider]; !ok {
			errs = append(errs, fmt.Errorf("llm.provider: %w %q", llm.ErrUnknownProvider, c.LLM.Provider))
		}
	}
	if c.Summarizer.Concurrency < 0 {
		errs = append(errs, errors.New("summarizer.concurrency: must not be negative"))
	}
	if c.Cache.Redis.Enabled && c.Cache.Redis.Addr == "" {
		errs = append(errs, errors.New("cache.redis.addr: required when redis cache is enabled"))
	}
	if c.Output.Dir == "" {
		errs = append(errs, errors.New("output.dir: required"))
	}
	if c.Email.Enabled {
		if c.Email.RecipientEnv == "" {
			errs = append(errs, errors.New("email.recipient_env: required when email is enabled"))
		}
		if c.Email.SMTP.Host == "" {
			errs = append(errs, errors.New("email.smtp.host: required when email is enabled"))
		}
	}
	if c.Email.SMTP.Port < 0 || c.Email.SMTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("email.smtp.port: %d out of range", c.Email.SMTP.Port))
	}
	if c.Notifiers.Slack.Enabled && c.Notifiers.Slack.WebhookURL == "" {
		errs = append(errs, errors.New("notifiers.slack.webhook_url: required when slack is enabled"))
	}
	if c.Notifiers.Discord.Enabled && c.Notifiers.Discord.WebhookURL == "" {
		errs = append(errs, errors.New("notifiers.discord.webhook_url: required when discord is enabled"))
	}
	if c.Notifiers.Webhook.Enabled && c.Notifiers.Webhook.URL == "" {
		errs = append(errs, errors.New("notifiers.webhook.url: required when webhook is enabled"))
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}
	if c.Schedule.Interval != "" {
		if d, err := time.ParseDuration(c.Schedule.Interval); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("schedule.interval: invalid duration %q", c.Schedule.Interval))
		}
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path: required"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", c.Server.Port))
	}

	return errors.Join(errs...)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
