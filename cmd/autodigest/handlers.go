package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/YoungLulu/auto-digest/internal/config"
	"github.com/YoungLulu/auto-digest/internal/logger"
	"github.com/YoungLulu/auto-digest/internal/metrics"
	"github.com/YoungLulu/auto-digest/internal/pipeline"
	"github.com/YoungLulu/auto-digest/internal/scheduler"
	"github.com/YoungLulu/auto-digest/internal/store"
	"github.com/YoungLulu/auto-digest/pkg/llm"
	"github.com/YoungLulu/auto-digest/pkg/notify"
	"github.com/YoungLulu/auto-digest/pkg/report"
	"github.com/YoungLulu/auto-digest/pkg/server"
	"github.com/YoungLulu/auto-digest/pkg/source"
	"github.com/YoungLulu/auto-digest/pkg/summarize"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	return logger.NewLogger(cfg.Logging.Format, level, cfg.Logging.File)
}

// app holds everything a command may need. Close releases it.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	db       *store.SQLiteStore
	cache    *summarize.RedisCache
	notifier *notify.Manager
	runner   *pipeline.Runner
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{cfg: cfg, log: log}

	a.db, err = store.New(cfg.Database.Path)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	summarizer, err := a.buildSummarizer(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.notifier, err = buildNotifiers(cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.runner = pipeline.New(pipeline.Config{
		Sources:    buildSources(cfg),
		Filter:     source.NewFilter(cfg.Keywords.Include, cfg.Keywords.Exclude),
		Summarizer: summarizer,
		Store:      a.db,
		Reporter: report.NewGenerator(report.Config{
			OutputDir:  cfg.Output.Dir,
			PDF:        cfg.Output.PDF,
			PandocPath: cfg.Output.Pandoc,
			PDFEngine:  cfg.Output.PDFEngine,
			Logger:     log,
		}),
		Notifier: a.notifier,
		Logger:   log,
	})
	return a, nil
}

func (a *app) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	_ = a.log.Sync()
}

func (a *app) buildSummarizer(ctx context.Context) (*summarize.Summarizer, error) {
	cfg := a.cfg
	sc := summarize.Config{
		Concurrency:     cfg.Summarizer.Concurrency,
		RequestInterval: cfg.Summarizer.ParseRequestInterval(),
		Logger:          a.log,
	}

	if cfg.Summarizer.PromptFile != "" {
		p, err := summarize.LoadPrompt(cfg.Summarizer.PromptFile)
		if err != nil {
			return nil, fmt.Errorf("load prompt: %w", err)
		}
		sc.Prompt = p
	}

	if cfg.LLM.Enabled {
		completer, err := llm.Resolve(llm.Config{
			Provider:    cfg.LLM.Provider,
			Model:       cfg.LLM.Model,
			APIKey:      cfg.LLM.APIKey,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Providers:   cfg.LLM.Providers,
			Logger:      a.log,
		})
		switch {
		case errors.Is(err, llm.ErrNoAPIKey):
			a.log.Warn("llm api key missing, summaries will use heuristics", zap.Error(err))
		case err != nil:
			return nil, fmt.Errorf("resolve llm: %w", err)
		default:
			sc.Completer = completer
			a.log.Info("llm ready", zap.String("provider", completer.Provider()), zap.String("model", completer.Model()))
		}
	}

	if cfg.Cache.Redis.Enabled {
		rc := cfg.Cache.Redis
		cache, err := summarize.NewRedisCache(summarize.RedisConfig{
			Addr:     rc.Addr,
			Username: rc.Username,
			Password: rc.Password,
			DB:       rc.DB,
			TTL:      rc.ParseTTL(),
			Prefix:   rc.Prefix,
		})
		if err != nil {
			a.log.Warn("redis cache unavailable, continuing without it", zap.Error(err))
		} else if err := cache.Ping(ctx); err != nil {
			a.log.Warn("redis ping failed, continuing without cache", zap.Error(err))
			cache.Close()
		} else {
			a.cache = cache
			sc.Cache = cache
		}
	}

	return summarize.New(sc), nil
}

func buildSources(cfg *config.Config) []source.Source {
	var sources []source.Source

	if cfg.Sources.ArXiv.Enabled {
		sources = append(sources, source.NewArXiv(source.ArXivConfig{
			Keywords:   cfg.Keywords.Include,
			Categories: cfg.Sources.ArXiv.Categories,
			MaxResults: cfg.Sources.ArXiv.MaxResults,
			DaysBack:   cfg.Sources.ArXiv.DaysBack,
		}))
	}
	if cfg.Sources.GitHub.Enabled {
		sources = append(sources, source.NewGitHub(source.GitHubConfig{
			Token:           cfg.Sources.GitHub.Token,
			Keywords:        cfg.Keywords.Include,
			Topics:          cfg.Keywords.GitHubTopics,
			MaxPerQuery:     cfg.Sources.GitHub.MaxPerQuery,
			DaysBack:        cfg.Sources.GitHub.DaysBack,
			RequestInterval: cfg.Sources.GitHub.ParseRequestInterval(),
		}))
	}

	return sources
}

func buildNotifiers(cfg *config.Config, log *zap.Logger) (*notify.Manager, error) {
	var notifiers []notify.Notifier

	if cfg.Email.Enabled {
		to := cfg.Email.Recipients(os.Getenv)
		if len(to) == 0 {
			return nil, fmt.Errorf("email recipient not found in environment variable %s", cfg.Email.RecipientEnv)
		}
		notifiers = append(notifiers, notify.NewEmail(notify.EmailConfig{
			Host:            cfg.Email.SMTP.Host,
			Port:            cfg.Email.SMTP.Port,
			Username:        cfg.Email.SMTP.Username,
			Password:        cfg.Email.SMTP.Password,
			From:            cfg.Email.From,
			To:              to,
			UseTLS:          cfg.Email.SMTP.UseTLS,
			SendAttachments: cfg.Email.SendAttachments,
		}))
	}
	if cfg.Notifiers.Slack.Enabled {
		notifiers = append(notifiers, notify.NewSlack(cfg.Notifiers.Slack.WebhookURL))
	}
	if cfg.Notifiers.Discord.Enabled {
		notifiers = append(notifiers, notify.NewDiscord(cfg.Notifiers.Discord.WebhookURL))
	}
	if cfg.Notifiers.Webhook.Enabled {
		notifiers = append(notifiers, notify.NewWebhook(cfg.Notifiers.Webhook.URL, cfg.Notifiers.Webhook.Secret))
	}

	return notify.NewManager(notifiers, log), nil
}

func runOnce(ctx context.Context, date string, dryRun bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.runner.Run(ctx, pipeline.Options{Date: date, DryRun: dryRun})
	if err != nil {
		return err
	}
	renderResult(os.Stdout, res)
	return nil
}

func runCollect(ctx context.Context, only []string, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	sources, err := selectSources(buildSources(cfg), only)
	if err != nil {
		return err
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	runner := pipeline.New(pipeline.Config{
		Sources: sources,
		Filter:  source.NewFilter(cfg.Keywords.Include, cfg.Keywords.Exclude),
		Logger:  log,
	})
	col := runner.Collect(ctx)
	if col.Err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("some sources failed: ")+col.Err.Error())
	}

	if err := db.UpsertItems(ctx, col.Items); err != nil {
		return fmt.Errorf("store items: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(col.Items)
	}

	renderItems(os.Stdout, col.Items)
	fmt.Fprintf(os.Stderr, "\ntotal: %d fetched, %d kept from %d sources\n", col.Fetched, len(col.Items), len(sources))
	return nil
}

func selectSources(all []source.Source, only []string) ([]source.Source, error) {
	if len(only) == 0 {
		return all, nil
	}
	wanted := make(map[string]bool)
	for _, s := range only {
		wanted[strings.ToLower(strings.TrimSpace(s))] = true
	}
	var picked []source.Source
	for _, s := range all {
		if wanted[s.Name()] {
			picked = append(picked, s)
		}
	}
	if len(picked) == 0 {
		return nil, fmt.Errorf("no enabled sources match: %s", strings.Join(only, ", "))
	}
	return picked, nil
}

func runReport(ctx context.Context, runID string, minScore float64, limit int, jsonOutput, explain bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	summaries, err := db.ListSummaries(ctx, store.SummaryListOpts{RunID: runID, MinScore: minScore, Limit: limit})
	if err != nil {
		return fmt.Errorf("list summaries: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	renderSummaries(os.Stdout, summaries, explain)
	return nil
}

func runSend(ctx context.Context, date string) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.notifier.HasNotifiers() {
		return errors.New("no notifiers enabled (set email.enabled or a notifier in config)")
	}

	latest, files, err := report.Latest(a.cfg.Output.Dir)
	if err != nil {
		return fmt.Errorf("find reports: %w", err)
	}
	if date != "" && date != latest {
		return fmt.Errorf("latest report is %s, not %s", latest, date)
	}

	summaries, err := report.LoadSummaries(files[report.FormatJSON])
	if err != nil {
		return err
	}

	if err := a.runner.Deliver(ctx, latest, summaries, files); err != nil {
		return err
	}
	fmt.Println(successStyle.Render("✅ sent digest for " + latest))
	return nil
}

func runServe(ctx context.Context, port int) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}
	metrics.Register()
	return server.New(a.db, a.runner, port, a.log).ListenAndServe(ctx)
}

func runDaemon(ctx context.Context, port int) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}
	metrics.Register()

	sched := scheduler.New(a.runner, a.cfg.Schedule.ParseInterval(), a.cfg.Schedule.RunOnStart, a.log)
	srv := server.New(a.db, a.runner, port, a.log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sched.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})

	err = g.Wait()
	a.log.Info("shutting down")
	return err
}
