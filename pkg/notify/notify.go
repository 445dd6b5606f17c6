// Package notify delivers finished digests by email and chat webhooks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/YoungLulu/auto-digest/internal/metrics"
	"github.com/YoungLulu/auto-digest/pkg/report"
	"github.com/YoungLulu/auto-digest/pkg/source"
	"github.com/YoungLulu/auto-digest/pkg/summarize"
)

const topItems = 5

// Highlight is one top-ranked item of a digest.
type Highlight struct {
	Title    string      `json:"title"`
	URL      string      `json:"url"`
	Source   source.Kind `json:"source"`
	Category string      `json:"category"`
	Score    float64     `json:"score"`
}

// Digest is what notifiers deliver.
type Digest struct {
	Date  string       `json:"date"`
	Stats report.Stats `json:"stats"`
	Files report.Files `json:"files,omitempty"`
	Top   []Highlight  `json:"top"`
}

// NewDigest summarizes a run for delivery.
func NewDigest(date string, summaries []summarize.Summary, files report.Files) *Digest {
	ranked := make([]*summarize.Summary, len(summaries))
	for i := range summaries {
		ranked[i] = &summaries[i]
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RankScore() > ranked[j].RankScore()
	})

	d := &Digest{Date: date, Stats: report.ComputeStats(summaries), Files: files}
	for _, s := range ranked[:min(topItems, len(ranked))] {
		d.Top = append(d.Top, Highlight{
			Title:    s.Title,
			URL:      s.URL,
			Source:   s.Source,
			Category: s.PrimaryCategory(),
			Score:    s.RankScore(),
		})
	}
	return d
}

// Subject is the message title used by every notifier.
func (d *Digest) Subject() string {
	return "🧠 AI Coding Digest - " + d.Date
}

// Notifier delivers digests to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, d *Digest) error
}

// Manager broadcasts digests to all registered notifiers.
type Manager struct {
	notifiers []Notifier
	logger    *zap.Logger
}

// NewManager creates a new notification manager.
func NewManager(notifiers []Notifier, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{notifiers: notifiers, logger: logger}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends d to every notifier. One failure does not stop the others.
func (m *Manager) Broadcast(ctx context.Context, d *Digest) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, d); err != nil {
			metrics.NotificationsTotal.WithLabelValues(n.Name(), "error").Inc()
			m.logger.Error("notification failed", zap.String("notifier", n.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		metrics.NotificationsTotal.WithLabelValues(n.Name(), "success").Inc()
		m.logger.Info("digest delivered", zap.String("notifier", n.Name()), zap.String("date", d.Date))
	}
	return errors.Join(errs...)
}
