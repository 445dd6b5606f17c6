// Package report renders scored summaries as JSON, Markdown, HTML and PDF
// digest files.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/YoungLulu/auto-digest/pkg/summarize"
)

// Format is one output flavour of the digest.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
)

// Formats lists every format in generation order.
var Formats = []Format{FormatJSON, FormatMarkdown, FormatHTML, FormatPDF}

// Ext returns the file extension used for f.
func (f Format) Ext() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

// ErrNoReports is returned by Latest when the directory holds no digest.
var ErrNoReports = errors.New("no reports found")

const dateLayout = "2006-01-02"

// Files maps each generated format to its path.
type Files map[Format]string

// Stats are the headline counts of a digest.
type Stats struct {
	TotalItems int            `json:"total_items"`
	Sources    map[string]int `json:"sources"`
	Categories map[string]int `json:"categories"`
}

// Document is the JSON report layout.
type Document struct {
	GeneratedAt time.Time `json:"generated_at"`
	Stats
	Summaries []summarize.Summary `json:"summaries"`
}

// Config configures a Generator.
type Config struct {
	OutputDir  string
	PDF        bool
	PandocPath string
	PDFEngine  string
	Logger     *zap.Logger
}

// Generator writes digest files into one directory.
type Generator struct {
	dir       string
	pdf       bool
	pandoc    string
	pdfEngine string
	now       func() time.Time
	logger    *zap.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(cfg Config) *Generator {
	if cfg.OutputDir == "" {
		cfg.OutputDir = "outputs"
	}
	if cfg.PandocPath == "" {
		cfg.PandocPath = "pandoc"
	}
	if cfg.PDFEngine == "" {
		cfg.PDFEngine = "xelatex"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Generator{
		dir:       cfg.OutputDir,
		pdf:       cfg.PDF,
		pandoc:    cfg.PandocPath,
		pdfEngine: cfg.PDFEngine,
		now:       time.Now,
		logger:    cfg.Logger,
	}
}

// Dir returns the output directory.
func (g *Generator) Dir() string { return g.dir }

// Generate writes daily_<date>.{json,md,html} and, when enabled, .pdf.
// A PDF failure is logged and leaves the format out of the result.
func (g *Generator) Generate(ctx context.Context, summaries []summarize.Summary, date string) (Files, error) {
	if date == "" {
		date = g.now().Format(dateLayout)
	}
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	generated := g.now()
	files := make(Files)

	doc := Document{GeneratedAt: generated, Stats: ComputeStats(summaries), Summaries: summaries}
	if doc.Summaries == nil {
		doc.Summaries = []summarize.Summary{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json report: %w", err)
	}
	if files[FormatJSON], err = g.write(date, FormatJSON, data); err != nil {
		return nil, err
	}

	v := buildView(summaries, date, generated)

	md, err := renderMarkdown(v)
	if err != nil {
		return nil, err
	}
	if files[FormatMarkdown], err = g.write(date, FormatMarkdown, md); err != nil {
		return nil, err
	}

	page, err := renderHTML(v)
	if err != nil {
		return nil, err
	}
	if files[FormatHTML], err = g.write(date, FormatHTML, page); err != nil {
		return nil, err
	}

	if g.pdf {
		pdfPath := g.path(date, FormatPDF)
		if err := g.renderPDF(ctx, files[FormatMarkdown], pdfPath); err != nil {
			g.logger.Warn("pdf generation failed", zap.Error(err))
		} else {
			files[FormatPDF] = pdfPath
		}
	}

	return files, nil
}

func (g *Generator) path(date string, f Format) string {
	return filepath.Join(g.dir, fmt.Sprintf("daily_%s.%s", date, f.Ext()))
}

func (g *Generator) write(date string, f Format, data []byte) (string, error) {
	p := g.path(date, f)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s report: %w", f, err)
	}
	return p, nil
}

// ComputeStats counts summaries per source kind and per category tag.
func ComputeStats(summaries []summarize.Summary) Stats {
	st := Stats{
		TotalItems: len(summaries),
		Sources:    make(map[string]int),
		Categories: make(map[string]int),
	}
	for _, s := range summaries {
		kind := string(s.Source)
		if kind == "" {
			kind = "unknown"
		}
		st.Sources[kind]++

		tags := s.CategoryTags
		if len(tags) == 0 {
			tags = summarize.StringList{"other"}
		}
		for _, t := range tags {
			st.Categories[t]++
		}
	}
	return st
}

// Latest finds the newest dated report set in dir.
func Latest(dir string) (string, Files, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "daily_*.json"))
	if err != nil {
		return "", nil, fmt.Errorf("glob reports: %w", err)
	}

	var (
		latest     time.Time
		latestDate string
	)
	for _, m := range matches {
		date := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), "daily_"), ".json")
		t, err := time.Parse(dateLayout, date)
		if err != nil {
			continue
		}
		if latestDate == "" || t.After(latest) {
			latest, latestDate = t, date
		}
	}
	if latestDate == "" {
		return "", nil, fmt.Errorf("%s: %w", dir, ErrNoReports)
	}

	g := &Generator{dir: dir}
	files := make(Files)
	for _, f := range Formats {
		p := g.path(latestDate, f)
		if _, err := os.Stat(p); err == nil {
			files[f] = p
		}
	}
	return latestDate, files, nil
}

// LoadSummaries reads every summary from a JSON report.
func LoadSummaries(jsonPath string) ([]summarize.Summary, error) {
	doc, err := loadDocument(jsonPath)
	if err != nil {
		return nil, err
	}
	return doc.Summaries, nil
}

func loadDocument(jsonPath string) (Document, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return Document{}, fmt.Errorf("read json report: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode json report: %w", err)
	}
	return doc, nil
}
