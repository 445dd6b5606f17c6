// Package store persists pipeline runs, collected items and summaries in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/YoungLulu/auto-digest/pkg/source"
	"github.com/YoungLulu/auto-digest/pkg/summarize"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// Run records one pipeline execution.
type Run struct {
	ID         string     `db:"id" json:"id"`
	Date       string     `db:"date" json:"date"`
	Status     RunStatus  `db:"status" json:"status"`
	DryRun     bool       `db:"dry_run" json:"dry_run"`
	Fetched    int        `db:"fetched" json:"fetched"`
	Cleaned    int        `db:"cleaned" json:"cleaned"`
	Summarized int        `db:"summarized" json:"summarized"`
	ReportDir  string     `db:"report_dir" json:"report_dir,omitempty"`
	Error      string     `db:"error" json:"error,omitempty"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// ItemListOpts controls item listing.
type ItemListOpts struct {
	Kind  source.Kind
	Since time.Time
	Limit int
}

// SummaryListOpts controls summary listing. An empty RunID selects the
// most recent run that produced summaries.
type SummaryListOpts struct {
	RunID    string
	MinScore float64
	Limit    int
}

// Store is the persistence interface.
type Store interface {
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	UpsertItems(ctx context.Context, items []source.Item) error
	ListItems(ctx context.Context, opts ItemListOpts) ([]source.Item, error)
	CountItemsByKind(ctx context.Context) (map[source.Kind]int, error)

	SaveSummaries(ctx context.Context, runID string, summaries []summarize.Summary) error
	ListSummaries(ctx context.Context, opts SummaryListOpts) ([]summarize.Summary, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now().UTC()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO runs (id, date, status, dry_run, fetched, cleaned, summarized, report_dir, error, started_at, finished_at)
		VALUES (:id, :date, :status, :dry_run, :fetched, :cleaned, :summarized, :report_dir, :error, :started_at, :finished_at)
	`, run)
	if err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun stores the final counters and status of run.
func (s *SQLiteStore) FinishRun(ctx context.Context, run *Run) error {
	if run.FinishedAt == nil {
		t := s.now().UTC()
		run.FinishedAt = &t
	}
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE runs SET status = :status, fetched = :fetched, cleaned = :cleaned,
			summarized = :summarized, report_dir = :report_dir, error = :error, finished_at = :finished_at
		WHERE id = :id
	`, run)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	err := s.db.GetContext(ctx, &run, "SELECT * FROM runs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []Run
	if err := s.db.SelectContext(ctx, &runs, "SELECT * FROM runs ORDER BY started_at DESC LIMIT ?", limit); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// UpsertItems stores items in one transaction. Re-seen items keep their
// first_seen time and get fresh data.
func (s *SQLiteStore) UpsertItems(ctx context.Context, items []source.Item) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal item %s: %w", item.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO items (id, kind, title, url, data, first_seen, last_seen)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				url = excluded.url,
				data = excluded.data,
				last_seen = excluded.last_seen
		`, item.ID, item.Kind, item.Title, item.URL, string(data), now, now)
		if err != nil {
			return fmt.Errorf("upsert item %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit items: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListItems(ctx context.Context, opts ItemListOpts) ([]source.Item, error) {
	query := "SELECT data FROM items WHERE 1=1"
	var args []any

	if opts.Kind != "" {
		query += " AND kind = ?"
		args = append(args, opts.Kind)
	}
	if !opts.Since.IsZero() {
		query += " AND last_seen >= ?"
		args = append(args, opts.Since.UTC())
	}

	query += " ORDER BY last_seen DESC, id"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var blobs []string
	if err := s.db.SelectContext(ctx, &blobs, query, args...); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	items := make([]source.Item, 0, len(blobs))
	for _, b := range blobs {
		var item source.Item
		if err := json.Unmarshal([]byte(b), &item); err != nil {
			return nil, fmt.Errorf("decode item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *SQLiteStore) CountItemsByKind(ctx context.Context) (map[source.Kind]int, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT kind, COUNT(*) AS cnt FROM items GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("count items by kind: %w", err)
	}
	defer rows.Close()

	counts := make(map[source.Kind]int)
	for rows.Next() {
		var kind string
		var cnt int
		if err := rows.Scan(&kind, &cnt); err != nil {
			return nil, err
		}
		counts[source.Kind(kind)] = cnt
	}
	return counts, rows.Err()
}

// SaveSummaries stores the summaries produced by a run, replacing any
// earlier copy for the same item in that run.
func (s *SQLiteStore) SaveSummaries(ctx context.Context, runID string, summaries []summarize.Summary) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	for i := range summaries {
		sm := &summaries[i]
		data, err := json.Marshal(sm)
		if err != nil {
			return fmt.Errorf("marshal summary %s: %w", sm.OriginalID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO summaries (run_id, item_id, kind, title, final_score, fallback, data, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, runID, sm.OriginalID, sm.Source, sm.Title, sm.RankScore(), sm.Fallback, string(data), now)
		if err != nil {
			return fmt.Errorf("save summary %s: %w", sm.OriginalID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit summaries: %w", err)
	}
	return nil
}

// ListSummaries returns summaries ordered by score, highest first.
func (s *SQLiteStore) ListSummaries(ctx context.Context, opts SummaryListOpts) ([]summarize.Summary, error) {
	query := "SELECT data FROM summaries WHERE "
	var args []any

	if opts.RunID != "" {
		query += "run_id = ?"
		args = append(args, opts.RunID)
	} else {
		query += "run_id = (SELECT run_id FROM summaries ORDER BY created_at DESC LIMIT 1)"
	}
	if opts.MinScore > 0 {
		query += " AND final_score >= ?"
		args = append(args, opts.MinScore)
	}

	query += " ORDER BY final_score DESC, item_id"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var blobs []string
	if err := s.db.SelectContext(ctx, &blobs, query, args...); err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}

	out := make([]summarize.Summary, 0, len(blobs))
	for _, b := range blobs {
		var sm summarize.Summary
		if err := json.Unmarshal([]byte(b), &sm); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
		out = append(out, sm)
	}
	return out, nil
}
