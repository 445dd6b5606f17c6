package store

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    date        TEXT NOT NULL,
    status      TEXT NOT NULL,
    dry_run     BOOLEAN NOT NULL DEFAULT 0,
    fetched     INTEGER NOT NULL DEFAULT 0,
    cleaned     INTEGER NOT NULL DEFAULT 0,
    summarized  INTEGER NOT NULL DEFAULT 0,
    report_dir  TEXT NOT NULL DEFAULT '',
    error       TEXT NOT NULL DEFAULT '',
    started_at  DATETIME NOT NULL,
    finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

CREATE TABLE IF NOT EXISTS items (
    id         TEXT PRIMARY KEY,
    kind       TEXT NOT NULL,
    title      TEXT NOT NULL,
    url        TEXT NOT NULL DEFAULT '',
    data       TEXT NOT NULL,
    first_seen DATETIME NOT NULL,
    last_seen  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_kind ON items(kind);
CREATE INDEX IF NOT EXISTS idx_items_last_seen ON items(last_seen);

CREATE TABLE IF NOT EXISTS summaries (
    run_id      TEXT NOT NULL REFERENCES runs(id),
    item_id     TEXT NOT NULL,
    kind        TEXT NOT NULL,
    title       TEXT NOT NULL,
    final_score REAL NOT NULL DEFAULT 0,
    fallback    BOOLEAN NOT NULL DEFAULT 0,
    data        TEXT NOT NULL,
    created_at  DATETIME NOT NULL,
    PRIMARY KEY (run_id, item_id)
);

CREATE INDEX IF NOT EXISTS idx_summaries_score ON summaries(final_score);
CREATE INDEX IF NOT EXISTS idx_summaries_created_at ON summaries(created_at);
`
