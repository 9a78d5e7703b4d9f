package store

const schema = `
CREATE TABLE IF NOT EXISTS trends (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    source       TEXT NOT NULL,
    topic        TEXT NOT NULL,
    niche        TEXT,
    collected_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trends_collected_at ON trends(collected_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_trends_niche ON trends(niche, collected_at DESC);

CREATE TABLE IF NOT EXISTS content_queue (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at     DATETIME NOT NULL,
    trend          TEXT,
    niche          TEXT,
    headline       TEXT NOT NULL DEFAULT '',
    post           TEXT NOT NULL DEFAULT '',
    call_to_action TEXT NOT NULL DEFAULT '',
    script30       TEXT NOT NULL DEFAULT '',
    thumbnail_idea TEXT NOT NULL DEFAULT '',
    hashtags       TEXT NOT NULL DEFAULT '[]',
    status         TEXT NOT NULL DEFAULT 'draft'
);

CREATE INDEX IF NOT EXISTS idx_queue_status ON content_queue(status);
CREATE INDEX IF NOT EXISTS idx_queue_created_at ON content_queue(created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS collection_runs (
    id           TEXT PRIMARY KEY,
    triggered_by TEXT NOT NULL,
    started_at   DATETIME NOT NULL,
    finished_at  DATETIME NOT NULL,
    records      INTEGER NOT NULL DEFAULT 0,
    errors       TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON collection_runs(started_at DESC);
`
