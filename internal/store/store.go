package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a row with the requested id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidStatus is returned for a queue status outside draft, ready and published.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidTrend is returned when a trend has an empty topic or an unknown source.
	ErrInvalidTrend = errors.New("invalid trend")
)

// Store is the persistence interface.
type Store interface {
	SaveTrends(ctx context.Context, b Batch) ([]Trend, error)
	LatestTrends(ctx context.Context, limit int) ([]Trend, error)
	LatestByNiche(ctx context.Context, niche string, limit int) (*Grouped, error)
	Niches(ctx context.Context) ([]NicheCount, error)

	AddQueueItem(ctx context.Context, in NewQueueItem) (*QueueItem, error)
	ListQueue(ctx context.Context, opts QueueListOpts) ([]QueueItem, error)
	GetQueueItem(ctx context.Context, id int64) (*QueueItem, error)
	UpdateQueueStatus(ctx context.Context, id int64, status Status) (*QueueItem, error)
	PublishQueueItem(ctx context.Context, id int64) (*Published, error)

	RecordRun(ctx context.Context, r Run) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	Ping(ctx context.Context) error
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB

	// SQLite allows a single writer; writes queue here instead of on SQLITE_BUSY.
	mu sync.Mutex
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a write transaction under the store's write lock.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

const (
	// DefaultLimit is used when a caller passes a non-positive limit.
	DefaultLimit = 50
	// MaxLimit caps every list query.
	MaxLimit = 1000
)
