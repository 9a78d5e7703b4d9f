package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elonfeng/trendcollector/pkg/content"
	"github.com/jmoiron/sqlx"
)

// Status is the lifecycle state of a queued content item.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusReady     Status = "ready"
	StatusPublished Status = "published"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusReady, StatusPublished:
		return true
	}
	return false
}

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return st, nil
}

// QueueItem is a piece of generated content tracked through draft, ready and published.
type QueueItem struct {
	ID        int64     `db:"id" json:"id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	Trend     *string   `db:"trend" json:"trend"`
	Niche     *string   `db:"niche" json:"niche"`
	content.Copy
	Status Status `db:"status" json:"status"`
}

// NewQueueItem is the input to AddQueueItem. Missing text fields default to
// "", missing hashtags to an empty list and a missing status to draft.
type NewQueueItem struct {
	Trend *string `json:"trend"`
	Niche *string `json:"niche"`
	content.Copy
	Status Status `json:"status"`
}

// Published is the result of publishing a queue item.
type Published struct {
	Text string    `json:"formatted"`
	Item QueueItem `json:"item"`
}

// QueueListOpts controls queue listing.
type QueueListOpts struct {
	Status Status
	Limit  int
}

const queueColumns = `id, created_at, trend, niche, headline, post, call_to_action, script30, thumbnail_idea, hashtags, status`

// AddQueueItem stores a new content item and returns it with its id and creation time.
func (s *SQLiteStore) AddQueueItem(ctx context.Context, in NewQueueItem) (*QueueItem, error) {
	status := in.Status
	if status == "" {
		status = StatusDraft
	}
	if !status.Valid() {
		return nil, fmt.Errorf("add queue item: %w: %q", ErrInvalidStatus, in.Status)
	}

	item := QueueItem{
		CreatedAt: time.Now().UTC(),
		Trend:     in.Trend,
		Niche:     in.Niche,
		Copy:      in.Copy,
		Status:    status,
	}
	if item.Hashtags == nil {
		item.Hashtags = content.Hashtags{}
	}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO content_queue (created_at, trend, niche, headline, post, call_to_action, script30, thumbnail_idea, hashtags, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, item.CreatedAt, item.Trend, item.Niche, item.Headline, item.Post, item.CallToAction,
			item.Script30, item.ThumbnailIdea, item.Hashtags, item.Status)
		if err != nil {
			return err
		}
		item.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("add queue item: %w", err)
	}
	return &item, nil
}

// ListQueue returns queue items newest first, optionally filtered by status.
// A zero limit returns every item.
func (s *SQLiteStore) ListQueue(ctx context.Context, opts QueueListOpts) ([]QueueItem, error) {
	query := "SELECT " + queueColumns + " FROM content_queue"
	var args []any

	if opts.Status != "" {
		if !opts.Status.Valid() {
			return nil, fmt.Errorf("list queue: %w: %q", ErrInvalidStatus, opts.Status)
		}
		query += " WHERE status = ?"
		args = append(args, opts.Status)
	}

	query += " ORDER BY created_at DESC, id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, clampLimit(opts.Limit))
	}

	items := []QueueItem{}
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	return items, nil
}

// GetQueueItem returns the item with id or ErrNotFound.
func (s *SQLiteStore) GetQueueItem(ctx context.Context, id int64) (*QueueItem, error) {
	item, err := getQueueItem(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("get queue item %d: %w", id, err)
	}
	return item, nil
}

// UpdateQueueStatus sets the status of an item. Setting the current status
// again is a no-op that still succeeds.
func (s *SQLiteStore) UpdateQueueStatus(ctx context.Context, id int64, status Status) (*QueueItem, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("update queue item %d: %w: %q", id, ErrInvalidStatus, status)
	}

	var item *QueueItem
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		item, err = setStatus(ctx, tx, id, status)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update queue item %d: %w", id, err)
	}
	return item, nil
}

// PublishQueueItem marks an item published and renders its post text.
// Publishing an already published item renders it again.
func (s *SQLiteStore) PublishQueueItem(ctx context.Context, id int64) (*Published, error) {
	var item *QueueItem
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		item, err = setStatus(ctx, tx, id, StatusPublished)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("publish queue item %d: %w", id, err)
	}
	return &Published{Text: content.Render(item.Copy), Item: *item}, nil
}

func setStatus(ctx context.Context, tx *sqlx.Tx, id int64, status Status) (*QueueItem, error) {
	res, err := tx.ExecContext(ctx, "UPDATE content_queue SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return getQueueItem(ctx, tx, id)
}

func getQueueItem(ctx context.Context, q sqlx.QueryerContext, id int64) (*QueueItem, error) {
	var item QueueItem
	err := sqlx.GetContext(ctx, q, &item, "SELECT "+queueColumns+" FROM content_queue WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}
