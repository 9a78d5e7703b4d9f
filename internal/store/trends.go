package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elonfeng/trendcollector/pkg/source"
	"github.com/jmoiron/sqlx"
)

// Trend is one stored topic observation.
type Trend struct {
	ID          int64             `db:"id" json:"id"`
	Source      source.SourceType `db:"source" json:"source"`
	Topic       string            `db:"topic" json:"topic"`
	Niche       *string           `db:"niche" json:"niche"`
	CollectedAt time.Time         `db:"collected_at" json:"collected_at"`
}

// NewTrend is a trend waiting to be written.
type NewTrend struct {
	Source source.SourceType
	Topic  string
	Niche  *string
}

// Batch is a group of trends written atomically with one shared timestamp.
type Batch struct {
	CollectedAt time.Time
	Trends      []NewTrend
}

// GroupedTopic is a trend entry inside a Grouped view.
type GroupedTopic struct {
	Topic       string    `json:"topic"`
	Niche       *string   `json:"niche"`
	CollectedAt time.Time `json:"collected_at"`
}

// Grouped holds recent trends keyed by source. Every known source has an
// entry, possibly empty.
type Grouped struct {
	Sources   map[source.SourceType][]GroupedTopic
	Timestamp time.Time
}

// MarshalJSON flattens the sources next to the timestamp:
// {"google":[...],"youtube":[...],...,"timestamp":"..."}.
func (g Grouped) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(g.Sources)+1)
	for src, topics := range g.Sources {
		out[string(src)] = topics
	}
	out["timestamp"] = g.Timestamp
	return json.Marshal(out)
}

// NicheCount is a niche label with its number of stored trends.
type NicheCount struct {
	Niche string `db:"niche" json:"niche"`
	Count int    `db:"count" json:"count"`
}

// SaveTrends appends b in a single transaction. Either every row is written
// or none is. A zero CollectedAt defaults to now.
func (s *SQLiteStore) SaveTrends(ctx context.Context, b Batch) ([]Trend, error) {
	if len(b.Trends) == 0 {
		return []Trend{}, nil
	}

	collectedAt := b.CollectedAt
	if collectedAt.IsZero() {
		collectedAt = time.Now()
	}
	collectedAt = collectedAt.UTC()

	for i, t := range b.Trends {
		if strings.TrimSpace(t.Topic) == "" {
			return nil, fmt.Errorf("save trends: record %d: empty topic: %w", i, ErrInvalidTrend)
		}
		if !t.Source.Valid() {
			return nil, fmt.Errorf("save trends: record %d: unknown source %q: %w", i, t.Source, ErrInvalidTrend)
		}
	}

	saved := make([]Trend, 0, len(b.Trends))
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, t := range b.Trends {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO trends (source, topic, niche, collected_at)
				VALUES (?, ?, ?, ?)
			`, t.Source, t.Topic, t.Niche, collectedAt)
			if err != nil {
				return fmt.Errorf("insert trend: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("insert trend: %w", err)
			}
			saved = append(saved, Trend{
				ID:          id,
				Source:      t.Source,
				Topic:       t.Topic,
				Niche:       t.Niche,
				CollectedAt: collectedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save trends: %w", err)
	}
	return saved, nil
}

// LatestTrends returns up to limit trends, newest first.
func (s *SQLiteStore) LatestTrends(ctx context.Context, limit int) ([]Trend, error) {
	trends := []Trend{}
	err := s.db.SelectContext(ctx, &trends, `
		SELECT id, source, topic, niche, collected_at FROM trends
		ORDER BY collected_at DESC, id DESC
		LIMIT ?
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("latest trends: %w", err)
	}
	return trends, nil
}

// LatestByNiche returns up to limit recent trends for niche grouped by
// source. An empty niche selects all trends.
func (s *SQLiteStore) LatestByNiche(ctx context.Context, niche string, limit int) (*Grouped, error) {
	query := "SELECT id, source, topic, niche, collected_at FROM trends"
	var args []any
	if niche != "" {
		query += " WHERE niche = ?"
		args = append(args, niche)
	}
	query += " ORDER BY collected_at DESC, id DESC LIMIT ?"
	args = append(args, clampLimit(limit))

	var trends []Trend
	if err := s.db.SelectContext(ctx, &trends, query, args...); err != nil {
		return nil, fmt.Errorf("latest trends by niche %q: %w", niche, err)
	}

	g := &Grouped{
		Sources:   make(map[source.SourceType][]GroupedTopic),
		Timestamp: time.Now().UTC(),
	}
	for _, st := range source.AllSourceTypes() {
		g.Sources[st] = []GroupedTopic{}
	}
	for _, t := range trends {
		g.Sources[t.Source] = append(g.Sources[t.Source], GroupedTopic{
			Topic:       t.Topic,
			Niche:       t.Niche,
			CollectedAt: t.CollectedAt,
		})
	}
	return g, nil
}

// Niches lists niche labels by descending trend count.
func (s *SQLiteStore) Niches(ctx context.Context) ([]NicheCount, error) {
	niches := []NicheCount{}
	err := s.db.SelectContext(ctx, &niches, `
		SELECT niche, COUNT(*) AS count FROM trends
		WHERE niche IS NOT NULL
		GROUP BY niche
		ORDER BY count DESC, niche ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list niches: %w", err)
	}
	return niches, nil
}
