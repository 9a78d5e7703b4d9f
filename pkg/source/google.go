package source

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

//go:embed samples/google_daily.xml
var googleDailySample []byte

// Google produces search trends from a Google Trends daily RSS document.
// No network call is made: the feed is the bundled sample, or topics from config.
type Google struct {
	parser *gofeed.Parser
	feed   []byte
	topics []string
}

// NewGoogle creates a Google trends adapter. Non-empty topics replace the sample feed.
func NewGoogle(topics []string) *Google {
	return &Google{
		parser: gofeed.NewParser(),
		feed:   googleDailySample,
		topics: topics,
	}
}

func (g *Google) Name() SourceType { return SourceGoogle }

func (g *Google) Collect(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(g.topics) > 0 {
		records := make([]Record, 0, len(g.topics))
		for _, t := range g.topics {
			records = append(records, Structured{"query": t})
		}
		return records, nil
	}

	parsed, err := g.parser.Parse(bytes.NewReader(g.feed))
	if err != nil {
		return nil, fmt.Errorf("parse google trends feed: %w", err)
	}

	records := make([]Record, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		rec := Structured{"query": strings.TrimSpace(entry.Title)}
		if entry.Description != "" {
			rec["related"] = entry.Description
		}
		if traffic := extensionValue(entry, "ht", "approx_traffic"); traffic != "" {
			rec["traffic"] = traffic
		}
		records = append(records, rec)
	}
	return records, nil
}

func extensionValue(item *gofeed.Item, ns, name string) string {
	if item.Extensions == nil {
		return ""
	}
	exts := item.Extensions[ns][name]
	if len(exts) == 0 {
		return ""
	}
	return strings.TrimSpace(exts[0].Value)
}
