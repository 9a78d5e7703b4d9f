package source

import (
	"context"
)

// YouTube produces trending video titles for the configured search queries.
// It returns sample data; a YouTube Data API integration would replace sampleVideos.
type YouTube struct {
	queries []string
	topics  []string
}

type sampleVideo struct {
	title   string
	channel string
	query   string
}

var sampleVideos = []sampleVideo{
	{title: "selling a house after a death in the family", channel: "Denver Home Guide", query: "inherited house"},
	{title: "how to prepare a home for sale denver", channel: "Mile High Listings", query: "sell house denver"},
	{title: "what to know before selling inherited real estate", channel: "Estate Planning Today", query: "probate real estate"},
}

// NewYouTube creates a new YouTube adapter.
func NewYouTube(queries, topics []string) *YouTube {
	if len(queries) == 0 {
		queries = []string{"inherited house", "sell house denver", "probate real estate"}
	}
	return &YouTube{
		queries: queries,
		topics:  topics,
	}
}

func (y *YouTube) Name() SourceType { return SourceYouTube }

func (y *YouTube) Collect(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(y.topics) > 0 {
		records := make([]Record, 0, len(y.topics))
		for _, t := range y.topics {
			records = append(records, Structured{"title": t})
		}
		return records, nil
	}

	records := make([]Record, 0, len(sampleVideos))
	for _, v := range sampleVideos {
		records = append(records, Structured{
			"title":   v.title,
			"channel": v.channel,
			"query":   v.query,
		})
	}
	return records, nil
}
