package source

import (
	"context"
	"fmt"
)

// Reddit produces hot post titles from the configured subreddits.
// Posts are sample data keyed by subreddit; no Reddit API call is made.
type Reddit struct {
	subreddits []string
	topics     []string
}

var samplePosts = map[string][]string{
	"RealEstate":      {"Inherited my grandmother's house, what now?", "Is this a good time to list in Denver?"},
	"personalfinance": {"Parents need to downsize but don't want to move"},
	"AgingParents":    {"Mom fell again and can't stay home alone"},
	"legaladvice":     {"Sibling won't agree to sell the family home"},
}

// NewReddit creates a new Reddit adapter.
func NewReddit(subreddits, topics []string) *Reddit {
	if len(subreddits) == 0 {
		subreddits = []string{"RealEstate", "personalfinance", "AgingParents", "legaladvice"}
	}
	return &Reddit{
		subreddits: subreddits,
		topics:     topics,
	}
}

func (r *Reddit) Name() SourceType { return SourceReddit }

func (r *Reddit) Collect(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(r.topics) > 0 {
		return Texts(r.topics...), nil
	}

	var records []Record
	for _, sub := range r.subreddits {
		posts, ok := samplePosts[sub]
		if !ok {
			continue
		}
		for _, title := range posts {
			records = append(records, Structured{
				"title":     title,
				"subreddit": sub,
				"permalink": fmt.Sprintf("https://reddit.com/r/%s", sub),
			})
		}
	}
	return records, nil
}
