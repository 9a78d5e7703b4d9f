package source

import "context"

// Bing produces trending search queries. Sample data only.
type Bing struct {
	market string
	topics []string
}

var sampleBingQueries = []string{
	"denver real estate advisor for families",
	"help selling parents home colorado",
	"steps to sell a house in probate",
}

// NewBing creates a new Bing adapter for a market such as "en-US".
func NewBing(market string, topics []string) *Bing {
	if market == "" {
		market = "en-US"
	}
	return &Bing{market: market, topics: topics}
}

func (b *Bing) Name() SourceType { return SourceBing }

func (b *Bing) Collect(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queries := sampleBingQueries
	if len(b.topics) > 0 {
		queries = b.topics
	}

	records := make([]Record, 0, len(queries))
	for _, q := range queries {
		records = append(records, Structured{"query": q, "market": b.market})
	}
	return records, nil
}
