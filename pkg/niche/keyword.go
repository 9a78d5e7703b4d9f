package niche

import (
	"context"
	"strings"
)

// DefaultNiches is the keyword table used when none is configured.
var DefaultNiches = map[string][]string{
	"probate": {
		"probate", "estate settlement", "estate attorney", "estate cleanout", "executor",
		"inherited", "inheritance", "death in the family", "power of attorney",
	},
	"senior-care": {
		"aging parent", "senior", "caregiver", "assisted living",
		"memory care", "fell again", "can't stay home", "elder",
	},
	"downsizing": {
		"downsize", "downsizing", "declutter", "cleanout", "clean out", "smaller home",
	},
	"home-selling": {
		"sell a house", "selling a house", "sell the family home", "sell house",
		"for sale", "listing", "list in", "prepare a home", "housing market", "realtor",
		"real estate",
	},
	"family-transition": {
		"family home", "siblings", "sibling", "grandmother", "parents home", "family",
	},
}

// Keyword classifies topics by case-insensitive keyword matching.
type Keyword struct {
	niches  map[string][]string
	exclude []string
}

// NewKeyword creates a keyword classifier. A nil niches map uses DefaultNiches.
// Topics containing any exclude keyword are left unclassified.
func NewKeyword(niches map[string][]string, exclude []string) *Keyword {
	if len(niches) == 0 {
		niches = DefaultNiches
	}

	// Lowercase all keywords for case-insensitive matching.
	lowered := make(map[string][]string, len(niches))
	for label, keywords := range niches {
		label = Canonical(label)
		for _, kw := range keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				lowered[label] = append(lowered[label], kw)
			}
		}
	}

	ex := make([]string, 0, len(exclude))
	for _, kw := range exclude {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			ex = append(ex, kw)
		}
	}

	return &Keyword{niches: lowered, exclude: ex}
}

// Labels returns the configured niche labels.
func (k *Keyword) Labels() []string {
	labels := make([]string, 0, len(k.niches))
	for label := range k.niches {
		labels = append(labels, label)
	}
	return dedupe(labels)
}

// Classify returns every niche with at least one keyword contained in topic.
func (k *Keyword) Classify(_ context.Context, topic string) ([]string, error) {
	lower := strings.ToLower(topic)

	for _, ex := range k.exclude {
		if strings.Contains(lower, ex) {
			return nil, nil
		}
	}

	var labels []string
	for label, keywords := range k.niches {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				labels = append(labels, label)
				break
			}
		}
	}
	return dedupe(labels), nil
}
