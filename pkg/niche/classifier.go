// Package niche maps topics to audience niche labels.
package niche

import (
	"context"
	"sort"
	"strings"
)

// Classifier assigns zero or more niche labels to a topic.
// An empty result means the topic is unclassified.
type Classifier interface {
	Classify(ctx context.Context, topic string) ([]string, error)
}

// None never assigns a niche.
type None struct{}

func (None) Classify(context.Context, string) ([]string, error) { return nil, nil }

// Func adapts a plain function to the Classifier interface.
type Func func(ctx context.Context, topic string) ([]string, error)

func (f Func) Classify(ctx context.Context, topic string) ([]string, error) { return f(ctx, topic) }

// Canonical lowercases and trims a label, turning inner whitespace into dashes.
func Canonical(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), "-")
}

// dedupe canonicalizes labels, drops blanks and duplicates, and sorts.
func dedupe(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = Canonical(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
