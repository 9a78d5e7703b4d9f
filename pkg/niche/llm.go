package niche

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elonfeng/trendcollector/pkg/llm"
)

const classifyPrompt = `You classify trending search topics for a real estate professional who serves families in life transitions.

Allowed niche labels:
%s

Topic:
%s

Pick every label that clearly applies to the topic. If none applies, return an empty array.
Respond with a JSON array of labels taken from the allowed list, for example ["probate","home-selling"].
Return ONLY the JSON array, no other text.`

// Completer sends a prompt to a language model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LLM classifies topics by asking a language model to pick from a fixed label set.
type LLM struct {
	completer Completer
	labels    []string
	allowed   map[string]bool
}

// NewLLM creates an LLM-backed classifier restricted to labels. An empty
// label set uses the labels of DefaultNiches.
func NewLLM(c Completer, labels []string) *LLM {
	labels = dedupe(labels)
	if len(labels) == 0 {
		labels = NewKeyword(nil, nil).Labels()
	}
	allowed := make(map[string]bool, len(labels))
	for _, l := range labels {
		allowed[l] = true
	}
	return &LLM{completer: c, labels: labels, allowed: allowed}
}

// Prompt returns the exact prompt sent for topic.
func (l *LLM) Prompt(topic string) string {
	var sb strings.Builder
	for _, label := range l.labels {
		fmt.Fprintf(&sb, "- %s\n", label)
	}
	return fmt.Sprintf(classifyPrompt, strings.TrimRight(sb.String(), "\n"), topic)
}

func (l *LLM) Classify(ctx context.Context, topic string) ([]string, error) {
	raw, err := l.completer.Complete(ctx, l.Prompt(topic))
	if err != nil {
		return nil, fmt.Errorf("classify %q: %w", llm.Truncate(topic, 80), err)
	}

	var labels []string
	if err := json.Unmarshal([]byte(llm.StripCodeFence(raw)), &labels); err != nil {
		return nil, fmt.Errorf("parse classifier response: %w\nraw: %s", err, llm.Truncate(raw, 500))
	}

	// Drop anything outside the allowed set.
	var kept []string
	for _, label := range dedupe(labels) {
		if l.allowed[label] {
			kept = append(kept, label)
		}
	}
	return kept, nil
}
