// Package topic turns raw source records into canonical topic strings.
package topic

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/elonfeng/trendcollector/pkg/source"
)

// ErrEmptyRecord is returned for blank text or a structure with no fields.
var ErrEmptyRecord = errors.New("empty record")

// fieldPrecedence lists the structured fields tried, in order.
var fieldPrecedence = []string{"topic", "title", "query"}

// Normalize returns the canonical topic for rec.
//
// Plain text is used verbatim (trimmed). Structured records use the first
// non-blank string among topic, title and query; otherwise the whole structure
// is serialized as JSON with sorted keys so nothing is dropped.
func Normalize(rec source.Record) (string, error) {
	switch r := rec.(type) {
	case source.PlainText:
		s := strings.TrimSpace(string(r))
		if s == "" {
			return "", ErrEmptyRecord
		}
		return s, nil

	case source.Structured:
		if len(r) == 0 {
			return "", ErrEmptyRecord
		}
		for _, field := range fieldPrecedence {
			if s, ok := r[field].(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					return s, nil
				}
			}
		}
		// encoding/json sorts map keys, which keeps the fallback deterministic.
		data, err := json.Marshal(map[string]any(r))
		if err != nil {
			return fmt.Sprintf("%v", map[string]any(r)), nil
		}
		return string(data), nil

	case nil:
		return "", ErrEmptyRecord
	}

	return "", fmt.Errorf("unsupported record type %T", rec)
}

// NormalizeAll normalizes records in order, skipping empty ones. The returned
// slice of errors holds one entry per skipped record.
func NormalizeAll(records []source.Record) ([]string, []error) {
	topics := make([]string, 0, len(records))
	var errs []error
	for i, rec := range records {
		t, err := Normalize(rec)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		topics = append(topics, t)
	}
	return topics, errs
}
