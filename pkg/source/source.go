package source

import (
	"context"
	"fmt"
	"strings"
)

// SourceType identifies which platform a trend came from.
type SourceType string

const (
	SourceGoogle  SourceType = "google"
	SourceYouTube SourceType = "youtube"
	SourceReddit  SourceType = "reddit"
	SourceBing    SourceType = "bing"
	SourceTikTok  SourceType = "tiktok"
)

// Valid reports whether st is one of the known source tags.
func (st SourceType) Valid() bool {
	for _, known := range AllSourceTypes() {
		if st == known {
			return true
		}
	}
	return false
}

// ParseSourceType accepts the canonical tag or the legacy "<name>_trends" form.
func ParseSourceType(s string) (SourceType, error) {
	st := SourceType(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "_trends"))
	if !st.Valid() {
		return "", fmt.Errorf("unknown source %q", s)
	}
	return st, nil
}

// Source is the interface every trend adapter must implement.
type Source interface {
	Name() SourceType
	Collect(ctx context.Context) ([]Record, error)
}

// AllSourceTypes returns all known source types in collection order.
func AllSourceTypes() []SourceType {
	return []SourceType{
		SourceGoogle,
		SourceYouTube,
		SourceReddit,
		SourceBing,
		SourceTikTok,
	}
}
