// Package content builds, parses and renders short-form marketing copy.
package content

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Copy is one generated content package.
type Copy struct {
	Headline      string   `json:"headline" db:"headline"`
	Post          string   `json:"post" db:"post"`
	CallToAction  string   `json:"call_to_action" db:"call_to_action"`
	Script30      string   `json:"script30" db:"script30"`
	ThumbnailIdea string   `json:"thumbnail_idea" db:"thumbnail_idea"`
	Hashtags      Hashtags `json:"hashtags" db:"hashtags"`
}

// Render formats c as a ready-to-post text block. The layout is fixed so that
// rendering the same copy twice yields identical text.
func Render(c Copy) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\n", c.Headline)
	fmt.Fprintf(&sb, "%s\n\n", c.Post)
	fmt.Fprintf(&sb, "%s\n\n", c.CallToAction)
	fmt.Fprintf(&sb, "Script (30s):\n%s\n\n", c.Script30)
	fmt.Fprintf(&sb, "Thumbnail idea: %s\n\n", c.ThumbnailIdea)
	fmt.Fprintf(&sb, "Hashtags: %s", strings.Join(c.Hashtags, ", "))
	return sb.String()
}

// Hashtags is an ordered tag list. It decodes from a JSON array or from a
// single string of tags separated by whitespace or commas, and is stored in
// SQL as a JSON array.
type Hashtags []string

// ParseHashtags splits s on whitespace and commas, keeping order and duplicates.
func ParseHashtags(s string) Hashtags {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	tags := make(Hashtags, 0, len(fields))
	for _, f := range fields {
		tags = append(tags, f)
	}
	return tags
}

func (h *Hashtags) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*h = Hashtags{}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*h = list
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("hashtags must be an array of strings or a string")
	}
	*h = ParseHashtags(s)
	return nil
}

func (h Hashtags) MarshalJSON() ([]byte, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(h))
}

// Value implements driver.Valuer.
func (h Hashtags) Value() (driver.Value, error) {
	if h == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(h))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (h *Hashtags) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*h = Hashtags{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("scan hashtags: unsupported type %T", src)
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("scan hashtags: %w", err)
	}
	if list == nil {
		list = []string{}
	}
	*h = list
	return nil
}
