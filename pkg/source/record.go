package source

// Record is one raw item produced by a Source. It is either PlainText or
// Structured; the unexported method keeps the set closed.
type Record interface {
	record()
}

// PlainText is a record that is already a bare topic string.
type PlainText string

// Structured is a record carrying named fields such as topic, title or query.
type Structured map[string]any

func (PlainText) record()  {}
func (Structured) record() {}

// Texts wraps plain strings as records.
func Texts(topics ...string) []Record {
	records := make([]Record, len(topics))
	for i, t := range topics {
		records[i] = PlainText(t)
	}
	return records
}
