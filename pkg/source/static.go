package source

import "context"

// Static is a Source that always returns the same records or error.
// Useful for tests and for wiring ad-hoc sources from code.
type Static struct {
	name    SourceType
	records []Record
	err     error
}

// NewStatic returns a Static source yielding records.
func NewStatic(name SourceType, records ...Record) *Static {
	return &Static{name: name, records: records}
}

// NewFailing returns a Static source whose Collect always fails with err.
func NewFailing(name SourceType, err error) *Static {
	return &Static{name: name, err: err}
}

func (s *Static) Name() SourceType { return s.name }

func (s *Static) Collect(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out, nil
}
