package connector

import (
	"context"

	"github.com/whitaker-io/chewdata/document"
	"github.com/whitaker-io/chewdata/record"
)

// Counter supplies an Offset paginator with a total record count so it can
// know in advance how many pages to expect, per spec.md §4.4. A counter
// failure is non-fatal: OffsetPaginator falls back to stream-exhaustion
// termination when Count returns an error.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// ScanCounter asks the backend connector for its native size via Len,
// interpreting the result as a logical record count. It fits backends
// whose Len() already reports a record count rather than a byte size
// (e.g. a database connector backed by SELECT COUNT(*)).
type ScanCounter struct {
	Conn Connector
}

// Count implements Counter.
func (s *ScanCounter) Count(ctx context.Context) (int, error) {
	n, err := s.Conn.Len(ctx)
	return int(n), err
}

// BodyCounter issues a sidecar request against Conn, decodes the response
// through Doc, and reads the count from the field at Pointer, per
// spec.md §4.4's Body counter variant.
type BodyCounter struct {
	Conn    Connector
	Doc     document.Document
	Pointer string
}

// Count implements Counter.
func (b *BodyCounter) Count(ctx context.Context) (int, error) {
	ch, err := b.Conn.CloneBox().Fetch(ctx, b.Doc)
	if err != nil {
		return 0, err
	}
	for res := range ch {
		if res.IsErr() {
			continue
		}
		if v := res.Record().Get(b.Pointer); v != nil {
			return int(v.Int()), nil
		}
	}
	return 0, record.NewError(record.ErrorKindDecodeFailed, "body counter: pointer %q not found", b.Pointer)
}
