package connector

import (
	"context"

	"github.com/whitaker-io/chewdata/record"
)

// OffsetPaginator yields sub-connectors parameterized by {skip, limit},
// per spec.md §4.4. Termination: a configured Count, a Counter that
// reports the total on first use, or the caller reporting (via Observe)
// that the most recently yielded sub-connector's record stream was empty.
type OffsetPaginator struct {
	base    Connector
	limit   int
	skip    int
	count   *int
	counter Counter

	exhausted bool
}

// NewOffsetPaginator builds an OffsetPaginator over base. count, when
// non-nil, fixes the total up front; counter (optional) is consulted once
// on the first Next call when count is nil, and its failure is swallowed
// per spec.md §4.4 (termination then falls back to stream exhaustion).
func NewOffsetPaginator(base Connector, limit int, count *int, counter Counter) *OffsetPaginator {
	return &OffsetPaginator{base: base, limit: limit, count: count, counter: counter}
}

// Next implements Paginator.
func (p *OffsetPaginator) Next(ctx context.Context) (Connector, bool, error) {
	if p.exhausted {
		return nil, false, nil
	}

	if p.count == nil && p.counter != nil && p.skip == 0 {
		if n, err := p.counter.Count(ctx); err == nil {
			p.count = &n
		}
	}

	if p.count != nil && p.skip >= *p.count {
		p.exhausted = true
		return nil, false, nil
	}

	clone := p.base.CloneBox()
	params := record.NewMap().
		Set("skip", record.NewInt(int64(p.skip))).
		Set("limit", record.NewInt(int64(p.limit)))
	if err := clone.SetParameters(params); err != nil {
		return nil, false, err
	}

	p.skip += p.limit
	return clone, true, nil
}

// Observe lets the reader step report how many records the most recently
// yielded sub-connector actually produced; zero marks the paginator
// exhausted, terminating enumeration even when no Count is configured.
func (p *OffsetPaginator) Observe(recordsEmitted int) {
	if recordsEmitted == 0 {
		p.exhausted = true
	}
}

// IsParallelizable implements Paginator: true only when a total count is
// known ahead of time, so pages can be fetched out of order and
// reassembled.
func (p *OffsetPaginator) IsParallelizable() bool { return p.count != nil }
