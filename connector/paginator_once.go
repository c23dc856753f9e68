package connector

import "context"

// OncePaginator yields its wrapped connector exactly once, per spec.md
// §4.4. It is the default paginator for backends that are a single byte
// stream (local without glob fan-out already handled in Fetch, in_memory,
// cli).
type OncePaginator struct {
	conn Connector
	done bool
}

// NewOncePaginator returns a Paginator that yields conn exactly once.
func NewOncePaginator(conn Connector) *OncePaginator {
	return &OncePaginator{conn: conn}
}

// Next implements Paginator.
func (p *OncePaginator) Next(ctx context.Context) (Connector, bool, error) {
	if p.done {
		return nil, false, nil
	}
	p.done = true
	return p.conn, true, nil
}

// IsParallelizable implements Paginator: a single page is never
// parallelizable relative to itself.
func (p *OncePaginator) IsParallelizable() bool { return false }
