package connector

import (
	"context"

	"github.com/whitaker-io/chewdata/document"
	"github.com/whitaker-io/chewdata/record"
)

// CursorPaginator yields sub-connectors keyed by a cursor token extracted
// from the previous page's response, per spec.md §4.4. Not parallelizable:
// each page's cursor is only known after the previous page has been
// fetched and decoded.
type CursorPaginator struct {
	base       Connector
	doc        document.Document
	pointer    string
	paramField string

	cursor    string
	started   bool
	exhausted bool
}

// NewCursorPaginator builds a CursorPaginator over base. pointer is the
// JSON-pointer-like path into a decoded response that holds the next
// cursor token; paramField is the field name SetParameters binds the
// current cursor under (e.g. "cursor"), matching whatever the base
// connector's templated path expects as `{{ input.<paramField> }}`.
func NewCursorPaginator(base Connector, doc document.Document, pointer, paramField string) *CursorPaginator {
	return &CursorPaginator{base: base, doc: doc, pointer: pointer, paramField: paramField}
}

// Next implements Paginator.
func (p *CursorPaginator) Next(ctx context.Context) (Connector, bool, error) {
	if p.exhausted {
		return nil, false, nil
	}

	clone := p.base.CloneBox()
	if p.started {
		params := record.NewMap().Set(p.paramField, record.NewString(p.cursor))
		if err := clone.SetParameters(params); err != nil {
			return nil, false, err
		}
	}
	p.started = true

	nextCursor, err := p.peekCursor(ctx, clone)
	if err != nil {
		return nil, false, err
	}
	if nextCursor == "" || nextCursor == p.cursor {
		p.exhausted = true
	}
	p.cursor = nextCursor

	return clone, true, nil
}

// peekCursor fetches the page once (the caller's step will fetch it again
// through the returned connector clone's own Fetch call; connectors must
// therefore be cheap to re-fetch or buffer internally -- curl buffers its
// response body before decode, and bucket re-issues its GetObject on each
// Fetch).
func (p *CursorPaginator) peekCursor(ctx context.Context, conn Connector) (string, error) {
	ch, err := conn.CloneBox().Fetch(ctx, p.doc)
	if err != nil {
		return "", err
	}
	var last string
	for res := range ch {
		if res.IsErr() {
			continue
		}
		if v := res.Record().Get(p.pointer); v != nil {
			last = v.String()
		}
	}
	return last, nil
}

// IsParallelizable implements Paginator: Cursor pagination is inherently
// sequential.
func (p *CursorPaginator) IsParallelizable() bool { return false }
