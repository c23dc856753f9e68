package step

import (
	"context"

	"github.com/whitaker-io/chewdata/connector"
	"github.com/whitaker-io/chewdata/document"
	"github.com/whitaker-io/chewdata/record"
)

// Reader is the reader step of spec.md §4.6: pulls sub-connectors from
// its paginator, decodes each through doc, and emits every DataResult on
// the ok output. When fed an external input (the first step of a
// pipeline wired to exec's optional input receiver), each such record
// passes through first and doubles as a parameter carrier for
// set_parameters, driving its own full paginated fetch pass against the
// connector -- enabling dynamic paths like /users/{{ id }} where N input
// records yield N fetch passes, not just the last one. With no external
// input at all, the connector is fetched exactly once unparameterized.
type Reader struct {
	Common
	Conn connector.Connector
	Doc  document.Document
}

// Run implements Step.
func (r *Reader) Run(ctx context.Context, in <-chan *record.DataResult, out chan<- *record.DataResult) {
	defer close(out)

	received := false
	for res := range in {
		if !forward(ctx, out, res) {
			return
		}
		if res.IsOk() {
			received = true
			if !r.fetch(ctx, res.Record(), out) {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}

	if !received {
		r.fetch(ctx, nil, out)
	}
}

// fetch runs one full paginated read pass against r.Conn. param, when
// non-nil, is an external input record the connector is parameterized
// against via CloneBox+SetParameters before pagination begins. It
// returns false when the caller should stop reading entirely (the out
// channel's consumer gave up or ctx was cancelled).
func (r *Reader) fetch(ctx context.Context, param *record.Record, out chan<- *record.DataResult) bool {
	conn := r.Conn
	if param != nil {
		conn = conn.CloneBox()
		if err := conn.SetParameters(param); err != nil {
			return forward(ctx, out, record.Err(record.NewMap(), record.NewError(record.ErrorKindConfigInvalid, "reader %s: set_parameters: %v", r.AliasName, err)))
		}
	}

	pager, err := conn.Paginator()
	if err != nil {
		return forward(ctx, out, record.Err(record.NewMap(), record.NewError(record.ErrorKindConnectorUnavailable, "reader %s: paginator: %v", r.AliasName, err)))
	}

	for {
		sub, ok, err := pager.Next(ctx)
		if err != nil {
			if !forward(ctx, out, record.Err(record.NewMap(), record.NewError(record.ErrorKindConnectorUnavailable, "reader %s: paginate: %v", r.AliasName, err))) {
				return false
			}
			continue
		}
		if !ok {
			return true
		}

		stream, err := sub.Fetch(ctx, r.Doc)
		if err != nil {
			if !forward(ctx, out, record.Err(record.NewMap(), record.NewError(record.ErrorKindConnectorUnavailable, "reader %s: fetch: %v", r.AliasName, err))) {
				return false
			}
			continue
		}

		emitted := 0
		for res := range stream {
			emitted++
			if res.IsOk() {
				r.publish(res.Record())
			}
			if !forward(ctx, out, res) {
				return false
			}
		}

		if offset, isOffset := pager.(interface{ Observe(int) }); isOffset {
			offset.Observe(emitted)
		}
	}
}
