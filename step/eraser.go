package step

import (
	"context"

	"github.com/whitaker-io/chewdata/connector"
	"github.com/whitaker-io/chewdata/record"
)

// Eraser is the eraser step of spec.md §4.6: calls Erase() on its
// connector once at step start -- templated by the first observed record
// when the connector's path is variable -- then terminates. Used to
// truncate outputs at the head of a pipeline; it has no meaningful
// passthrough role, so it drains (without forwarding) whatever input it
// is given so an upstream producer is never blocked on it.
type Eraser struct {
	Common
	Conn connector.Connector
}

// Run implements Step.
func (e *Eraser) Run(ctx context.Context, in <-chan *record.DataResult, out chan<- *record.DataResult) {
	defer close(out)

	if e.Conn.IsVariable() {
		for res := range in {
			if res.IsOk() {
				if err := e.Conn.SetParameters(res.Record()); err != nil {
					forward(ctx, out, record.Err(res.Record(), record.NewError(record.ErrorKindTemplateFailed, "eraser %s: set_parameters: %v", e.AliasName, err)))
					continue
				}
				break
			}
		}
	}

	if err := e.Conn.Erase(ctx); err != nil {
		if !forward(ctx, out, record.Err(record.NewMap(), record.NewError(record.ErrorKindConnectorUnavailable, "eraser %s: erase: %v", e.AliasName, err))) {
			return
		}
	}

	for range in {
	}
}
