package step

import (
	"context"

	"github.com/whitaker-io/chewdata/record"
)

// Generator is the generator step of spec.md §4.6: emits Size empty
// records, letting a downstream transformer fill them (synthetic data,
// load tests). It ignores any input it is given.
type Generator struct {
	Common
	Size int
}

// Run implements Step.
func (g *Generator) Run(ctx context.Context, in <-chan *record.DataResult, out chan<- *record.DataResult) {
	defer close(out)
	go func() {
		for range in {
		}
	}()

	for i := 0; i < g.Size; i++ {
		rec := record.NewMap()
		g.publish(rec)
		if !forward(ctx, out, record.Ok(rec)) {
			return
		}
	}
}
