package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/whitaker-io/chewdata/record"
	"github.com/whitaker-io/chewdata/step"
	"github.com/whitaker-io/chewdata/telemetry"
)

// supervise runs one step's Run to completion, recovering a panic into a
// runtime Error the way the teacher's vertex.recover wraps every vertex's
// handler in vertex.go. A panic unwinds through the step's own deferred
// close(out) before reaching this recover, so downstream steps still
// observe channel closure and terminate rather than hang.
//
// It also brackets the run with a telemetry span named after the step's
// alias, the way the teacher's vertex.span wraps every vertex's handler
// (vertex.go) -- the pipeline runtime is the one place that knows a
// step's full lifetime, so it is the natural owner of that span rather
// than the step package itself.
func supervise(ctx context.Context, s step.Step, in <-chan *record.DataResult, out chan<- *record.DataResult, errs chan<- *Error) {
	spanCtx := telemetry.SpanStart(ctx, "pipeline.step", slog.String("alias", s.Alias()))
	defer telemetry.SpanEnd(spanCtx, "pipeline.step")

	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			telemetry.SpanEvent(spanCtx, "pipeline.step.panic", slog.String("alias", s.Alias()), slog.String("error", err.Error()))
			errs <- newError(record.ErrorKindUnknown, s.Alias(), "panic recovery: %w", err)
		}
	}()
	s.Run(spanCtx, in, out)
}

// run wires and starts the supervising goroutine for every step, joining
// them all before closing errs. The graph is a linear chain, so the
// "runtime joins tasks in topological order" requirement of spec.md §4.7
// reduces to waiting on every step's supervisor.
func run(ctx context.Context, steps []step.Step, edges []chan *record.DataResult, errs chan<- *Error) {
	var wg sync.WaitGroup
	wg.Add(len(steps))
	for i := range steps {
		s, in, out := steps[i], edges[i], edges[i+1]
		go func() {
			defer wg.Done()
			supervise(ctx, s, in, out, errs)
		}()
	}
	wg.Wait()
	close(errs)
}
