package pipeline

import (
	"context"

	"github.com/whitaker-io/chewdata/record"
	"github.com/whitaker-io/chewdata/step"
	"github.com/whitaker-io/chewdata/telemetry"
)

// Exec is chewdata's single embedded-API entry point, per spec.md §6's
// "exec(steps, optional_input_receiver, optional_output_sender)". It
// builds the bounded inter-step channel for every adjacent pair, starts
// every step concurrently, and blocks until the whole chain has drained.
//
// input, when non-nil, supplies DataResults that appear at the pipeline
// head, ahead of whatever the first step would otherwise produce itself
// (a paginated reader treats them as set_parameters carriers; see
// step.Reader). A nil input leaves the first step to drive itself.
//
// output, when non-nil, receives every DataResult the last step produces
// instead of it being silently discarded, and is closed once the last
// step's channel closes. Exec itself never fails because of a per-record
// error -- those travel as Err DataResults on output -- it returns a
// non-nil error only for the runtime-level failures spec.md §7 marks
// pipeline-fatal (an empty step list, or a step panicking during Run).
func Exec(ctx context.Context, steps []step.Step, input <-chan *record.DataResult, output chan<- *record.DataResult) error {
	if len(steps) == 0 {
		return newError(record.ErrorKindConfigInvalid, "", "pipeline: no steps configured")
	}

	edges := make([]chan *record.DataResult, len(steps)+1)
	edges[0] = intoHead(input)
	for i := 1; i < len(edges); i++ {
		edges[i] = newEdge(bufferSizeOf(steps[i-1]))
	}

	errs := make(chan *Error, len(steps))
	done := make(chan struct{})
	go func() {
		run(ctx, steps, edges, errs)
		close(done)
	}()

	terminal := edges[len(edges)-1]
	for res := range terminal {
		telemetry.Int64Counter(ctx, "pipeline.output.records", 1)
		if output == nil {
			continue
		}
		select {
		case output <- res:
		case <-ctx.Done():
		}
	}
	if output != nil {
		close(output)
	}

	<-done

	var first *Error
	for e := range errs {
		if first == nil {
			first = e
		}
	}
	if first == nil {
		return nil
	}
	return first
}

// bufferSizeOf resolves a step's configured edge capacity via the
// optional bufferSized interface, falling back to defaultBufferSize.
func bufferSizeOf(s step.Step) int {
	if bs, ok := s.(bufferSized); ok {
		return bs.BufferSize()
	}
	return defaultBufferSize
}
