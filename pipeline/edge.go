package pipeline

import "github.com/whitaker-io/chewdata/record"

// bufferSized is implemented by any step.Step whose embedded step.Common
// exposes a configured edge capacity; steps that don't implement it get
// defaultBufferSize.
type bufferSized interface {
	BufferSize() int
}

const defaultBufferSize = 1000

// newEdge allocates the bounded inter-step channel of spec.md §4.7,
// mirroring the teacher's edgeProvider.New in edge.go, which likewise
// sizes a channel from an *Option.BufferSize rather than leaving it
// unbuffered.
func newEdge(bufferSize int) chan *record.DataResult {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return make(chan *record.DataResult, bufferSize)
}

// intoHead adapts an optional external input receiver into the first
// edge of the chain. A nil input means the head step supplies its own
// records (a paginated reader or a generator); the returned channel is
// simply closed immediately so the head step's "drain external input
// first" loop falls through without blocking.
func intoHead(input <-chan *record.DataResult) chan *record.DataResult {
	head := make(chan *record.DataResult)
	go func() {
		defer close(head)
		if input == nil {
			return
		}
		for res := range input {
			head <- res
		}
	}()
	return head
}
