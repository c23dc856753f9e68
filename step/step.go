// Package step implements the six step variants of spec.md §4.6: Reader,
// Writer, Transformer, Eraser, Generator, Validator. Each step consumes a
// channel of *record.DataResult and produces one, the uniform shape the
// pipeline runtime (C7) wires together.
package step

import (
	"context"
	"sync"

	"github.com/whitaker-io/chewdata/record"
)

// DataType filters which DataResult variant a step accepts, per spec.md
// §4.6.
type DataType int

// The three DataType values. DataTypeBoth is the zero value so a step
// built without an explicit Type (e.g. a reader, which never filters by
// it) behaves like spec.md §4.6's "both" default rather than silently
// acting as an ok-only filter.
const (
	DataTypeBoth DataType = iota
	DataTypeOk
	DataTypeErr
)

// ParseDataType maps a config string to a DataType, defaulting to both.
func ParseDataType(s string) DataType {
	switch s {
	case "ok":
		return DataTypeOk
	case "err":
		return DataTypeErr
	default:
		return DataTypeBoth
	}
}

// accepts reports whether a DataResult of the given variant should be
// processed by a step declaring DataType dt.
func (dt DataType) accepts(res *record.DataResult) bool {
	switch dt {
	case DataTypeOk:
		return res.IsOk()
	case DataTypeErr:
		return res.IsErr()
	default:
		return true
	}
}

// Step is the uniform contract the pipeline runtime drives: Run consumes
// in until it closes (or ctx is cancelled) and closes out when done.
// Transformer, Validator and Writer emit one DataResult per DataResult they
// receive (a Writer adds an Err when a flush fails); Reader forwards its
// inputs and adds the records it fetches; Generator discards its input and
// emits its own records; Eraser forwards nothing but the Err results of a
// failed set_parameters or Erase.
type Step interface {
	// Alias is the step's user-given name, addressable downstream as
	// steps.<alias>.
	Alias() string

	// Run drives the step to completion. It must close out before
	// returning.
	Run(ctx context.Context, in <-chan *record.DataResult, out chan<- *record.DataResult)
}

// Upstreams is the shared, thread-safe `steps.<alias>` binding map a
// pipeline builds once and hands to every step it constructs, per
// spec.md §3's PipelineContext accessors. Each step that declares an
// alias publishes its last-produced record here; every step's Context
// reads the whole map so `steps.<alias>` resolves to whatever the most
// recent record from that step was, regardless of step order.
type Upstreams struct {
	mu sync.RWMutex
	m  map[string]*record.Record
}

// NewUpstreams builds an empty Upstreams registry.
func NewUpstreams() *Upstreams {
	return &Upstreams{m: map[string]*record.Record{}}
}

// Set publishes alias's last-produced record.
func (u *Upstreams) Set(alias string, r *record.Record) {
	if u == nil || alias == "" {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.m[alias] = r
}

// Context builds a record.Context for input, pre-populated with every
// alias currently published, per spec.md §3.
func (u *Upstreams) Context(input *record.Record) *record.Context {
	ctx := record.NewContext(input)
	if u == nil {
		return ctx
	}
	u.mu.RLock()
	defer u.mu.RUnlock()
	for alias, r := range u.m {
		ctx.WithStepOutput(alias, r)
	}
	return ctx
}

// Common holds the fields every step variant shares, per spec.md §4.6.
type Common struct {
	AliasName        string
	Description      string
	Enable           bool
	Type             DataType
	ConcurrencyLimit int
	// EdgeBufferSize sets the capacity of the outbound channel the
	// pipeline runtime wires after this step, per spec.md §4.7 ("a
	// bounded channel of capacity concurrency_limit_i, default small,
	// e.g. 1000"). Zero means the runtime's own default.
	EdgeBufferSize int
	Upstreams      *Upstreams
}

// defaultEdgeBufferSize is the runtime default spec.md §4.7 names.
const defaultEdgeBufferSize = 1000

// BufferSize implements the pipeline runtime's optional bufferSized
// interface, promoted onto every step variant that embeds Common.
func (c Common) BufferSize() int {
	if c.EdgeBufferSize > 0 {
		return c.EdgeBufferSize
	}
	return defaultEdgeBufferSize
}

// contextFor builds this step's Context for input, via Upstreams when
// present.
func (c Common) contextFor(input *record.Record) *record.Context {
	return c.Upstreams.Context(input)
}

// publish records this step's produced output under its alias, if any.
func (c Common) publish(r *record.Record) {
	if c.AliasName != "" {
		c.Upstreams.Set(c.AliasName, r)
	}
}

// Alias implements Step.
func (c Common) Alias() string { return c.AliasName }

// concurrency returns a concurrency limit of at least 1.
func (c Common) concurrency() int {
	if c.ConcurrencyLimit < 1 {
		return 1
	}
	return c.ConcurrencyLimit
}

// forward copies a DataResult from in to out, respecting ctx cancellation,
// returning false if the channel closed or ctx was cancelled before the
// send landed.
func forward(ctx context.Context, out chan<- *record.DataResult, res *record.DataResult) bool {
	select {
	case out <- res:
		return true
	case <-ctx.Done():
		return false
	}
}

// fanWorkers runs n copies of worker concurrently over in, forwarding
// every produced DataResult onto out, and closes out once every worker
// has returned. Ordering within one worker is preserved; ordering across
// workers is not, per spec.md §4.7.
func fanWorkers(ctx context.Context, n int, in <-chan *record.DataResult, out chan<- *record.DataResult, worker func(res *record.DataResult) *record.DataResult) {
	defer close(out)
	if n < 1 {
		n = 1
	}

	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for {
				select {
				case res, ok := <-in:
					if !ok {
						return
					}
					result := worker(res)
					if result != nil && !forward(ctx, out, result) {
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}
}
