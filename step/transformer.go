package step

import (
	"context"
	"sync"
	"time"

	"github.com/whitaker-io/chewdata/connector"
	"github.com/whitaker-io/chewdata/document"
	"github.com/whitaker-io/chewdata/record"
	"github.com/whitaker-io/chewdata/updater"
)

// Ref is one entry of a Transformer's refs{} configuration: a connector
// and document pair materialized once and cached for the lifetime of the
// step, per spec.md §4.5.
type Ref struct {
	Conn connector.Connector
	Doc  document.Document
}

// Transformer is the transformer step of spec.md §4.6: applies the
// updater's action set to each accepted DataResult, producing a new one.
type Transformer struct {
	Common
	Updater *updater.Updater
	Actions []updater.Action
	Refs    map[string]Ref
	Wait    time.Duration

	refsOnce sync.Once
	refVals  map[string]*record.Record
}

// Run implements Step.
func (t *Transformer) Run(ctx context.Context, in <-chan *record.DataResult, out chan<- *record.DataResult) {
	fanWorkers(ctx, t.concurrency(), in, out, func(res *record.DataResult) *record.DataResult {
		if !t.Type.accepts(res) {
			return res
		}

		if t.Wait > 0 {
			select {
			case <-time.After(t.Wait):
			case <-ctx.Done():
				return nil
			}
		}

		input := res.ToRecord()
		stepCtx := t.contextFor(input)
		for name, r := range t.loadRefs(ctx) {
			stepCtx.WithRef(name, r)
		}

		output, err := updater.Apply(t.Updater, input, t.Actions, stepCtx)
		if err != nil {
			if info, ok := err.(*record.ErrorInfo); ok {
				result := record.Err(input, info)
				t.publish(result.Record())
				return result
			}
			result := record.Err(input, record.NewError(record.ErrorKindTemplateFailed, "transformer %s: %v", t.AliasName, err))
			t.publish(result.Record())
			return result
		}

		result := record.Ok(output)
		t.publish(output)
		return result
	})
}

// loadRefs materializes every declared referential exactly once, shared
// read-only across the step's worker goroutines.
func (t *Transformer) loadRefs(ctx context.Context) map[string]*record.Record {
	t.refsOnce.Do(func() {
		t.refVals = map[string]*record.Record{}
		for name, ref := range t.Refs {
			merged := record.NewArray()
			stream, err := ref.Conn.Fetch(ctx, ref.Doc)
			if err != nil {
				t.refVals[name] = merged
				continue
			}
			for res := range stream {
				if res.IsOk() {
					merged = merged.Append(res.Record())
				}
			}
			t.refVals[name] = merged
		}
	})
	return t.refVals
}
