package step

import (
	"context"
	"fmt"

	"github.com/whitaker-io/chewdata/connector"
	"github.com/whitaker-io/chewdata/document"
	"github.com/whitaker-io/chewdata/record"
)

// Writer is the writer step of spec.md §4.6. It batches records up to
// BatchByteSize or BatchRecordSize, then flushes through the connector; a
// templated connector path that changes between records triggers the
// dynamic rebinding FSM of spec.md §4.7: Open -> Buffering(path) ->
// Flushing -> Open(new_path).
type Writer struct {
	Common
	Conn            connector.Connector
	Doc             document.Document
	BatchByteSize   int
	BatchRecordSize int

	pending     []*record.Record
	pendingSize int
	currentPath string
}

// Run implements Step.
func (w *Writer) Run(ctx context.Context, in <-chan *record.DataResult, out chan<- *record.DataResult) {
	defer close(out)
	defer w.flush(ctx, out)

	for res := range in {
		if !w.Type.accepts(res) {
			if !forward(ctx, out, res) {
				return
			}
			continue
		}

		rec := res.ToRecord()
		if w.Conn.IsVariable() {
			if err := w.Conn.SetParameters(rec); err != nil {
				if !forward(ctx, out, record.Err(rec, record.NewError(record.ErrorKindTemplateFailed, "writer %s: set_parameters: %v", w.AliasName, err))) {
					return
				}
				continue
			}
			newPath := w.Conn.Path()
			if w.currentPath != "" && newPath != w.currentPath && len(w.pending) > 0 {
				w.flush(ctx, out)
			}
			w.currentPath = newPath
		}

		w.pending = append(w.pending, rec)
		w.pendingSize += w.recordSize(rec)
		w.publish(rec)

		if (w.BatchByteSize > 0 && w.pendingSize >= w.BatchByteSize) ||
			(w.BatchRecordSize > 0 && len(w.pending) >= w.BatchRecordSize) {
			w.flush(ctx, out)
		}

		if !forward(ctx, out, res) {
			return
		}
	}
}

// recordSize estimates a record's encoded length for the batch_byte_size
// threshold. It deliberately avoids calling Doc.EncodeRecord, which
// mutates the shared Document's header/separator state (e.g. JSON's
// comma-before-record bookkeeping) -- calling it here as well as at flush
// time would double-advance that state and corrupt the real encoding.
func (w *Writer) recordSize(rec *record.Record) int {
	return len(fmt.Sprintf("%v", rec.ToInterface()))
}

// flush sends the pending batch through the connector. A connector error
// is never silently dropped, per spec.md §4.6's step failure policy: it
// surfaces as an additional Err DataResult on out, even though the Ok
// DataResults for the now-flushed records were already forwarded when
// they were accepted.
func (w *Writer) flush(ctx context.Context, out chan<- *record.DataResult) {
	if len(w.pending) == 0 {
		return
	}
	batch := w.pending
	w.pending = nil
	w.pendingSize = 0

	if err := w.Conn.Send(ctx, w.Doc, batch, nil); err != nil {
		forward(ctx, out, record.Err(record.NewMap(), record.NewError(record.ErrorKindConnectorUnavailable, "writer %s: send: %v", w.AliasName, err)))
	}
}
