package document

import (
	"io"

	"github.com/whitaker-io/chewdata/record"
)

// Text implements Document for unstructured byte streams: the whole input
// becomes one record, `{"input": "..."}`, per spec.md §4.2. It is the
// fallback used by connectors like cli and curl when no structure should be
// assumed.
type Text struct {
	started bool
}

// Decode implements Document.
func (t *Text) Decode(r io.Reader) <-chan *record.DataResult {
	out := make(chan *record.DataResult)
	go func() {
		defer close(out)

		buf, err := io.ReadAll(r)
		if err != nil {
			out <- decodeErr(buf, err)
			return
		}
		rec := record.NewMap().Set("input", record.NewString(string(buf)))
		out <- record.Ok(rec)
	}()
	return out
}

// EncodeHeader implements Document: Text has no document-level bracketing.
func (t *Text) EncodeHeader(w io.Writer) error {
	t.started = false
	return nil
}

// EncodeRecord implements Document, writing the record's `input` field
// verbatim, newline-separated from any prior record.
func (t *Text) EncodeRecord(w io.Writer, rec *record.Record) error {
	if t.started {
		if _, err := w.Write([]byte("\n")); err != nil {
			return err
		}
	}
	t.started = true

	val := rec
	if rec.Kind() == record.KindMap {
		val = rec.MapGet("input")
	}
	_, err := io.WriteString(w, val.String())
	return err
}

// EncodeFooter implements Document.
func (t *Text) EncodeFooter(w io.Writer) error { return nil }

// Metadata implements Document.
func (t *Text) Metadata() Metadata {
	return Metadata{MimeType: "text", MimeSubtype: "plain", FileExtension: "txt"}
}
