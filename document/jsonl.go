package document

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/whitaker-io/chewdata/record"
)

// JSONL implements Document for newline-delimited JSON records, with an
// optional IsPretty multi-line mode for human-readable output, per
// spec.md §4.2.
type JSONL struct {
	IsPretty bool
	EntryPath string
	started  bool
}

// SetEntryPath implements EntryPathed.
func (j *JSONL) SetEntryPath(pointer string) { j.EntryPath = pointer }

// Decode implements Document. Each line (or, in pretty mode, each
// brace-balanced block) is parsed independently so a single malformed
// record does not abort the stream.
func (j *JSONL) Decode(r io.Reader) <-chan *record.DataResult {
	out := make(chan *record.DataResult)
	go func() {
		defer close(out)

		dec := json.NewDecoder(bufio.NewReader(r))
		for {
			var raw interface{}
			err := dec.Decode(&raw)
			if err == io.EOF {
				return
			}
			if err != nil {
				out <- decodeErr(nil, err)
				return
			}
			rec := record.FromInterface(raw)
			if j.EntryPath != "" {
				rec = rec.Get(j.EntryPath)
			}
			out <- record.Ok(rec)
		}
	}()
	return out
}

// EncodeHeader implements Document: JSONL has no document-level bracketing.
func (j *JSONL) EncodeHeader(w io.Writer) error {
	j.started = false
	return nil
}

// EncodeRecord implements Document, writing one JSON value per line (a
// leading newline separates records after the first, so the final record
// is not forced to end with a trailing blank line).
func (j *JSONL) EncodeRecord(w io.Writer, rec *record.Record) error {
	target := rec
	if j.EntryPath != "" {
		target = record.NewMap().MergeIn(j.EntryPath, rec)
	}

	var bytez []byte
	var err error
	if j.IsPretty {
		bytez, err = json.MarshalIndent(orderedValue(target), "", "  ")
	} else {
		bytez, err = json.Marshal(orderedValue(target))
	}
	if err != nil {
		return err
	}

	if j.started {
		if _, err := w.Write([]byte("\n")); err != nil {
			return err
		}
	}
	j.started = true
	_, err = w.Write(bytez)
	return err
}

// EncodeFooter implements Document.
func (j *JSONL) EncodeFooter(w io.Writer) error { return nil }

// Metadata implements Document.
func (j *JSONL) Metadata() Metadata {
	return Metadata{MimeType: "application", MimeSubtype: "jsonl", FileExtension: "jsonl"}
}
