package document

import (
	"bytes"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/whitaker-io/chewdata/record"
)

// TOML implements Document over github.com/BurntSushi/toml. A TOML document
// decodes as exactly one record -- its root table -- since the format has no
// native notion of a top-level array of records, per spec.md §4.2.
type TOML struct {
	EntryPath string
}

// SetEntryPath implements EntryPathed.
func (t *TOML) SetEntryPath(pointer string) { t.EntryPath = pointer }

// Decode implements Document.
func (t *TOML) Decode(r io.Reader) <-chan *record.DataResult {
	out := make(chan *record.DataResult)
	go func() {
		defer close(out)

		buf, err := io.ReadAll(r)
		if err != nil {
			out <- decodeErr(buf, err)
			return
		}
		if len(bytes.TrimSpace(buf)) == 0 {
			return
		}

		var raw map[string]interface{}
		if _, err := toml.Decode(string(buf), &raw); err != nil {
			out <- decodeErr(buf, err)
			return
		}

		rec := record.FromInterface(raw)
		if t.EntryPath != "" {
			rec = rec.Get(t.EntryPath)
		}
		out <- record.Ok(rec)
	}()
	return out
}

// EncodeHeader implements Document: TOML has no document-level bracketing.
func (t *TOML) EncodeHeader(w io.Writer) error { return nil }

// EncodeRecord implements Document. Each record encodes as its own
// top-level table set, written back to back; a multi-record TOML stream is
// therefore only well-formed when each record has disjoint top-level keys,
// matching the format's single-document nature noted in spec.md §4.2.
func (t *TOML) EncodeRecord(w io.Writer, rec *record.Record) error {
	target := rec
	if t.EntryPath != "" {
		target = record.NewMap().MergeIn(t.EntryPath, rec)
	}
	enc := toml.NewEncoder(w)
	return enc.Encode(target.ToInterface())
}

// EncodeFooter implements Document.
func (t *TOML) EncodeFooter(w io.Writer) error { return nil }

// Metadata implements Document.
func (t *TOML) Metadata() Metadata {
	return Metadata{MimeType: "application", MimeSubtype: "toml", FileExtension: "toml"}
}
