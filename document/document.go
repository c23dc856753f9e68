// Package document implements the bidirectional, streaming bytes<->Record
// codec layer (C2) shared by every connector: JSON, JSONL, CSV, YAML, TOML,
// XML, Parquet, and Text.
package document

import (
	"fmt"
	"io"

	"github.com/whitaker-io/chewdata/record"
)

// Metadata describes a codec's identity for downstream connector
// mime-subtype selection, per spec.md §4.2.
type Metadata struct {
	MimeType      string
	MimeSubtype   string
	FileExtension string
}

// Document is the streaming codec contract of spec.md §4.2. On the decode
// side a Document instance holds only its EntryPath/configuration and no
// partially-read buffer across Decode calls; on the encode side some codecs
// keep separator/header state on the receiver, which EncodeHeader resets.
// The same instance is reused, since connectors clone per worker but share
// one Document per step.
type Document interface {
	// Decode returns a lazily-produced sequence of DataResults read from r.
	// Decode never panics on malformed input: a record that cannot be
	// parsed is emitted as a DataResult.Err whose `_raw` field holds the
	// input bytes for the TOML, XML and Text codecs; the JSON, JSONL, CSV,
	// YAML and Parquet codecs leave `_raw` empty. Decoding continues with
	// the next record. The returned
	// channel is closed once r is exhausted or ctx-equivalent cancellation
	// is observed by the caller ceasing to range over it (the decode
	// goroutine exits once its write to the channel would block forever
	// past the point the reader gave up -- callers MUST drain the channel
	// to completion or close the underlying reader to unblock it).
	Decode(r io.Reader) <-chan *record.DataResult

	// EncodeHeader writes any document-level preamble (e.g. a JSON array's
	// opening bracket). It is a no-op for formats with no bracketing.
	EncodeHeader(w io.Writer) error

	// EncodeRecord serializes one record and writes it, including any
	// inter-record separator the format requires (e.g. JSONL's newline).
	// EncodeRecord tracks whether it has been called since the last
	// EncodeHeader so that separators are placed correctly.
	EncodeRecord(w io.Writer, rec *record.Record) error

	// EncodeFooter writes any document-level closing bracket.
	EncodeFooter(w io.Writer) error

	// Metadata reports the codec's mime identity.
	Metadata() Metadata
}

// EntryPathed is implemented by codecs that support the entry_path option:
// a pointer selecting the sub-tree of a decoded document that becomes the
// record root, and the wrapping path records are nested under on encode.
type EntryPathed interface {
	SetEntryPath(pointer string)
}

// New builds a Document for the given format name ("json", "jsonl", "csv",
// "yaml", "toml", "xml", "parquet", "text"), applying opts in order. It
// returns an error for an unrecognized format so that a malformed
// `document.type` in a pipeline config surfaces as ConfigInvalid rather
// than a nil-pointer panic deep in a step.
func New(format string, opts ...Option) (Document, error) {
	var doc Document
	switch format {
	case "json":
		doc = &JSON{}
	case "jsonl":
		doc = &JSONL{}
	case "csv":
		doc = newCSV()
	case "yaml", "yml":
		doc = &YAML{}
	case "toml":
		doc = &TOML{}
	case "xml":
		doc = &XML{}
	case "parquet":
		doc = &Parquet{}
	case "text":
		doc = &Text{}
	default:
		return nil, fmt.Errorf("document: unknown format %q", format)
	}
	for _, opt := range opts {
		opt(doc)
	}
	return doc, nil
}

// Option configures a Document returned by New.
type Option func(Document)

// WithEntryPath sets the entry_path option on codecs that support it; it is
// a no-op on codecs that don't (Text, CSV).
func WithEntryPath(pointer string) Option {
	return func(d Document) {
		if ep, ok := d.(EntryPathed); ok {
			ep.SetEntryPath(pointer)
		}
	}
}

// WithPretty toggles JSONL's is_pretty multi-line mode.
func WithPretty(pretty bool) Option {
	return func(d Document) {
		if j, ok := d.(*JSONL); ok {
			j.IsPretty = pretty
		}
	}
}

// WithCSV configures the CSV codec's delimiter and header-row behavior.
// Quoting is always double-quote (stdlib encoding/csv's only mode, see
// CSV's doc comment); there is no quote character option to set.
func WithCSV(delimiter rune, header bool) Option {
	return func(d Document) {
		if c, ok := d.(*CSV); ok {
			c.Delimiter = delimiter
			c.HasHeader = header
		}
	}
}

// WithParquetSchema sets the schema Parquet requires on encode.
func WithParquetSchema(schema *ParquetSchema) Option {
	return func(d Document) {
		if p, ok := d.(*Parquet); ok {
			p.Schema = schema
		}
	}
}

func decodeErr(raw []byte, err error) *record.DataResult {
	rec := record.NewMap().Set("_raw", record.NewString(string(raw)))
	return record.Err(rec, record.NewError(record.ErrorKindDecodeFailed, "%v", err))
}
