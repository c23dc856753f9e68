package document

import (
	"encoding/csv"
	"io"

	"github.com/whitaker-io/chewdata/record"
)

// CSV implements Document over encoding/csv. Type inference is
// intentionally off per spec.md §4.2: every cell decodes as a string, and
// the caller's updater/actions are responsible for any coercion. Quoting is
// always double-quote: stdlib encoding/csv has no configurable quote
// character, and hand-rolling one is not worth carrying alongside it for a
// format whose escape convention is universally `"`.
type CSV struct {
	Delimiter rune
	HasHeader bool

	header  []string
	started bool
}

func newCSV() *CSV {
	return &CSV{Delimiter: ',', HasHeader: true}
}

// Decode implements Document.
func (c *CSV) Decode(r io.Reader) <-chan *record.DataResult {
	out := make(chan *record.DataResult)
	go func() {
		defer close(out)

		reader := csv.NewReader(r)
		reader.Comma = c.Delimiter
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true

		var header []string
		first := true
		for {
			row, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				out <- decodeErr(nil, err)
				continue
			}
			if first && c.HasHeader {
				header = append([]string(nil), row...)
				first = false
				continue
			}
			first = false

			rec := record.NewMap()
			for i, val := range row {
				key := columnName(header, i)
				rec.Set(key, record.NewString(val))
			}
			out <- record.Ok(rec)
		}
	}()
	return out
}

func columnName(header []string, i int) string {
	if i < len(header) {
		return header[i]
	}
	return indexName(i)
}

func indexName(i int) string {
	const digits = "0123456789"
	if i < 10 {
		return string(digits[i])
	}
	// Rare path: more columns than a header provided; fall back to a
	// synthetic positional name.
	buf := []byte{}
	for i > 0 {
		buf = append([]byte{digits[i%10]}, buf...)
		i /= 10
	}
	return string(buf)
}

// EncodeHeader implements Document, writing the header row derived from
// the first record's keys the first time EncodeRecord is called; nothing
// is written here directly because the column set isn't known yet.
func (c *CSV) EncodeHeader(w io.Writer) error {
	c.started = false
	c.header = nil
	return nil
}

// EncodeRecord implements Document.
func (c *CSV) EncodeRecord(w io.Writer, rec *record.Record) error {
	writer := csv.NewWriter(w)
	writer.Comma = c.Delimiter

	if c.header == nil {
		c.header = rec.Keys()
		if c.HasHeader {
			if err := writer.Write(c.header); err != nil {
				return err
			}
		}
	}

	row := make([]string, len(c.header))
	for i, key := range c.header {
		row[i] = rec.MapGet(key).String()
	}
	if err := writer.Write(row); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// EncodeFooter implements Document: CSV has no document-level footer.
func (c *CSV) EncodeFooter(w io.Writer) error { return nil }

// Metadata implements Document.
func (c *CSV) Metadata() Metadata {
	return Metadata{MimeType: "text", MimeSubtype: "csv", FileExtension: "csv"}
}
