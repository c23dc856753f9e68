package document

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
	"github.com/whitaker-io/chewdata/record"
)

// ParquetSchema describes the columns Parquet needs declared up front,
// since unlike the other codecs it cannot infer a schema from the first
// record alone (column types must be fixed before the first row group is
// flushed). Fields map a column name to its parquet.Node.
type ParquetSchema struct {
	Name   string
	Fields map[string]parquet.Node
}

func (s *ParquetSchema) schema() *parquet.Schema {
	return parquet.NewSchema(s.Name, parquet.Group(s.Fields))
}

// Parquet implements Document over github.com/parquet-go/parquet-go.
// Schema is required on Encode (there is no row to infer types from before
// the first row group is written) but is read from the file's own footer
// on Decode, per spec.md §4.2.
type Parquet struct {
	Schema *ParquetSchema

	writer *parquet.GenericWriter[map[string]interface{}]
}

// Decode implements Document. Parquet is not naturally a streaming format
// -- the whole object must be buffered to seek its footer -- so Decode reads
// r fully before producing any records.
func (p *Parquet) Decode(r io.Reader) <-chan *record.DataResult {
	out := make(chan *record.DataResult)
	go func() {
		defer close(out)

		buf, err := io.ReadAll(r)
		if err != nil {
			out <- decodeErr(nil, err)
			return
		}
		if len(buf) == 0 {
			return
		}

		file, err := parquet.OpenFile(bytesReaderAt(buf), int64(len(buf)))
		if err != nil {
			out <- decodeErr(nil, fmt.Errorf("parquet: open file: %w", err))
			return
		}

		reader := parquet.NewGenericReader[map[string]interface{}](file)
		defer reader.Close()

		rows := make([]map[string]interface{}, 128)
		for {
			n, err := reader.Read(rows)
			for i := 0; i < n; i++ {
				out <- record.Ok(record.FromInterface(rows[i]))
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				out <- decodeErr(nil, err)
				return
			}
		}
	}()
	return out
}

// EncodeHeader implements Document, opening the underlying row group
// writer against the configured Schema.
func (p *Parquet) EncodeHeader(w io.Writer) error {
	if p.Schema == nil {
		return fmt.Errorf("parquet: encode requires a schema")
	}
	p.writer = parquet.NewGenericWriter[map[string]interface{}](w, p.Schema.schema())
	return nil
}

// EncodeRecord implements Document.
func (p *Parquet) EncodeRecord(w io.Writer, rec *record.Record) error {
	if p.writer == nil {
		if err := p.EncodeHeader(w); err != nil {
			return err
		}
	}
	m, ok := rec.ToInterface().(map[string]interface{})
	if !ok {
		return fmt.Errorf("parquet: record must be map-shaped to encode")
	}
	_, err := p.writer.Write([]map[string]interface{}{m})
	return err
}

// EncodeFooter implements Document, flushing the row group and writing the
// Parquet file footer.
func (p *Parquet) EncodeFooter(w io.Writer) error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// Metadata implements Document.
func (p *Parquet) Metadata() Metadata {
	return Metadata{MimeType: "application", MimeSubtype: "parquet", FileExtension: "parquet"}
}

// bytesReaderAt adapts an in-memory buffer to io.ReaderAt, which
// parquet.OpenFile requires to seek the footer.
type bytesReaderAtImpl struct{ b []byte }

func bytesReaderAt(b []byte) io.ReaderAt { return bytesReaderAtImpl{b} }

func (r bytesReaderAtImpl) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(r.b)) {
		return 0, io.EOF
	}
	n := copy(p, r.b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
