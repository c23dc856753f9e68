package connector

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"

	"github.com/whitaker-io/chewdata/document"
	"github.com/whitaker-io/chewdata/record"
)

// Memory is the in_memory connector of spec.md §4.3: a process-local
// buffer, useful for tests and for passing data between pipeline steps
// without a real backend. Grounded on the teacher's common.Store
// context-scoped pattern for "a shared mutable cell behind a mutex".
type Memory struct {
	path string
	mu   *sync.Mutex
	buf  *bytes.Buffer
}

func init() {
	Register("in_memory", func(config map[string]interface{}) (Connector, error) {
		return &Memory{
			path: stringField(config, "path", "in_memory"),
			mu:   &sync.Mutex{},
			buf:  &bytes.Buffer{},
		}, nil
	})
}

// Path implements Connector.
func (m *Memory) Path() string { return m.path }

// SetParameters implements Connector: in_memory has no templated path.
func (m *Memory) SetParameters(rec *record.Record) error { return nil }

// IsVariable implements Connector.
func (m *Memory) IsVariable() bool { return false }

// Fetch implements Connector.
func (m *Memory) Fetch(ctx context.Context, doc document.Document) (<-chan *record.DataResult, error) {
	m.mu.Lock()
	snapshot := bytes.NewReader(m.buf.Bytes())
	m.mu.Unlock()

	out := make(chan *record.DataResult)
	go func() {
		defer close(out)
		for res := range doc.Decode(snapshot) {
			select {
			case out <- res:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Send implements Connector.
func (m *Memory) Send(ctx context.Context, doc document.Document, records []*record.Record, position *int64) error {
	var encoded bytes.Buffer
	if err := doc.EncodeHeader(&encoded); err != nil {
		return err
	}
	for _, rec := range records {
		if err := doc.EncodeRecord(&encoded, rec); err != nil {
			return err
		}
	}
	if err := doc.EncodeFooter(&encoded); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if position != nil {
		b := m.buf.Bytes()
		if int64(len(b)) < *position {
			pad := make([]byte, *position-int64(len(b)))
			b = append(b, pad...)
		}
		b = append(append([]byte(nil), b[:*position]...), encoded.Bytes()...)
		m.buf.Reset()
		_, err := m.buf.Write(b)
		return err
	}
	_, err := m.buf.Write(encoded.Bytes())
	return err
}

// Erase implements Connector.
func (m *Memory) Erase(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf.Reset()
	return nil
}

// Len implements Connector.
func (m *Memory) Len(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(m.buf.Len()), nil
}

// IsEmpty implements Connector.
func (m *Memory) IsEmpty(ctx context.Context) (bool, error) {
	n, _ := m.Len(ctx)
	return n == 0, nil
}

// Paginator implements Connector.
func (m *Memory) Paginator() (Paginator, error) { return NewOncePaginator(m), nil }

// CloneBox implements Connector. Memory intentionally shares its buffer
// and mutex across clones: it models a single logical in-process channel
// that every worker writes into and reads from, not an independent copy
// per worker.
func (m *Memory) CloneBox() Connector {
	return &Memory{path: m.path, mu: m.mu, buf: m.buf}
}

// Metadata implements Connector.
func (m *Memory) Metadata() Metadata { return Metadata{MimeSubtype: "text", Path: m.path} }

// CLI is the stdin/stdout connector of spec.md §4.3 ("in_memory / cli /
// io"): Fetch reads os.Stdin, Send writes os.Stdout.
type CLI struct{}

func init() {
	Register("cli", func(config map[string]interface{}) (Connector, error) {
		return &CLI{}, nil
	})
}

// Path implements Connector.
func (c *CLI) Path() string { return "stdio" }

// SetParameters implements Connector.
func (c *CLI) SetParameters(rec *record.Record) error { return nil }

// IsVariable implements Connector.
func (c *CLI) IsVariable() bool { return false }

// Fetch implements Connector, reading from os.Stdin.
func (c *CLI) Fetch(ctx context.Context, doc document.Document) (<-chan *record.DataResult, error) {
	out := make(chan *record.DataResult)
	go func() {
		defer close(out)
		for res := range doc.Decode(os.Stdin) {
			select {
			case out <- res:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Send implements Connector, writing to os.Stdout.
func (c *CLI) Send(ctx context.Context, doc document.Document, records []*record.Record, position *int64) error {
	return writeAll(os.Stdout, doc, records)
}

func writeAll(w io.Writer, doc document.Document, records []*record.Record) error {
	if err := doc.EncodeHeader(w); err != nil {
		return err
	}
	for _, rec := range records {
		if err := doc.EncodeRecord(w, rec); err != nil {
			return err
		}
	}
	return doc.EncodeFooter(w)
}

// Erase implements Connector: stdio cannot be truncated.
func (c *CLI) Erase(ctx context.Context) error { return nil }

// Len implements Connector: stdio has no meaningful size.
func (c *CLI) Len(ctx context.Context) (int64, error) { return 0, nil }

// IsEmpty implements Connector.
func (c *CLI) IsEmpty(ctx context.Context) (bool, error) { return false, nil }

// Paginator implements Connector.
func (c *CLI) Paginator() (Paginator, error) { return NewOncePaginator(c), nil }

// CloneBox implements Connector.
func (c *CLI) CloneBox() Connector { return &CLI{} }

// Metadata implements Connector.
func (c *CLI) Metadata() Metadata { return Metadata{MimeSubtype: "text", Path: "stdio"} }
