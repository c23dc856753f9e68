package connector

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/whitaker-io/chewdata/document"
	"github.com/whitaker-io/chewdata/record"
	"github.com/whitaker-io/chewdata/updater"
)

// Local is the filesystem connector of spec.md §4.3: glob expansion on
// read, append-or-truncate on write. Grounded on the teacher's
// loader.go file-based VertexSerialization loader, generalized from
// "load one config file" to the full Connector contract.
type Local struct {
	path     string
	rendered string
	truncate bool
	updater  *updater.Updater
}

func init() {
	Register("local", func(config map[string]interface{}) (Connector, error) {
		return &Local{
			path:     stringField(config, "path", ""),
			truncate: boolField(config, "truncate", false),
			updater:  updater.New(),
		}, nil
	})
}

// Path implements Connector.
func (l *Local) Path() string {
	if l.rendered != "" {
		return l.rendered
	}
	return l.path
}

// SetParameters implements Connector.
func (l *Local) SetParameters(rec *record.Record) error {
	if !l.IsVariable() {
		return nil
	}
	ctx := record.NewContext(rec)
	rendered, err := l.updater.Render(l.path, ctx)
	if err != nil {
		return err
	}
	l.rendered = rendered
	return nil
}

// IsVariable implements Connector.
func (l *Local) IsVariable() bool { return updater.IsVariable(l.path) }

// Fetch implements Connector. Glob expansion means a single Local
// connector can fan out over multiple matching files; each file's
// records are emitted in turn on the same channel.
func (l *Local) Fetch(ctx context.Context, doc document.Document) (<-chan *record.DataResult, error) {
	matches, err := filepath.Glob(l.Path())
	if err != nil {
		return nil, record.NewError(record.ErrorKindConnectorUnavailable, "local: glob %q: %v", l.Path(), err)
	}
	if len(matches) == 0 {
		matches = []string{l.Path()}
	}

	out := make(chan *record.DataResult)
	go func() {
		defer close(out)
		for _, path := range matches {
			f, err := os.Open(path)
			if err != nil {
				select {
				case out <- record.Err(record.NewMap(), record.NewError(record.ErrorKindConnectorUnavailable, "local: open %q: %v", path, err)):
				case <-ctx.Done():
					return
				}
				continue
			}
			for res := range doc.Decode(f) {
				select {
				case out <- res:
				case <-ctx.Done():
					f.Close()
					return
				}
			}
			f.Close()
		}
	}()
	return out, nil
}

// Send implements Connector.
func (l *Local) Send(ctx context.Context, doc document.Document, records []*record.Record, position *int64) error {
	flags := os.O_CREATE
	if position != nil {
		flags |= os.O_RDWR
	} else if l.truncate {
		flags |= os.O_WRONLY | os.O_TRUNC
	} else {
		flags |= os.O_WRONLY | os.O_APPEND
	}

	f, err := os.OpenFile(l.Path(), flags, 0o644)
	if err != nil {
		return record.NewError(record.ErrorKindConnectorUnavailable, "local: open %q: %v", l.Path(), err)
	}
	defer f.Close()

	if position != nil {
		if _, err := f.Seek(*position, io.SeekStart); err != nil {
			return record.NewError(record.ErrorKindConnectorUnavailable, "local: seek: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := doc.EncodeHeader(&buf); err != nil {
		return err
	}
	for _, rec := range records {
		if err := doc.EncodeRecord(&buf, rec); err != nil {
			return err
		}
	}
	if err := doc.EncodeFooter(&buf); err != nil {
		return err
	}
	_, err = f.Write(buf.Bytes())
	return err
}

// Erase implements Connector; a missing file is not an error.
func (l *Local) Erase(ctx context.Context) error {
	err := os.Remove(l.Path())
	if err != nil && !os.IsNotExist(err) {
		return record.NewError(record.ErrorKindConnectorUnavailable, "local: erase %q: %v", l.Path(), err)
	}
	return nil
}

// Len implements Connector.
func (l *Local) Len(ctx context.Context) (int64, error) {
	info, err := os.Stat(l.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}

// IsEmpty implements Connector.
func (l *Local) IsEmpty(ctx context.Context) (bool, error) {
	n, err := l.Len(ctx)
	return n == 0, err
}

// Paginator implements Connector.
func (l *Local) Paginator() (Paginator, error) {
	return NewOncePaginator(l), nil
}

// CloneBox implements Connector.
func (l *Local) CloneBox() Connector {
	clone := *l
	clone.updater = updater.New()
	return &clone
}

// Metadata implements Connector.
func (l *Local) Metadata() Metadata {
	return Metadata{MimeSubtype: mimeFromExtension(l.Path()), Path: l.Path()}
}

func mimeFromExtension(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	switch ext {
	case "yml":
		return "yaml"
	case "":
		return "text"
	default:
		return ext
	}
}
