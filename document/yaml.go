package document

import (
	"io"

	"github.com/whitaker-io/chewdata/record"
	"gopkg.in/yaml.v3"
)

// YAML implements Document over gopkg.in/yaml.v3, reusing the same
// dependency the teacher's own VertexSerialization Marshal/UnmarshalYAML
// methods already pull in. Multi-document streams (`---`-separated) decode
// to one record per document, per spec.md §4.2.
type YAML struct {
	EntryPath string
	started   bool
}

// SetEntryPath implements EntryPathed.
func (y *YAML) SetEntryPath(pointer string) { y.EntryPath = pointer }

// Decode implements Document.
func (y *YAML) Decode(r io.Reader) <-chan *record.DataResult {
	out := make(chan *record.DataResult)
	go func() {
		defer close(out)

		dec := yaml.NewDecoder(r)
		for {
			var node yaml.Node
			err := dec.Decode(&node)
			if err == io.EOF {
				return
			}
			if err != nil {
				out <- decodeErr(nil, err)
				return
			}

			var raw interface{}
			if err := node.Decode(&raw); err != nil {
				out <- decodeErr(nil, err)
				continue
			}

			rec := record.FromInterface(normalizeYAML(raw))
			if y.EntryPath != "" {
				rec = rec.Get(y.EntryPath)
			}
			out <- record.Ok(rec)
		}
	}()
	return out
}

// normalizeYAML converts the map[interface{}]interface{} shapes older YAML
// decoders can still surface through nested Decode calls into
// map[string]interface{}, which record.FromInterface expects.
func normalizeYAML(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, e := range val {
			out[k] = normalizeYAML(e)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, e := range val {
			if ks, ok := k.(string); ok {
				out[ks] = normalizeYAML(e)
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = normalizeYAML(e)
		}
		return out
	default:
		return val
	}
}

// EncodeHeader implements Document: YAML has no document-level bracketing,
// but successive documents are separated by `---`.
func (y *YAML) EncodeHeader(w io.Writer) error {
	y.started = false
	return nil
}

// EncodeRecord implements Document.
func (y *YAML) EncodeRecord(w io.Writer, rec *record.Record) error {
	target := rec
	if y.EntryPath != "" {
		target = record.NewMap().MergeIn(y.EntryPath, rec)
	}

	if y.started {
		if _, err := w.Write([]byte("---\n")); err != nil {
			return err
		}
	}
	y.started = true

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(target.ToInterface())
}

// EncodeFooter implements Document.
func (y *YAML) EncodeFooter(w io.Writer) error { return nil }

// Metadata implements Document.
func (y *YAML) Metadata() Metadata {
	return Metadata{MimeType: "application", MimeSubtype: "yaml", FileExtension: "yaml"}
}
