package document

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/whitaker-io/chewdata/record"
)

// JSON implements Document for a single JSON value per spec.md §4.2: the
// root may be an object (one record) or an array (each element auto-streams
// as its own record).
type JSON struct {
	EntryPath string
	started   bool
}

// SetEntryPath implements EntryPathed.
func (j *JSON) SetEntryPath(pointer string) { j.EntryPath = pointer }

// Decode implements Document.
func (j *JSON) Decode(r io.Reader) <-chan *record.DataResult {
	out := make(chan *record.DataResult)
	go func() {
		defer close(out)

		dec := json.NewDecoder(r)
		var raw interface{}
		if err := dec.Decode(&raw); err != nil {
			if err == io.EOF {
				return
			}
			out <- decodeErr(nil, err)
			return
		}

		root := record.FromInterface(raw)
		if j.EntryPath != "" {
			root = root.Get(j.EntryPath)
		}

		if root != nil && root.Kind() == record.KindArray {
			for _, elem := range root.Array() {
				out <- record.Ok(elem)
			}
			return
		}
		out <- record.Ok(root)
	}()
	return out
}

// EncodeHeader implements Document: a JSON document always streams as an
// array so that 0, 1, or N records all produce valid JSON.
func (j *JSON) EncodeHeader(w io.Writer) error {
	j.started = false
	_, err := w.Write([]byte("["))
	return err
}

// EncodeRecord implements Document.
func (j *JSON) EncodeRecord(w io.Writer, rec *record.Record) error {
	target := rec
	if j.EntryPath != "" {
		target = record.NewMap().MergeIn(j.EntryPath, rec)
	}
	bytez, err := json.Marshal(orderedValue(target))
	if err != nil {
		return err
	}
	if j.started {
		if _, err := w.Write([]byte(",")); err != nil {
			return err
		}
	}
	j.started = true
	_, err = w.Write(bytez)
	return err
}

// EncodeFooter implements Document.
func (j *JSON) EncodeFooter(w io.Writer) error {
	_, err := w.Write([]byte("]"))
	return err
}

// Metadata implements Document.
func (j *JSON) Metadata() Metadata {
	return Metadata{MimeType: "application", MimeSubtype: "json", FileExtension: "json"}
}

// orderedValue renders a Record to a json.Marshaler-friendly value that
// keeps map key order by marshaling through a json.RawMessage chain built
// manually for map nodes, since encoding/json does not otherwise preserve
// map[string]interface{} iteration order.
func orderedValue(r *record.Record) interface{} {
	if r.IsNull() {
		return nil
	}
	switch r.Kind() {
	case record.KindMap:
		return orderedMap{r}
	case record.KindArray:
		out := make([]interface{}, 0, len(r.Array()))
		for _, v := range r.Array() {
			out = append(out, orderedValue(v))
		}
		return out
	default:
		return r.ToInterface()
	}
}

// orderedMap wraps a map-kind Record so its json.Marshal output preserves
// key insertion order, which plain map[string]interface{} cannot guarantee.
type orderedMap struct{ r *record.Record }

// MarshalJSON implements json.Marshaler, writing keys in the Record's
// recorded insertion order.
func (m orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.r.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(orderedValue(m.r.MapGet(k)))
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
