package document

import (
	"io"

	"github.com/clbanning/mxj/v2"
	"github.com/whitaker-io/chewdata/record"
)

// XML implements Document over github.com/clbanning/mxj/v2, which maps
// attributes to `@name`-prefixed keys and text content to `#text`, giving
// the map-shaped Record model a direct home for both, per spec.md §4.2.
// entry_path is effectively required on decode: an XML document is one
// root element, so entry_path selects the repeating element that becomes
// the per-record stream.
type XML struct {
	EntryPath string
	RootTag   string
	started   bool
}

// SetEntryPath implements EntryPathed.
func (x *XML) SetEntryPath(pointer string) { x.EntryPath = pointer }

// Decode implements Document.
func (x *XML) Decode(r io.Reader) <-chan *record.DataResult {
	out := make(chan *record.DataResult)
	go func() {
		defer close(out)

		buf, err := io.ReadAll(r)
		if err != nil {
			out <- decodeErr(buf, err)
			return
		}
		if len(buf) == 0 {
			return
		}

		m, err := mxj.NewMapXml(buf)
		if err != nil {
			out <- decodeErr(buf, err)
			return
		}

		root := record.FromInterface(map[string]interface{}(m))
		if x.EntryPath != "" {
			root = root.Get(x.EntryPath)
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

// EncodeHeader implements Document, writing the XML declaration and opening
// root tag. RootTag defaults to "root" when unset.
func (x *XML) EncodeHeader(w io.Writer) error {
	x.started = false
	tag := x.rootTag()
	_, err := io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>`+"\n<"+tag+">")
	return err
}

func (x *XML) rootTag() string {
	if x.RootTag != "" {
		return x.RootTag
	}
	return "root"
}

// EncodeRecord implements Document.
func (x *XML) EncodeRecord(w io.Writer, rec *record.Record) error {
	target := rec
	if x.EntryPath != "" {
		target = record.NewMap().MergeIn(x.EntryPath, rec)
	}

	m := mxj.Map(asMap(target))
	bytez, err := m.XmlIndent("", "", "record")
	if err != nil {
		return err
	}
	_, err = w.Write(bytez)
	x.started = true
	return err
}

func asMap(r *record.Record) map[string]interface{} {
	if r == nil || r.Kind() != record.KindMap {
		return map[string]interface{}{"value": r.ToInterface()}
	}
	out, ok := r.ToInterface().(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return out
}

// EncodeFooter implements Document.
func (x *XML) EncodeFooter(w io.Writer) error {
	_, err := io.WriteString(w, "</"+x.rootTag()+">")
	return err
}

// Metadata implements Document.
func (x *XML) Metadata() Metadata {
	return Metadata{MimeType: "application", MimeSubtype: "xml", FileExtension: "xml"}
}
