package document

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whitaker-io/chewdata/record"
)

func drain(t *testing.T, d Document, r *strings.Reader) []*record.DataResult {
	t.Helper()
	var out []*record.DataResult
	for res := range d.Decode(r) {
		out = append(out, res)
	}
	return out
}

func TestNewUnknownFormat(t *testing.T) {
	_, err := New("carrier-pigeon")
	require.Error(t, err)
}

func TestJSONRoundTrip(t *testing.T) {
	doc, err := New("json")
	require.NoError(t, err)

	results := drain(t, doc, strings.NewReader(`[{"a":1},{"b":"two"}]`))
	require.Len(t, results, 2)
	assert.True(t, results[0].IsOk())
	assert.Equal(t, int64(1), results[0].Record().MapGet("a").Int())

	var buf bytes.Buffer
	require.NoError(t, doc.EncodeHeader(&buf))
	for _, res := range results {
		require.NoError(t, doc.EncodeRecord(&buf, res.Record()))
	}
	require.NoError(t, doc.EncodeFooter(&buf))
	assert.Equal(t, `[{"a":1},{"b":"two"}]`, buf.String())
}

func TestJSONEntryPath(t *testing.T) {
	doc, err := New("json", WithEntryPath("/data"))
	require.NoError(t, err)
	results := drain(t, doc, strings.NewReader(`{"data":[{"x":1},{"x":2}],"meta":"ignored"}`))
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].Record().MapGet("x").Int())
}

func TestJSONLMalformedLineContinuesStream(t *testing.T) {
	doc, err := New("jsonl")
	require.NoError(t, err)
	results := drain(t, doc, strings.NewReader("{\"a\":1}\nnot-json\n"))
	require.Len(t, results, 2)
	assert.True(t, results[0].IsOk())
	assert.True(t, results[1].IsErr())
}

func TestCSVHeaderRoundTrip(t *testing.T) {
	doc, err := New("csv")
	require.NoError(t, err)

	results := drain(t, doc, strings.NewReader("name,age\nava,30\nben,40\n"))
	require.Len(t, results, 2)
	assert.Equal(t, "ava", results[0].Record().MapGet("name").String())
	assert.Equal(t, "30", results[0].Record().MapGet("age").String())

	var buf bytes.Buffer
	require.NoError(t, doc.EncodeHeader(&buf))
	for _, res := range results {
		require.NoError(t, doc.EncodeRecord(&buf, res.Record()))
	}
	require.NoError(t, doc.EncodeFooter(&buf))
	assert.Equal(t, "name,age\nava,30\nben,40\n", buf.String())
}

func TestYAMLMultiDocument(t *testing.T) {
	doc, err := New("yaml")
	require.NoError(t, err)

	results := drain(t, doc, strings.NewReader("a: 1\n---\nb: 2\n"))
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].Record().MapGet("a").Int())
	assert.Equal(t, int64(2), results[1].Record().MapGet("b").Int())

	var buf bytes.Buffer
	require.NoError(t, doc.EncodeHeader(&buf))
	for _, res := range results {
		require.NoError(t, doc.EncodeRecord(&buf, res.Record()))
	}
	require.NoError(t, doc.EncodeFooter(&buf))
	assert.Contains(t, buf.String(), "---\n")
}

func TestTOMLSingleRecord(t *testing.T) {
	doc, err := New("toml")
	require.NoError(t, err)

	results := drain(t, doc, strings.NewReader("title = \"chewdata\"\n\n[owner]\nname = \"ava\"\n"))
	require.Len(t, results, 1)
	assert.Equal(t, "chewdata", results[0].Record().MapGet("title").String())
	assert.Equal(t, "ava", results[0].Record().MapGet("owner").MapGet("name").String())
}

func TestXMLEntryPath(t *testing.T) {
	doc, err := New("xml", WithEntryPath("/root/items/item"))
	require.NoError(t, err)

	results := drain(t, doc, strings.NewReader(`<root><items><item><name>ava</name></item><item><name>ben</name></item></items></root>`))
	require.Len(t, results, 2)
	assert.Equal(t, "ava", results[0].Record().MapGet("name").String())
}

func TestTextWholeStreamBecomesOneRecord(t *testing.T) {
	doc, err := New("text")
	require.NoError(t, err)

	results := drain(t, doc, strings.NewReader("hello\nworld"))
	require.Len(t, results, 1)
	assert.Equal(t, "hello\nworld", results[0].Record().MapGet("input").String())
}

func TestCSVEncodeWritesHeaderBeforeFirstRow(t *testing.T) {
	doc, err := New("csv")
	require.NoError(t, err)

	rec := record.NewMap().Set("a", record.NewString("1"))
	var buf bytes.Buffer
	require.NoError(t, doc.EncodeRecord(&buf, rec))
	assert.Contains(t, buf.String(), "a\n1\n")
}
