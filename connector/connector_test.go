package connector

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/whitaker-io/chewdata/document"
	"github.com/whitaker-io/chewdata/record"
)

func drainConnector(t *testing.T, ch <-chan *record.DataResult) []*record.DataResult {
	t.Helper()
	var out []*record.DataResult
	for res := range ch {
		out = append(out, res)
	}
	return out
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	Register("local", func(config map[string]interface{}) (Connector, error) { return nil, nil })
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New("does-not-exist", nil)
	if err == nil {
		t.Fatal("expected error for unknown connector kind")
	}
	info, ok := err.(*record.ErrorInfo)
	if !ok || info.Kind != record.ErrorKindConfigInvalid {
		t.Fatalf("expected ErrorKindConfigInvalid, got %v", err)
	}
}

func TestLocalConnectorRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")

	conn, err := New("local", map[string]interface{}{"path": path, "truncate": true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	local := conn.(*Local)

	doc, err := document.New("json")
	if err != nil {
		t.Fatalf("document.New: %v", err)
	}

	rec := record.NewMap()
	rec.Set("name", record.NewString("sprocket"))
	if err := local.Send(context.Background(), doc, []*record.Record{rec}, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	out, err := local.Fetch(context.Background(), doc)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	results := drainConnector(t, out)
	if len(results) != 1 || !results[0].IsOk() {
		t.Fatalf("expected one ok result, got %#v", results)
	}
	if got := results[0].Record().MapGet("name").String(); got != "sprocket" {
		t.Fatalf("name = %q, want sprocket", got)
	}
}

func TestLocalConnectorEraseMissingIsNotError(t *testing.T) {
	dir := t.TempDir()
	conn, err := New("local", map[string]interface{}{"path": filepath.Join(dir, "missing.json")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := conn.Erase(context.Background()); err != nil {
		t.Fatalf("Erase on missing file should not error, got %v", err)
	}
}

func TestLocalConnectorGlobFanOut(t *testing.T) {
	dir := t.TempDir()
	for i, name := range []string{"a.json", "b.json"} {
		content := []byte(`{"n":` + string(rune('0'+i)) + `}`)
		if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	conn, err := New("local", map[string]interface{}{"path": filepath.Join(dir, "*.json")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	doc, _ := document.New("json")
	out, err := conn.Fetch(context.Background(), doc)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	results := drainConnector(t, out)
	if len(results) != 2 {
		t.Fatalf("expected 2 records from glob fan-out, got %d", len(results))
	}
}

func TestInMemoryConnectorSharesBufferAcrossClones(t *testing.T) {
	conn, err := New("in_memory", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	doc, _ := document.New("jsonl")

	rec := record.NewMap()
	rec.Set("v", record.NewInt(1))
	if err := conn.Send(context.Background(), doc, []*record.Record{rec}, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	clone := conn.CloneBox()
	out, err := clone.Fetch(context.Background(), doc)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	results := drainConnector(t, out)
	if len(results) != 1 {
		t.Fatalf("expected clone to observe the shared buffer, got %d records", len(results))
	}
}

func TestOncePaginatorYieldsExactlyOnce(t *testing.T) {
	conn, err := New("in_memory", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p := NewOncePaginator(conn)

	_, ok, err := p.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected first Next to yield, got ok=%v err=%v", ok, err)
	}
	_, ok, err = p.Next(context.Background())
	if err != nil || ok {
		t.Fatalf("expected second Next to be exhausted, got ok=%v err=%v", ok, err)
	}
}

func TestOffsetPaginatorAdvancesWithKnownCount(t *testing.T) {
	conn, err := New("in_memory", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	count := 25
	p := NewOffsetPaginator(conn, 10, &count, &ScanCounter{Conn: conn})

	if !p.IsParallelizable() {
		t.Fatal("expected offset paginator with known count to be parallelizable")
	}

	seen := 0
	for {
		_, ok, err := p.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		seen++
		if seen > 10 {
			t.Fatal("paginator did not terminate")
		}
	}
	if seen != 3 {
		t.Fatalf("expected ceil(25/10)=3 pages, got %d", seen)
	}
}

func TestCLIConnectorWritesStdoutCapturedBuffer(t *testing.T) {
	conn, err := New("cli", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	doc, _ := document.New("text")
	rec := record.NewMap()
	rec.Set("input", record.NewString("hello"))

	r, w, _ := os.Pipe()
	old := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = old }()

	err = conn.Send(context.Background(), doc, []*record.Record{rec}, nil)
	w.Close()
	os.Stdout = old
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	if buf.Len() == 0 {
		t.Fatal("expected CLI connector to write to stdout")
	}
}
