package step

import (
	"context"
	"testing"
	"time"

	"github.com/whitaker-io/chewdata/connector"
	"github.com/whitaker-io/chewdata/document"
	"github.com/whitaker-io/chewdata/record"
	"github.com/whitaker-io/chewdata/updater"
)

func drain(ch <-chan *record.DataResult) []*record.DataResult {
	var out []*record.DataResult
	for res := range ch {
		out = append(out, res)
	}
	return out
}

func runStep(t *testing.T, s Step, inputs []*record.DataResult) []*record.DataResult {
	t.Helper()
	in := make(chan *record.DataResult, len(inputs))
	for _, res := range inputs {
		in <- res
	}
	close(in)

	out := make(chan *record.DataResult)
	done := make(chan []*record.DataResult, 1)
	go func() { done <- drain(out) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Run(ctx, in, out)

	return <-done
}

func TestReaderEmitsRecordsFromConnector(t *testing.T) {
	conn, err := connector.New("in_memory", map[string]interface{}{"path": "mem"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	doc, _ := document.New("jsonl")

	rec := record.NewMap()
	rec.Set("v", record.NewInt(1))
	if err := conn.Send(context.Background(), doc, []*record.Record{rec}, nil); err != nil {
		t.Fatalf("seed Send: %v", err)
	}

	r := &Reader{
		Common: Common{AliasName: "r1", Upstreams: NewUpstreams()},
		Conn:   conn,
		Doc:    doc,
	}

	results := runStep(t, r, nil)
	if len(results) != 1 || !results[0].IsOk() {
		t.Fatalf("expected one ok result, got %#v", results)
	}
	if got := r.Upstreams.Context(record.NewMap()).StepOutput("r1"); got == nil {
		t.Fatal("expected reader to publish its alias")
	}
}

// fakeParamConnector records every SetParameters call and, on Fetch,
// emits a single record carrying the id it was last parameterized with --
// enough to prove whether a Reader issues one fetch pass per external
// input record rather than one pass using only the last.
type fakeParamConnector struct {
	calls *[]string
}

func (f *fakeParamConnector) Path() string { return "" }

func (f *fakeParamConnector) SetParameters(rec *record.Record) error {
	*f.calls = append(*f.calls, rec.MapGet("id").String())
	return nil
}

func (f *fakeParamConnector) IsVariable() bool { return true }

func (f *fakeParamConnector) Fetch(ctx context.Context, doc document.Document) (<-chan *record.DataResult, error) {
	id := ""
	if n := len(*f.calls); n > 0 {
		id = (*f.calls)[n-1]
	}
	rec := record.NewMap()
	rec.Set("fetched_for", record.NewString(id))

	out := make(chan *record.DataResult, 1)
	out <- record.Ok(rec)
	close(out)
	return out, nil
}

func (f *fakeParamConnector) Send(ctx context.Context, doc document.Document, records []*record.Record, position *int64) error {
	return nil
}

func (f *fakeParamConnector) Erase(ctx context.Context) error { return nil }

func (f *fakeParamConnector) Len(ctx context.Context) (int64, error) { return 0, nil }

func (f *fakeParamConnector) IsEmpty(ctx context.Context) (bool, error) { return true, nil }

func (f *fakeParamConnector) Paginator() (connector.Paginator, error) {
	return connector.NewOncePaginator(f), nil
}

func (f *fakeParamConnector) CloneBox() connector.Connector { return f }

func (f *fakeParamConnector) Metadata() connector.Metadata { return connector.Metadata{} }

func TestReaderRunsOneFetchPassPerExternalInputRecord(t *testing.T) {
	doc, _ := document.New("jsonl")
	calls := []string{}
	conn := &fakeParamConnector{calls: &calls}

	r := &Reader{
		Common: Common{AliasName: "r2", Upstreams: NewUpstreams()},
		Conn:   conn,
		Doc:    doc,
	}

	id1 := record.NewMap()
	id1.Set("id", record.NewString("a"))
	id2 := record.NewMap()
	id2.Set("id", record.NewString("b"))

	results := runStep(t, r, []*record.DataResult{record.Ok(id1), record.Ok(id2)})

	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Fatalf("expected set_parameters called once per input record with id a then b, got %#v", calls)
	}

	var fetched []string
	for _, res := range results {
		if res.IsOk() {
			if f := res.Record().MapGet("fetched_for"); f != nil {
				fetched = append(fetched, f.String())
			}
		}
	}
	if len(fetched) != 2 || fetched[0] != "a" || fetched[1] != "b" {
		t.Fatalf("expected one fetch pass per input record (a then b), got %#v", fetched)
	}
}

func TestWriterBatchesAndFlushesOnRecordSize(t *testing.T) {
	conn, err := connector.New("in_memory", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	doc, _ := document.New("jsonl")

	w := &Writer{
		Common:          Common{AliasName: "w1", Upstreams: NewUpstreams(), Type: DataTypeBoth},
		Conn:            conn,
		Doc:             doc,
		BatchRecordSize: 2,
	}

	r1 := record.NewMap()
	r1.Set("v", record.NewInt(1))
	r2 := record.NewMap()
	r2.Set("v", record.NewInt(2))

	results := runStep(t, w, []*record.DataResult{record.Ok(r1), record.Ok(r2)})
	if len(results) != 2 {
		t.Fatalf("expected writer to forward both inputs unchanged, got %d", len(results))
	}

	n, err := conn.Len(context.Background())
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n == 0 {
		t.Fatal("expected writer to have flushed into the connector's buffer")
	}
}

func TestTransformerAppliesActions(t *testing.T) {
	tr := &Transformer{
		Common:  Common{AliasName: "t1", Upstreams: NewUpstreams()},
		Updater: updater.New(),
		Actions: []updater.Action{
			{Field: "/greeting", Pattern: "hello {{ input.name }}", ActionType: updater.ActionReplace},
		},
	}

	rec := record.NewMap()
	rec.Set("name", record.NewString("world"))

	results := runStep(t, tr, []*record.DataResult{record.Ok(rec)})
	if len(results) != 1 || !results[0].IsOk() {
		t.Fatalf("expected one ok result, got %#v", results)
	}
	if got := results[0].Record().MapGet("greeting").String(); got != "hello world" {
		t.Fatalf("greeting = %q, want %q", got, "hello world")
	}
}

func TestTransformerThrowProducesErr(t *testing.T) {
	tr := &Transformer{
		Common:  Common{AliasName: "t2", Upstreams: NewUpstreams()},
		Updater: updater.New(),
		Actions: []updater.Action{
			{Field: "/x", Pattern: `{{ throw(message="nope") }}`, ActionType: updater.ActionReplace},
		},
	}

	results := runStep(t, tr, []*record.DataResult{record.Ok(record.NewMap())})
	if len(results) != 1 || !results[0].IsErr() {
		t.Fatalf("expected one err result, got %#v", results)
	}
	if results[0].Error().Kind != record.ErrorKindTemplateFailed {
		t.Fatalf("expected ErrorKindTemplateFailed, got %v", results[0].Error().Kind)
	}
}

func TestEraserCallsEraseOnce(t *testing.T) {
	conn, err := connector.New("in_memory", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	doc, _ := document.New("jsonl")
	rec := record.NewMap()
	rec.Set("v", record.NewInt(1))
	_ = conn.Send(context.Background(), doc, []*record.Record{rec}, nil)

	e := &Eraser{Common: Common{AliasName: "e1", Upstreams: NewUpstreams()}, Conn: conn}
	runStep(t, e, nil)

	n, _ := conn.Len(context.Background())
	if n != 0 {
		t.Fatalf("expected eraser to truncate the connector, got len=%d", n)
	}
}

func TestGeneratorEmitsSizeRecords(t *testing.T) {
	g := &Generator{Common: Common{AliasName: "g1", Upstreams: NewUpstreams()}, Size: 3}
	results := runStep(t, g, nil)
	if len(results) != 3 {
		t.Fatalf("expected 3 generated records, got %d", len(results))
	}
}

func TestValidatorFailsOnFalsyRule(t *testing.T) {
	v := &Validator{
		Common:  Common{AliasName: "v1", Upstreams: NewUpstreams()},
		Updater: updater.New(),
		Rules: map[string]Rule{
			"has_name": {Pattern: "{{ input.name }}", Message: "name is required"},
		},
	}

	withName := record.NewMap()
	withName.Set("name", record.NewString("a"))
	withoutName := record.NewMap()

	results := runStep(t, v, []*record.DataResult{record.Ok(withName), record.Ok(withoutName)})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	var sawOk, sawErr bool
	for _, res := range results {
		if res.IsOk() {
			sawOk = true
		}
		if res.IsErr() {
			sawErr = true
			if res.Error().Kind != record.ErrorKindValidationFailed {
				t.Fatalf("expected ErrorKindValidationFailed, got %v", res.Error().Kind)
			}
		}
	}
	if !sawOk || !sawErr {
		t.Fatalf("expected one ok and one err result, got %#v", results)
	}
}
