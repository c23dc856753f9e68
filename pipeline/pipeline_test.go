package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/whitaker-io/chewdata/connector"
	"github.com/whitaker-io/chewdata/document"
	"github.com/whitaker-io/chewdata/record"
	"github.com/whitaker-io/chewdata/step"
	"github.com/whitaker-io/chewdata/updater"
)

func TestExecGeneratorTransformerWriter(t *testing.T) {
	upstreams := step.NewUpstreams()
	conn, err := connector.New("in_memory", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	doc, _ := document.New("jsonl")

	gen := &step.Generator{Common: step.Common{AliasName: "g", Upstreams: upstreams}, Size: 3}
	tr := &step.Transformer{
		Common:  step.Common{AliasName: "t", Upstreams: upstreams, Type: step.DataTypeOk},
		Updater: updater.New(),
		Actions: []updater.Action{{Field: "/id", Pattern: "{{ uuid_v4() }}", ActionType: updater.ActionReplace}},
	}
	w := &step.Writer{Common: step.Common{AliasName: "w", Upstreams: upstreams}, Conn: conn, Doc: doc}

	out := make(chan *record.DataResult, 16)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := Exec(ctx, []step.Step{gen, tr, w}, nil, out); err != nil {
		t.Fatalf("Exec: %v", err)
	}

	var results []*record.DataResult
	for res := range out {
		results = append(results, res)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	seen := map[string]bool{}
	for _, res := range results {
		if !res.IsOk() {
			t.Fatalf("expected ok result, got %#v", res)
		}
		id := res.Record().MapGet("id").String()
		if id == "" || seen[id] {
			t.Fatalf("expected distinct non-empty id, got %q", id)
		}
		seen[id] = true
	}

	n, err := conn.Len(context.Background())
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n == 0 {
		t.Fatal("expected writer to have flushed into the connector")
	}
}

// TestExecRoutesErrToDedicatedWriter exercises the data_type routing half
// of spec.md §4.7: a transformer that throws on one record routes that
// record's Err to the writer declared data_type=err, while the other
// record reaches the writer declared data_type=ok. The json_encode
// root-replace idiom of spec.md §8 scenario 4 itself is covered by
// updater_test.go's TestApplyJSONEncodeRootReplaceStaysStructured.
func TestExecRoutesErrToDedicatedWriter(t *testing.T) {
	upstreams := step.NewUpstreams()
	doc, _ := document.New("jsonl")

	srcConn, _ := connector.New("in_memory", nil)
	rec1 := record.NewMap()
	rec1.Set("number", record.NewInt(5))
	rec2 := record.NewMap()
	rec2.Set("number", record.NewInt(10))
	if err := srcConn.Send(context.Background(), doc, []*record.Record{rec1, rec2}, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}

	reader := &step.Reader{Common: step.Common{AliasName: "r", Upstreams: upstreams}, Conn: srcConn, Doc: doc}
	tr := &step.Transformer{
		Common:  step.Common{AliasName: "t", Upstreams: upstreams, Type: step.DataTypeOk},
		Updater: updater.New(),
		Actions: []updater.Action{{
			Field:      "/flag",
			Pattern:    `{% if input.number == 10 %}{{ throw(message="x") }}{% else %}ok{% endif %}`,
			ActionType: updater.ActionReplace,
		}},
	}

	connA, _ := connector.New("in_memory", nil)
	connB, _ := connector.New("in_memory", nil)
	wOk := &step.Writer{Common: step.Common{AliasName: "wa", Upstreams: upstreams, Type: step.DataTypeOk}, Conn: connA, Doc: doc}
	wErr := &step.Writer{Common: step.Common{AliasName: "wb", Upstreams: upstreams, Type: step.DataTypeErr}, Conn: connB, Doc: doc}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := Exec(ctx, []step.Step{reader, tr, wOk, wErr}, nil, nil); err != nil {
		t.Fatalf("Exec: %v", err)
	}

	na, err := connA.Len(context.Background())
	if err != nil {
		t.Fatalf("Len A: %v", err)
	}
	nb, err := connB.Len(context.Background())
	if err != nil {
		t.Fatalf("Len B: %v", err)
	}
	if na == 0 {
		t.Fatal("expected the data_type=ok writer to receive the number=5 record")
	}
	if nb == 0 {
		t.Fatal("expected the data_type=err writer to receive the number=10 record")
	}
}

func TestExecRejectsEmptyStepList(t *testing.T) {
	if err := Exec(context.Background(), nil, nil, nil); err == nil {
		t.Fatal("expected an error for an empty step list")
	}
}
