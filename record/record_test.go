package record

import "testing"

func TestGetPointerWildcardAndIndex(t *testing.T) {
	root := NewMap()
	root.Set("a", NewArray(NewInt(1), NewInt(2), NewInt(3)))
	root.Set("b", NewMap().Set("c", NewString("hello")))

	if got := root.Get("/a/1").Int(); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if got := root.Get("/b/c").String(); got != "hello" {
		t.Fatalf("expected hello, got %q", got)
	}
	if got := root.Get("/b/*").String(); got != "hello" {
		t.Fatalf("wildcard should resolve to hello, got %q", got)
	}
	if got := root.Get("/missing"); got != nil {
		t.Fatalf("expected nil for missing pointer, got %v", got)
	}
}

func TestMergeRules(t *testing.T) {
	left := NewMap().Set("a", NewInt(1)).Set("b", NewMap().Set("x", NewInt(1)))
	right := NewMap().Set("a", NewInt(2)).Set("b", NewMap().Set("y", NewInt(2)))

	merged := left.Merge(right)

	if merged.Get("/a").Int() != 2 {
		t.Fatalf("scalar merge should replace with right operand")
	}
	if merged.Get("/b/x").Int() != 1 || merged.Get("/b/y").Int() != 2 {
		t.Fatalf("map merge should union keys")
	}

	seqA := NewArray(NewInt(1), NewInt(2))
	seqB := NewArray(NewInt(3))
	merged2 := seqA.Merge(seqB)
	if len(merged2.Array()) != 3 {
		t.Fatalf("sequence merge should concatenate, got %d elements", len(merged2.Array()))
	}

	// left is untouched (Merge must not mutate either operand).
	if len(left.Get("/b").Keys()) != 1 {
		t.Fatalf("merge must not mutate its left operand")
	}
}

func TestMergeInIdempotent(t *testing.T) {
	r := NewMap()
	r = r.MergeIn("/a/b/c", NewString("v"))
	first := r.Get("/a/b/c").String()
	r = r.MergeIn("/a/b/c", NewString("v"))
	second := r.Get("/a/b/c").String()

	if first != "v" || second != "v" {
		t.Fatalf("merge_in should be idempotent for the same pointer/value")
	}
	if len(r.Get("/a/b").Keys()) != 1 {
		t.Fatalf("merge_in should not duplicate keys on repeated calls")
	}
}

func TestDataResultErrInjectsErrorField(t *testing.T) {
	rec := NewMap().Set("n", NewInt(10))
	dr := Err(rec, NewError(ErrorKindTemplateFailed, "boom %d", 10))

	out := dr.ToRecord()
	if out.Get("/_error") == nil {
		t.Fatalf("expected _error to be injected at the document root")
	}
	if rec.Get("/_error") != nil {
		t.Fatalf("ToRecord must not mutate the original record")
	}
}

func TestCloneIndependence(t *testing.T) {
	original := NewMap().Set("a", NewArray(NewInt(1)))
	clone := original.Clone()
	clone.Get("/a").Append(NewInt(2))

	if len(original.Get("/a").Array()) != 1 {
		t.Fatalf("mutating a clone must not affect the original")
	}
	if len(clone.Get("/a").Array()) != 2 {
		t.Fatalf("expected the clone's append to apply to the clone")
	}
}

func TestEqualCoercesNumericWidth(t *testing.T) {
	if !Equal(NewInt(3), NewFloat(3.0)) {
		t.Fatalf("Equal should compare int/float in their widest representation")
	}
	if Equal(NewInt(3), NewString("3")) {
		t.Fatalf("Equal should not coerce string to number")
	}
}

func TestToInterfaceFromInterfaceRoundTrip(t *testing.T) {
	src := map[string]interface{}{
		"a": int64(1),
		"b": "two",
		"c": []interface{}{int64(3), int64(4)},
	}
	r := FromInterface(src)
	back := r.ToInterface().(map[string]interface{})

	if back["a"] != int64(1) || back["b"] != "two" {
		t.Fatalf("round trip mismatch: %#v", back)
	}
}
