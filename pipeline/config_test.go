package pipeline

import "testing"

func TestBuildGeneratorWriter(t *testing.T) {
	cfg := []byte(`[
		{"type": "generator", "size": 2, "alias": "g"},
		{"type": "w", "alias": "w", "connector": {"type": "in_memory"}, "document": {"type": "jsonl"}}
	]`)

	steps, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
}

func TestBuildRejectsConflictingConcurrencyFields(t *testing.T) {
	cfg := []byte(`[{"type": "generator", "size": 1, "threads": 2, "concurrency_limit": 4}]`)
	if _, err := Build(cfg); err == nil {
		t.Fatal("expected a ConfigInvalid error for conflicting threads/concurrency_limit")
	}
}

func TestBuildSkipsDisabledStep(t *testing.T) {
	cfg := []byte(`[{"type": "generator", "size": 1, "enable": false}]`)
	steps, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(steps) != 0 {
		t.Fatalf("expected the disabled step to be skipped, got %d", len(steps))
	}
}

func TestBuildRejectsUnknownType(t *testing.T) {
	cfg := []byte(`[{"type": "bogus"}]`)
	if _, err := Build(cfg); err == nil {
		t.Fatal("expected a ConfigInvalid error for an unknown step type")
	}
}

func TestBuildRejectsMissingConnector(t *testing.T) {
	cfg := []byte(`[{"type": "w", "document": {"type": "jsonl"}}]`)
	if _, err := Build(cfg); err == nil {
		t.Fatal("expected a ConfigInvalid error for a writer missing its connector")
	}
}

func TestBuildValidatorAndTransformer(t *testing.T) {
	cfg := []byte(`[
		{"type": "generator", "size": 1},
		{"type": "t", "actions": [{"field": "/id", "pattern": "{{ uuid_v4() }}", "type": "replace"}]},
		{"type": "v", "rules": {"has_id": {"pattern": "{{ output.id }}", "message": "id required"}}},
		{"type": "w", "connector": {"type": "in_memory"}}
	]`)

	steps, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(steps))
	}
}

func TestInterpolateEnvExpandsKnownVar(t *testing.T) {
	t.Setenv("CHEWDATA_TEST_PATH", "/tmp/x")
	out := interpolateEnv([]byte(`{"path": "{{ CHEWDATA_TEST_PATH }}"}`))
	if string(out) != `{"path": "/tmp/x"}` {
		t.Fatalf("unexpected interpolation result: %s", out)
	}
}

func TestInterpolateEnvLeavesUnknownVarUntouched(t *testing.T) {
	out := interpolateEnv([]byte(`{"path": "{{ CHEWDATA_DOES_NOT_EXIST }}"}`))
	if string(out) != `{"path": "{{ CHEWDATA_DOES_NOT_EXIST }}"}` {
		t.Fatalf("expected unknown var to be left as-is, got %s", out)
	}
}
