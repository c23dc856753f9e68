package updater

import (
	"encoding/json"
	"strings"

	"github.com/whitaker-io/chewdata/record"
)

// ActionType is the kind of mutation an Action applies at its field.
type ActionType string

// The action types spec.md §4.5 defines.
const (
	ActionMerge   ActionType = "merge"
	ActionReplace ActionType = "replace"
	ActionRemove  ActionType = "remove"
)

// Action is one templated mutation a transformer step applies to a
// record's output, per spec.md §4.5.
type Action struct {
	Field      string
	Pattern    string
	ActionType ActionType
}

// Apply clones input into a new output record, evaluates each action in
// declared order against u, and applies it at its Field. A throw inside
// any action's Pattern aborts the remaining actions and returns the
// resulting error so the caller can yield an Err DataResult for this
// record, per spec.md §4.5.
func Apply(u *Updater, input *record.Record, actions []Action, ctx *record.Context) (*record.Record, error) {
	output := input.Clone()
	ctx.SetOutput(output)

	for _, a := range actions {
		rendered, err := u.Render(a.Pattern, ctx)
		if err != nil {
			return nil, err
		}

		value := renderedValue(rendered)

		switch a.ActionType {
		case ActionRemove:
			removeAt(output, a.Field)
		case ActionReplace:
			output = output.MergeIn(a.Field, value)
		default:
			existing := output.Get(a.Field)
			merged := existing.Merge(value)
			output = output.MergeIn(a.Field, merged)
		}
		ctx.SetOutput(output)
	}

	return output, nil
}

// renderedValue turns an action's rendered template output into the Record
// it merges/replaces into output. A pattern built from the json_encode
// filter (spec.md §8 scenario 4's `{"field":"/", "pattern":"{{ input |
// json_encode() }}"}` idiom) renders a JSON object or array, and the
// resulting structure -- not its literal text -- is what a field:"/" whole-
// record replace, or a later action reading back into it, needs; re-parsing
// only text that looks like a JSON object/array keeps plain scalar template
// output (numbers, UUIDs, words) as plain strings, matching every other
// action in this codebase's tests.
func renderedValue(rendered string) *record.Record {
	trimmed := strings.TrimSpace(rendered)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return record.NewString(rendered)
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return record.NewString(rendered)
	}
	return record.FromInterface(parsed)
}

func removeAt(r *record.Record, field string) {
	if r == nil || r.Kind() != record.KindMap {
		return
	}
	segs := splitPointer(field)
	if len(segs) == 0 {
		return
	}
	parent := r
	for _, seg := range segs[:len(segs)-1] {
		parent = parent.MapGet(seg)
		if parent == nil {
			return
		}
	}
	parent.Delete(segs[len(segs)-1])
}

func splitPointer(p string) []string {
	if p == "" || p == "/" {
		return nil
	}
	if p[0] == '/' {
		p = p[1:]
	}
	out := []string{}
	start := 0
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			out = append(out, p[start:i])
			start = i + 1
		}
	}
	out = append(out, p[start:])
	return out
}
