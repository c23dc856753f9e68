package updater

import (
	"strings"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/google/uuid"
)

// nowFunc implements spec.md §4.5's now(timestamp?, utc?) function.
func nowFunc(args ...*pongo2.Value) *pongo2.Value {
	t := time.Now()
	utc := false
	var tsOverride *int64
	for _, a := range args {
		m, ok := a.Interface().(map[string]interface{})
		if !ok {
			continue
		}
		if u, ok := m["utc"].(bool); ok {
			utc = u
		}
		if ts, ok := m["timestamp"]; ok {
			switch v := ts.(type) {
			case int64:
				tsOverride = &v
			case int:
				n := int64(v)
				tsOverride = &n
			case float64:
				n := int64(v)
				tsOverride = &n
			}
		}
	}
	if tsOverride != nil {
		t = time.Unix(*tsOverride, 0)
	}
	if utc {
		t = t.UTC()
	}
	return pongo2.AsValue(t)
}

// uuidV4Func implements spec.md §4.5's uuid_v4(format=simple|hyphenated|urn).
func uuidV4Func(args ...*pongo2.Value) *pongo2.Value {
	format := "hyphenated"
	for _, a := range args {
		if m, ok := a.Interface().(map[string]interface{}); ok {
			if f, ok := m["format"].(string); ok {
				format = f
			}
		}
	}
	id := uuid.New()
	switch format {
	case "simple":
		return pongo2.AsValue(strings.ReplaceAll(id.String(), "-", ""))
	case "urn":
		return pongo2.AsValue(id.URN())
	default:
		return pongo2.AsValue(id.String())
	}
}
