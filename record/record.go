// Package record implements the neutral, dynamically-typed data model that
// flows between every chewdata connector, document codec, and step. A Record
// is an ordered tree of null/bool/number/string/array/map values; mappings
// preserve insertion order. The CSV codec sets columns in header order; the
// JSON, JSONL, YAML, TOML, XML and Parquet codecs build records through
// FromInterface from Go maps, so keys from those sources come out in Go's
// map iteration order, not source order.
package record

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/copystructure"
)

// Kind identifies the dynamic type held by a Record node.
type Kind int

// The set of dynamic types a Record node may hold.
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindMap
)

// Record is a node in the neutral data tree. The zero value is KindNull.
//
// Map keys are stored in both an index (for O(1) lookup) and an ordered
// slice (for iteration and re-encoding), so Keys() always reflects
// insertion order regardless of how many times a key has been overwritten.
type Record struct {
	kind  Kind
	b     bool
	i     int64
	f     float64
	s     string
	arr   []*Record
	keys  []string
	index map[string]int
	vals  []*Record
}

// NewNull returns a null Record.
func NewNull() *Record { return &Record{kind: KindNull} }

// NewBool returns a bool Record.
func NewBool(v bool) *Record { return &Record{kind: KindBool, b: v} }

// NewInt returns an integer Record.
func NewInt(v int64) *Record { return &Record{kind: KindInt, i: v} }

// NewFloat returns a float Record.
func NewFloat(v float64) *Record { return &Record{kind: KindFloat, f: v} }

// NewString returns a string Record.
func NewString(v string) *Record { return &Record{kind: KindString, s: v} }

// NewArray returns an array Record wrapping the given elements.
func NewArray(elems ...*Record) *Record {
	return &Record{kind: KindArray, arr: elems}
}

// NewMap returns an empty map Record.
func NewMap() *Record {
	return &Record{kind: KindMap, index: map[string]int{}}
}

// Kind returns the dynamic type of the node.
func (r *Record) Kind() Kind {
	if r == nil {
		return KindNull
	}
	return r.kind
}

// IsNull reports whether the node is null (or the nil pointer).
func (r *Record) IsNull() bool { return r == nil || r.kind == KindNull }

// Bool returns the boolean value, or false if the node is not a bool.
func (r *Record) Bool() bool {
	if r == nil {
		return false
	}
	return r.b
}

// Int returns the widest integer representation of the node.
func (r *Record) Int() int64 {
	if r == nil {
		return 0
	}
	switch r.kind {
	case KindInt:
		return r.i
	case KindFloat:
		return int64(r.f)
	}
	return 0
}

// Float returns the widest floating point representation of the node.
func (r *Record) Float() float64 {
	if r == nil {
		return 0
	}
	switch r.kind {
	case KindFloat:
		return r.f
	case KindInt:
		return float64(r.i)
	}
	return 0
}

// String returns the string value, or "" if the node is not a string.
func (r *Record) String() string {
	if r == nil {
		return ""
	}
	return r.s
}

// Array returns the underlying slice of array elements, or nil.
func (r *Record) Array() []*Record {
	if r == nil {
		return nil
	}
	return r.arr
}

// Keys returns the ordered map keys, or nil if the node is not a map.
func (r *Record) Keys() []string {
	if r == nil || r.kind != KindMap {
		return nil
	}
	return append([]string(nil), r.keys...)
}

// MapGet returns the direct child of a map Record by key.
func (r *Record) MapGet(key string) *Record {
	if r == nil || r.kind != KindMap {
		return nil
	}
	if i, ok := r.index[key]; ok {
		return r.vals[i]
	}
	return nil
}

// Set inserts or overwrites a key on a map Record, preserving first-seen
// insertion order. Set panics if called on a non-map, non-null Record;
// calling it on a null Record promotes the node to a map in place.
func (r *Record) Set(key string, value *Record) *Record {
	if r.kind == KindNull {
		r.kind = KindMap
		r.index = map[string]int{}
	}
	if r.kind != KindMap {
		panic("record: Set called on a non-map Record")
	}
	if i, ok := r.index[key]; ok {
		r.vals[i] = value
		return r
	}
	r.index[key] = len(r.keys)
	r.keys = append(r.keys, key)
	r.vals = append(r.vals, value)
	return r
}

// Delete removes a key from a map Record, if present.
func (r *Record) Delete(key string) {
	if r == nil || r.kind != KindMap {
		return
	}
	i, ok := r.index[key]
	if !ok {
		return
	}
	r.keys = append(r.keys[:i], r.keys[i+1:]...)
	r.vals = append(r.vals[:i], r.vals[i+1:]...)
	delete(r.index, key)
	for k, idx := range r.index {
		if idx > i {
			r.index[k] = idx - 1
		}
	}
}

// Append appends an element to an array Record, promoting a null Record to
// an array in place.
func (r *Record) Append(value *Record) *Record {
	if r.kind == KindNull {
		r.kind = KindArray
	}
	if r.kind != KindArray {
		panic("record: Append called on a non-array Record")
	}
	r.arr = append(r.arr, value)
	return r
}

// Clone returns a deep, independent copy of the Record. Transformations must
// never mutate a Record in flight on an inter-step channel; Clone is how a
// step produces the "new value" spec.md's invariants require.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := &Record{kind: r.kind, b: r.b, i: r.i, f: r.f, s: r.s}
	if r.arr != nil {
		out.arr = make([]*Record, len(r.arr))
		for i, v := range r.arr {
			out.arr[i] = v.Clone()
		}
	}
	if r.kind == KindMap {
		out.index = make(map[string]int, len(r.index))
		out.keys = append([]string(nil), r.keys...)
		out.vals = make([]*Record, len(r.vals))
		for k, idx := range r.index {
			out.index[k] = idx
		}
		for i, v := range r.vals {
			out.vals[i] = v.Clone()
		}
	}
	return out
}

// pointer splits a slash-delimited pointer into its segments. A leading "/"
// (or an empty pointer, meaning "the document root") is accepted.
func pointer(p string) []string {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Get resolves a slash-delimited pointer against the Record, following `*`
// wildcards (returning the first match across a map's values or an array's
// elements) and numeric indices into arrays. It returns nil if the pointer
// does not resolve.
func (r *Record) Get(ptr string) *Record {
	return get(r, pointer(ptr))
}

func get(r *Record, segs []string) *Record {
	if len(segs) == 0 {
		return r
	}
	if r == nil {
		return nil
	}
	head, rest := segs[0], segs[1:]
	switch r.kind {
	case KindMap:
		if head == "*" {
			for _, v := range r.vals {
				if found := get(v, rest); found != nil {
					return found
				}
			}
			return nil
		}
		return get(r.MapGet(head), rest)
	case KindArray:
		if head == "*" {
			for _, v := range r.arr {
				if found := get(v, rest); found != nil {
					return found
				}
			}
			return nil
		}
		idx, err := strconv.Atoi(head)
		if err != nil || idx < 0 || idx >= len(r.arr) {
			return nil
		}
		return get(r.arr[idx], rest)
	default:
		return nil
	}
}

// Search is an alias of Get kept for readers of spec.md's §4.1 operation
// list; the two differ only in name, not in pointer semantics.
func (r *Record) Search(ptr string) *Record { return r.Get(ptr) }

// MergeIn sets value at the pointer, creating any missing intermediate maps
// along the way. MergeIn is idempotent: calling it twice with the same
// (pointer, value) leaves the Record in the same state as calling it once.
func (r *Record) MergeIn(ptr string, value *Record) *Record {
	segs := pointer(ptr)
	if len(segs) == 0 {
		return value
	}
	return mergeIn(r, segs, value)
}

func mergeIn(r *Record, segs []string, value *Record) *Record {
	if r == nil || r.kind == KindNull {
		r = NewMap()
	}
	head, rest := segs[0], segs[1:]
	if len(rest) == 0 {
		r.Set(head, value)
		return r
	}
	child := r.MapGet(head)
	if child == nil {
		child = NewMap()
	}
	r.Set(head, mergeIn(child, rest, value))
	return r
}

// Merge combines other into r per spec.md's merge rules: scalars are
// replaced, mappings union with the right operand winning per shared key,
// and sequences concatenate. Merge returns a new Record and never mutates
// either operand. Merge is associative (but not commutative, since map-key
// conflicts and array order both favor the right-hand operand).
func (r *Record) Merge(other *Record) *Record {
	if other == nil || other.IsNull() {
		return r.Clone()
	}
	if r == nil || r.IsNull() {
		return other.Clone()
	}
	if r.kind != other.kind {
		return other.Clone()
	}
	switch r.kind {
	case KindMap:
		out := r.Clone()
		for _, k := range other.keys {
			v := other.MapGet(k)
			if existing := out.MapGet(k); existing != nil {
				out.Set(k, existing.Merge(v))
			} else {
				out.Set(k, v.Clone())
			}
		}
		return out
	case KindArray:
		out := r.Clone()
		for _, v := range other.arr {
			out.arr = append(out.arr, v.Clone())
		}
		return out
	default:
		return other.Clone()
	}
}

// Equal reports whether two Records have the same dynamic value, comparing
// numbers in their widest representation per spec.md §8's round-trip
// invariant and ignoring map key order (order is preserved for re-encoding,
// not for equality).
func Equal(a, b *Record) bool {
	if a.IsNull() && b.IsNull() {
		return true
	}
	if a.IsNull() != b.IsNull() {
		return false
	}
	switch {
	case a.kind == KindInt || a.kind == KindFloat, b.kind == KindInt || b.kind == KindFloat:
		if (a.kind == KindInt || a.kind == KindFloat) && (b.kind == KindInt || b.kind == KindFloat) {
			return a.Float() == b.Float()
		}
		return false
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindBool:
		return a.b == b.b
	case KindString:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.keys) != len(b.keys) {
			return false
		}
		for _, k := range a.keys {
			if !Equal(a.MapGet(k), b.MapGet(k)) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// ToInterface converts the Record into a plain Go value
// (nil/bool/int64/float64/string/[]interface{}/map[string]interface{}),
// suitable for handing to encoding/json, gopkg.in/yaml.v3, or any other
// codec that walks native Go values. Map order is preserved by the caller
// re-walking r.Keys() directly when order matters (json/yaml.v3 do not
// preserve map[string]interface{} order on encode).
func (r *Record) ToInterface() interface{} {
	if r.IsNull() {
		return nil
	}
	switch r.kind {
	case KindBool:
		return r.b
	case KindInt:
		return r.i
	case KindFloat:
		return r.f
	case KindString:
		return r.s
	case KindArray:
		out := make([]interface{}, len(r.arr))
		for i, v := range r.arr {
			out[i] = v.ToInterface()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(r.keys))
		for _, k := range r.keys {
			out[k] = r.MapGet(k).ToInterface()
		}
		return out
	default:
		return nil
	}
}

// FromInterface converts a plain Go value (as produced by encoding/json,
// yaml.v3, or mapstructure-style decoding) into a Record. Maps keyed by
// string preserve the iteration order Go happens to give them; callers
// needing a stable/author order (JSON objects, YAML mappings) should use
// FromOrderedPairs instead.
func FromInterface(v interface{}) *Record {
	switch val := v.(type) {
	case nil:
		return NewNull()
	case bool:
		return NewBool(val)
	case int:
		return NewInt(int64(val))
	case int64:
		return NewInt(val)
	case float64:
		return NewFloat(val)
	case float32:
		return NewFloat(float64(val))
	case string:
		return NewString(val)
	case []interface{}:
		elems := make([]*Record, len(val))
		for i, e := range val {
			elems[i] = FromInterface(e)
		}
		return NewArray(elems...)
	case map[string]interface{}:
		out := NewMap()
		for k, e := range val {
			out.Set(k, FromInterface(e))
		}
		return out
	default:
		return NewString(fmt.Sprintf("%v", val))
	}
}

// Pair is one (key, value) entry used by FromOrderedPairs to build a map
// Record whose key order is dictated by the caller (typically a streaming
// decoder that already knows source order) rather than Go's randomized
// map iteration.
type Pair struct {
	Key   string
	Value interface{}
}

// FromOrderedPairs builds a map Record from a slice of key/value pairs in
// the given order, recursively converting nested plain Go values.
func FromOrderedPairs(pairs []Pair) *Record {
	out := NewMap()
	for _, p := range pairs {
		out.Set(p.Key, FromInterface(p.Value))
	}
	return out
}

// DeepCopy returns an independent copy of v using
// github.com/mitchellh/copystructure, mirroring the defensive copy the
// teacher's Packet.log performs before diffing a step's input against its
// output. No code in this module calls it; records are copied with
// Record.Clone, which is cheaper for the common case of plain Record
// trees.
func DeepCopy(v interface{}) (interface{}, error) {
	return copystructure.Copy(v)
}
