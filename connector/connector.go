// Package connector implements the uniform byte-level I/O contract (C3)
// shared by every backend chewdata talks to: local files, buckets, HTTP
// APIs, databases, queues, and in-memory buffers.
package connector

import (
	"context"
	"fmt"
	"sync"

	"github.com/whitaker-io/chewdata/document"
	"github.com/whitaker-io/chewdata/record"
)

// Connector is the uniform backend driver contract of spec.md §4.3.
type Connector interface {
	// Path returns the connector's path after template substitution
	// against the last record passed to SetParameters.
	Path() string

	// SetParameters re-renders Path() (and any other templated field,
	// such as a mongodb filter or a psql query) against record. It never
	// performs I/O.
	SetParameters(rec *record.Record) error

	// IsVariable reports whether Path() depends on record fields, i.e.
	// whether the connector requires SetParameters before each use to stay
	// current.
	IsVariable() bool

	// Fetch opens the backend for reading and decodes it through doc,
	// returning a lazy sequence of DataResults. Fetch itself does not
	// block; the returned channel is fed by a background goroutine.
	Fetch(ctx context.Context, doc document.Document) (<-chan *record.DataResult, error)

	// Send encodes records through doc and writes them to the backend.
	// A non-nil position requests a seek-write for backends that support
	// random access; nil means append.
	Send(ctx context.Context, doc document.Document, records []*record.Record, position *int64) error

	// Erase truncates or deletes the backend target. A not-found
	// condition is not an error.
	Erase(ctx context.Context) error

	// Len reports a byte or logical size for the backend target.
	Len(ctx context.Context) (int64, error)

	// IsEmpty reports whether the backend target currently holds no data.
	IsEmpty(ctx context.Context) (bool, error)

	// Paginator returns the paginator this connector should be driven
	// through, honoring any paginator configuration set on the connector.
	Paginator() (Paginator, error)

	// CloneBox returns an independent clone suitable for handing to a new
	// step worker: the clone shares no mutable state with the original
	// beyond a reference to an expensive backend handle (HTTP client, DB
	// pool) that is safe for concurrent use.
	CloneBox() Connector

	// Metadata reports the connector's mime subtype (commonly inferred
	// from the path extension) for downstream codec selection.
	Metadata() Metadata
}

// Metadata describes a connector's identity for codec auto-selection.
type Metadata struct {
	MimeSubtype string
	Path        string
	Headers     map[string]string
}

// Paginator turns one logical connector into a lazy sequence of
// sub-connectors, per spec.md §4.4. It lives in this package (rather than
// its own) because Once/Offset/Cursor all wrap a Connector directly and
// the cyclic connector<->paginator reference is broken by having the
// paginator own a clone of the connector rather than the reverse.
type Paginator interface {
	// Next returns the next sub-connector, or ok=false when the
	// logical source is exhausted.
	Next(ctx context.Context) (next Connector, ok bool, err error)

	// IsParallelizable reports whether sub-connectors may be fetched
	// concurrently (true only when Offset knows a total count ahead of
	// time).
	IsParallelizable() bool
}

// Factory builds a Connector from a decoded configuration map. Each
// backend package registers its own Factory in init() via Register,
// mirroring the teacher's PluginProvider registry in
// loader.providers.go so that new connector kinds can be added without
// touching a closed switch statement (see the REDESIGN FLAG in
// SPEC_FULL.md).
type Factory func(config map[string]interface{}) (Connector, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a connector Factory under kind. Register is meant to be
// called from package init() functions; a duplicate registration panics,
// since it always indicates a programming error rather than a runtime
// condition.
func Register(kind string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("connector: kind %q already registered", kind))
	}
	registry[kind] = factory
}

// New builds a Connector of the given kind from config, looked up in the
// Register-ed factory table. An unknown kind is a ConfigInvalid error
// per spec.md §7.
func New(kind string, config map[string]interface{}) (Connector, error) {
	registryMu.RLock()
	factory, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, record.NewError(record.ErrorKindConfigInvalid, "connector: unknown kind %q", kind)
	}
	return factory(config)
}

func stringField(config map[string]interface{}, key, def string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func intField(config map[string]interface{}, key string, def int) int {
	if v, ok := config[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return def
}

func boolField(config map[string]interface{}, key string, def bool) bool {
	if v, ok := config[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}
