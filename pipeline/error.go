// Package pipeline implements the runtime (C7) that wires a configured
// sequence of steps into bounded channels, runs them concurrently, and
// joins them -- spec.md §4.7.
package pipeline

import (
	"fmt"
	"time"

	"github.com/whitaker-io/chewdata/record"
)

// Error is the pipeline-fatal error Exec returns when the runtime itself
// fails to wire or start the step graph, per spec.md §7's policy that only
// ConfigInvalid and executor-startup failures are pipeline-fatal -- every
// other failure travels as a per-record Err DataResult instead. It mirrors
// the teacher's own *machine.Error aggregate in types.go, trimmed to what a
// runtime-level failure needs: which step, what kind, and when.
type Error struct {
	Kind ErrorKind
	Step string
	Err  error
	Time time.Time
}

// ErrorKind is a plain alias of record.ErrorKind; it does not restrict
// which kinds an *Error carries (a recovered step panic is reported as
// ErrorKindUnknown).
type ErrorKind = record.ErrorKind

func (e *Error) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("pipeline: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("pipeline: step %q: %s: %v", e.Step, e.Kind, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Err }

func newError(kind record.ErrorKind, step string, format string, args ...interface{}) *Error {
	return &Error{
		Kind: kind,
		Step: step,
		Err:  fmt.Errorf(format, args...),
		Time: time.Now(),
	}
}
