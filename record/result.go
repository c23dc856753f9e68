package record

import "fmt"

// ErrorKind is the abstract error taxonomy of spec.md §7. It is carried on
// every Err DataResult so that downstream steps and the pipeline's error
// channel can reason about why a record failed without parsing messages.
type ErrorKind int

// The error kinds of spec.md §7, in the order they are introduced there.
const (
	ErrorKindUnknown ErrorKind = iota
	ErrorKindConfigInvalid
	ErrorKindConnectorUnavailable
	ErrorKindAuthFailed
	ErrorKindDecodeFailed
	ErrorKindEncodeFailed
	ErrorKindTemplateFailed
	ErrorKindValidationFailed
	ErrorKindTimeout
	ErrorKindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindConfigInvalid:
		return "config_invalid"
	case ErrorKindConnectorUnavailable:
		return "connector_unavailable"
	case ErrorKindAuthFailed:
		return "auth_failed"
	case ErrorKindDecodeFailed:
		return "decode_failed"
	case ErrorKindEncodeFailed:
		return "encode_failed"
	case ErrorKindTemplateFailed:
		return "template_failed"
	case ErrorKindValidationFailed:
		return "validation_failed"
	case ErrorKindTimeout:
		return "timeout"
	case ErrorKindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ErrorInfo carries the kind and message of a DataResult's failure.
type ErrorInfo struct {
	Kind    ErrorKind
	Message string
}

func (e *ErrorInfo) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds an ErrorInfo for the given kind, formatting Message the
// way fmt.Errorf would.
func NewError(kind ErrorKind, format string, args ...interface{}) *ErrorInfo {
	return &ErrorInfo{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// fieldError is the well-known root field an Err DataResult injects into its
// Record when flattened for a downstream writer, per spec.md §3.
const fieldError = "_error"

// DataResult is the tagged Ok(Record) | Err(Record, ErrorInfo) envelope that
// is the only value flowing on chewdata's inter-step channels.
type DataResult struct {
	record *Record
	err    *ErrorInfo
}

// Ok builds a successful DataResult wrapping r.
func Ok(r *Record) *DataResult {
	return &DataResult{record: r}
}

// Err builds a failed DataResult wrapping r and the given error info.
func Err(r *Record, info *ErrorInfo) *DataResult {
	if r == nil {
		r = NewMap()
	}
	return &DataResult{record: r, err: info}
}

// IsOk reports whether the DataResult is the Ok variant.
func (d *DataResult) IsOk() bool { return d != nil && d.err == nil }

// IsErr reports whether the DataResult is the Err variant.
func (d *DataResult) IsErr() bool { return d != nil && d.err != nil }

// Record returns the wrapped Record regardless of variant; callers that
// care about the error should check IsErr/Error first.
func (d *DataResult) Record() *Record {
	if d == nil {
		return nil
	}
	return d.record
}

// Error returns the ErrorInfo of an Err DataResult, or nil for Ok.
func (d *DataResult) Error() *ErrorInfo {
	if d == nil {
		return nil
	}
	return d.err
}

// ToRecord converts the DataResult to a plain Record: for Ok it is the
// wrapped Record unchanged; for Err it is the wrapped Record with
// `_error: <message>` injected at the root, per spec.md §3.
func (d *DataResult) ToRecord() *Record {
	if d.IsOk() {
		return d.record
	}
	out := d.record.Clone()
	return out.MergeIn("/"+fieldError, NewString(d.err.Error()))
}

// Clone returns an independent copy of the DataResult. DataResults must
// never be mutated in flight on a channel; a step produces a new DataResult
// rather than editing the one it received.
func (d *DataResult) Clone() *DataResult {
	if d == nil {
		return nil
	}
	out := &DataResult{record: d.record.Clone()}
	if d.err != nil {
		e := *d.err
		out.err = &e
	}
	return out
}
