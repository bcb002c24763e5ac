// Package errs defines the job-level error taxonomy shared by every
// pipeline stage. Stages wrap their underlying failures in an *Error so
// the batch orchestrator can classify outcomes without string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a job failure.
type Kind string

const (
	KindInput           Kind = "input"            // missing/corrupt/empty input file
	KindTranscode       Kind = "transcode"        // media collaborator (ffmpeg) failure
	KindModelLoad       Kind = "model_load"       // cache/fetch/incompatible model
	KindDecode          Kind = "decode"           // engine-internal failure
	KindTranslation     Kind = "translation"      // translation collaborator failure
	KindOutputWrite     Kind = "output_write"     // output dir/file write failure
	KindOutputCollision Kind = "output_collision" // two inputs map to one output dir
	KindCancelled       Kind = "cancelled"        // run-level cancellation
)

// Error is a classified pipeline error. Op names the operation that
// failed ("ffmpeg", "model fetch", ...), Err is the wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error with a formatted message and no cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error. A nil err returns nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err, unwrapping as needed.
// Errors outside the taxonomy report an empty Kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
