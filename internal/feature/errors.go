package feature

import (
	"errors"
	"fmt"
	"strings"
)

// Error categories. Every error returned by a store or the service wraps
// exactly one of these.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrLimitExceeded  = errors.New("limit exceeded")
	ErrConflict       = errors.New("conflict")
	ErrStoreFailure   = errors.New("store failure")
)

// Conflict refinements. errors.Is(err, ErrConflict) holds for each.
var (
	ErrAlreadyPassing     = fmt.Errorf("%w: feature is already passing", ErrConflict)
	ErrAlreadyInProgress  = fmt.Errorf("%w: feature is already in progress", ErrConflict)
	ErrCircularDependency = fmt.Errorf("%w: would create circular dependency", ErrConflict)
	ErrLostRace           = fmt.Errorf("%w: concurrent update won", ErrConflict)
)

// NoIndex marks an Error that is not tied to a bulk entry.
const NoIndex = -1

// Error carries the operation and the feature (or bulk entry) an error is about.
type Error struct {
	Op    string
	ID    int64
	Index int
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Index >= 0:
		fmt.Fprintf(&b, "feature at index %d: ", e.Index)
	case e.ID > 0:
		fmt.Fprintf(&b, "feature %d: ", e.ID)
	}
	if e.Msg != "" {
		b.WriteString(e.Msg)
		if e.Err != nil {
			b.WriteString(" (")
			b.WriteString(e.Err.Error())
			b.WriteString(")")
		}
		return b.String()
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an Error about feature id.
func E(op string, id int64, err error) *Error {
	return &Error{Op: op, ID: id, Index: NoIndex, Err: err}
}

// Errf builds an Error about feature id with a formatted message.
func Errf(op string, id int64, err error, format string, args ...interface{}) *Error {
	return &Error{Op: op, ID: id, Index: NoIndex, Msg: fmt.Sprintf(format, args...), Err: err}
}

// AtIndex builds an Error about entry i of a bulk request.
func AtIndex(op string, i int, err error, format string, args ...interface{}) *Error {
	return &Error{Op: op, Index: i, Msg: fmt.Sprintf(format, args...), Err: err}
}

// NotFound is shorthand for a missing feature.
func NotFound(op string, id int64) *Error {
	return E(op, id, ErrNotFound)
}

// StoreFailure wraps a backend error that is not one of the domain categories.
func StoreFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Op: op, Index: NoIndex, Msg: err.Error(), Err: ErrStoreFailure}
}

// Kind names used in structured error results.
const (
	KindNotFound       = "not_found"
	KindInvalidRequest = "invalid_request"
	KindLimitExceeded  = "limit_exceeded"
	KindConflict       = "conflict"
	KindStoreFailure   = "store_failure"
)

// KindOf maps an error to its category name. Unknown errors are store failures.
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrLimitExceeded):
		return KindLimitExceeded
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindStoreFailure
	}
}

// IndexOf returns the bulk entry index an error refers to, if any.
func IndexOf(err error) (int, bool) {
	var fe *Error
	if errors.As(err, &fe) && fe.Index >= 0 {
		return fe.Index, true
	}
	return 0, false
}

// Diagnose explains why a guarded status update matched no row. current is the
// row re-read after the update (nil when it no longer exists); guardInProgress
// says whether the guard also required in_progress=0.
func Diagnose(op string, id int64, current *Feature, guardInProgress bool) error {
	switch {
	case current == nil:
		return NotFound(op, id)
	case current.Passes:
		return E(op, id, ErrAlreadyPassing)
	case guardInProgress && current.InProgress:
		return E(op, id, ErrAlreadyInProgress)
	default:
		return E(op, id, ErrLostRace)
	}
}
