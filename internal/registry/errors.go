package registry

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

// modelNotFoundError reports a lookup of a name with no active entry.
type modelNotFoundError struct{ name string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.name }

// ErrModelNotFound returns the error used for registry misses.
func ErrModelNotFound(name string) error { return modelNotFoundError{name: name} }

// IsModelNotFound reports whether err indicates a missing model name.
func IsModelNotFound(err error) bool {
	var me modelNotFoundError
	return errors.As(err, &me)
}

// capacityError reports that the budget cannot be met: the model is larger
// than the whole budget, or pinned entries block eviction.
type capacityError struct {
	name      string
	required  uint64
	available uint64
	reason    string
}

func (e capacityError) Error() string {
	msg := fmt.Sprintf("cannot make room for %s: need %s, can free %s", e.name,
		humanize.IBytes(e.required), humanize.IBytes(e.available))
	if e.reason != "" {
		msg += " (" + e.reason + ")"
	}
	return msg
}

// IsCapacityExhausted reports whether err indicates the registry could not
// satisfy its budget.
func IsCapacityExhausted(err error) bool {
	var ce capacityError
	return errors.As(err, &ce)
}

// cancelledError wraps the context error of an abandoned wait for the
// eviction lock.
type cancelledError struct{ err error }

func (e cancelledError) Error() string { return "registry operation cancelled: " + e.err.Error() }

func (e cancelledError) Unwrap() error { return e.err }

// IsCancelled reports whether err was caused by cancellation.
func IsCancelled(err error) bool {
	var ce cancelledError
	return errors.As(err, &ce)
}

// invalidRequestError reports a malformed RegisterRequest.
type invalidRequestError struct{ msg string }

func (e invalidRequestError) Error() string { return "invalid register request: " + e.msg }

// IsInvalidRequest reports whether err was caused by a malformed request.
func IsInvalidRequest(err error) bool {
	var ie invalidRequestError
	return errors.As(err, &ie)
}
