package native

import "fmt"

// unavailableError signals that no backend is loaded in this process.
type unavailableError struct{ reason string }

func (e unavailableError) Error() string {
	if e.reason == "" {
		return "native backend unavailable"
	}
	return "native backend unavailable: " + e.reason
}

// ErrBackendUnavailable constructs an unavailableError.
func ErrBackendUnavailable(reason string) error { return unavailableError{reason: reason} }

// IsBackendUnavailable reports whether err indicates that no backend is loaded.
func IsBackendUnavailable(err error) bool {
	_, ok := err.(unavailableError)
	return ok
}

// symbolError reports a required entry point missing from a candidate library.
type symbolError struct {
	path   string
	symbol string
}

func (e symbolError) Error() string {
	return fmt.Sprintf("%s: missing symbol %s", e.path, e.symbol)
}

// IsMissingSymbol reports whether err was caused by an incomplete library.
func IsMissingSymbol(err error) bool {
	_, ok := err.(symbolError)
	return ok
}

// allocationError reports a failed device allocation.
type allocationError struct{ size uint64 }

func (e allocationError) Error() string {
	return fmt.Sprintf("device allocation of %d bytes failed", e.size)
}

// ErrAllocation constructs the error returned when the device cannot satisfy
// an allocation.
func ErrAllocation(size uint64) error { return allocationError{size: size} }

// IsAllocationFailure reports whether err is a device allocation failure.
func IsAllocationFailure(err error) bool {
	_, ok := err.(allocationError)
	return ok
}
