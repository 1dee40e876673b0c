package compute

import (
	"errors"
	"fmt"

	"tensord/internal/bufferpool"
	"tensord/internal/native"
)

// unsupportedOperandError reports operands an operation cannot accept:
// mismatched lengths, non-positive dimensions or unsupported element types.
type unsupportedOperandError struct {
	op  string
	msg string
}

func (e unsupportedOperandError) Error() string {
	return fmt.Sprintf("%s: unsupported operand: %s", e.op, e.msg)
}

func errOperand(op, format string, args ...any) error {
	return unsupportedOperandError{op: op, msg: fmt.Sprintf(format, args...)}
}

// IsUnsupportedOperand reports whether err was caused by invalid operands.
func IsUnsupportedOperand(err error) bool {
	var ue unsupportedOperandError
	return errors.As(err, &ue)
}

// IsUnavailable reports whether the operation needs the native backend and
// none is loaded.
func IsUnavailable(err error) bool {
	for err != nil {
		if native.IsBackendUnavailable(err) {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// cancelledError wraps the context error of an interrupted dispatch.
type cancelledError struct {
	op  string
	err error
}

func (e cancelledError) Error() string { return e.op + ": cancelled: " + e.err.Error() }

func (e cancelledError) Unwrap() error { return e.err }

// IsCancelled reports whether err was caused by cancellation while waiting
// for device buffers.
func IsCancelled(err error) bool {
	var ce cancelledError
	return errors.As(err, &ce) || bufferpool.IsCancelled(err)
}

// IsAllocationFailure reports whether err is a device allocation failure.
func IsAllocationFailure(err error) bool {
	return bufferpool.IsAllocationFailure(err)
}
