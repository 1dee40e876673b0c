package bufferpool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tensord/internal/native"
)

// ErrPoolClosed is returned by Acquire once Close has been called.
var ErrPoolClosed = errors.New("buffer pool closed")

// IsPoolClosed reports whether err was caused by acquiring from a closed pool.
func IsPoolClosed(err error) bool { return errors.Is(err, ErrPoolClosed) }

// cancelledError wraps the context error of an abandoned wait.
type cancelledError struct{ err error }

func (e cancelledError) Error() string { return "buffer acquisition cancelled: " + e.err.Error() }

func (e cancelledError) Unwrap() error { return e.err }

// IsCancelled reports whether err was caused by a cancelled Acquire.
func IsCancelled(err error) bool {
	var ce cancelledError
	return errors.As(err, &ce)
}

// allocationError reports that the device could not back a new buffer.
type allocationError struct {
	size uint64
	err  error
}

func (e allocationError) Error() string {
	return fmt.Sprintf("allocate %d byte device buffer: %v", e.size, e.err)
}

func (e allocationError) Unwrap() error { return e.err }

// IsAllocationFailure reports whether err is a device allocation failure,
// either from the pool or from the backend directly.
func IsAllocationFailure(err error) bool {
	var ae allocationError
	if errors.As(err, &ae) {
		return true
	}
	return native.IsAllocationFailure(err)
}

type internalError string

func (e internalError) Error() string { return "bufferpool: " + string(e) }

func errInternal(msg string) error { return internalError(msg) }

// closedContext adapts the pool's done channel to context.Context so Close can
// abort semaphore waits through context.AfterFunc.
type closedContext struct{ done <-chan struct{} }

func (c closedContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (c closedContext) Done() <-chan struct{}       { return c.done }
func (c closedContext) Value(any) any               { return nil }

func (c closedContext) Err() error {
	select {
	case <-c.done:
		return context.Canceled
	default:
		return nil
	}
}
