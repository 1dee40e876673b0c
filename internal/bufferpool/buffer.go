package bufferpool

import (
	"sync"

	"tensord/internal/native"
)

// ScopedBuffer is a checked-out DeviceBuffer. Release returns it to the pool;
// calling Release more than once is a no-op.
type ScopedBuffer struct {
	pool *Pool
	buf  *DeviceBuffer
	once sync.Once
}

// Handle returns the device pointer of the underlying buffer.
func (s *ScopedBuffer) Handle() native.Handle { return s.buf.handle }

// Capacity returns the usable size in bytes. It is at least the size passed
// to Acquire.
func (s *ScopedBuffer) Capacity() uint64 { return s.buf.capacity }

// Release returns the buffer to the pool.
func (s *ScopedBuffer) Release() {
	s.once.Do(func() { s.pool.release(s.buf) })
}

// Close implements io.Closer.
func (s *ScopedBuffer) Close() error {
	s.Release()
	return nil
}
