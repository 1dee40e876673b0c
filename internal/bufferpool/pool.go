// Package bufferpool hands out reusable device buffers while bounding how
// many exist at once.
//
// Requests up to DefaultBufferSize are served from fixed-capacity buffers of
// exactly that size, which are kept and reused. Larger requests get a
// dedicated power-of-two buffer that is freed again on release. Acquire
// allocates while the pool is below MaxBuffers and otherwise blocks until a
// buffer is released or the context is cancelled. Released buffers are not
// zeroed.
package bufferpool

import (
	"context"
	"math/bits"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"

	"tensord/internal/native"
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultMaxBuffers        = 16
	DefaultBufferSize uint64 = 64 << 20
)

// Allocator is the subset of the backend ABI the pool needs.
type Allocator interface {
	Allocate(sizeBytes uint64) (native.Handle, error)
	Free(h native.Handle)
}

// Config tunes a Pool.
type Config struct {
	MaxBuffers int
	// DefaultBufferSize is the capacity of every pooled buffer.
	DefaultBufferSize uint64
	Logger            *zerolog.Logger
}

// DeviceBuffer is one device allocation owned by the pool.
type DeviceBuffer struct {
	handle   native.Handle
	capacity uint64
}

// Handle returns the device pointer.
func (b *DeviceBuffer) Handle() native.Handle { return b.handle }

// Capacity returns the allocation size in bytes.
func (b *DeviceBuffer) Capacity() uint64 { return b.capacity }

// Stats is a point-in-time view of pool accounting.
type Stats struct {
	MaxBuffers    int    `json:"max_buffers"`
	CheckedOut    int    `json:"checked_out"`
	Free          int    `json:"free"`
	Total         int    `json:"total"`
	FreeBytes     uint64 `json:"free_bytes"`
	TotalBytes    uint64 `json:"total_bytes"`
	Allocations   uint64 `json:"allocations"`
	Reuses        uint64 `json:"reuses"`
	Waits         uint64 `json:"waits"`
	AllocFailures uint64 `json:"alloc_failures"`
	Retired       uint64 `json:"retired"`
	Oversized     uint64 `json:"oversized"`
	Closed        bool   `json:"closed"`
}

// Pool is a bounded set of device buffers. It is safe for concurrent use.
type Pool struct {
	alloc       Allocator
	maxBuffers  int
	defaultSize uint64
	log         zerolog.Logger

	// slots holds one unit per checked-out buffer.
	slots *semaphore.Weighted

	mu         sync.Mutex
	free       []*DeviceBuffer // all of capacity defaultSize
	total      int
	checkedOut int
	totalBytes uint64
	closed     bool

	done      chan struct{}
	closeOnce sync.Once
	// idle is closed when checkedOut drops to zero while Drain waits.
	idle chan struct{}

	allocations   atomic.Uint64
	reuses        atomic.Uint64
	waits         atomic.Uint64
	allocFailures atomic.Uint64
	retired       atomic.Uint64
	oversized     atomic.Uint64
}

// New constructs a Pool over alloc, applying defaults for unset fields.
func New(alloc Allocator, cfg Config) *Pool {
	if cfg.MaxBuffers <= 0 {
		cfg.MaxBuffers = DefaultMaxBuffers
	}
	if cfg.DefaultBufferSize == 0 {
		cfg.DefaultBufferSize = DefaultBufferSize
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("component", "bufferpool").Logger()
	}
	return &Pool{
		alloc:       alloc,
		maxBuffers:  cfg.MaxBuffers,
		defaultSize: cfg.DefaultBufferSize,
		log:         log,
		slots:       semaphore.NewWeighted(int64(cfg.MaxBuffers)),
		done:        make(chan struct{}),
	}
}

// MaxBuffers returns the checkout bound.
func (p *Pool) MaxBuffers() int { return p.maxBuffers }

// DefaultBufferSize returns the capacity of pooled buffers.
func (p *Pool) DefaultBufferSize() uint64 { return p.defaultSize }

// ClassFor returns the capacity allocated for a request of size bytes.
func (p *Pool) ClassFor(size uint64) uint64 {
	if size <= p.defaultSize {
		return p.defaultSize
	}
	return ceilPow2(size)
}

func ceilPow2(v uint64) uint64 {
	if v <= 1 {
		return 1
	}
	return 1 << (64 - bits.LeadingZeros64(v-1))
}

// Acquire checks out a buffer of at least size bytes. It blocks while
// MaxBuffers buffers are checked out. Cancellation of ctx or Close of the pool
// aborts the wait; in that case nothing is checked out.
func (p *Pool) Acquire(ctx context.Context, size uint64) (*ScopedBuffer, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, cancelledError{err: err}
	}

	if !p.slots.TryAcquire(1) {
		p.waits.Inc()
		wctx, cancel := context.WithCancel(ctx)
		stop := context.AfterFunc(closedContext{p.done}, cancel)
		err := p.slots.Acquire(wctx, 1)
		stop()
		cancel()
		if err != nil {
			if p.isClosed() {
				return nil, ErrPoolClosed
			}
			return nil, cancelledError{err: ctx.Err()}
		}
	}

	buf, err := p.take(size)
	if err != nil {
		p.slots.Release(1)
		return nil, err
	}
	return &ScopedBuffer{pool: p, buf: buf}, nil
}

// take runs with one slot held, so checkedOut < maxBuffers on entry.
func (p *Pool) take(size uint64) (*DeviceBuffer, error) {
	class := p.ClassFor(size)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if class == p.defaultSize && len(p.free) > 0 {
		b := p.popLocked()
		p.checkedOut++
		p.mu.Unlock()
		p.reuses.Inc()
		return b, nil
	}
	var victim *DeviceBuffer
	if p.total >= p.maxBuffers {
		// Full and the request is oversized: retire a pooled buffer.
		victim = p.popLocked()
		if victim == nil {
			p.mu.Unlock()
			return nil, errInternal("pool full with no free buffers while holding a slot")
		}
		p.total--
		p.totalBytes -= victim.capacity
	}
	// Reserve the slot in the accounting before allocating outside the lock.
	p.total++
	p.checkedOut++
	p.mu.Unlock()

	if victim != nil {
		p.alloc.Free(victim.handle)
		p.retired.Inc()
		p.log.Debug().Str("size", humanize.IBytes(victim.capacity)).Msg("retired pooled buffer for oversized request")
	}

	h, err := p.alloc.Allocate(class)
	if err != nil {
		p.mu.Lock()
		p.total--
		p.checkedOut--
		p.mu.Unlock()
		p.allocFailures.Inc()
		p.log.Warn().Err(err).Str("size", humanize.IBytes(class)).Msg("device allocation failed")
		return nil, allocationError{size: class, err: err}
	}
	p.mu.Lock()
	p.totalBytes += class
	p.mu.Unlock()
	p.allocations.Inc()
	if class > p.defaultSize {
		p.oversized.Inc()
	}
	return &DeviceBuffer{handle: h, capacity: class}, nil
}

func (p *Pool) popLocked() *DeviceBuffer {
	n := len(p.free)
	if n == 0 {
		return nil
	}
	b := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	return b
}

// release returns b to the free set. Oversized buffers, and every buffer once
// the pool is closed, are freed instead. The checkout is only dropped after
// the backend Free returns so that Drain never reports idle mid-free.
func (p *Pool) release(b *DeviceBuffer) {
	p.mu.Lock()
	discard := p.closed || b.capacity != p.defaultSize
	if discard {
		p.total--
		p.totalBytes -= b.capacity
		p.mu.Unlock()
		p.alloc.Free(b.handle)
		p.mu.Lock()
	} else {
		p.free = append(p.free, b)
	}
	p.checkedOut--
	if p.checkedOut == 0 && p.idle != nil {
		close(p.idle)
		p.idle = nil
	}
	p.mu.Unlock()
	p.slots.Release(1)
}

// Drain waits until every checked-out buffer has been released. Pair it with
// Close before unloading the backend the buffers came from.
func (p *Pool) Drain(ctx context.Context) error {
	p.mu.Lock()
	if p.checkedOut == 0 {
		p.mu.Unlock()
		return nil
	}
	if p.idle == nil {
		p.idle = make(chan struct{})
	}
	idle, n := p.idle, p.checkedOut
	p.mu.Unlock()
	p.log.Debug().Int("outstanding", n).Msg("waiting for checked-out buffers")
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return cancelledError{err: ctx.Err()}
	}
}

// With acquires a buffer, runs fn and releases the buffer on every exit path,
// including panics.
func (p *Pool) With(ctx context.Context, size uint64, fn func(*ScopedBuffer) error) error {
	sb, err := p.Acquire(ctx, size)
	if err != nil {
		return err
	}
	defer sb.Release()
	return fn(sb)
}

func (p *Pool) isClosed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Close frees every free buffer, fails pending and future Acquire calls, and
// arranges for checked-out buffers to be freed when they are released.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		victims := p.free
		p.free = nil
		p.total -= len(victims)
		for _, v := range victims {
			p.totalBytes -= v.capacity
		}
		outstanding := p.checkedOut
		p.mu.Unlock()
		close(p.done)

		for _, v := range victims {
			p.alloc.Free(v.handle)
		}
		p.log.Debug().Int("freed", len(victims)).Int("outstanding", outstanding).Msg("buffer pool closed")
	})
	return nil
}

// Stats returns current accounting.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	s := Stats{
		MaxBuffers: p.maxBuffers,
		CheckedOut: p.checkedOut,
		Total:      p.total,
		TotalBytes: p.totalBytes,
		Closed:     p.closed,
	}
	s.Free = len(p.free)
	s.FreeBytes = uint64(len(p.free)) * p.defaultSize
	p.mu.Unlock()
	s.Allocations = p.allocations.Load()
	s.Reuses = p.reuses.Load()
	s.Waits = p.waits.Load()
	s.AllocFailures = p.allocFailures.Load()
	s.Retired = p.retired.Load()
	s.Oversized = p.oversized.Load()
	return s
}
