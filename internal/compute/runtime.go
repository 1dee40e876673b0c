// Package compute dispatches tensor operations to the native backend when one
// is loaded and to host reference kernels otherwise. Both paths implement the
// same numeric definitions; the host kernels are normative.
package compute

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"tensord/internal/bufferpool"
	"tensord/internal/native"
)

// Execution paths reported to the Recorder.
const (
	PathDevice = "device"
	PathCPU    = "cpu"
)

// Operation names reported to the Recorder.
const (
	OpDot             = "dot"
	OpNorm            = "norm"
	OpCosine          = "cosine_similarity"
	OpSoftmax         = "softmax"
	OpRelu            = "relu"
	OpMatrixMultiply  = "matrix_multiply"
	OpMeanPooling     = "mean_pooling"
	OpValidateContent = "validate_content"
)

// Resolver reports whether a native backend is loaded. *native.Resolver
// satisfies it.
type Resolver interface {
	IsLoaded() bool
	Backend() (native.Backend, bool)
}

// Recorder receives one call per dispatched operation.
type Recorder interface {
	RecordOperation(op, path string, d time.Duration, bytes uint64)
}

type nopRecorder struct{}

func (nopRecorder) RecordOperation(string, string, time.Duration, uint64) {}

// Options tunes a Runtime.
type Options struct {
	Recorder Recorder
	Logger   *zerolog.Logger
	// BatchConcurrency bounds the requests of one batch call in flight at once.
	// Defaults to 4.
	BatchConcurrency int
}

// Runtime is the entry point for tensor operations. It is safe for concurrent
// use.
type Runtime struct {
	res        Resolver
	pool       *bufferpool.Pool
	rec        Recorder
	log        zerolog.Logger
	batchLimit int

	// gate serializes acquisition of multi-buffer sets so that two
	// operations never each hold part of a set while waiting for the rest.
	gate *semaphore.Weighted

	mu       sync.Mutex
	inflight int
	stopped  bool
	idle     chan struct{}
}

// New constructs a Runtime. res and pool may be nil, in which case every
// operation runs on the host.
func New(res Resolver, pool *bufferpool.Pool, opts Options) *Runtime {
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = 4
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "compute").Logger()
	}
	return &Runtime{
		res:        res,
		pool:       pool,
		rec:        opts.Recorder,
		log:        log,
		batchLimit: opts.BatchConcurrency,
		gate:       semaphore.NewWeighted(1),
	}
}

// DeviceAvailable reports whether operations with a device kernel will use it.
func (r *Runtime) DeviceAvailable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	_, ok := r.device()
	return ok
}

func (r *Runtime) device() (native.Backend, bool) {
	if r.res == nil || r.pool == nil || !r.res.IsLoaded() {
		return nil, false
	}
	return r.res.Backend()
}

// enter registers a device operation. The returned func must be called when
// the operation no longer touches the backend. ok is false when the device
// is unavailable or the runtime has been shut down.
func (r *Runtime) enter() (be native.Backend, leave func(), ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil, nil, false
	}
	be, ok = r.device()
	if !ok {
		return nil, nil, false
	}
	r.inflight++
	return be, r.leave, true
}

func (r *Runtime) leave() {
	r.mu.Lock()
	r.inflight--
	if r.inflight == 0 && r.idle != nil {
		close(r.idle)
		r.idle = nil
	}
	r.mu.Unlock()
}

// Shutdown stops device dispatch and waits for device operations in flight to
// finish. Afterwards kernels run on the host and ValidateContent reports the
// backend unavailable. It returns a cancelled error when ctx ends first.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	if r.inflight == 0 {
		r.mu.Unlock()
		return nil
	}
	if r.idle == nil {
		r.idle = make(chan struct{})
	}
	idle, n := r.idle, r.inflight
	r.mu.Unlock()
	r.log.Debug().Int("inflight", n).Msg("waiting for device operations")
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return cancelledError{op: "shutdown", err: ctx.Err()}
	}
}

func (r *Runtime) record(op, path string, start time.Time, bytes uint64) time.Duration {
	d := time.Since(start)
	r.rec.RecordOperation(op, path, d, bytes)
	return d
}

func hostMetrics(d time.Duration) native.Metrics {
	return native.Metrics{ComputeTimeMs: float32(d.Seconds() * 1000)}
}

// Dot returns the inner product of a and b.
func (r *Runtime) Dot(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, errOperand(OpDot, "length mismatch %d != %d", len(a), len(b))
	}
	start := time.Now()
	v := dot(a, b)
	r.record(OpDot, PathCPU, start, native.SizeOf[float32](2*len(a)))
	return v, nil
}

// Norm returns the Euclidean norm of a.
func (r *Runtime) Norm(a []float32) float32 {
	start := time.Now()
	v := norm(a)
	r.record(OpNorm, PathCPU, start, native.SizeOf[float32](len(a)))
	return v
}

// CosineSimilarity returns a·b / (|a||b|), or 0 when either vector is zero.
func (r *Runtime) CosineSimilarity(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, errOperand(OpCosine, "length mismatch %d != %d", len(a), len(b))
	}
	start := time.Now()
	v := cosine(a, b)
	r.record(OpCosine, PathCPU, start, native.SizeOf[float32](2*len(a)))
	return v, nil
}

// Softmax writes the normalized exponentials of in to out.
func (r *Runtime) Softmax(in, out []float32) error {
	if len(in) != len(out) {
		return errOperand(OpSoftmax, "output length %d != input length %d", len(out), len(in))
	}
	start := time.Now()
	softmax(in, out)
	r.record(OpSoftmax, PathCPU, start, native.SizeOf[float32](2*len(in)))
	return nil
}

// Relu writes max(in[i], 0) to out[i].
func (r *Runtime) Relu(ctx context.Context, in, out []float32) (native.Metrics, error) {
	if len(in) != len(out) {
		return native.Metrics{}, errOperand(OpRelu, "output length %d != input length %d", len(out), len(in))
	}
	bytes := native.SizeOf[float32](2 * len(in))
	if len(in) > 0 {
		if be, leave, ok := r.enter(); ok {
			defer leave()
			return r.deviceRelu(ctx, be, in, out, bytes)
		}
	}
	start := time.Now()
	relu(in, out)
	return hostMetrics(r.record(OpRelu, PathCPU, start, bytes)), nil
}

// MatrixMultiply computes c = a(m×k) · b(k×n) in row-major order.
func (r *Runtime) MatrixMultiply(ctx context.Context, a, b, c []float32, m, n, k int) (native.Metrics, error) {
	if m <= 0 || n <= 0 || k <= 0 {
		return native.Metrics{}, errOperand(OpMatrixMultiply, "dimensions must be positive (m=%d n=%d k=%d)", m, n, k)
	}
	if len(a) != m*k || len(b) != k*n || len(c) != m*n {
		return native.Metrics{}, errOperand(OpMatrixMultiply,
			"shape mismatch: len(a)=%d want %d, len(b)=%d want %d, len(c)=%d want %d",
			len(a), m*k, len(b), k*n, len(c), m*n)
	}
	bytes := native.SizeOf[float32](m*k + k*n + m*n)
	if be, leave, ok := r.enter(); ok {
		defer leave()
		return r.deviceMatrixMultiply(ctx, be, a, b, c, m, n, k, bytes)
	}
	start := time.Now()
	matmul(a, b, c, m, n, k)
	return hostMetrics(r.record(OpMatrixMultiply, PathCPU, start, bytes)), nil
}

// MeanPooling averages input (batch×seqLen×hidden) over the sequence
// positions whose mask entry is non-zero, writing batch×hidden values to
// output. A row with an all-zero mask yields zeros.
func (r *Runtime) MeanPooling(ctx context.Context, input []float32, mask []int64, output []float32, batch, seqLen, hidden int) (native.Metrics, error) {
	if batch <= 0 || seqLen <= 0 || hidden <= 0 {
		return native.Metrics{}, errOperand(OpMeanPooling, "dimensions must be positive (batch=%d seq_len=%d hidden=%d)", batch, seqLen, hidden)
	}
	if len(input) != batch*seqLen*hidden || len(mask) != batch*seqLen || len(output) != batch*hidden {
		return native.Metrics{}, errOperand(OpMeanPooling,
			"shape mismatch: len(input)=%d want %d, len(mask)=%d want %d, len(output)=%d want %d",
			len(input), batch*seqLen*hidden, len(mask), batch*seqLen, len(output), batch*hidden)
	}
	bytes := native.SizeOf[float32](len(input)+len(output)) + native.SizeOf[int64](len(mask))
	if be, leave, ok := r.enter(); ok {
		defer leave()
		return r.deviceMeanPooling(ctx, be, input, mask, output, batch, seqLen, hidden, bytes)
	}
	start := time.Now()
	meanPool(input, mask, output, batch, seqLen, hidden)
	return hostMetrics(r.record(OpMeanPooling, PathCPU, start, bytes)), nil
}

// ValidateContent asks the native backend whether data passes its validity
// check at threshold. The predicate belongs to the backend; without one the
// call fails with an unavailable error rather than guessing.
func (r *Runtime) ValidateContent(ctx context.Context, data []float32, threshold float32) (bool, native.Metrics, error) {
	if err := ctx.Err(); err != nil {
		return false, native.Metrics{}, cancelledError{op: OpValidateContent, err: err}
	}
	be, leave, ok := r.enter()
	if !ok {
		return false, native.Metrics{}, native.ErrBackendUnavailable("validate_content has no host implementation")
	}
	defer leave()
	start := time.Now()
	rc, m, err := be.ValidateContent(data, threshold)
	r.record(OpValidateContent, PathDevice, start, native.SizeOf[float32](len(data)))
	if err != nil {
		return false, m, err
	}
	return rc > 0, m, nil
}
