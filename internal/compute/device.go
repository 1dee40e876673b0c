package compute

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"tensord/internal/bufferpool"
	"tensord/internal/native"
)

// bufferSet is the group of buffers one device dispatch works on.
type bufferSet []*bufferpool.ScopedBuffer

func (s bufferSet) release() {
	for _, b := range s {
		b.Release()
	}
}

// acquireSet checks out one buffer per size. It returns ok=false without
// error when the pool is too small to ever hold the whole set; the caller then
// runs the host kernel.
func (r *Runtime) acquireSet(ctx context.Context, op string, sizes ...uint64) (set bufferSet, ok bool, err error) {
	if r.pool.MaxBuffers() < len(sizes) {
		r.log.Debug().Str("op", op).Int("needed", len(sizes)).Int("max_buffers", r.pool.MaxBuffers()).
			Msg("buffer pool too small for device dispatch, using host kernel")
		return nil, false, nil
	}
	if len(sizes) > 1 {
		if err := r.gate.Acquire(ctx, 1); err != nil {
			return nil, false, cancelledError{op: op, err: err}
		}
		defer r.gate.Release(1)
	}
	set = make(bufferSet, 0, len(sizes))
	for _, size := range sizes {
		sb, err := r.pool.Acquire(ctx, size)
		if err != nil {
			set.release()
			return nil, false, err
		}
		set = append(set, sb)
	}
	return set, true, nil
}

func (r *Runtime) deviceMatrixMultiply(ctx context.Context, be native.Backend, a, b, c []float32, m, n, k int, bytes uint64) (native.Metrics, error) {
	start := time.Now()
	set, ok, err := r.acquireSet(ctx, OpMatrixMultiply,
		native.SizeOf[float32](len(a)), native.SizeOf[float32](len(b)), native.SizeOf[float32](len(c)))
	if err != nil {
		return native.Metrics{}, err
	}
	if !ok {
		matmul(a, b, c, m, n, k)
		return hostMetrics(r.record(OpMatrixMultiply, PathCPU, start, bytes)), nil
	}
	defer set.release()

	if err := native.Upload(be, set[0].Handle(), a); err != nil {
		return native.Metrics{}, errors.Wrap(err, "matrix_multiply: upload a")
	}
	if err := native.Upload(be, set[1].Handle(), b); err != nil {
		return native.Metrics{}, errors.Wrap(err, "matrix_multiply: upload b")
	}
	met, err := be.MatrixMultiply(set[0].Handle(), set[1].Handle(), set[2].Handle(), m, n, k)
	if err != nil {
		return met, errors.Wrap(err, "matrix_multiply: kernel")
	}
	if err := native.Download(be, c, set[2].Handle()); err != nil {
		return met, errors.Wrap(err, "matrix_multiply: download c")
	}
	r.record(OpMatrixMultiply, PathDevice, start, bytes)
	return met, nil
}

func (r *Runtime) deviceMeanPooling(ctx context.Context, be native.Backend, input []float32, mask []int64, output []float32, batch, seqLen, hidden int, bytes uint64) (native.Metrics, error) {
	start := time.Now()
	set, ok, err := r.acquireSet(ctx, OpMeanPooling,
		native.SizeOf[float32](len(input)), native.SizeOf[int64](len(mask)), native.SizeOf[float32](len(output)))
	if err != nil {
		return native.Metrics{}, err
	}
	if !ok {
		meanPool(input, mask, output, batch, seqLen, hidden)
		return hostMetrics(r.record(OpMeanPooling, PathCPU, start, bytes)), nil
	}
	defer set.release()

	if err := native.Upload(be, set[0].Handle(), input); err != nil {
		return native.Metrics{}, errors.Wrap(err, "mean_pooling: upload input")
	}
	if err := native.Upload(be, set[1].Handle(), mask); err != nil {
		return native.Metrics{}, errors.Wrap(err, "mean_pooling: upload mask")
	}
	met, err := be.MeanPooling(set[0].Handle(), set[1].Handle(), set[2].Handle(), batch, seqLen, hidden)
	if err != nil {
		return met, errors.Wrap(err, "mean_pooling: kernel")
	}
	if err := native.Download(be, output, set[2].Handle()); err != nil {
		return met, errors.Wrap(err, "mean_pooling: download output")
	}
	r.record(OpMeanPooling, PathDevice, start, bytes)
	return met, nil
}

func (r *Runtime) deviceRelu(ctx context.Context, be native.Backend, in, out []float32, bytes uint64) (native.Metrics, error) {
	start := time.Now()
	size := native.SizeOf[float32](len(in))
	set, ok, err := r.acquireSet(ctx, OpRelu, size, size)
	if err != nil {
		return native.Metrics{}, err
	}
	if !ok {
		relu(in, out)
		return hostMetrics(r.record(OpRelu, PathCPU, start, bytes)), nil
	}
	defer set.release()

	if err := native.Upload(be, set[0].Handle(), in); err != nil {
		return native.Metrics{}, errors.Wrap(err, "relu: upload input")
	}
	met, err := be.Relu(set[0].Handle(), set[1].Handle(), len(in))
	if err != nil {
		return met, errors.Wrap(err, "relu: kernel")
	}
	if err := native.Download(be, out, set[1].Handle()); err != nil {
		return met, errors.Wrap(err, "relu: download output")
	}
	r.record(OpRelu, PathDevice, start, bytes)
	return met, nil
}
