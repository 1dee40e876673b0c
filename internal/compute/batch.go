package compute

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tensord/internal/native"
)

// MatMulRequest is one entry of MatrixMultiplyBatch. A is m×k, B is k×n.
type MatMulRequest struct {
	A, B    []float32
	M, N, K int
}

// MatMulResult holds the m×n product for the request at the same index.
type MatMulResult struct {
	C       []float32
	Metrics native.Metrics
}

// PoolingRequest is one entry of MeanPoolingBatch.
type PoolingRequest struct {
	Input  []float32
	Mask   []int64
	Batch  int
	SeqLen int
	Hidden int
}

// PoolingResult holds the batch×hidden output for the request at the same
// index.
type PoolingResult struct {
	Output  []float32
	Metrics native.Metrics
}

// CosineRequest is one entry of CosineSimilarityBatch.
type CosineRequest struct {
	A, B []float32
}

// runBatch runs fn for every index in [0,n) with at most batchLimit in
// flight. The first error cancels the remaining requests and is returned.
func (r *Runtime) runBatch(ctx context.Context, op string, n int, fn func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}
	id := uuid.NewString()
	start := time.Now()
	log := r.log.With().Str("batch_id", id).Str("op", op).Logger()
	log.Debug().Int("requests", n).Msg("batch started")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.batchLimit)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error { return fn(gctx, i) })
	}
	err := g.Wait()
	if err != nil {
		log.Debug().Err(err).Dur("elapsed", time.Since(start)).Msg("batch failed")
		return err
	}
	log.Debug().Dur("elapsed", time.Since(start)).Msg("batch finished")
	return nil
}

// MatrixMultiplyBatch multiplies every request. Results are returned in
// request order.
func (r *Runtime) MatrixMultiplyBatch(ctx context.Context, reqs []MatMulRequest) ([]MatMulResult, error) {
	out := make([]MatMulResult, len(reqs))
	err := r.runBatch(ctx, OpMatrixMultiply, len(reqs), func(ctx context.Context, i int) error {
		q := reqs[i]
		if q.M > 0 && q.N > 0 {
			out[i].C = make([]float32, q.M*q.N)
		}
		m, err := r.MatrixMultiply(ctx, q.A, q.B, out[i].C, q.M, q.N, q.K)
		out[i].Metrics = m
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MeanPoolingBatch pools every request. Results are returned in request
// order.
func (r *Runtime) MeanPoolingBatch(ctx context.Context, reqs []PoolingRequest) ([]PoolingResult, error) {
	out := make([]PoolingResult, len(reqs))
	err := r.runBatch(ctx, OpMeanPooling, len(reqs), func(ctx context.Context, i int) error {
		q := reqs[i]
		if q.Batch > 0 && q.Hidden > 0 {
			out[i].Output = make([]float32, q.Batch*q.Hidden)
		}
		m, err := r.MeanPooling(ctx, q.Input, q.Mask, out[i].Output, q.Batch, q.SeqLen, q.Hidden)
		out[i].Metrics = m
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CosineSimilarityBatch scores every pair. Results are returned in request
// order.
func (r *Runtime) CosineSimilarityBatch(ctx context.Context, reqs []CosineRequest) ([]float32, error) {
	out := make([]float32, len(reqs))
	err := r.runBatch(ctx, OpCosine, len(reqs), func(ctx context.Context, i int) error {
		if err := ctx.Err(); err != nil {
			return cancelledError{op: OpCosine, err: err}
		}
		v, err := r.CosineSimilarity(reqs[i].A, reqs[i].B)
		out[i] = v
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
