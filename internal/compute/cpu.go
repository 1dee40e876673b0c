package compute

import "math"

// Float is the element constraint of the host reference kernels.
type Float interface {
	~float32 | ~float64
}

// Host reference kernels accumulate in float64 regardless of T.

func dot[T Float](a, b []T) T {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return T(sum)
}

func norm[T Float](a []T) T {
	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	return T(math.Sqrt(sum))
}

func cosine[T Float](a, b []T) T {
	var ab, aa, bb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		ab += x * y
		aa += x * x
		bb += y * y
	}
	if aa == 0 || bb == 0 {
		return 0
	}
	return T(ab / (math.Sqrt(aa) * math.Sqrt(bb)))
}

func softmax[T Float](in, out []T) {
	if len(in) == 0 {
		return
	}
	hi := float64(in[0])
	for _, v := range in[1:] {
		hi = math.Max(hi, float64(v))
	}
	var sum float64
	for i, v := range in {
		e := math.Exp(float64(v) - hi)
		out[i] = T(e)
		sum += e
	}
	for i := range out {
		out[i] = T(float64(out[i]) / sum)
	}
}

func relu[T Float](in, out []T) {
	for i, v := range in {
		if v > 0 {
			out[i] = v
		} else {
			out[i] = 0
		}
	}
}

// matmul computes c = a(m×k) · b(k×n), all row-major.
func matmul[T Float](a, b, c []T, m, n, k int) {
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var sum float64
			for p := 0; p < k; p++ {
				sum += float64(a[i*k+p]) * float64(b[p*n+j])
			}
			c[i*n+j] = T(sum)
		}
	}
}

// meanPool averages input[b,s,:] over the positions s where mask[b,s] != 0.
// Rows with no unmasked position produce zeros.
func meanPool[T Float](input []T, mask []int64, out []T, batch, seqLen, hidden int) {
	for b := 0; b < batch; b++ {
		row := out[b*hidden : (b+1)*hidden]
		count := 0
		for s := 0; s < seqLen; s++ {
			if mask[b*seqLen+s] != 0 {
				count++
			}
		}
		if count == 0 {
			for h := range row {
				row[h] = 0
			}
			continue
		}
		for h := 0; h < hidden; h++ {
			var sum float64
			for s := 0; s < seqLen; s++ {
				if mask[b*seqLen+s] != 0 {
					sum += float64(input[(b*seqLen+s)*hidden+h])
				}
			}
			row[h] = T(sum / float64(count))
		}
	}
}
