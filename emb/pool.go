package emb

import (
	"errors"
	"math"
)

// MeanPool averages the token states of hidden (seqLen × dim, row major) over
// the positions whose mask is non-zero, then scales the result to unit length.
func MeanPool(hidden []float32, mask []int64, dim int) ([]float32, error) {
	if dim <= 0 {
		return nil, errors.New("emb: hidden dimension must be positive")
	}
	if len(hidden) != len(mask)*dim {
		return nil, errors.New("emb: hidden state size does not match attention mask")
	}
	out := make([]float32, dim)
	acc := make([]float64, dim)
	var tokens float64
	for t, m := range mask {
		if m == 0 {
			continue
		}
		tokens++
		row := hidden[t*dim : (t+1)*dim]
		for d, v := range row {
			acc[d] += float64(v)
		}
	}
	if tokens == 0 {
		return out, nil
	}
	var norm float64
	for d := range acc {
		acc[d] /= tokens
		norm += acc[d] * acc[d]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out, nil
	}
	for d := range acc {
		out[d] = float32(acc[d] / norm)
	}
	return out, nil
}

// truncate clips ids to maxLen, keeping the final (separator) token.
func truncate(ids []int, maxLen int) []int {
	if maxLen <= 0 || len(ids) <= maxLen {
		return ids
	}
	out := make([]int, maxLen)
	copy(out, ids[:maxLen-1])
	out[maxLen-1] = ids[len(ids)-1]
	return out
}
