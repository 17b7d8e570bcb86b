package emb

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanPoolIgnoresMaskedTokens(t *testing.T) {
	hidden := []float32{
		3, 0,
		1, 0,
		100, 100,
	}
	vec, err := MeanPool(hidden, []int64{1, 1, 0}, 2)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, vec[0], 1e-6)
	assert.InDelta(t, 0.0, vec[1], 1e-6)
}

func TestMeanPoolUnitLength(t *testing.T) {
	vec, err := MeanPool([]float32{1, 2, 3, 4, 5, 6}, []int64{1, 1}, 3)
	require.NoError(t, err)
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
}

func TestMeanPoolAllMaskedIsZero(t *testing.T) {
	vec, err := MeanPool([]float32{1, 2}, []int64{0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0}, vec)
}

func TestMeanPoolRejectsShapeMismatch(t *testing.T) {
	_, err := MeanPool([]float32{1, 2, 3}, []int64{1}, 2)
	assert.Error(t, err)
	_, err = MeanPool(nil, nil, 0)
	assert.Error(t, err)
}

func TestTruncateKeepsSeparator(t *testing.T) {
	assert.Equal(t, []int{101, 7, 102}, truncate([]int{101, 7, 8, 9, 102}, 3))
	assert.Equal(t, []int{1, 2}, truncate([]int{1, 2}, 5))
	assert.Equal(t, []int{1, 2}, truncate([]int{1, 2}, 0))
}
