package clustering

import (
	"fmt"
	"sort"

	"yashubustudio/propcluster/internal/vecmath"
)

// CommunityDetector partitions vector indices into groups whose members are
// similar above threshold. Groups smaller than minSize are discarded; an index
// appears in at most one group and uncovered indices are residual.
type CommunityDetector interface {
	Detect(vectors [][]float32, minSize int, threshold float32) ([][]int, error)
}

// ThresholdDetector implements the sentence-transformers community detection
// procedure on cosine similarity.
type ThresholdDetector struct{}

// NewThresholdDetector constructs the default detector.
func NewThresholdDetector() ThresholdDetector {
	return ThresholdDetector{}
}

type neighbour struct {
	index int
	score float32
}

// Detect returns communities, largest first. Members of a community are ordered
// by similarity to the community seed, highest first.
func (ThresholdDetector) Detect(vectors [][]float32, minSize int, threshold float32) ([][]int, error) {
	if minSize < 1 {
		return nil, fmt.Errorf("%w: min community size %d", ErrInvalidInput, minSize)
	}
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: similarity threshold %v outside (0,1]", ErrInvalidInput, threshold)
	}
	n := len(vectors)
	if n == 0 {
		return nil, nil
	}
	dim := len(vectors[0])
	normalized := make([][]float32, n)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrInvalidInput, i, len(v), dim)
		}
		normalized[i] = vecmath.Normalize(v)
	}
	if minSize > n {
		minSize = n
	}

	candidates := make([][]int, 0, n)
	row := make([]neighbour, 0, n)
	for i := 0; i < n; i++ {
		row = row[:0]
		for j := 0; j < n; j++ {
			score := float32(1)
			if i != j {
				score = vecmath.Dot(normalized[i], normalized[j])
			}
			if score >= threshold {
				row = append(row, neighbour{index: j, score: score})
			}
		}
		if len(row) < minSize {
			continue
		}
		sort.SliceStable(row, func(a, b int) bool {
			if row[a].score == row[b].score {
				return row[a].index < row[b].index
			}
			return row[a].score > row[b].score
		})
		community := make([]int, len(row))
		for k, nb := range row {
			community[k] = nb.index
		}
		candidates = append(candidates, community)
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return len(candidates[a]) > len(candidates[b])
	})

	assigned := make([]bool, n)
	unique := make([][]int, 0, len(candidates))
	for _, community := range candidates {
		kept := make([]int, 0, len(community))
		for _, idx := range community {
			if !assigned[idx] {
				kept = append(kept, idx)
			}
		}
		if len(kept) < minSize {
			continue
		}
		for _, idx := range kept {
			assigned[idx] = true
		}
		unique = append(unique, kept)
	}

	sort.SliceStable(unique, func(a, b int) bool {
		return len(unique[a]) > len(unique[b])
	})
	return unique, nil
}
