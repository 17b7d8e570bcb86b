package clustering

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceColourExample(t *testing.T) {
	store, emb := colourVocabulary()
	svc, err := NewService(emb, nil, testConfig(), zerolog.Nop())
	require.NoError(t, err)

	res, err := svc.Run(t.Context(), store)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.InDelta(t, 10.0, res.Threshold, 1e-9)
	assert.Equal(t, []Row{
		{ClusterID: 1, ClusterTotalFrequency: 105, MemberCount: 2, Term: "red", Count: 100},
		{ClusterID: 1, ClusterTotalFrequency: 105, MemberCount: 2, Term: "scarlet", Count: 5},
		{ClusterID: 2, ClusterTotalFrequency: 60, MemberCount: 1, Term: "blue", Count: 60},
		{ClusterID: 3, ClusterTotalFrequency: 40, MemberCount: 1, Term: "crimson", Count: 40},
	}, res.Rows)
	assert.Equal(t, 3, res.Summary.NumberedClusters)
}

func TestServiceEmptyStore(t *testing.T) {
	svc, err := NewService(&mapEmbedder{}, nil, testConfig(), zerolog.Nop())
	require.NoError(t, err)
	res, err := svc.Run(t.Context(), NewTermStore())
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
}

func TestServiceRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Cluster.PrimaryThreshold = 1.5
	_, err := NewService(&mapEmbedder{}, nil, cfg, zerolog.Nop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// axisVocabulary builds groups of terms near distinct axes plus a few loners,
// with counts spread around the default threshold.
func axisVocabulary() (*TermStore, *mapEmbedder) {
	const dim = 12
	store := NewTermStore()
	emb := &mapEmbedder{vectors: map[string][]float32{}}
	count := 0
	for axis := 0; axis < 5; axis++ {
		for k := 0; k < 4; k++ {
			term := fmt.Sprintf("g%d_t%d", axis, k)
			vec := make([]float32, dim)
			vec[axis] = 1
			vec[5+k] = 0.2 + 0.15*float32(k)
			emb.vectors[term] = vec
			count = (count*7 + 13) % 41
			_ = store.Add(term, count)
		}
	}
	for i := 0; i < 3; i++ {
		term := fmt.Sprintf("loner%d", i)
		vec := make([]float32, dim)
		vec[9+i] = 1
		emb.vectors[term] = vec
		_ = store.Add(term, 4+i*20)
	}
	return store, emb
}

func TestServicePartitionAndConservation(t *testing.T) {
	store, emb := axisVocabulary()
	svc, err := NewService(emb, nil, testConfig(), zerolog.Nop())
	require.NoError(t, err)
	res, err := svc.Run(t.Context(), store)
	require.NoError(t, err)

	seen := map[string]int{}
	total := 0
	for _, r := range res.Rows {
		seen[r.Term]++
		total += r.Count
	}
	for _, term := range store.Terms() {
		assert.Equal(t, 1, seen[term], term)
	}
	assert.Len(t, seen, store.Len())
	assert.Equal(t, store.Total(), total)

	prevID, prevTotal := 0, math.MaxInt
	for _, r := range res.Rows {
		if r.Others || r.ClusterID == prevID {
			continue
		}
		assert.Equal(t, prevID+1, r.ClusterID)
		assert.LessOrEqual(t, r.ClusterTotalFrequency, prevTotal)
		prevID, prevTotal = r.ClusterID, r.ClusterTotalFrequency
	}
}

func TestServiceWorkersProduceIdenticalOutput(t *testing.T) {
	run := func(workers int) *Result {
		store, emb := axisVocabulary()
		cfg := testConfig()
		cfg.Cluster.Workers = workers
		svc, err := NewService(emb, nil, cfg, zerolog.Nop())
		require.NoError(t, err)
		res, err := svc.Run(t.Context(), store)
		require.NoError(t, err)
		return res
	}
	sequential := run(1)
	parallel := run(4)
	assert.Equal(t, sequential.Primary, parallel.Primary)
	assert.Equal(t, sequential.Final, parallel.Final)
	assert.Equal(t, sequential.Rows, parallel.Rows)
}

func droppingDetector() *funcDetector {
	return &funcDetector{fn: func(n, minSize int) [][]int {
		if minSize == 1 {
			return nil
		}
		return [][]int{{0, 2}}
	}}
}

func TestServiceRedirectsDroppedMembers(t *testing.T) {
	store, _ := FromEntries([]TermEntry{{"a", 50}, {"b", 3}, {"c", 20}})
	emb := &mapEmbedder{vectors: map[string][]float32{"a": {1, 0}, "b": {0, 1}, "c": {1, 0}}}
	svc, err := NewService(emb, droppingDetector(), testConfig(), zerolog.Nop())
	require.NoError(t, err)

	res, err := svc.Run(t.Context(), store)
	require.NoError(t, err)
	assert.Empty(t, res.Final)
	assert.Equal(t, []UnclusteredItem{{"a", 50}, {"b", 3}, {"c", 20}}, res.Unclustered)
	assert.Equal(t, []Row{
		{ClusterID: 1, ClusterTotalFrequency: 50, MemberCount: 1, Term: "a", Count: 50},
		{ClusterID: 2, ClusterTotalFrequency: 20, MemberCount: 1, Term: "c", Count: 20},
		{Others: true, ClusterTotalFrequency: 3, MemberCount: 1, Term: "b", Count: 3},
	}, res.Rows)
}

func TestServiceCanDropMembers(t *testing.T) {
	store, _ := FromEntries([]TermEntry{{"a", 50}, {"b", 3}, {"c", 20}})
	emb := &mapEmbedder{vectors: map[string][]float32{"a": {1, 0}, "b": {0, 1}, "c": {1, 0}}}
	cfg := testConfig()
	redirect := false
	cfg.Cluster.RedirectDropped = &redirect
	svc, err := NewService(emb, droppingDetector(), cfg, zerolog.Nop())
	require.NoError(t, err)

	res, err := svc.Run(t.Context(), store)
	require.NoError(t, err)
	assert.Equal(t, []Row{{Others: true, ClusterTotalFrequency: 3, MemberCount: 1, Term: "b", Count: 3}}, res.Rows)
}

func TestServiceCancelledContext(t *testing.T) {
	store, emb := axisVocabulary()
	svc, err := NewService(emb, nil, testConfig(), zerolog.Nop())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = svc.Run(ctx, store)
	assert.ErrorIs(t, err, context.Canceled)
}
