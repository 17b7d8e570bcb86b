package clustering

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// mapEmbedder returns fixed vectors per term and counts EmbedTexts calls.
type mapEmbedder struct {
	vectors map[string][]float32
	calls   atomic.Int64
}

func (m *mapEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *mapEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := m.vectors[t]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", t)
		}
		out[i] = append([]float32(nil), v...)
	}
	return out, nil
}

func (m *mapEmbedder) Close() error    { return nil }
func (m *mapEmbedder) ModelID() string { return "map" }

// funcDetector delegates Detect to fn.
type funcDetector struct {
	mu    sync.Mutex
	calls int
	fn    func(n, minSize int) [][]int
}

func (f *funcDetector) Detect(vectors [][]float32, minSize int, _ float32) ([][]int, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(len(vectors), minSize), nil
}

// colourVocabulary is the red/crimson/scarlet/blue example.
func colourVocabulary() (*TermStore, *mapEmbedder) {
	store, _ := FromEntries([]TermEntry{
		{Term: "red", Count: 100},
		{Term: "crimson", Count: 40},
		{Term: "scarlet", Count: 5},
		{Term: "blue", Count: 60},
	})
	emb := &mapEmbedder{vectors: map[string][]float32{
		"red":     {1, 0, 0, 0},
		"crimson": {0.9, 0.43589, 0, 0},
		"scarlet": {0.9, 0, 0.43589, 0},
		"blue":    {0, 0, 0, 1},
	}}
	return store, emb
}

func testConfig() Config {
	var cfg Config
	cfg.Frequency.FileCount = 1000
	cfg.Frequency.ThresholdPercent = 0.01
	cfg.ApplyDefaults()
	return cfg
}
