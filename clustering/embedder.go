package clustering

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"yashubustudio/propcluster/internal/vecmath"
)

// Embedder exposes the minimal surface required by the clustering stages.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Close() error
	ModelID() string
}

// Backend is a model that turns a batch of texts into order-aligned vectors.
type Backend interface {
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelID() string
	Close() error
}

// CachedEmbedder wraps a Backend with an in-memory map and an optional
// persistent VectorCache. Only cache misses reach the backend.
type CachedEmbedder struct {
	backend  Backend
	store    VectorCache
	modelID  string
	memCache map[string][]float32
	mu       sync.RWMutex
}

// NewCachedEmbedder constructs an embedder. A nil store disables persistence.
func NewCachedEmbedder(backend Backend, store VectorCache) (*CachedEmbedder, error) {
	if backend == nil {
		return nil, errors.New("embedding backend is required")
	}
	if store == nil {
		store = NopCache{}
	}
	return &CachedEmbedder{
		backend:  backend,
		store:    store,
		modelID:  backend.ModelID(),
		memCache: make(map[string][]float32),
	}, nil
}

// Close releases the backend and the persistent cache.
func (c *CachedEmbedder) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memCache = nil
	return errors.Join(c.backend.Close(), c.store.Close())
}

// ModelID returns the identifier used for cache keys.
func (c *CachedEmbedder) ModelID() string {
	return c.modelID
}

// EmbedText embeds a single string.
func (c *CachedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts embeds texts in order. Misses are sent to the backend in one batch.
func (c *CachedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}
	keys := make([]string, len(texts))
	var missTexts []string
	var missIdx []int
	pending := make(map[string][]int)
	for i, t := range texts {
		normalized := NormalizeText(t)
		key := c.cacheKey(normalized)
		keys[i] = key
		if vec := c.getFromMemory(key); vec != nil {
			out[i] = vec
			continue
		}
		vec, ok, err := c.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read vector cache: %w", err)
		}
		if ok {
			c.storeInMemory(key, vec)
			out[i] = vecmath.Clone(vec)
			continue
		}
		if idx, seen := pending[key]; seen {
			pending[key] = append(idx, i)
			continue
		}
		pending[key] = []int{i}
		missTexts = append(missTexts, normalized)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.backend.EncodeBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("%w: backend returned %d vectors for %d texts", ErrEmbeddingMismatch, len(vecs), len(missTexts))
	}
	for k, vec := range vecs {
		key := keys[missIdx[k]]
		c.storeInMemory(key, vec)
		if err := c.store.Put(ctx, key, vec); err != nil {
			return nil, fmt.Errorf("write vector cache: %w", err)
		}
		for _, i := range pending[key] {
			out[i] = vecmath.Clone(vec)
		}
	}
	return out, nil
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha1.New()
	_, _ = io.WriteString(h, c.modelID)
	_, _ = io.WriteString(h, "|")
	_, _ = io.WriteString(h, text)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *CachedEmbedder) getFromMemory(key string) []float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if vec, ok := c.memCache[key]; ok {
		return vecmath.Clone(vec)
	}
	return nil
}

func (c *CachedEmbedder) storeInMemory(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.memCache != nil {
		c.memCache[key] = vecmath.Clone(vec)
	}
}
