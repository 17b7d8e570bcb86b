package openai

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu      sync.Mutex
	batches []int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.batches = append(f.batches, len(req.Input))
	f.mu.Unlock()

	data := make([]map[string]any, len(req.Input))
	// Reverse the order to check that results are re-sorted by index.
	for i := range req.Input {
		idx := len(req.Input) - 1 - i
		data[i] = map[string]any{
			"object":    "embedding",
			"index":     idx,
			"embedding": []float64{float64(len(req.Input[idx])), 1},
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"model":  req.Model,
		"data":   data,
		"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
	})
}

func TestEncodeBatchSplitsAndOrders(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	e := NewEmbedder("test-key", WithBaseURL(srv.URL+"/v1/"), WithMaxRetries(0))
	texts := make([]string, 150)
	for i := range texts {
		texts[i] = strings.Repeat("x", i%7+1)
	}
	vecs, err := e.EncodeBatch(t.Context(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 150)
	for i, v := range vecs {
		assert.Equal(t, float32(len(texts[i])), v[0])
	}
	assert.Equal(t, []int{100, 50}, api.batches)
}

func TestEncodeBatchEmpty(t *testing.T) {
	e := NewEmbedder("test-key")
	vecs, err := e.EncodeBatch(t.Context(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestEncodeBatchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewEmbedder("test-key", WithBaseURL(srv.URL+"/v1/"), WithMaxRetries(0))
	_, err := e.EncodeBatch(t.Context(), []string{"a"})
	assert.Error(t, err)
}

func TestModelID(t *testing.T) {
	assert.Equal(t, "openai:text-embedding-3-small", NewEmbedder("k").ModelID())
	assert.Equal(t, "openai:m@256", NewEmbedder("k", WithEmbeddingModel("m"), WithEmbeddingDimension(256)).ModelID())
}
