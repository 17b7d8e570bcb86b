// Package emb runs a sentence-transformer ONNX model locally.
package emb

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

// Config locates the runtime library, the model and its tokenizer.
type Config struct {
	OrtDLL        string
	ModelPath     string
	TokenizerPath string
	MaxSeqLen     int
	// Dimension is the hidden size of last_hidden_state.
	Dimension int
	// ModelID overrides the identifier reported by ModelID.
	ModelID string
}

var (
	envMu   sync.Mutex
	envRefs int
)

// Encoder turns text into L2-normalised mean-pooled sentence embeddings.
type Encoder struct {
	cfg     Config
	tk      *tokenizer.Tokenizer
	session *ort.DynamicAdvancedSession
	mu      sync.Mutex
}

// Init loads the tokenizer and opens an ONNX session. The onnxruntime
// environment is shared between encoders and torn down with the last one.
func (e *Encoder) Init(cfg Config) error {
	if cfg.ModelPath == "" || cfg.TokenizerPath == "" {
		return errors.New("emb: model and tokenizer paths are required")
	}
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = 256
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 384
	}
	if cfg.ModelID == "" {
		cfg.ModelID = cfg.ModelPath
	}
	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return fmt.Errorf("emb: load tokenizer: %w", err)
	}
	if err := acquireEnv(cfg.OrtDLL); err != nil {
		return err
	}
	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"}, nil)
	if err != nil {
		releaseEnv()
		return fmt.Errorf("emb: open session: %w", err)
	}
	e.cfg = cfg
	e.tk = tk
	e.session = session
	return nil
}

func acquireEnv(dll string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		if dll != "" {
			ort.SetSharedLibraryPath(dll)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("emb: initialize onnxruntime: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnv() {
	envMu.Lock()
	defer envMu.Unlock()
	envRefs--
	if envRefs == 0 {
		_ = ort.DestroyEnvironment()
	}
}

// ModelID identifies the model for cache keys.
func (e *Encoder) ModelID() string {
	return e.cfg.ModelID
}

// Close releases the session.
func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	releaseEnv()
	return err
}

// EncodeBatch encodes texts in order.
func (e *Encoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := e.Encode(t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Encode embeds a single text.
func (e *Encoder) Encode(text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, errors.New("emb: encoder is not initialized")
	}
	enc, err := e.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("emb: tokenize: %w", err)
	}
	ids := truncate(enc.Ids, e.cfg.MaxSeqLen)
	typeIDs := truncate(enc.TypeIds, e.cfg.MaxSeqLen)
	seqLen := len(ids)
	if seqLen == 0 {
		return make([]float32, e.cfg.Dimension), nil
	}

	idData := make([]int64, seqLen)
	maskData := make([]int64, seqLen)
	typeData := make([]int64, seqLen)
	for i := range ids {
		idData[i] = int64(ids[i])
		maskData[i] = 1
		if i < len(typeIDs) {
			typeData[i] = int64(typeIDs[i])
		}
	}
	shape := ort.NewShape(1, int64(seqLen))
	idT, err := ort.NewTensor(shape, idData)
	if err != nil {
		return nil, err
	}
	defer idT.Destroy()
	maskT, err := ort.NewTensor(shape, maskData)
	if err != nil {
		return nil, err
	}
	defer maskT.Destroy()
	typeT, err := ort.NewTensor(shape, typeData)
	if err != nil {
		return nil, err
	}
	defer typeT.Destroy()
	outT, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(seqLen), int64(e.cfg.Dimension)))
	if err != nil {
		return nil, err
	}
	defer outT.Destroy()

	if err := e.session.Run([]ort.Value{idT, maskT, typeT}, []ort.Value{outT}); err != nil {
		return nil, fmt.Errorf("emb: run model: %w", err)
	}
	return MeanPool(outT.GetData(), maskData, e.cfg.Dimension)
}
