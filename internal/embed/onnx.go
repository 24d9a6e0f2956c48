// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig locates a sentence-transformer export (e.g. all-MiniLM-L6-v2)
// and the onnxruntime shared library.
type ONNXConfig struct {
	LibraryPath   string
	ModelPath     string
	TokenizerPath string
	Dimensions    int
	MaxSeqLen     int
}

var (
	ortMu   sync.Mutex
	ortInit bool
)

// initRuntime initialises the process-wide onnxruntime environment once.
func initRuntime(libraryPath string) error {
	ortMu.Lock()
	defer ortMu.Unlock()
	if ortInit || ort.IsInitialized() {
		ortInit = true
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initializing onnxruntime: %w", err)
	}
	ortInit = true
	return nil
}

// ONNX runs a transformer encoder locally and mean-pools the last hidden
// state over the attention mask. Vectors are L2-normalised. Session runs are
// serialised; the embedder is safe for concurrent use.
type ONNX struct {
	cfg     ONNXConfig
	tk      *tokenizer.Tokenizer
	session *ort.DynamicAdvancedSession

	mu sync.Mutex
}

// NewONNX loads the tokenizer and model.
func NewONNX(cfg ONNXConfig) (*ONNX, error) {
	if cfg.ModelPath == "" || cfg.TokenizerPath == "" {
		return nil, errors.New("onnx embedder: model_path and tokenizer_path are required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("onnx embedder: dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.MaxSeqLen <= 2 {
		cfg.MaxSeqLen = 256
	}
	if err := initRuntime(cfg.LibraryPath); err != nil {
		return nil, err
	}

	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer %s: %w", cfg.TokenizerPath, err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"}, nil)
	if err != nil {
		return nil, fmt.Errorf("loading onnx model %s: %w", cfg.ModelPath, err)
	}

	return &ONNX{cfg: cfg, tk: tk, session: session}, nil
}

func (o *ONNX) Dimensions() int { return o.cfg.Dimensions }

func (o *ONNX) ModelID() string {
	return fmt.Sprintf("onnx:%s:%d", filepath.Base(o.cfg.ModelPath), o.cfg.MaxSeqLen)
}

// Embed encodes texts as one padded batch.
func (o *ONNX) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	encs := make([]*tokenizer.Encoding, len(texts))
	seqLen := 0
	for i, t := range texts {
		enc, err := o.tk.EncodeSingle(t, true)
		if err != nil {
			return nil, fmt.Errorf("tokenizing text %d: %w", i, err)
		}
		encs[i] = enc
		seqLen = max(seqLen, min(len(enc.Ids), o.cfg.MaxSeqLen))
	}
	if seqLen == 0 {
		return nil, errors.New("onnx embedder: tokenizer produced no tokens")
	}

	batch := len(texts)
	ids := make([]int64, batch*seqLen)
	mask := make([]int64, batch*seqLen)
	typeIDs := make([]int64, batch*seqLen)
	for b, enc := range encs {
		n := min(len(enc.Ids), seqLen)
		for j := 0; j < n; j++ {
			idx := b*seqLen + j
			ids[idx] = int64(enc.Ids[j])
			mask[idx] = 1
			if j < len(enc.TypeIds) {
				typeIDs[idx] = int64(enc.TypeIds[j])
			}
		}
		// Keep the closing special token when truncating.
		if len(enc.Ids) > seqLen {
			ids[b*seqLen+seqLen-1] = int64(enc.Ids[len(enc.Ids)-1])
		}
	}

	hidden, err := o.run(batch, seqLen, ids, mask, typeIDs)
	if err != nil {
		return nil, err
	}

	dims := o.cfg.Dimensions
	out := make([][]float32, batch)
	for b := 0; b < batch; b++ {
		vec := make([]float32, dims)
		var count float32
		for j := 0; j < seqLen; j++ {
			if mask[b*seqLen+j] == 0 {
				continue
			}
			count++
			row := hidden[(b*seqLen+j)*dims : (b*seqLen+j+1)*dims]
			for k, x := range row {
				vec[k] += x
			}
		}
		if count > 0 {
			for k := range vec {
				vec[k] /= count
			}
		}
		Normalize(vec)
		out[b] = vec
	}
	return out, nil
}

func (o *ONNX) run(batch, seqLen int, ids, mask, typeIDs []int64) ([]float32, error) {
	shape := ort.NewShape(int64(batch), int64(seqLen))
	idsT, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("creating input_ids tensor: %w", err)
	}
	defer idsT.Destroy()
	maskT, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("creating attention_mask tensor: %w", err)
	}
	defer maskT.Destroy()
	typeT, err := ort.NewTensor(shape, typeIDs)
	if err != nil {
		return nil, fmt.Errorf("creating token_type_ids tensor: %w", err)
	}
	defer typeT.Destroy()

	outT, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(batch), int64(seqLen), int64(o.cfg.Dimensions)))
	if err != nil {
		return nil, fmt.Errorf("creating output tensor: %w", err)
	}
	defer outT.Destroy()

	o.mu.Lock()
	if o.session == nil {
		o.mu.Unlock()
		return nil, errors.New("onnx embedder is closed")
	}
	err = o.session.Run([]ort.Value{idsT, maskT, typeT}, []ort.Value{outT})
	o.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("running onnx session: %w", err)
	}

	data := outT.GetData()
	hidden := make([]float32, len(data))
	copy(hidden, data)
	return hidden, nil
}

// Close releases the session. The onnxruntime environment stays up for the
// life of the process.
func (o *ONNX) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	err := o.session.Destroy()
	o.session = nil
	return err
}
