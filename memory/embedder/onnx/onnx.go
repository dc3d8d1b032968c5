//go:build onnx

// Package onnx runs a sentence-transformer model (all-MiniLM-L6-v2 by
// default) locally through ONNX Runtime, for installations without network
// access to an embedding service.
package onnx

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// DefaultDimensions is the hidden size of all-MiniLM-L6-v2.
	DefaultDimensions = 384
	// maxSequence is the token window fed to the model.
	maxSequence = 128
)

// Config configures the ONNX embedder.
type Config struct {
	// ModelPath is the .onnx model file.
	ModelPath string
	// TokenizerPath is the HuggingFace tokenizer.json next to the model.
	TokenizerPath string
	// SharedLibraryPath points at libonnxruntime. Empty uses the loader's
	// search path.
	SharedLibraryPath string
	// Dimensions is the embedding size (default 384).
	Dimensions int
}

var initOnce struct {
	sync.Once
	err error
}

func initRuntime(libPath string) error {
	initOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			initOnce.err = goerr.Wrap(err, "failed to initialize onnx runtime")
		}
	})
	return initOnce.err
}

// Embedder produces mean-pooled, normalized sentence embeddings.
type Embedder struct {
	session    *ort.DynamicAdvancedSession
	vocab      *vocabulary
	dimensions int

	mu sync.Mutex // sessions are not safe for concurrent Run
}

// New loads the model and tokenizer.
func New(cfg Config) (*Embedder, error) {
	if cfg.ModelPath == "" {
		return nil, goerr.New("onnx model path is required")
	}
	if cfg.TokenizerPath == "" {
		cfg.TokenizerPath = strings.TrimSuffix(cfg.ModelPath, "model.onnx") + "tokenizer.json"
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}

	if err := initRuntime(cfg.SharedLibraryPath); err != nil {
		return nil, err
	}

	vocab, err := loadVocabulary(cfg.TokenizerPath)
	if err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create onnx session", goerr.V("model", cfg.ModelPath))
	}

	slog.Debug("onnx embedder ready", "model", cfg.ModelPath, "dimensions", cfg.Dimensions)
	return &Embedder{
		session:    session,
		vocab:      vocab,
		dimensions: cfg.Dimensions,
	}, nil
}

// Embed implements memory.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, mask := e.vocab.encode(text, maxSequence)
	types := make([]int64, maxSequence)

	shape := ort.NewShape(1, maxSequence)
	inputs := make([]ort.Value, 0, 3)
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, data := range [][]int64{ids, mask, types} {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create input tensor")
		}
		inputs = append(inputs, t)
	}

	outputs := []ort.Value{nil}
	e.mu.Lock()
	err := e.session.Run(inputs, outputs)
	e.mu.Unlock()
	if err != nil {
		return nil, goerr.Wrap(err, "onnx inference failed")
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, goerr.New("unexpected onnx output tensor type")
	}
	vec, err := pool(out.GetData(), out.GetShape(), mask, e.dimensions)
	if err != nil {
		return nil, err
	}
	return normalize(vec), nil
}

// Dimensions implements memory.Embedder.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Close releases the session.
func (e *Embedder) Close() error {
	if e.session == nil {
		return nil
	}
	return e.session.Destroy()
}

// pool reduces model output to one vector. Output is either already pooled
// ([1, dims]) or per token ([1, seq, dims]), in which case attended tokens
// are averaged.
func pool(data []float32, shape ort.Shape, mask []int64, dims int) ([]float32, error) {
	switch len(shape) {
	case 2:
		if len(data) < dims {
			return nil, goerr.New("onnx output too small", goerr.V("got", len(data)), goerr.V("want", dims))
		}
		return append([]float32(nil), data[:dims]...), nil

	case 3:
		if shape[0] != 1 || shape[2] != int64(dims) {
			return nil, goerr.New("unexpected onnx output shape", goerr.V("shape", shape))
		}
		vec := make([]float32, dims)
		var attended float32
		for i := 0; i < int(shape[1]) && i < len(mask); i++ {
			if mask[i] == 0 {
				continue
			}
			attended++
			row := data[i*dims : (i+1)*dims]
			for j, v := range row {
				vec[j] += v
			}
		}
		if attended > 0 {
			for j := range vec {
				vec[j] /= attended
			}
		}
		return vec, nil
	}
	return nil, goerr.New("unexpected onnx output shape", goerr.V("shape", shape))
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}

// vocabulary is a minimal WordPiece tokenizer over a BERT vocab.
type vocabulary struct {
	ids map[string]int
	cls int64
	sep int64
	unk int64
}

func loadVocabulary(path string) (*vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read tokenizer", goerr.V("path", path))
	}

	var tok struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, goerr.Wrap(err, "failed to decode tokenizer", goerr.V("path", path))
	}
	if len(tok.Model.Vocab) == 0 {
		return nil, goerr.New("tokenizer has no vocabulary", goerr.V("path", path))
	}

	v := &vocabulary{ids: tok.Model.Vocab, cls: 101, sep: 102, unk: 100}
	if id, ok := v.ids["[CLS]"]; ok {
		v.cls = int64(id)
	}
	if id, ok := v.ids["[SEP]"]; ok {
		v.sep = int64(id)
	}
	if id, ok := v.ids["[UNK]"]; ok {
		v.unk = int64(id)
	}
	return v, nil
}

// encode returns input ids and attention mask of length n, framed by
// [CLS] and [SEP] and truncated to fit.
func (v *vocabulary) encode(text string, n int) ([]int64, []int64) {
	ids := make([]int64, n)
	mask := make([]int64, n)

	tokens := v.tokenize(text)
	if len(tokens) > n-2 {
		tokens = tokens[:n-2]
	}

	ids[0], mask[0] = v.cls, 1
	for i, t := range tokens {
		ids[i+1], mask[i+1] = t, 1
	}
	end := len(tokens) + 1
	ids[end], mask[end] = v.sep, 1
	return ids, mask
}

func (v *vocabulary) tokenize(text string) []int64 {
	var out []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if word == "" {
			continue
		}
		if id, ok := v.ids[word]; ok {
			out = append(out, int64(id))
			continue
		}
		out = append(out, v.wordPiece(word)...)
	}
	return out
}

// wordPiece splits word greedily into the longest known pieces.
func (v *vocabulary) wordPiece(word string) []int64 {
	var out []int64
	for start := 0; start < len(word); {
		end := len(word)
		matched := false
		for ; end > start; end-- {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := v.ids[piece]; ok {
				out = append(out, int64(id))
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, v.unk)
			start++
			continue
		}
		start = end
	}
	return out
}
