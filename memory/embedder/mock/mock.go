package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// MockEmbedder is a deterministic, offline embedder for tests and demos.
// Each word is hashed onto one signed dimension (feature hashing), so texts
// that share words are closer than texts that don't.
type MockEmbedder struct {
	dimensions int
}

// New creates a new mock embedder.
func New() *MockEmbedder {
	return &MockEmbedder{
		dimensions: 384, // Match all-MiniLM-L6-v2 dimensions
	}
}

// NewWithDimensions creates a mock embedder of the given size.
func NewWithDimensions(dims int) *MockEmbedder {
	if dims < 1 {
		dims = 1
	}
	return &MockEmbedder{dimensions: dims}
}

// Embed creates a deterministic embedding from text.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embedding := make([]float32, m.dimensions)

	words := tokenize(text)
	for _, w := range words {
		h := hash(w)
		sign := float32(1)
		if h>>63 == 1 {
			sign = -1
		}
		embedding[h%uint64(m.dimensions)] += sign
	}

	if len(words) == 0 {
		// No words (empty or punctuation only): fall back to a pseudo-random
		// vector seeded by the whole text so the result is never zero.
		seed := hash(text)
		for i := 0; i < m.dimensions; i++ {
			// Simple LCG (Linear Congruential Generator)
			seed = seed*6364136223846793005 + 1442695040888963407
			embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
		}
	}

	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *MockEmbedder) Dimensions() int {
	return m.dimensions
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func hash(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}

	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v / norm
	}

	return normalized
}
