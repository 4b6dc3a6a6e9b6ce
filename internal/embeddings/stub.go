package embeddings

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/contracheck/contracheck/internal/similarity"
)

// StubEmbedder is a deterministic, model-free Embedder for tests and offline
// operation. Each token hashes into a fixed number of buckets; texts sharing
// tokens end up with high cosine similarity. Vectors are L2-normalized and
// independent of batch grouping.
type StubEmbedder struct {
	dim int
}

// NewStubEmbedder creates a stub embedder with the given dimension.
// dim <= 0 falls back to the default model dimension.
func NewStubEmbedder(dim int) *StubEmbedder {
	if dim <= 0 {
		dim = DimMiniLML6
	}
	return &StubEmbedder{dim: dim}
}

// Dimension returns the configured vector dimension.
func (e *StubEmbedder) Dimension() int {
	return e.dim
}

// EmbedTexts generates one hashed bag-of-tokens vector per text.
func (e *StubEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *StubEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?\"'()")
		if tok == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%uint32(e.dim)] += 1
	}
	similarity.Normalize(vec)
	return vec
}
