// Package embeddings computes and serves dense vector representations for
// similarity search. Two interchangeable backends implement the Embedder
// capability: an HTTP client against an OpenAI-compatible embeddings
// endpoint, and a deterministic stub for tests and offline operation.
package embeddings

import "context"

// Embedder is the capability the retriever needs: batch text-to-vector,
// deterministic for a fixed model version, order-stable, no cross-sample
// leakage. Returned vectors are L2-normalized so cosine similarity reduces
// to a dot product. Implementations must be safe for concurrent use.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Supported embedding models and their dimensions.
const (
	ModelMiniLML6       = "sentence-transformers/all-MiniLM-L6-v2"
	ModelTextEmbedding3 = "openai/text-embedding-3-small"

	DimMiniLML6       = 384
	DimTextEmbedding3 = 1536

	DefaultModel = ModelMiniLML6
)

// ModelDimension returns the vector dimension for a given model.
func ModelDimension(model string) int {
	switch model {
	case ModelMiniLML6:
		return DimMiniLML6
	case ModelTextEmbedding3:
		return DimTextEmbedding3
	default:
		return DimMiniLML6
	}
}

// EmbeddingRequest is the wire request to the embedding API.
type EmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingResponse is the wire response from the embedding API.
type EmbeddingResponse struct {
	Data []EmbeddingData `json:"data"`
}

// EmbeddingData is a single embedding in the response, indexed so the
// client can restore input order.
type EmbeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}
