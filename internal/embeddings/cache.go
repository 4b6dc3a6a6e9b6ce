package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	defaultCacheTTL     = 12 * time.Hour
	defaultCacheCleanup = 30 * time.Minute
)

// cacheKey derives the cache key from model and text. Embeddings are
// deterministic per model version, so the pair fully identifies the vector.
func cacheKey(model, text string) string {
	h := sha256.Sum256([]byte(model + ":" + text))
	return hex.EncodeToString(h[:])[:16]
}

// CachedEmbedder wraps an Embedder with an in-memory TTL cache so repeated
// claims and backfill passes do not re-embed identical text.
type CachedEmbedder struct {
	inner Embedder
	model string
	cache *gocache.Cache
}

// NewCachedEmbedder creates a caching wrapper around inner. The model string
// namespaces the keys.
func NewCachedEmbedder(inner Embedder, model string) *CachedEmbedder {
	return &CachedEmbedder{
		inner: inner,
		model: model,
		cache: gocache.New(defaultCacheTTL, defaultCacheCleanup),
	}
}

// Dimension returns the wrapped embedder's dimension.
func (c *CachedEmbedder) Dimension() int {
	return c.inner.Dimension()
}

// EmbedTexts serves cached vectors where possible and embeds only the
// misses, preserving input order.
func (c *CachedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		if v, ok := c.cache.Get(cacheKey(c.model, text)); ok {
			results[i] = v.([]float32)
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		vectors, err := c.inner.EmbedTexts(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, idx := range missIdx {
			results[idx] = vectors[j]
			c.cache.SetDefault(cacheKey(c.model, texts[idx]), vectors[j])
		}
	}

	return results, nil
}
