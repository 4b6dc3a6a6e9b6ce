package retriever

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contracheck/contracheck/internal/embeddings"
	"github.com/contracheck/contracheck/internal/storage"
	"github.com/contracheck/contracheck/pkg/models"
)

type fakeStore struct {
	segments   []*models.Segment
	embeddings map[int64][]float32
	attached   map[int64][]float32
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		embeddings: make(map[int64][]float32),
		attached:   make(map[int64][]float32),
	}
}

func (f *fakeStore) add(seg *models.Segment, vec []float32) {
	f.segments = append(f.segments, seg)
	if vec != nil {
		f.embeddings[seg.ID] = vec
	}
}

func (f *fakeStore) AllWithEmbeddings(ctx context.Context) ([]storage.EmbeddedSegment, error) {
	var out []storage.EmbeddedSegment
	for _, seg := range f.segments {
		vec, ok := f.embeddings[seg.ID]
		if !ok {
			vec, ok = f.attached[seg.ID]
		}
		if ok {
			out = append(out, storage.EmbeddedSegment{Segment: seg, Embedding: vec})
		}
	}
	return out, nil
}

func (f *fakeStore) MissingEmbeddings(ctx context.Context) ([]*models.Segment, error) {
	var out []*models.Segment
	for _, seg := range f.segments {
		if _, ok := f.embeddings[seg.ID]; ok {
			continue
		}
		if _, ok := f.attached[seg.ID]; ok {
			continue
		}
		out = append(out, seg)
	}
	return out, nil
}

func (f *fakeStore) AttachEmbedding(ctx context.Context, segmentID int64, vec []float32) error {
	f.attached[segmentID] = vec
	return nil
}

func (f *fakeStore) SiblingsInWindow(ctx context.Context, sourceID, fromMS, toMS int64) ([]*models.Segment, error) {
	var out []*models.Segment
	for _, seg := range f.segments {
		if seg.SourceID != sourceID || !seg.Timed() {
			continue
		}
		if *seg.TsStartMS <= toMS && *seg.TsEndMS >= fromMS {
			out = append(out, seg)
		}
	}
	return out, nil
}

func (f *fakeStore) SearchText(ctx context.Context, query string, limit int) ([]*models.Segment, error) {
	var out []*models.Segment
	for _, seg := range f.segments {
		if len(out) == limit {
			break
		}
		if strings.Contains(strings.ToLower(seg.Text), strings.ToLower(query)) {
			out = append(out, seg)
		}
	}
	return out, nil
}

// axisEmbedder maps known texts to fixed unit vectors so cosine scores in
// tests are exact.
type axisEmbedder struct {
	vectors map[string][]float32
}

func (e *axisEmbedder) Dimension() int { return 3 }

func (e *axisEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, ok := e.vectors[text]
		if !ok {
			vec = []float32{0, 0, 1}
		}
		out[i] = vec
	}
	return out, nil
}

func provider(e embeddings.Embedder, err error) EmbedderProvider {
	return func() (embeddings.Embedder, error) { return e, err }
}

func ms(v int64) *int64 { return &v }

func timedSegment(id, sourceID int64, text string, startMS, endMS int64) *models.Segment {
	return &models.Segment{ID: id, SourceID: sourceID, Text: text, TsStartMS: ms(startMS), TsEndMS: ms(endMS)}
}

func TestRetrieveOrdersBySimilarityWithIDTieBreak(t *testing.T) {
	store := newFakeStore()
	store.add(&models.Segment{ID: 1, SourceID: 1, Text: "a"}, []float32{1, 0, 0})
	store.add(&models.Segment{ID: 2, SourceID: 1, Text: "b"}, []float32{0, 1, 0})
	store.add(&models.Segment{ID: 3, SourceID: 1, Text: "c"}, []float32{0, 1, 0})

	emb := &axisEmbedder{vectors: map[string][]float32{"the claim": {0, 1, 0}}}
	r := New(store, provider(emb, nil), zerolog.Nop())

	res, err := r.Retrieve(context.Background(), "the claim", models.DetectParams{TopK: 3})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 3)

	assert.False(t, res.Degraded)
	assert.Equal(t, int64(2), res.Candidates[0].Segment.ID)
	assert.Equal(t, int64(3), res.Candidates[1].Segment.ID)
	assert.Equal(t, int64(1), res.Candidates[2].Segment.ID)
	assert.InDelta(t, 1.0, res.Candidates[0].Similarity, 1e-9)
}

func TestRetrieveWindowExpansion(t *testing.T) {
	store := newFakeStore()
	anchor := timedSegment(1, 7, "match", 0, 1000)
	near := timedSegment(2, 7, "nearby", 1000, 2000)
	far := timedSegment(3, 7, "distant", 5000, 6000)
	store.add(anchor, []float32{0, 1, 0})
	store.add(near, []float32{1, 0, 0})
	store.add(far, []float32{1, 0, 0})

	emb := &axisEmbedder{vectors: map[string][]float32{"claim": {0, 1, 0}}}
	r := New(store, provider(emb, nil), zerolog.Nop())

	res, err := r.Retrieve(context.Background(), "claim", models.DetectParams{
		TopK:          1,
		WindowAfterMS: 1500,
	})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 2)

	assert.Equal(t, int64(1), res.Candidates[0].Segment.ID)
	assert.False(t, res.Candidates[0].Context)

	assert.Equal(t, int64(2), res.Candidates[1].Segment.ID)
	assert.True(t, res.Candidates[1].Context)
	assert.Equal(t, int64(1), res.Candidates[1].AnchorID)
	assert.Equal(t, res.Candidates[0].Similarity, res.Candidates[1].Similarity)
}

func TestRetrieveWindowExpansionSkipsUntimed(t *testing.T) {
	store := newFakeStore()
	store.add(&models.Segment{ID: 1, SourceID: 7, Text: "untimed match"}, []float32{0, 1, 0})
	store.add(timedSegment(2, 7, "timed sibling", 0, 1000), []float32{1, 0, 0})

	emb := &axisEmbedder{vectors: map[string][]float32{"claim": {0, 1, 0}}}
	r := New(store, provider(emb, nil), zerolog.Nop())

	res, err := r.Retrieve(context.Background(), "claim", models.DetectParams{
		TopK:           1,
		WindowBeforeMS: 5000,
		WindowAfterMS:  10000,
	})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, int64(1), res.Candidates[0].Segment.ID)
}

func TestRetrieveDedupesIndependentOverContext(t *testing.T) {
	store := newFakeStore()
	// Both segments match independently and sit in each other's window.
	store.add(timedSegment(1, 3, "first", 0, 1000), []float32{0, 1, 0})
	store.add(timedSegment(2, 3, "second", 1000, 2000), []float32{0, 1, 0})

	emb := &axisEmbedder{vectors: map[string][]float32{"claim": {0, 1, 0}}}
	r := New(store, provider(emb, nil), zerolog.Nop())

	res, err := r.Retrieve(context.Background(), "claim", models.DetectParams{
		TopK:           2,
		WindowBeforeMS: 5000,
		WindowAfterMS:  10000,
	})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 2)
	for _, c := range res.Candidates {
		assert.False(t, c.Context, "independent match for segment %d demoted to context", c.Segment.ID)
	}
}

func TestRetrieveEmptyCorpus(t *testing.T) {
	r := New(newFakeStore(), provider(&axisEmbedder{}, nil), zerolog.Nop())

	res, err := r.Retrieve(context.Background(), "claim", models.DetectParams{TopK: 25})
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.False(t, res.Degraded)
}

func TestRetrieveNonPositiveTopK(t *testing.T) {
	r := New(newFakeStore(), provider(&axisEmbedder{}, nil), zerolog.Nop())

	res, err := r.Retrieve(context.Background(), "claim", models.DetectParams{TopK: 0})
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
}

func TestRetrieveLexicalFallbackWhenEmbedderUnavailable(t *testing.T) {
	store := newFakeStore()
	store.add(&models.Segment{ID: 1, SourceID: 1, Text: "The sky is blue today."}, []float32{1, 0, 0})
	store.add(&models.Segment{ID: 2, SourceID: 1, Text: "Unrelated remark."}, []float32{0, 1, 0})

	r := New(store, provider(nil, embeddings.ErrUnavailable), zerolog.Nop())

	res, err := r.Retrieve(context.Background(), "sky is blue", models.DetectParams{TopK: 10})
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	assert.NotEmpty(t, res.DegradedReason)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, int64(1), res.Candidates[0].Segment.ID)
	assert.Zero(t, res.Candidates[0].Similarity)
}

// downEmbedder hands out an embedder whose every call fails, the shape of a
// backend that accepted configuration but is unreachable.
type downEmbedder struct{}

func (downEmbedder) Dimension() int { return 3 }

func (downEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, embeddings.ErrUnavailable
}

func TestRetrieveFallsBackWhenBackfillUnavailable(t *testing.T) {
	// Corpus ingested while the backend was down: segments stored, no
	// vectors. With the backend still down the outage must surface as a
	// degraded lexical result, not an empty healthy one.
	store := newFakeStore()
	store.add(&models.Segment{ID: 1, SourceID: 1, Text: "The sky is blue today."}, nil)

	r := New(store, provider(downEmbedder{}, nil), zerolog.Nop())

	res, err := r.Retrieve(context.Background(), "sky is blue", models.DetectParams{TopK: 10})
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	assert.NotEmpty(t, res.DegradedReason)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, int64(1), res.Candidates[0].Segment.ID)
}

func TestRetrieveBackfillsMissingEmbeddings(t *testing.T) {
	store := newFakeStore()
	store.add(&models.Segment{ID: 1, SourceID: 1, Text: "indexed"}, []float32{1, 0, 0})
	store.add(&models.Segment{ID: 2, SourceID: 1, Text: "pending"}, nil)

	emb := &axisEmbedder{vectors: map[string][]float32{
		"claim":   {0, 1, 0},
		"pending": {0, 1, 0},
	}}
	r := New(store, provider(emb, nil), zerolog.Nop())

	res, err := r.Retrieve(context.Background(), "claim", models.DetectParams{TopK: 5})
	require.NoError(t, err)

	require.Contains(t, store.attached, int64(2))
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, int64(2), res.Candidates[0].Segment.ID)
}
