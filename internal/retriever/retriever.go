// Package retriever selects candidate segments for a claim by vector
// similarity, with temporal window expansion around timed matches and a
// lexical fallback channel when the embedding backend is down.
package retriever

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/contracheck/contracheck/internal/embeddings"
	"github.com/contracheck/contracheck/internal/similarity"
	"github.com/contracheck/contracheck/internal/storage"
	"github.com/contracheck/contracheck/pkg/models"
)

// Store is the slice of segment storage the retriever needs.
type Store interface {
	AllWithEmbeddings(ctx context.Context) ([]storage.EmbeddedSegment, error)
	MissingEmbeddings(ctx context.Context) ([]*models.Segment, error)
	AttachEmbedding(ctx context.Context, segmentID int64, vec []float32) error
	SiblingsInWindow(ctx context.Context, sourceID, fromMS, toMS int64) ([]*models.Segment, error)
	SearchText(ctx context.Context, query string, limit int) ([]*models.Segment, error)
}

// Candidate is one shortlisted segment. Context candidates were pulled in by
// window expansion and inherit their anchor's similarity; they are evidence
// context, not independent matches.
type Candidate struct {
	Segment    *models.Segment
	Similarity float64
	Context    bool
	AnchorID   int64
}

// Result is the retriever output. Degraded marks a lexical fallback so a
// thin candidate list is never mistaken for a healthy similarity search.
type Result struct {
	Candidates     []Candidate
	Degraded       bool
	DegradedReason string
}

// EmbedderProvider supplies the shared embedder; swapped in tests.
type EmbedderProvider func() (embeddings.Embedder, error)

// Retriever runs candidate selection against a segment store.
type Retriever struct {
	store    Store
	embedder EmbedderProvider
	log      zerolog.Logger
}

// New creates a Retriever. A nil provider uses the process-wide embedder.
func New(store Store, provider EmbedderProvider, log zerolog.Logger) *Retriever {
	if provider == nil {
		provider = embeddings.Shared
	}
	return &Retriever{store: store, embedder: provider, log: log}
}

// Retrieve returns the candidate shortlist for claimText. params must
// already be normalized. topK <= 0 and an empty corpus both yield an empty
// result without error.
func (r *Retriever) Retrieve(ctx context.Context, claimText string, params models.DetectParams) (*Result, error) {
	if params.TopK <= 0 {
		return &Result{}, nil
	}

	embedder, err := r.embedder()
	if err != nil {
		if errors.Is(err, embeddings.ErrUnavailable) {
			return r.lexicalFallback(ctx, claimText, params.TopK, err)
		}
		return nil, err
	}

	if err := r.backfill(ctx, embedder); err != nil {
		if errors.Is(err, embeddings.ErrUnavailable) {
			// The claim embed would fail the same way, and with nothing
			// indexed an empty result would masquerade as healthy.
			return r.lexicalFallback(ctx, claimText, params.TopK, err)
		}
		// Storage-side backfill failure leaves some segments out of the
		// similarity channel; retrieval proceeds over what is indexed.
		r.log.Warn().Err(err).Msg("embedding backfill incomplete")
	}

	indexed, err := r.store.AllWithEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	if len(indexed) == 0 {
		return &Result{}, nil
	}

	queryVecs, err := embedder.EmbedTexts(ctx, []string{claimText})
	if err != nil {
		if errors.Is(err, embeddings.ErrUnavailable) {
			return r.lexicalFallback(ctx, claimText, params.TopK, err)
		}
		return nil, err
	}
	queryVec := queryVecs[0]

	scored := make([]similarity.Scored, len(indexed))
	byID := make(map[int64]*models.Segment, len(indexed))
	for i, es := range indexed {
		scored[i] = similarity.Scored{
			ID:         es.Segment.ID,
			Similarity: similarity.Cosine(queryVec, es.Embedding),
		}
		byID[es.Segment.ID] = es.Segment
	}

	top := similarity.TopK(scored, params.TopK)

	candidates := make([]Candidate, 0, len(top))
	for _, s := range top {
		candidates = append(candidates, Candidate{
			Segment:    byID[s.ID],
			Similarity: s.Similarity,
		})
	}

	expanded, err := r.expandWindows(ctx, candidates, params)
	if err != nil {
		return nil, err
	}

	return &Result{Candidates: dedupe(append(candidates, expanded...))}, nil
}

// backfill embeds segments that are missing vectors (model upgrade, prior
// failure) and attaches them before similarity search.
func (r *Retriever) backfill(ctx context.Context, embedder embeddings.Embedder) error {
	missing, err := r.store.MissingEmbeddings(ctx)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}

	texts := make([]string, len(missing))
	for i, seg := range missing {
		texts[i] = seg.Text
	}

	vectors, err := embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed backfill batch: %w", err)
	}

	for i, seg := range missing {
		if err := r.store.AttachEmbedding(ctx, seg.ID, vectors[i]); err != nil {
			return fmt.Errorf("attach embedding for segment %d: %w", seg.ID, err)
		}
	}

	r.log.Debug().Int("segments", len(missing)).Msg("backfilled embeddings")
	return nil
}

// expandWindows pulls temporal siblings around each timed match. Siblings
// inherit the anchor's similarity and are marked as context. Both windows at
// zero means expansion was requested off and skips the sibling query outright
// rather than running a zero-width interval lookup.
func (r *Retriever) expandWindows(ctx context.Context, anchors []Candidate, params models.DetectParams) ([]Candidate, error) {
	if params.WindowBeforeMS == 0 && params.WindowAfterMS == 0 {
		return nil, nil
	}

	var expanded []Candidate
	for _, anchor := range anchors {
		seg := anchor.Segment
		if !seg.Timed() {
			continue
		}

		from := *seg.TsStartMS - params.WindowBeforeMS
		to := *seg.TsEndMS + params.WindowAfterMS
		siblings, err := r.store.SiblingsInWindow(ctx, seg.SourceID, from, to)
		if err != nil {
			return nil, err
		}

		for _, sib := range siblings {
			if sib.ID == seg.ID {
				continue
			}
			expanded = append(expanded, Candidate{
				Segment:    sib,
				Similarity: anchor.Similarity,
				Context:    true,
				AnchorID:   seg.ID,
			})
		}
	}
	return expanded, nil
}

// lexicalFallback serves the degraded channel: exact-substring retrieval
// with no similarity scores, explicitly marked.
func (r *Retriever) lexicalFallback(ctx context.Context, claimText string, topK int, cause error) (*Result, error) {
	r.log.Warn().Err(cause).Msg("embedding backend unavailable, using lexical retrieval")

	segments, err := r.store.SearchText(ctx, claimText, topK)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(segments))
	for _, seg := range segments {
		candidates = append(candidates, Candidate{Segment: seg})
	}

	return &Result{
		Candidates:     candidates,
		Degraded:       true,
		DegradedReason: "embedding backend unavailable; lexical retrieval only",
	}, nil
}

// dedupe collapses candidates by segment id, keeping the highest similarity
// seen and preferring independent matches over context siblings.
func dedupe(candidates []Candidate) []Candidate {
	seen := make(map[int64]int)
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		idx, ok := seen[c.Segment.ID]
		if !ok {
			seen[c.Segment.ID] = len(out)
			out = append(out, c)
			continue
		}
		kept := &out[idx]
		if c.Similarity > kept.Similarity {
			kept.Similarity = c.Similarity
		}
		if kept.Context && !c.Context {
			kept.Context = false
			kept.AnchorID = 0
		}
	}
	return out
}
