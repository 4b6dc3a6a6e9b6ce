// Package detector orchestrates one detection request: retrieve candidates,
// score all (claim, candidate) pairs in a single batch, then rank with the
// threshold/margin decision policy. Detection never mutates the corpus, so
// cancelling a request mid-flight is always safe.
package detector

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/contracheck/contracheck/internal/clips"
	"github.com/contracheck/contracheck/internal/nli"
	"github.com/contracheck/contracheck/internal/retriever"
	"github.com/contracheck/contracheck/internal/segmenter"
	"github.com/contracheck/contracheck/internal/storage"
	"github.com/contracheck/contracheck/pkg/models"
)

// CandidateRetriever is the retrieval stage as the detector sees it.
type CandidateRetriever interface {
	Retrieve(ctx context.Context, claimText string, params models.DetectParams) (*retriever.Result, error)
}

// ScorerProvider supplies the shared scorer; swapped in tests.
type ScorerProvider func() (nli.Scorer, error)

// Detector runs the retrieve → score → rank pipeline.
type Detector struct {
	retriever CandidateRetriever
	sources   storage.SourceRepository
	scorer    ScorerProvider
	log       zerolog.Logger
}

// New creates a Detector. A nil provider uses the process-wide scorer.
func New(r CandidateRetriever, sources storage.SourceRepository, provider ScorerProvider, log zerolog.Logger) *Detector {
	if provider == nil {
		provider = nli.Shared
	}
	return &Detector{retriever: r, sources: sources, scorer: provider, log: log}
}

// Detect checks a claim against the corpus and returns ordered hits with
// evidence. An empty corpus yields an empty hit list; an unavailable scorer
// fails fast with nli.ErrScorerUnavailable, never fabricated scores.
func (d *Detector) Detect(ctx context.Context, claimText string, params models.DetectParams) (*models.DetectResult, error) {
	claim := segmenter.NormalizeLine(claimText)
	if claim == "" {
		return nil, fmt.Errorf("%w: empty claim", segmenter.ErrMalformedInput)
	}
	params = params.Normalize()

	// Fail fast before retrieval: a missing scorer makes the whole request
	// unanswerable, not "zero hits".
	scorer, err := d.scorer()
	if err != nil {
		return nil, err
	}

	retrieved, err := d.retriever.Retrieve(ctx, claim, params)
	if err != nil {
		return nil, err
	}

	result := &models.DetectResult{
		Claim:          claim,
		Hits:           []models.Hit{},
		Degraded:       retrieved.Degraded,
		DegradedReason: retrieved.DegradedReason,
	}
	if len(retrieved.Candidates) == 0 {
		return result, nil
	}

	texts := make([]string, len(retrieved.Candidates))
	for i, c := range retrieved.Candidates {
		texts[i] = c.Segment.Text
	}

	// One batched scoring call per request, claim first in every pair.
	scores, err := scorer.ScorePairs(ctx, claim, texts)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(texts) {
		return nil, fmt.Errorf("scorer returned %d scores for %d pairs", len(scores), len(texts))
	}

	scored := make([]ScoredCandidate, len(retrieved.Candidates))
	for i, c := range retrieved.Candidates {
		scored[i] = ScoredCandidate{Candidate: c, Scores: scores[i]}
	}

	hits := Rank(scored, params)
	if err := d.attachProvenance(ctx, hits, params); err != nil {
		return nil, err
	}

	d.log.Info().
		Str("claim", claim).
		Int("candidates", len(retrieved.Candidates)).
		Int("hits", len(hits)).
		Bool("degraded", result.Degraded).
		Msg("detection complete")

	result.Hits = hits
	return result, nil
}

// attachProvenance fills in source metadata and media clip references.
func (d *Detector) attachProvenance(ctx context.Context, hits []models.Hit, params models.DetectParams) error {
	cache := make(map[int64]*models.Source)
	for i := range hits {
		hit := &hits[i]
		source, ok := cache[hit.SourceID]
		if !ok {
			var err error
			source, err = d.sources.GetByID(ctx, hit.SourceID)
			if err != nil {
				return fmt.Errorf("fetch source %d: %w", hit.SourceID, err)
			}
			cache[hit.SourceID] = source
		}

		hit.SourceType = source.Type
		hit.SourceTitle = source.Title
		hit.SourceURL = source.URL
		hit.Clip = clips.ForSegment(&models.Segment{
			TsStartMS: hit.TsStartMS,
			TsEndMS:   hit.TsEndMS,
		}, source.MediaPath, params.WindowBeforeMS, params.WindowAfterMS, 0)
	}
	return nil
}
