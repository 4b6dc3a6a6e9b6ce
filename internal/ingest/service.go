// Package ingest turns raw input batches into persisted, indexed corpus
// segments. Every input origin (caption file, typed text, transcription
// output, scraper batch) takes the same path: normalize, persist atomically,
// embed, attach.
package ingest

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/contracheck/contracheck/internal/captions"
	"github.com/contracheck/contracheck/internal/embeddings"
	"github.com/contracheck/contracheck/internal/segmenter"
	"github.com/contracheck/contracheck/internal/storage"
	"github.com/contracheck/contracheck/pkg/models"
)

// EmbedderProvider supplies the shared embedder; swapped in tests.
type EmbedderProvider func() (embeddings.Embedder, error)

// Service is the ingestion pipeline.
type Service struct {
	segments storage.SegmentRepository
	embedder EmbedderProvider
	log      zerolog.Logger
}

// New creates an ingestion Service. A nil provider uses the process-wide
// embedder.
func New(segments storage.SegmentRepository, provider EmbedderProvider, log zerolog.Logger) *Service {
	if provider == nil {
		provider = embeddings.Shared
	}
	return &Service{segments: segments, embedder: provider, log: log}
}

// IngestCaptions ingests a caption file (SRT, VTT or JSONL). Malformed input
// aborts before anything is persisted.
func (s *Service) IngestCaptions(ctx context.Context, source *models.Source, filename string, r io.Reader) (int64, error) {
	lines, err := captions.Parse(filename, r)
	if err != nil {
		return 0, err
	}
	cands, err := segmenter.FromTimed(lines)
	if err != nil {
		return 0, err
	}
	if source.Type == "" {
		source.Type = models.SourceSubtitleFile
	}
	return s.commit(ctx, source, cands)
}

// IngestText ingests raw typed text, one statement per line, with no
// timestamps.
func (s *Service) IngestText(ctx context.Context, source *models.Source, raw string) (int64, error) {
	cands, err := segmenter.FromText(raw)
	if err != nil {
		return 0, err
	}
	if source.Type == "" {
		source.Type = models.SourceTypedText
	}
	return s.commit(ctx, source, cands)
}

// IngestTimed ingests pre-timed statement lines, e.g. transcription output.
func (s *Service) IngestTimed(ctx context.Context, source *models.Source, lines []segmenter.TimedLine) (int64, error) {
	cands, err := segmenter.FromTimed(lines)
	if err != nil {
		return 0, err
	}
	if source.Type == "" {
		source.Type = models.SourceTranscribed
	}
	return s.commit(ctx, source, cands)
}

// commit persists the batch atomically, then embeds and attaches vectors.
// An embedding failure after the commit is logged and left for backfill;
// the stored segments stay eligible for window expansion meanwhile.
func (s *Service) commit(ctx context.Context, source *models.Source, cands []models.SegmentCandidate) (int64, error) {
	if len(cands) == 0 {
		return 0, fmt.Errorf("%w: no statements left after normalization", segmenter.ErrMalformedInput)
	}

	sourceID, segmentIDs, err := s.segments.InsertSourceWithSegments(ctx, source, cands)
	if err != nil {
		return 0, err
	}

	s.log.Info().
		Int64("source_id", sourceID).
		Str("type", string(source.Type)).
		Int("segments", len(segmentIDs)).
		Msg("ingested source")

	if err := s.embedSegments(ctx, segmentIDs, cands); err != nil {
		s.log.Warn().Err(err).Int64("source_id", sourceID).
			Msg("embedding deferred, segments queued for backfill")
	}

	return sourceID, nil
}

func (s *Service) embedSegments(ctx context.Context, segmentIDs []int64, cands []models.SegmentCandidate) error {
	embedder, err := s.embedder()
	if err != nil {
		return err
	}

	texts := make([]string, len(cands))
	for i, c := range cands {
		texts[i] = c.Text
	}

	vectors, err := embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return err
	}

	for i, id := range segmentIDs {
		if err := s.segments.AttachEmbedding(ctx, id, vectors[i]); err != nil {
			return err
		}
	}
	return nil
}
