package scrape

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/contracheck/contracheck/internal/ingest"
	"github.com/contracheck/contracheck/internal/segmenter"
	"github.com/contracheck/contracheck/pkg/models"
)

// Runner fetches from providers and commits each scraped item through the
// standard ingestion path.
type Runner struct {
	registry *Registry
	ingester *ingest.Service
	log      zerolog.Logger
}

// NewRunner creates a Runner.
func NewRunner(registry *Registry, ingester *ingest.Service, log zerolog.Logger) *Runner {
	return &Runner{registry: registry, ingester: ingester, log: log}
}

// Providers lists the registered provider slugs.
func (r *Runner) Providers() []string {
	return r.registry.Slugs()
}

// RunResult summarizes one provider run.
type RunResult struct {
	Provider  string  `json:"provider"`
	Fetched   int     `json:"fetched"`
	Ingested  int     `json:"ingested"`
	SourceIDs []int64 `json:"source_ids"`
	Skipped   int     `json:"skipped"`
}

// Run fetches up to limit items from the named provider and ingests them.
// Items whose text normalizes to nothing are skipped, not fatal; other
// ingestion errors abort the run.
func (r *Runner) Run(ctx context.Context, slug string, since *time.Time, limit int) (*RunResult, error) {
	provider, err := r.registry.Get(slug)
	if err != nil {
		return nil, err
	}

	items, err := provider.Fetch(ctx, since, limit)
	if err != nil {
		return nil, err
	}

	result := &RunResult{Provider: slug, Fetched: len(items)}
	for _, item := range items {
		source := &models.Source{
			Type:        models.ScrapedSource(slug),
			Title:       item.Title,
			URL:         item.URL,
			PublishedAt: item.PublishedAt,
		}
		var sourceID int64
		var err error
		if len(item.Lines) > 0 {
			sourceID, err = r.ingester.IngestTimed(ctx, source, item.Lines)
		} else {
			sourceID, err = r.ingester.IngestText(ctx, source, item.Text)
		}
		if err != nil {
			if errors.Is(err, segmenter.ErrMalformedInput) {
				result.Skipped++
				r.log.Debug().Str("url", item.URL).Msg("skipped empty scraped item")
				continue
			}
			return nil, err
		}
		result.Ingested++
		result.SourceIDs = append(result.SourceIDs, sourceID)
	}

	r.log.Info().
		Str("provider", slug).
		Int("fetched", result.Fetched).
		Int("ingested", result.Ingested).
		Int("skipped", result.Skipped).
		Msg("scrape run complete")

	return result, nil
}
