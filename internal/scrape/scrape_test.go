package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contracheck/contracheck/internal/embeddings"
	"github.com/contracheck/contracheck/internal/ingest"
	"github.com/contracheck/contracheck/internal/segmenter"
	"github.com/contracheck/contracheck/internal/storage"
	"github.com/contracheck/contracheck/pkg/models"
)

type staticProvider struct {
	slug  string
	items []Item
	err   error
}

func (p *staticProvider) Slug() string { return p.slug }

func (p *staticProvider) Fetch(ctx context.Context, since *time.Time, limit int) ([]Item, error) {
	if p.err != nil {
		return nil, p.err
	}
	items := p.items
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func TestRegistryGetAndSlugs(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&staticProvider{slug: "whitehouse"})
	reg.Register(&staticProvider{slug: "campaign"})

	assert.Equal(t, []string{"campaign", "whitehouse"}, reg.Slugs())

	p, err := reg.Get("campaign")
	require.NoError(t, err)
	assert.Equal(t, "campaign", p.Slug())

	_, err = reg.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestRegistryDuplicateSlugPanics(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&staticProvider{slug: "dup"})
	assert.Panics(t, func() {
		reg.Register(&staticProvider{slug: "dup"})
	})
}

const rssBody = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <item>
      <title>Budget &lt;b&gt;statement&lt;/b&gt;</title>
      <link>https://example.com/budget</link>
      <pubDate>Mon, 02 Jan 2006 15:04:05 -0700</pubDate>
      <description>&lt;p&gt;Taxes will not rise this year.&lt;/p&gt;</description>
    </item>
    <item>
      <title>Empty one</title>
      <link>https://example.com/empty</link>
      <description></description>
    </item>
  </channel>
</rss>`

func TestFeedProviderFetchRSS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rssBody))
	}))
	defer srv.Close()

	p := NewFeedProvider("press", srv.URL)
	items, err := p.Fetch(context.Background(), nil, 0)
	require.NoError(t, err)
	require.Len(t, items, 1, "items without text are dropped")

	assert.Equal(t, "https://example.com/budget", items[0].URL)
	assert.Equal(t, "Budget statement", items[0].Title)
	assert.Equal(t, "Taxes will not rise this year.", items[0].Text)
	require.NotNil(t, items[0].PublishedAt)
	assert.Equal(t, 2006, items[0].PublishedAt.Year())
}

func TestFeedProviderSinceFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rssBody))
	}))
	defer srv.Close()

	p := NewFeedProvider("press", srv.URL)
	since := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	items, err := p.Fetch(context.Background(), &since, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFeedProviderFetchAtom(t *testing.T) {
	atom := `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <title>Statement</title>
    <link href="https://example.com/a"/>
    <updated>2026-08-01T12:00:00Z</updated>
    <content>We will balance the budget.</content>
  </entry>
</feed>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(atom))
	}))
	defer srv.Close()

	p := NewFeedProvider("press", srv.URL)
	items, err := p.Fetch(context.Background(), nil, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://example.com/a", items[0].URL)
	assert.Equal(t, "We will balance the budget.", items[0].Text)
}

func TestFeedProviderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewFeedProvider("press", srv.URL)
	_, err := p.Fetch(context.Background(), nil, 0)
	assert.Error(t, err)
}

func TestRunnerUnknownProvider(t *testing.T) {
	r := NewRunner(NewRegistry(), nil, zerolog.Nop())
	_, err := r.Run(context.Background(), "ghost", nil, 0)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestRunnerPropagatesFetchError(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&staticProvider{slug: "broken", err: errors.New("feed down")})

	r := NewRunner(reg, nil, zerolog.Nop())
	_, err := r.Run(context.Background(), "broken", nil, 0)
	assert.Error(t, err)
}

type memRepo struct {
	nextSourceID int64
	nextSegID    int64
	sources      []*models.Source
	candidates   [][]models.SegmentCandidate
}

func (m *memRepo) InsertSourceWithSegments(ctx context.Context, source *models.Source, candidates []models.SegmentCandidate) (int64, []int64, error) {
	m.nextSourceID++
	m.sources = append(m.sources, source)
	m.candidates = append(m.candidates, candidates)
	ids := make([]int64, len(candidates))
	for i := range candidates {
		m.nextSegID++
		ids[i] = m.nextSegID
	}
	return m.nextSourceID, ids, nil
}

func (m *memRepo) GetByID(ctx context.Context, id int64) (*models.Segment, error) { return nil, nil }
func (m *memRepo) ListBySource(ctx context.Context, sourceID int64) ([]*models.Segment, error) {
	return nil, nil
}
func (m *memRepo) SiblingsInWindow(ctx context.Context, sourceID, fromMS, toMS int64) ([]*models.Segment, error) {
	return nil, nil
}
func (m *memRepo) AttachEmbedding(ctx context.Context, segmentID int64, vec []float32) error {
	return nil
}
func (m *memRepo) MissingEmbeddings(ctx context.Context) ([]*models.Segment, error) {
	return nil, nil
}
func (m *memRepo) AllWithEmbeddings(ctx context.Context) ([]storage.EmbeddedSegment, error) {
	return nil, nil
}
func (m *memRepo) SearchText(ctx context.Context, query string, limit int) ([]*models.Segment, error) {
	return nil, nil
}
func (m *memRepo) Count(ctx context.Context) (int64, error) { return 0, nil }
func (m *memRepo) Reset(ctx context.Context) error          { return nil }

func TestRunnerIngestsAndSkipsEmptyItems(t *testing.T) {
	reg := NewRegistry()
	published := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	reg.Register(&staticProvider{slug: "press", items: []Item{
		{URL: "https://example.com/a", Title: "A", Text: "Taxes will not rise.", PublishedAt: &published},
		{URL: "https://example.com/b", Title: "B", Text: "[inaudible]"},
	}})

	repo := &memRepo{}
	stub := embeddings.NewStubEmbedder(16)
	ingester := ingest.New(repo, func() (embeddings.Embedder, error) { return stub, nil }, zerolog.Nop())

	r := NewRunner(reg, ingester, zerolog.Nop())
	res, err := r.Run(context.Background(), "press", nil, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 1, res.Ingested)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.SourceIDs, 1)

	require.Len(t, repo.sources, 1)
	assert.Equal(t, models.ScrapedSource("press"), repo.sources[0].Type)
	assert.Equal(t, "https://example.com/a", repo.sources[0].URL)
	assert.Equal(t, &published, repo.sources[0].PublishedAt)
}

const timedTextBody = `<?xml version="1.0" encoding="utf-8"?>
<transcript>
  <text start="1.5" dur="2.5">Taxes will not rise.</text>
  <text start="4.0" dur="3.2">We won&amp;#39;t cut spending either.</text>
</transcript>`

func TestTranscriptProviderFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "en", r.URL.Query().Get("lang"))
		switch r.URL.Query().Get("v") {
		case "abc123":
			w.Write([]byte(timedTextBody))
		case "nocaps":
			// No caption track answers an empty 200.
		default:
			t.Errorf("unexpected video id %q", r.URL.Query().Get("v"))
		}
	}))
	defer srv.Close()

	p := NewTranscriptProvider("youtube", []string{"abc123", "nocaps"}).WithBaseURL(srv.URL)
	items, err := p.Fetch(context.Background(), nil, 0)
	require.NoError(t, err)
	require.Len(t, items, 1, "videos without a track are dropped")

	assert.Equal(t, "https://www.youtube.com/watch?v=abc123", items[0].URL)
	assert.Empty(t, items[0].Text)
	require.Len(t, items[0].Lines, 2)

	assert.Equal(t, "Taxes will not rise.", items[0].Lines[0].Text)
	assert.Equal(t, int64(1500), items[0].Lines[0].StartMS)
	assert.Equal(t, int64(4000), items[0].Lines[0].EndMS)
	assert.Equal(t, "We won't cut spending either.", items[0].Lines[1].Text)
}

func TestTranscriptProviderLimitCapsVideos(t *testing.T) {
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.Query().Get("v"))
		w.Write([]byte(timedTextBody))
	}))
	defer srv.Close()

	p := NewTranscriptProvider("youtube", []string{"one", "two", "three"}).WithBaseURL(srv.URL)
	items, err := p.Fetch(context.Background(), nil, 1)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, []string{"one"}, requested)
}

func TestTranscriptProviderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewTranscriptProvider("youtube", []string{"abc"}).WithBaseURL(srv.URL)
	_, err := p.Fetch(context.Background(), nil, 0)
	assert.Error(t, err)
}

func TestRunnerIngestsTimedLines(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&staticProvider{slug: "youtube", items: []Item{
		{
			URL:   "https://www.youtube.com/watch?v=abc123",
			Title: "YouTube transcript abc123",
			Lines: []segmenter.TimedLine{
				{Text: "Taxes will not rise.", StartMS: 1500, EndMS: 4000},
			},
		},
	}})

	repo := &memRepo{}
	stub := embeddings.NewStubEmbedder(16)
	ingester := ingest.New(repo, func() (embeddings.Embedder, error) { return stub, nil }, zerolog.Nop())

	r := NewRunner(reg, ingester, zerolog.Nop())
	res, err := r.Run(context.Background(), "youtube", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Ingested)

	require.Len(t, repo.sources, 1)
	assert.Equal(t, models.ScrapedSource("youtube"), repo.sources[0].Type)

	require.Len(t, repo.candidates, 1)
	require.Len(t, repo.candidates[0], 1)
	cand := repo.candidates[0][0]
	assert.Equal(t, "Taxes will not rise.", cand.Text)
	require.NotNil(t, cand.TsStartMS)
	assert.Equal(t, int64(1500), *cand.TsStartMS)
	require.NotNil(t, cand.TsEndMS)
	assert.Equal(t, int64(4000), *cand.TsEndMS)
}

func TestRunnerProviders(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&staticProvider{slug: "b"})
	reg.Register(&staticProvider{slug: "a"})

	r := NewRunner(reg, nil, zerolog.Nop())
	assert.Equal(t, []string{"a", "b"}, r.Providers())
}
