package scrape

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/contracheck/contracheck/internal/segmenter"
)

const defaultTimedTextURL = "https://www.youtube.com/api/timedtext"

// TranscriptProvider scrapes the published caption tracks of a fixed set of
// YouTube videos and emits them as timed statement lines, one item per
// video. Videos without a caption track in the requested language yield no
// item. The since filter does not apply: the timedtext endpoint carries no
// publication date.
type TranscriptProvider struct {
	slug       string
	baseURL    string
	lang       string
	videoIDs   []string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewTranscriptProvider creates a transcript provider over the given video
// IDs, fetching English tracks.
func NewTranscriptProvider(slug string, videoIDs []string) *TranscriptProvider {
	return &TranscriptProvider{
		slug:       slug,
		baseURL:    defaultTimedTextURL,
		lang:       "en",
		videoIDs:   videoIDs,
		httpClient: &http.Client{Timeout: defaultFeedTimeout},
		limiter:    rate.NewLimiter(defaultFeedRate, 1),
	}
}

// WithBaseURL redirects transcript fetches; used in tests.
func (p *TranscriptProvider) WithBaseURL(base string) *TranscriptProvider {
	p.baseURL = base
	return p
}

// Slug returns the provider slug.
func (p *TranscriptProvider) Slug() string {
	return p.slug
}

// timedText is the YouTube timedtext track document. Start and dur are
// seconds; cue bodies carry HTML entities.
type timedText struct {
	Texts []struct {
		Start float64 `xml:"start,attr"`
		Dur   float64 `xml:"dur,attr"`
		Body  string  `xml:",chardata"`
	} `xml:"text"`
}

// Fetch downloads the caption track of each configured video. limit > 0 caps
// the number of videos fetched.
func (p *TranscriptProvider) Fetch(ctx context.Context, since *time.Time, limit int) ([]Item, error) {
	ids := p.videoIDs
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	var items []Item
	for _, id := range ids {
		lines, err := p.fetchTrack(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("video %s: %w", id, err)
		}
		if len(lines) == 0 {
			continue
		}
		items = append(items, Item{
			URL:   "https://www.youtube.com/watch?v=" + id,
			Title: "YouTube transcript " + id,
			Lines: lines,
		})
	}
	return items, nil
}

func (p *TranscriptProvider) fetchTrack(ctx context.Context, videoID string) ([]segmenter.TimedLine, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{"v": {videoID}, "lang": {p.lang}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch transcript: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch transcript: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	// The endpoint answers an empty 200 for videos without a track.
	if len(body) == 0 {
		return nil, nil
	}

	var track timedText
	if err := xml.Unmarshal(body, &track); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}

	lines := make([]segmenter.TimedLine, 0, len(track.Texts))
	for _, cue := range track.Texts {
		startMS := int64(math.Round(cue.Start * 1000))
		lines = append(lines, segmenter.TimedLine{
			Text:    html.UnescapeString(cue.Body),
			StartMS: startMS,
			EndMS:   startMS + int64(math.Round(cue.Dur*1000)),
		})
	}
	return lines, nil
}
