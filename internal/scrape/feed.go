package scrape

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/k3a/html2text"
	"golang.org/x/time/rate"
)

const (
	defaultFeedTimeout = 30 * time.Second
	// One request per second keeps the provider polite toward feed hosts.
	defaultFeedRate = rate.Limit(1)
)

// FeedProvider scrapes an RSS/Atom press feed. Item HTML is flattened to
// plain text before ingestion.
type FeedProvider struct {
	slug       string
	feedURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewFeedProvider creates a feed provider under the given slug.
func NewFeedProvider(slug, feedURL string) *FeedProvider {
	return &FeedProvider{
		slug:       slug,
		feedURL:    feedURL,
		httpClient: &http.Client{Timeout: defaultFeedTimeout},
		limiter:    rate.NewLimiter(defaultFeedRate, 1),
	}
}

// Slug returns the provider slug.
func (p *FeedProvider) Slug() string {
	return p.slug
}

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
	// Atom entries sit directly under the root element.
	Entries []atomEntry `xml:"entry"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
	Desc    string `xml:"description"`
	Content string `xml:"encoded"`
}

type atomEntry struct {
	Title   string `xml:"title"`
	Link    struct {
		Href string `xml:"href,attr"`
	} `xml:"link"`
	Updated string `xml:"updated"`
	Content string `xml:"content"`
	Summary string `xml:"summary"`
}

// Fetch downloads the feed and returns its items, newest first as published
// by the feed. since filters on publication date; limit > 0 caps the batch.
func (p *FeedProvider) Fetch(ctx context.Context, since *time.Time, limit int) ([]Item, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}

	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	var items []Item
	for _, it := range feed.Channel.Items {
		content := it.Content
		if content == "" {
			content = it.Desc
		}
		items = append(items, Item{
			URL:         it.Link,
			Title:       html2text.HTML2Text(it.Title),
			Text:        html2text.HTML2Text(content),
			PublishedAt: parseFeedTime(it.PubDate),
		})
	}
	for _, e := range feed.Entries {
		content := e.Content
		if content == "" {
			content = e.Summary
		}
		items = append(items, Item{
			URL:         e.Link.Href,
			Title:       html2text.HTML2Text(e.Title),
			Text:        html2text.HTML2Text(content),
			PublishedAt: parseFeedTime(e.Updated),
		})
	}

	filtered := items[:0]
	for _, it := range items {
		if it.Text == "" {
			continue
		}
		if since != nil && it.PublishedAt != nil && it.PublishedAt.Before(*since) {
			continue
		}
		filtered = append(filtered, it)
	}
	items = filtered

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func parseFeedTime(s string) *time.Time {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
