// Package scrape defines the scraper provider contract and feeds provider
// output into the standard ingestion path. Every provider is treated
// identically regardless of origin.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/contracheck/contracheck/internal/segmenter"
)

// ErrUnknownProvider is returned for slugs with no registered provider.
var ErrUnknownProvider = errors.New("unknown scrape provider")

// Item is one scraped document: source metadata plus its statements. Lines
// carries timed statements when the provider produces them (transcript
// tracks); Text is the plain-text path otherwise.
type Item struct {
	URL         string
	Title       string
	Text        string
	Lines       []segmenter.TimedLine
	PublishedAt *time.Time
}

// Provider produces batches of scraped items.
type Provider interface {
	Slug() string
	Fetch(ctx context.Context, since *time.Time, limit int) ([]Item, error)
}

// Registry holds the configured providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under its slug. Duplicate slugs panic: this is a
// startup wiring mistake, not a runtime condition.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.Slug()]; exists {
		panic(fmt.Sprintf("scrape provider %q registered twice", p.Slug()))
	}
	r.providers[p.Slug()] = p
}

// Get looks up a provider by slug.
func (r *Registry) Get(slug string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, slug)
	}
	return p, nil
}

// Slugs lists registered provider slugs, sorted.
func (r *Registry) Slugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slugs := make([]string, 0, len(r.providers))
	for slug := range r.providers {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}
