package models

import (
	"time"
)

// SourceType identifies where a batch of segments came from.
type SourceType string

const (
	SourceSubtitleFile SourceType = "subtitle-file"
	SourceTypedText    SourceType = "typed-text"
	SourceTranscribed  SourceType = "transcribed-speech"
	// Scraped sources use "scraped-<provider slug>".
	SourceScrapedPrefix = "scraped-"
)

// ScrapedSource builds the source type for a scraper provider slug.
func ScrapedSource(slug string) SourceType {
	return SourceType(SourceScrapedPrefix + slug)
}

// Source is the provenance container that owns a sequence of segments.
type Source struct {
	ID          int64      `json:"id"`
	Type        SourceType `json:"type"`
	Title       string     `json:"title"`
	URL         string     `json:"url,omitempty"`
	MediaPath   string     `json:"media_path,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Segment is one atomic statement unit. Timestamps are media-relative
// milliseconds, nil for non-timed text.
type Segment struct {
	ID        int64     `json:"id"`
	SourceID  int64     `json:"source_id"`
	Text      string    `json:"text"`
	TsStartMS *int64    `json:"ts_start_ms,omitempty"`
	TsEndMS   *int64    `json:"ts_end_ms,omitempty"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Timed reports whether the segment carries media timestamps.
func (s *Segment) Timed() bool {
	return s.TsStartMS != nil && s.TsEndMS != nil
}

// SegmentCandidate is a normalized statement unit not yet persisted.
type SegmentCandidate struct {
	Text      string
	TsStartMS *int64
	TsEndMS   *int64
}

// PairScore is the three-way output of the pairwise scorer for one
// (claim, segment) pair. The probabilities sum to 1.
type PairScore struct {
	Entail  float64 `json:"entail"`
	Neutral float64 `json:"neutral"`
	Contra  float64 `json:"contra"`
}

// DetectParams are request-scoped knobs for one detection request.
type DetectParams struct {
	TopK            int     `json:"top_k"`
	WindowBeforeMS  int64   `json:"window_before_ms"`
	WindowAfterMS   int64   `json:"window_after_ms"`
	ContraThreshold float64 `json:"contra_threshold"`
	Margin          float64 `json:"margin"`
}

// Defaults for detection parameters. The margin stays disabled unless
// requested.
const (
	DefaultTopK            = 25
	DefaultWindowBeforeMS  = 5000
	DefaultWindowAfterMS   = 10000
	DefaultContraThreshold = 0.5
	DefaultMargin          = 0.0
)

// Normalize fills zero values with defaults. Negative windows are an
// explicit "no expansion" and a negative threshold is an explicit 0
// ("report every scored pair"); both clamp to 0 instead of defaulting.
func (p DetectParams) Normalize() DetectParams {
	if p.TopK == 0 {
		p.TopK = DefaultTopK
	}
	switch {
	case p.WindowBeforeMS < 0:
		p.WindowBeforeMS = 0
	case p.WindowBeforeMS == 0:
		p.WindowBeforeMS = DefaultWindowBeforeMS
	}
	switch {
	case p.WindowAfterMS < 0:
		p.WindowAfterMS = 0
	case p.WindowAfterMS == 0:
		p.WindowAfterMS = DefaultWindowAfterMS
	}
	switch {
	case p.ContraThreshold < 0:
		p.ContraThreshold = 0
	case p.ContraThreshold == 0:
		p.ContraThreshold = DefaultContraThreshold
	}
	if p.Margin < 0 {
		p.Margin = 0
	}
	return p
}

// ClipRef points at the media window backing a hit.
type ClipRef struct {
	MediaPath string `json:"media_path"`
	StartMS   int64  `json:"start_ms"`
	EndMS     int64  `json:"end_ms"`
}

// SupportingSegment is a window-expanded sibling folded into a primary hit
// during contiguous-run dedup. It is evidence, not a ranked entry.
type SupportingSegment struct {
	SegmentID int64     `json:"segment_id"`
	Text      string    `json:"text"`
	TsStartMS *int64    `json:"ts_start_ms,omitempty"`
	TsEndMS   *int64    `json:"ts_end_ms,omitempty"`
	Scores    PairScore `json:"scores"`
}

// Hit pairs a claim with a prior segment that plausibly contradicts it.
// Hits are recomputed per request and never persisted.
type Hit struct {
	SegmentID   int64               `json:"segment_id"`
	Text        string              `json:"text"`
	TsStartMS   *int64              `json:"ts_start_ms,omitempty"`
	TsEndMS     *int64              `json:"ts_end_ms,omitempty"`
	Scores      PairScore           `json:"scores"`
	Similarity  float64             `json:"similarity"`
	SourceID    int64               `json:"source_id"`
	SourceType  SourceType          `json:"source_type"`
	SourceTitle string              `json:"source_title"`
	SourceURL   string              `json:"source_url,omitempty"`
	Clip        *ClipRef            `json:"clip,omitempty"`
	Supporting  []SupportingSegment `json:"supporting,omitempty"`
}

// DetectResult is the outcome of one detection request. Degraded is set when
// the similarity channel fell back to lexical retrieval so that a thin result
// is never mistaken for "no contradictions".
type DetectResult struct {
	Claim          string `json:"claim"`
	Hits           []Hit  `json:"hits"`
	Degraded       bool   `json:"degraded"`
	DegradedReason string `json:"degraded_reason,omitempty"`
}
