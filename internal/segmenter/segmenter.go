// Package segmenter turns raw timed captions or plain text into normalized,
// storable statement units. All transforms are pure; persistence is the
// caller's job.
package segmenter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/contracheck/contracheck/pkg/models"
)

// ErrMalformedInput marks ingestion input that cannot be parsed as the
// claimed format. Nothing derived from such input is ever persisted.
var ErrMalformedInput = errors.New("malformed input")

// TimedLine is one caption line with media-relative timestamps.
type TimedLine struct {
	Text    string
	StartMS int64
	EndMS   int64
}

var (
	bracketTag = regexp.MustCompile(`\[[^\]]*\]|\([A-Z][A-Z\s]*\)`)
	wsRun      = regexp.MustCompile(`\s+`)
	chevrons   = regexp.MustCompile(`^>+\s*`)
)

// NormalizeLine strips caption artifacts (bracketed sound/speaker tags,
// leading chevrons), collapses whitespace runs and trims. Returns "" for
// lines with no statement content left.
func NormalizeLine(text string) string {
	text = bracketTag.ReplaceAllString(text, " ")
	text = chevrons.ReplaceAllString(strings.TrimSpace(text), "")
	text = wsRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// FromTimed converts caption lines into segment candidates, preserving the
// original timestamps line-for-line. Lines that normalize to empty are
// dropped.
func FromTimed(lines []TimedLine) ([]models.SegmentCandidate, error) {
	out := make([]models.SegmentCandidate, 0, len(lines))
	for i, line := range lines {
		if !utf8.ValidString(line.Text) {
			return nil, fmt.Errorf("%w: line %d is not valid UTF-8", ErrMalformedInput, i+1)
		}
		if line.EndMS < line.StartMS {
			return nil, fmt.Errorf("%w: line %d ends before it starts", ErrMalformedInput, i+1)
		}
		text := NormalizeLine(line.Text)
		if text == "" {
			continue
		}
		start, end := line.StartMS, line.EndMS
		out = append(out, models.SegmentCandidate{
			Text:      text,
			TsStartMS: &start,
			TsEndMS:   &end,
		})
	}
	return out, nil
}

// FromText converts raw multi-line text, one statement per line, into
// segment candidates with nil timestamps.
func FromText(raw string) ([]models.SegmentCandidate, error) {
	if !utf8.ValidString(raw) {
		return nil, fmt.Errorf("%w: text is not valid UTF-8", ErrMalformedInput)
	}
	lines := strings.Split(raw, "\n")
	out := make([]models.SegmentCandidate, 0, len(lines))
	for _, line := range lines {
		text := NormalizeLine(line)
		if text == "" {
			continue
		}
		out = append(out, models.SegmentCandidate{Text: text})
	}
	return out, nil
}
