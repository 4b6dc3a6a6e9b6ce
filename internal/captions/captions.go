// Package captions parses SRT, WebVTT and JSONL transcripts into timed lines
// in source order, the contract the segmenter expects from caption input.
package captions

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/contracheck/contracheck/internal/segmenter"
)

// Parse dispatches on the file extension (.srt, .vtt, .jsonl).
func Parse(filename string, r io.Reader) ([]segmenter.TimedLine, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".srt":
		return ParseSRT(r)
	case ".vtt":
		return ParseVTT(r)
	case ".jsonl":
		return ParseJSONL(r)
	}
	return nil, fmt.Errorf("%w: unsupported caption format %q", segmenter.ErrMalformedInput, filepath.Ext(filename))
}

// ParseSRT parses SubRip captions. Multi-line cue text is joined with spaces.
func ParseSRT(r io.Reader) ([]segmenter.TimedLine, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var out []segmenter.TimedLine
	var cueOpen bool
	var start, end int64
	var text []string

	flush := func() {
		if cueOpen {
			out = append(out, segmenter.TimedLine{
				Text:    strings.Join(text, " "),
				StartMS: start,
				EndMS:   end,
			})
		}
		cueOpen = false
		text = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			flush()
		case strings.Contains(line, "-->"):
			if cueOpen {
				return nil, fmt.Errorf("%w: unterminated timing block before %q", segmenter.ErrMalformedInput, line)
			}
			var err error
			start, end, err = parseTimingLine(line, ",")
			if err != nil {
				return nil, err
			}
			cueOpen = true
		case !cueOpen:
			// cue index line, ignored
			if _, err := strconv.Atoi(line); err != nil {
				return nil, fmt.Errorf("%w: expected cue index, got %q", segmenter.ErrMalformedInput, line)
			}
		default:
			text = append(text, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", segmenter.ErrMalformedInput, err)
	}
	flush()
	return out, nil
}

// ParseVTT parses WebVTT captions. NOTE/STYLE blocks and cue identifiers are
// skipped.
func ParseVTT(r io.Reader) ([]segmenter.TimedLine, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() || !strings.HasPrefix(strings.TrimSpace(scanner.Text()), "WEBVTT") {
		return nil, fmt.Errorf("%w: missing WEBVTT header", segmenter.ErrMalformedInput)
	}

	var out []segmenter.TimedLine
	var cueOpen bool
	var skipBlock bool
	var start, end int64
	var text []string

	flush := func() {
		if cueOpen {
			out = append(out, segmenter.TimedLine{
				Text:    strings.Join(text, " "),
				StartMS: start,
				EndMS:   end,
			})
		}
		cueOpen = false
		skipBlock = false
		text = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			flush()
		case skipBlock:
		case strings.HasPrefix(line, "NOTE") || strings.HasPrefix(line, "STYLE") || strings.HasPrefix(line, "REGION"):
			skipBlock = true
		case strings.Contains(line, "-->"):
			var err error
			start, end, err = parseTimingLine(line, ".")
			if err != nil {
				return nil, err
			}
			cueOpen = true
		case cueOpen:
			text = append(text, line)
		default:
			// cue identifier line, ignored
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", segmenter.ErrMalformedInput, err)
	}
	flush()
	return out, nil
}

type jsonlLine struct {
	StartMS *int64 `json:"start_ms"`
	EndMS   *int64 `json:"end_ms"`
	Text    string `json:"text"`
}

// ParseJSONL parses one {"start_ms", "end_ms", "text"} object per line.
func ParseJSONL(r io.Reader) ([]segmenter.TimedLine, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var out []segmenter.TimedLine
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var obj jsonlLine
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", segmenter.ErrMalformedInput, lineNo, err)
		}
		if obj.StartMS == nil || obj.EndMS == nil {
			return nil, fmt.Errorf("%w: line %d: missing start_ms/end_ms", segmenter.ErrMalformedInput, lineNo)
		}
		out = append(out, segmenter.TimedLine{Text: obj.Text, StartMS: *obj.StartMS, EndMS: *obj.EndMS})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", segmenter.ErrMalformedInput, err)
	}
	return out, nil
}

// parseTimingLine parses "HH:MM:SS<sep>mmm --> HH:MM:SS<sep>mmm" with
// optional cue settings after the second timestamp.
func parseTimingLine(line, msSep string) (int64, int64, error) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: bad timing line %q", segmenter.ErrMalformedInput, line)
	}
	startStr := strings.TrimSpace(parts[0])
	endStr := strings.TrimSpace(parts[1])
	if i := strings.IndexAny(endStr, " \t"); i >= 0 {
		endStr = endStr[:i]
	}

	start, err := parseTimestamp(startStr, msSep)
	if err != nil {
		return 0, 0, err
	}
	end, err := parseTimestamp(endStr, msSep)
	if err != nil {
		return 0, 0, err
	}
	if end < start {
		return 0, 0, fmt.Errorf("%w: cue ends before it starts in %q", segmenter.ErrMalformedInput, line)
	}
	return start, end, nil
}

// parseTimestamp parses [HH:]MM:SS<sep>mmm into milliseconds.
func parseTimestamp(ts, msSep string) (int64, error) {
	main, msPart, ok := strings.Cut(ts, msSep)
	if !ok {
		return 0, fmt.Errorf("%w: bad timestamp %q", segmenter.ErrMalformedInput, ts)
	}

	fields := strings.Split(main, ":")
	if len(fields) < 2 || len(fields) > 3 {
		return 0, fmt.Errorf("%w: bad timestamp %q", segmenter.ErrMalformedInput, ts)
	}

	var total int64
	for _, f := range fields {
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: bad timestamp %q", segmenter.ErrMalformedInput, ts)
		}
		total = total*60 + n
	}

	if len(msPart) > 3 {
		msPart = msPart[:3]
	}
	for len(msPart) < 3 {
		msPart += "0"
	}
	ms, err := strconv.ParseInt(msPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad timestamp %q", segmenter.ErrMalformedInput, ts)
	}

	return total*1000 + ms, nil
}
