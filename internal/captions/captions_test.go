package captions

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contracheck/contracheck/internal/segmenter"
)

const sampleSRT = `1
00:00:01,000 --> 00:00:02,500
The sky is blue.

2
00:00:02,500 --> 00:00:04,000
I always
keep my promises.
`

func TestParseSRT(t *testing.T) {
	got, err := ParseSRT(strings.NewReader(sampleSRT))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, segmenter.TimedLine{Text: "The sky is blue.", StartMS: 1000, EndMS: 2500}, got[0])
	assert.Equal(t, segmenter.TimedLine{Text: "I always keep my promises.", StartMS: 2500, EndMS: 4000}, got[1])
}

func TestParseSRTUnterminatedTiming(t *testing.T) {
	bad := "1\n00:00:01,000 --> 00:00:02,000\n00:00:03,000 --> 00:00:04,000\ntext\n"
	_, err := ParseSRT(strings.NewReader(bad))
	assert.True(t, errors.Is(err, segmenter.ErrMalformedInput))
}

const sampleVTT = `WEBVTT

NOTE this block is skipped

intro
00:00:00.000 --> 00:00:01.200
Good evening.

00:01:00.000 --> 00:01:02.000 align:start
Taxes will not rise.
`

func TestParseVTT(t *testing.T) {
	got, err := ParseVTT(strings.NewReader(sampleVTT))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, segmenter.TimedLine{Text: "Good evening.", StartMS: 0, EndMS: 1200}, got[0])
	assert.Equal(t, segmenter.TimedLine{Text: "Taxes will not rise.", StartMS: 60000, EndMS: 62000}, got[1])
}

func TestParseVTTMissingHeader(t *testing.T) {
	_, err := ParseVTT(strings.NewReader("00:00:00.000 --> 00:00:01.000\nhi\n"))
	assert.True(t, errors.Is(err, segmenter.ErrMalformedInput))
}

func TestParseJSONL(t *testing.T) {
	raw := `{"start_ms": 0, "end_ms": 900, "text": "First."}
{"start_ms": 900, "end_ms": 1800, "text": "Second."}
`
	got, err := ParseJSONL(strings.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, segmenter.TimedLine{Text: "Second.", StartMS: 900, EndMS: 1800}, got[1])
}

func TestParseJSONLMissingTimestamps(t *testing.T) {
	_, err := ParseJSONL(strings.NewReader(`{"text": "no times"}`))
	assert.True(t, errors.Is(err, segmenter.ErrMalformedInput))
}

func TestParseDispatchesOnExtension(t *testing.T) {
	got, err := Parse("speech.srt", strings.NewReader(sampleSRT))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = Parse("notes.docx", strings.NewReader("x"))
	assert.True(t, errors.Is(err, segmenter.ErrMalformedInput))
}

func TestParseTimestampShortMillis(t *testing.T) {
	ms, err := parseTimestamp("00:00:05.5", ".")
	require.NoError(t, err)
	assert.Equal(t, int64(5500), ms)
}
