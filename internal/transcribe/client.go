// Package transcribe is the boundary to an external speech-to-text service.
// The engine only needs timed text segments back; an unreachable service is
// a distinguishable error, never an empty transcript.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/contracheck/contracheck/internal/segmenter"
)

// ErrUnavailable means the transcription service could not be reached or
// refused the request.
var ErrUnavailable = errors.New("transcription service unavailable")

// Transcriber produces timed statement lines from an audio stream.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) ([]segmenter.TimedLine, error)
}

const defaultTimeout = 5 * time.Minute

// Client calls an HTTP transcription service that accepts a multipart audio
// upload and returns timed segments.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a transcription client against the given service root.
func NewClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
	}
}

// WithHTTPClient replaces the underlying HTTP client; used in tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

type transcribeResponse struct {
	Segments []struct {
		Text    string `json:"text"`
		StartMS int64  `json:"start_ms"`
		EndMS   int64  `json:"end_ms"`
	} `json:"segments"`
}

// Transcribe uploads the audio and returns its timed lines in source order.
func (c *Client) Transcribe(ctx context.Context, filename string, audio io.Reader) ([]segmenter.TimedLine, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	var tr transcribeResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	lines := make([]segmenter.TimedLine, len(tr.Segments))
	for i, seg := range tr.Segments {
		lines[i] = segmenter.TimedLine{Text: seg.Text, StartMS: seg.StartMS, EndMS: seg.EndMS}
	}
	return lines, nil
}
