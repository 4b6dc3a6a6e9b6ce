package nli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/contracheck/contracheck/pkg/models"
)

const defaultRemoteTimeout = 60 * time.Second

// RemoteScorer calls an NLI inference service that returns per-pair
// three-way logits in (contradiction, neutral, entailment) order. The
// softmax is applied client-side.
type RemoteScorer struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// RemoteOption configures the RemoteScorer.
type RemoteOption func(*RemoteScorer)

// WithRemoteModel sets the model name sent with each request.
func WithRemoteModel(model string) RemoteOption {
	return func(s *RemoteScorer) {
		s.model = model
	}
}

// WithRemoteTimeout sets the HTTP client timeout.
func WithRemoteTimeout(d time.Duration) RemoteOption {
	return func(s *RemoteScorer) {
		s.httpClient.Timeout = d
	}
}

// WithRemoteHTTPClient replaces the underlying HTTP client.
func WithRemoteHTTPClient(hc *http.Client) RemoteOption {
	return func(s *RemoteScorer) {
		s.httpClient = hc
	}
}

// NewRemoteScorer creates a scorer against the given inference service root.
func NewRemoteScorer(baseURL string, opts ...RemoteOption) *RemoteScorer {
	s := &RemoteScorer{
		httpClient: &http.Client{Timeout: defaultRemoteTimeout},
		baseURL:    baseURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type scoreRequest struct {
	Model string      `json:"model,omitempty"`
	Pairs []remotePair `json:"pairs"`
}

type remotePair struct {
	Premise    string `json:"premise"`
	Hypothesis string `json:"hypothesis"`
}

type scoreResponse struct {
	Results []struct {
		Logits []float64 `json:"logits"`
	} `json:"results"`
}

// ScorePairs scores the whole batch in a single call. The prior segment is
// the premise and the claim the hypothesis, matching the directional
// contract.
func (s *RemoteScorer) ScorePairs(ctx context.Context, claim string, texts []string) ([]models.PairScore, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := scoreRequest{Model: s.model, Pairs: make([]remotePair, len(texts))}
	for i, text := range texts {
		reqBody.Pairs[i] = remotePair{Premise: text, Hypothesis: claim}
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/score", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScorerUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrScorerUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrScorerUnavailable, resp.StatusCode, string(body))
	}

	var sr scoreResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(sr.Results) != len(texts) {
		return nil, fmt.Errorf("got %d results for %d pairs", len(sr.Results), len(texts))
	}

	scores := make([]models.PairScore, len(texts))
	for i, r := range sr.Results {
		if len(r.Logits) != 3 {
			return nil, fmt.Errorf("pair %d: expected 3 logits, got %d", i, len(r.Logits))
		}
		probs := softmax(r.Logits)
		scores[i] = models.PairScore{
			Contra:  probs[idxContra],
			Neutral: probs[idxNeutral],
			Entail:  probs[idxEntail],
		}
	}
	return scores, nil
}

// softmax converts logits to a probability distribution, shifted by the max
// for numerical stability.
func softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	max := floats.Max(logits)
	for i, l := range logits {
		out[i] = math.Exp(l - max)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}
