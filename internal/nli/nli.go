// Package nli scores (claim, prior segment) pairs with a three-way
// entailment/neutral/contradiction distribution. The Scorer capability is
// backend-agnostic; a remote inference service and a deterministic lexical
// heuristic are interchangeable without changing caller code.
package nli

import (
	"context"
	"errors"

	"github.com/contracheck/contracheck/pkg/models"
)

// ErrScorerUnavailable means no scoring backend could be initialized or
// reached. Detection requests fail fast on it; fabricated zero-confidence
// scores are never returned.
var ErrScorerUnavailable = errors.New("scorer backend unavailable")

// Scorer scores one claim against a batch of prior segment texts. The pair
// is directional: the claim is the new statement, each text the prior one
// being checked, always in that order. Results align with the input texts
// and each distribution sums to 1 within 1e-4.
type Scorer interface {
	ScorePairs(ctx context.Context, claim string, texts []string) ([]models.PairScore, error)
}

// Label order used on the wire and in exported logits:
// contradiction, neutral, entailment.
const (
	idxContra = iota
	idxNeutral
	idxEntail
)
