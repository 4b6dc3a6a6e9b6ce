package nli

import (
	"context"
	"strings"

	"github.com/contracheck/contracheck/pkg/models"
)

// LexicalScorer is a deterministic, model-free Scorer for tests and offline
// smoke use. It scores a pair by content-token overlap and negation
// polarity: high overlap with flipped polarity reads as contradiction, high
// overlap with matching polarity as entailment, low overlap as neutral.
// It is no substitute for a trained NLI model, but it orders the obvious
// cases correctly and its output is reproducible.
type LexicalScorer struct{}

// NewLexicalScorer creates the heuristic scorer.
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

var negations = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "none": {}, "nothing": {},
	"cannot": {}, "can't": {}, "won't": {}, "don't": {}, "doesn't": {},
	"didn't": {}, "isn't": {}, "aren't": {}, "wasn't": {}, "weren't": {},
	"neither": {}, "nor": {},
}

// ScorePairs scores the claim against each text independently.
func (s *LexicalScorer) ScorePairs(ctx context.Context, claim string, texts []string) ([]models.PairScore, error) {
	claimToks, claimNegs := tokenize(claim)

	scores := make([]models.PairScore, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scores[i] = scorePair(claimToks, claimNegs, text)
	}
	return scores, nil
}

func scorePair(claimToks map[string]struct{}, claimNegs int, text string) models.PairScore {
	textToks, textNegs := tokenize(text)

	smaller := len(claimToks)
	if len(textToks) < smaller {
		smaller = len(textToks)
	}
	if smaller == 0 {
		return models.PairScore{Entail: 0, Neutral: 1, Contra: 0}
	}

	shared := 0
	for tok := range claimToks {
		if _, ok := textToks[tok]; ok {
			shared++
		}
	}
	overlap := float64(shared) / float64(smaller)
	flipped := (claimNegs+textNegs)%2 == 1

	var entail, contra float64
	if flipped {
		contra = overlap
		entail = overlap * 0.1
	} else {
		entail = overlap
		contra = overlap * 0.1
	}
	neutral := (1 - overlap) + 0.05

	total := entail + neutral + contra
	return models.PairScore{
		Entail:  entail / total,
		Neutral: neutral / total,
		Contra:  contra / total,
	}
}

// tokenize lowercases, strips punctuation and separates negation markers
// from content tokens.
func tokenize(text string) (map[string]struct{}, int) {
	toks := make(map[string]struct{})
	negs := 0
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?\"'()")
		if tok == "" {
			continue
		}
		if _, ok := negations[tok]; ok {
			negs++
			continue
		}
		toks[tok] = struct{}{}
	}
	return toks, negs
}
