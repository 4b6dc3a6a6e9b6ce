package detector

import (
	"sort"

	"github.com/contracheck/contracheck/internal/retriever"
	"github.com/contracheck/contracheck/pkg/models"
)

// ScoredCandidate pairs a retrieved candidate with its pairwise scores.
type ScoredCandidate struct {
	Candidate retriever.Candidate
	Scores    models.PairScore
}

// Rank applies the decision policy and returns ordered hits. Pure function:
// no I/O, deterministic for identical input.
//
// A candidate survives iff contra >= threshold and contra exceeds the best
// competing class by at least margin, both boundaries inclusive. Survivors
// order by contra desc, then retrieval similarity desc, then segment id asc.
// Passing segments forming a contiguous timed run in one source collapse
// into the run's best hit, the rest attached as supporting evidence.
func Rank(scored []ScoredCandidate, params models.DetectParams) []models.Hit {
	var passing []ScoredCandidate
	for _, sc := range scored {
		if accepts(sc.Scores, params.ContraThreshold, params.Margin) {
			passing = append(passing, sc)
		}
	}
	if len(passing) == 0 {
		return []models.Hit{}
	}

	sort.SliceStable(passing, func(i, j int) bool {
		return less(passing[i], passing[j])
	})

	runs := groupRuns(passing, params)

	hits := make([]models.Hit, 0, len(runs))
	for _, run := range runs {
		primary := run[0]
		hit := toHit(primary)
		for _, sc := range run[1:] {
			seg := sc.Candidate.Segment
			hit.Supporting = append(hit.Supporting, models.SupportingSegment{
				SegmentID: seg.ID,
				Text:      seg.Text,
				TsStartMS: seg.TsStartMS,
				TsEndMS:   seg.TsEndMS,
				Scores:    sc.Scores,
			})
		}
		hits = append(hits, hit)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Scores.Contra != hits[j].Scores.Contra {
			return hits[i].Scores.Contra > hits[j].Scores.Contra
		}
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].SegmentID < hits[j].SegmentID
	})

	return hits
}

// accepts implements the threshold and margin rule with inclusive
// boundaries.
func accepts(s models.PairScore, threshold, margin float64) bool {
	if s.Contra < threshold {
		return false
	}
	best := s.Entail
	if s.Neutral > best {
		best = s.Neutral
	}
	return s.Contra-best >= margin
}

func less(a, b ScoredCandidate) bool {
	if a.Scores.Contra != b.Scores.Contra {
		return a.Scores.Contra > b.Scores.Contra
	}
	if a.Candidate.Similarity != b.Candidate.Similarity {
		return a.Candidate.Similarity > b.Candidate.Similarity
	}
	return a.Candidate.Segment.ID < b.Candidate.Segment.ID
}

// groupRuns partitions passing candidates into contiguous runs per source.
// Two timed segments of one source belong to the same run when their
// timestamp ranges overlap or the gap between them stays within the
// configured expansion window. Untimed segments always stand alone. Each
// run comes back ordered best-first.
func groupRuns(passing []ScoredCandidate, params models.DetectParams) [][]ScoredCandidate {
	maxGap := params.WindowBeforeMS + params.WindowAfterMS

	bySource := make(map[int64][]ScoredCandidate)
	var order []int64
	var runs [][]ScoredCandidate

	for _, sc := range passing {
		if !sc.Candidate.Segment.Timed() {
			runs = append(runs, []ScoredCandidate{sc})
			continue
		}
		sourceID := sc.Candidate.Segment.SourceID
		if _, ok := bySource[sourceID]; !ok {
			order = append(order, sourceID)
		}
		bySource[sourceID] = append(bySource[sourceID], sc)
	}

	for _, sourceID := range order {
		group := bySource[sourceID]
		sort.SliceStable(group, func(i, j int) bool {
			a, b := group[i].Candidate.Segment, group[j].Candidate.Segment
			if *a.TsStartMS != *b.TsStartMS {
				return *a.TsStartMS < *b.TsStartMS
			}
			return a.ID < b.ID
		})

		var run []ScoredCandidate
		runEnd := int64(0)
		for _, sc := range group {
			seg := sc.Candidate.Segment
			if len(run) > 0 && *seg.TsStartMS <= runEnd+maxGap {
				run = append(run, sc)
			} else {
				if len(run) > 0 {
					runs = append(runs, sortRun(run))
				}
				run = []ScoredCandidate{sc}
			}
			if *seg.TsEndMS > runEnd {
				runEnd = *seg.TsEndMS
			}
		}
		if len(run) > 0 {
			runs = append(runs, sortRun(run))
		}
	}

	return runs
}

func sortRun(run []ScoredCandidate) []ScoredCandidate {
	sort.SliceStable(run, func(i, j int) bool {
		return less(run[i], run[j])
	})
	return run
}

func toHit(sc ScoredCandidate) models.Hit {
	seg := sc.Candidate.Segment
	return models.Hit{
		SegmentID:  seg.ID,
		Text:       seg.Text,
		TsStartMS:  seg.TsStartMS,
		TsEndMS:    seg.TsEndMS,
		Scores:     sc.Scores,
		Similarity: sc.Candidate.Similarity,
		SourceID:   seg.SourceID,
	}
}
