package evo

import (
	"gonum.org/v1/gonum/stat"
)

// GenerationSummary is what survives of a generation after archival. It is
// computed once, right after rating, so statistics are identical whether or not
// the full generation is retained.
type GenerationSummary struct {
	Generation  int
	BestScore   float64
	WorstScore  float64
	MedianScore float64
	MeanScore   float64
	StdDevScore float64
	Best        *Candidate
}

// Summarize reduces a rated generation to its summary. The best candidate is cloned.
func Summarize(g *Generation, index int) (GenerationSummary, error) {
	scores, err := g.Scores()
	if err != nil {
		return GenerationSummary{}, err
	}
	std := 0.0
	if len(scores) > 1 {
		std = stat.StdDev(scores, nil)
	}
	return GenerationSummary{
		Generation:  index,
		BestScore:   scores[0],
		WorstScore:  scores[len(scores)-1],
		MedianScore: median(scores),
		MeanScore:   stat.Mean(scores, nil),
		StdDevScore: std,
		Best:        g.members[0].Clone(),
	}, nil
}
