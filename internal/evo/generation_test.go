package evo

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
)

// scoredGeneration builds an unrated generation whose member i scores
// scores[i]: two tasks, one processor per member, both tasks on it.
func scoredGeneration(t *testing.T, scores []float64) (*Generation, [][]float64) {
	t.Helper()
	times := [][]float64{make([]float64, len(scores)), make([]float64, len(scores))}
	members := make([]*Candidate, len(scores))
	for i, s := range scores {
		times[0][i] = s / 2
		times[1][i] = s / 2
		members[i] = mustCandidate(t, []int{i, i}, len(scores))
	}
	g, err := NewGeneration(members)
	if err != nil {
		t.Fatalf("generation: %v", err)
	}
	return g, times
}

func ratedGeneration(t *testing.T, scores []float64) *Generation {
	t.Helper()
	g, times := scoredGeneration(t, scores)
	if err := g.Rate(context.Background(), mustCostModel(t, times), 1); err != nil {
		t.Fatalf("rate: %v", err)
	}
	return g
}

func TestGenerationRateSortsAscending(t *testing.T) {
	g := ratedGeneration(t, []float64{5, 3, 1, 4, 2})
	scores, err := g.Scores()
	if err != nil {
		t.Fatalf("scores: %v", err)
	}
	for i := 1; i < len(scores); i++ {
		if scores[i] < scores[i-1] {
			t.Fatalf("scores not ascending: %v", scores)
		}
	}
	best, err := g.BestScore()
	if err != nil || best != 1 {
		t.Fatalf("expected best score 1, got %v (%v)", best, err)
	}
	worst, err := g.WorstScore()
	if err != nil || worst != 5 {
		t.Fatalf("expected worst score 5, got %v (%v)", worst, err)
	}
	median, err := g.MedianScore()
	if err != nil || median != 3 {
		t.Fatalf("expected median 3, got %v (%v)", median, err)
	}
}

func TestGenerationMedianEvenSize(t *testing.T) {
	g := ratedGeneration(t, []float64{4, 1, 3, 2})
	median, err := g.MedianScore()
	if err != nil {
		t.Fatalf("median: %v", err)
	}
	if median != 2.5 {
		t.Fatalf("expected median 2.5, got %v", median)
	}
}

func TestGenerationRequiresRating(t *testing.T) {
	g, _ := scoredGeneration(t, []float64{1, 2})
	if _, err := g.Best(); !errors.Is(err, ErrNotRated) {
		t.Fatalf("expected not rated from Best, got %v", err)
	}
	if _, err := g.SelectAt(0); !errors.Is(err, ErrNotRated) {
		t.Fatalf("expected not rated from SelectAt, got %v", err)
	}
	if _, err := g.MedianScore(); !errors.Is(err, ErrNotRated) {
		t.Fatalf("expected not rated from MedianScore, got %v", err)
	}
	if _, err := Summarize(g, 0); !errors.Is(err, ErrNotRated) {
		t.Fatalf("expected not rated from Summarize, got %v", err)
	}
}

func TestGenerationSelectAt(t *testing.T) {
	g := ratedGeneration(t, []float64{1, 2, 3, 4, 5})

	cases := []struct {
		pick float64
		want float64
	}{
		{pick: 0, want: 1},
		{pick: 0.5, want: 1},
		{pick: 1.2, want: 2},
		{pick: 1.9, want: 4},
		{pick: 2.2, want: 5},
	}
	for _, tc := range cases {
		c, err := g.SelectAt(tc.pick)
		if err != nil {
			t.Fatalf("pick %v: %v", tc.pick, err)
		}
		score, _ := c.Score()
		if score != tc.want {
			t.Fatalf("pick %v: expected score %v, got %v", tc.pick, tc.want, score)
		}
	}

	total, err := g.TotalFitness()
	if err != nil {
		t.Fatalf("total fitness: %v", err)
	}
	for _, pick := range []float64{-0.1, total, total + 1, math.NaN()} {
		if _, err := g.SelectAt(pick); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("pick %v: expected invalid argument, got %v", pick, err)
		}
	}
}

func TestGenerationSelectOneFavoursFitter(t *testing.T) {
	g := ratedGeneration(t, []float64{1, 10})
	rng := rand.New(rand.NewSource(21))
	counts := map[float64]int{}
	for i := 0; i < 2000; i++ {
		c, err := g.SelectOne(rng)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		score, _ := c.Score()
		counts[score]++
	}
	// Expected share of score 1 is 1/(1+0.1), about 91%.
	if counts[1] < 1700 || counts[10] == 0 {
		t.Fatalf("unexpected selection counts: %v", counts)
	}
}

func TestGenerationSelectOneZeroScore(t *testing.T) {
	g := ratedGeneration(t, []float64{3, 0, 2})
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		c, err := g.SelectOne(rng)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if score, _ := c.Score(); score != 0 {
			t.Fatalf("expected the zero-score member, got score %v", score)
		}
	}
}

func TestGenerationSelectOneUniformWhenFitnessIsZero(t *testing.T) {
	cm := mustCostModel(t, [][]float64{{1e308, 1e308}, {1e308, 1e308}})
	g, err := NewGeneration([]*Candidate{
		mustCandidate(t, []int{0, 0}, 2),
		mustCandidate(t, []int{1, 1}, 2),
	})
	if err != nil {
		t.Fatalf("generation: %v", err)
	}
	if err := g.Rate(context.Background(), cm, 1); err != nil {
		t.Fatalf("rate: %v", err)
	}
	if best, _ := g.BestScore(); !math.IsInf(best, 1) {
		t.Fatalf("expected overflowed makespan, got %v", best)
	}
	if total, _ := g.TotalFitness(); total != 0 {
		t.Fatalf("expected zero total fitness, got %v", total)
	}

	rng := rand.New(rand.NewSource(8))
	seen := map[int]int{}
	for i := 0; i < 200; i++ {
		c, err := g.SelectOne(rng)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		seen[c.Processor(0)]++
	}
	if seen[0] == 0 || seen[1] == 0 {
		t.Fatalf("expected both members to be drawn, got %v", seen)
	}
	if _, err := g.SelectAt(0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument from SelectAt on zero total, got %v", err)
	}
}

func TestGenerationMembersAreCopies(t *testing.T) {
	g := ratedGeneration(t, []float64{4, 2, 6})
	rng := rand.New(rand.NewSource(2))
	for _, c := range g.Members() {
		if err := c.Mutate(rng); err != nil {
			t.Fatalf("mutate: %v", err)
		}
	}
	if err := g.Member(0).Mutate(rng); err != nil {
		t.Fatalf("mutate: %v", err)
	}
	for i := 0; i < g.Len(); i++ {
		if _, ok := g.Member(i).Score(); !ok {
			t.Fatalf("member %d lost its score", i)
		}
	}
	if _, err := g.SelectAt(0); err != nil {
		t.Fatalf("selection after mutating copies: %v", err)
	}
	if best, _ := g.BestScore(); best != 2 {
		t.Fatalf("expected best 2, got %v", best)
	}
}

func TestGenerationParallelRatingMatchesSequential(t *testing.T) {
	cm := mustCostModel(t, [][]float64{
		{1, 2, 3}, {4, 5, 6}, {7, 8, 9}, {2, 2, 2}, {9, 1, 5}, {3, 3, 1},
	})
	build := func() *Generation {
		g, err := RandomGeneration(rand.New(rand.NewSource(17)), 40, 6, 3)
		if err != nil {
			t.Fatalf("random generation: %v", err)
		}
		return g
	}
	sequential, parallel := build(), build()
	if err := sequential.Rate(context.Background(), cm, 1); err != nil {
		t.Fatalf("sequential rate: %v", err)
	}
	if err := parallel.Rate(context.Background(), cm, 8); err != nil {
		t.Fatalf("parallel rate: %v", err)
	}
	for i := 0; i < sequential.Len(); i++ {
		if !sequential.Member(i).Equal(parallel.Member(i)) {
			t.Fatalf("member %d differs between sequential and parallel rating", i)
		}
	}
}

func TestGenerationRateHonoursCancellation(t *testing.T) {
	g, times := scoredGeneration(t, []float64{1, 2, 3})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := g.Rate(ctx, mustCostModel(t, times), 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if g.IsRated() {
		t.Fatal("cancelled rating must leave the generation unrated")
	}
}

func TestGenerationRateShapeMismatch(t *testing.T) {
	g, _ := scoredGeneration(t, []float64{1, 2})
	cm := mustCostModel(t, [][]float64{{1, 1}, {1, 1}, {1, 1}})
	if err := g.Rate(context.Background(), cm, 2); !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected malformed input, got %v", err)
	}
}

func TestNewGenerationValidation(t *testing.T) {
	if _, err := NewGeneration(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for empty generation, got %v", err)
	}
	members := []*Candidate{
		mustCandidate(t, []int{0, 1}, 2),
		mustCandidate(t, []int{0, 1, 1}, 2),
	}
	if _, err := NewGeneration(members); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for mixed lengths, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	g := ratedGeneration(t, []float64{2, 1, 5, 3, 4})
	summary, err := Summarize(g, 7)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary.Generation != 7 || summary.BestScore != 1 || summary.WorstScore != 5 || summary.MedianScore != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.MeanScore != 3 {
		t.Fatalf("expected mean 3, got %v", summary.MeanScore)
	}
	if math.Abs(summary.StdDevScore-math.Sqrt(2.5)) > 1e-9 {
		t.Fatalf("expected sample stddev sqrt(2.5), got %v", summary.StdDevScore)
	}
	best, _ := g.Best()
	if summary.Best == best || !summary.Best.Equal(best) {
		t.Fatal("summary must hold a copy of the best member")
	}
}
