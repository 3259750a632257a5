package evo

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"golang.org/x/sync/errgroup"

	"gentasche/internal/costmodel"
)

// Generation is an ordered set of candidates evaluated together. Once rated,
// members are sorted ascending by score (best first).
type Generation struct {
	members []*Candidate
	rated   bool
	// bounds[i] is the cumulative fitness of members[0..i].
	bounds []float64
}

// NewGeneration wraps members. The slice is copied; candidates are not.
func NewGeneration(members []*Candidate) (*Generation, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: generation needs at least one candidate", ErrInvalidArgument)
	}
	for i, c := range members {
		if c == nil {
			return nil, fmt.Errorf("%w: candidate %d is nil", ErrInvalidArgument, i)
		}
		if c.Len() != members[0].Len() {
			return nil, fmt.Errorf("%w: candidate %d has %d tasks, expected %d", ErrInvalidArgument, i, c.Len(), members[0].Len())
		}
	}
	return &Generation{members: append([]*Candidate(nil), members...)}, nil
}

// RandomGeneration builds size independent random candidates.
func RandomGeneration(rng *rand.Rand, size, taskCount, processorCount int) (*Generation, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: generation size must be > 0 (got %d)", ErrInvalidArgument, size)
	}
	members := make([]*Candidate, size)
	for i := range members {
		c, err := RandomCandidate(rng, taskCount, processorCount)
		if err != nil {
			return nil, err
		}
		members[i] = c
	}
	return &Generation{members: members}, nil
}

func (g *Generation) Len() int {
	return len(g.members)
}

func (g *Generation) IsRated() bool {
	return g.rated
}

// Members returns copies of the candidates in their current order. Changing
// a copy leaves the generation's scores and selection bounds intact.
func (g *Generation) Members() []*Candidate {
	out := make([]*Candidate, len(g.members))
	for i, c := range g.members {
		out[i] = c.Clone()
	}
	return out
}

// Member returns a copy of the i-th candidate.
func (g *Generation) Member(i int) *Candidate {
	return g.members[i].Clone()
}

// clone copies the members into an unrated generation.
func (g *Generation) clone() *Generation {
	return &Generation{members: g.Members()}
}

// Rate scores every member against cm using up to workers goroutines, then
// sorts members ascending by score. Each goroutine owns a disjoint set of
// candidates; sorting starts only after all of them finished.
func (g *Generation) Rate(ctx context.Context, cm *costmodel.CostModel, workers int) error {
	if cm == nil {
		return fmt.Errorf("%w: cost model is required", ErrInvalidArgument)
	}
	if workers <= 0 {
		workers = 1
	}
	g.rated = false
	g.bounds = nil

	if workers == 1 {
		for _, c := range g.members {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := c.Evaluate(cm); err != nil {
				return err
			}
		}
	} else {
		group, gctx := errgroup.WithContext(ctx)
		group.SetLimit(workers)
		for _, c := range g.members {
			c := c
			group.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				_, err := c.Evaluate(cm)
				return err
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}
	}

	sort.SliceStable(g.members, func(i, j int) bool {
		return g.members[i].score < g.members[j].score
	})

	bounds := make([]float64, len(g.members))
	total := 0.0
	for i, c := range g.members {
		f, err := c.Fitness()
		if err != nil {
			return err
		}
		total += f
		bounds[i] = total
	}
	g.bounds = bounds
	g.rated = true
	return nil
}

func (g *Generation) requireRated() error {
	if !g.rated {
		return fmt.Errorf("%w: generation must be rated first", ErrNotRated)
	}
	return nil
}

// Best returns the lowest-score member. The candidate is shared with the
// generation and must not be mutated.
func (g *Generation) Best() (*Candidate, error) {
	if err := g.requireRated(); err != nil {
		return nil, err
	}
	return g.members[0], nil
}

func (g *Generation) BestScore() (float64, error) {
	if err := g.requireRated(); err != nil {
		return 0, err
	}
	return g.members[0].score, nil
}

func (g *Generation) WorstScore() (float64, error) {
	if err := g.requireRated(); err != nil {
		return 0, err
	}
	return g.members[len(g.members)-1].score, nil
}

// MedianScore averages the two central scores when the size is even.
func (g *Generation) MedianScore() (float64, error) {
	scores, err := g.Scores()
	if err != nil {
		return 0, err
	}
	return median(scores), nil
}

// Scores returns the sorted score sequence.
func (g *Generation) Scores() ([]float64, error) {
	if err := g.requireRated(); err != nil {
		return nil, err
	}
	scores := make([]float64, len(g.members))
	for i, c := range g.members {
		scores[i] = c.score
	}
	return scores, nil
}

// median expects sorted input.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// SelectOne draws a member with probability proportional to its fitness.
// Members with a zero score have infinite fitness; the first of them (they
// sort first) is always returned. When the total fitness is zero, which
// happens once every makespan overflowed to +Inf, the draw is uniform. The
// returned candidate is shared with the generation and must not be mutated.
func (g *Generation) SelectOne(rng *rand.Rand) (*Candidate, error) {
	if err := g.requireRated(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: random source is required", ErrInvalidArgument)
	}
	total := g.bounds[len(g.bounds)-1]
	if math.IsInf(total, 1) {
		return g.members[0], nil
	}
	if total == 0 {
		return g.members[rng.Intn(len(g.members))], nil
	}
	return g.SelectAt(rng.Float64() * total)
}

// SelectAt returns the first member whose cumulative fitness bound strictly
// exceeds pick. pick must lie in [0, total fitness); anything else fails with
// ErrInvalidArgument.
func (g *Generation) SelectAt(pick float64) (*Candidate, error) {
	if err := g.requireRated(); err != nil {
		return nil, err
	}
	total := g.bounds[len(g.bounds)-1]
	if math.IsNaN(pick) || pick < 0 || pick >= total {
		return nil, fmt.Errorf("%w: pick %v outside [0,%v)", ErrInvalidArgument, pick, total)
	}
	i := sort.Search(len(g.bounds), func(i int) bool {
		return g.bounds[i] > pick
	})
	return g.members[i], nil
}

// TotalFitness is the last cumulative bound used by selection.
func (g *Generation) TotalFitness() (float64, error) {
	if err := g.requireRated(); err != nil {
		return 0, err
	}
	return g.bounds[len(g.bounds)-1], nil
}
