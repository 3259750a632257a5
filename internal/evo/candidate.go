package evo

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"gentasche/internal/costmodel"
)

// Candidate is one proposed assignment: Processor(t) is the processor that runs task t.
// The assignment length is fixed at construction.
type Candidate struct {
	assignment []int
	score      float64
	scored     bool
}

// NewCandidate copies assignment and checks every entry lies in [0, processorCount).
func NewCandidate(assignment []int, processorCount int) (*Candidate, error) {
	if len(assignment) == 0 {
		return nil, fmt.Errorf("%w: assignment cannot be empty", ErrInvalidArgument)
	}
	if processorCount <= 0 {
		return nil, fmt.Errorf("%w: processor count must be > 0 (got %d)", ErrInvalidArgument, processorCount)
	}
	for t, p := range assignment {
		if p < 0 || p >= processorCount {
			return nil, fmt.Errorf("%w: assignment[%d]=%d out of range [0,%d)", ErrInvalidArgument, t, p, processorCount)
		}
	}
	return &Candidate{assignment: append([]int(nil), assignment...)}, nil
}

// RandomCandidate assigns every task a uniformly random processor.
func RandomCandidate(rng *rand.Rand, taskCount, processorCount int) (*Candidate, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: random source is required", ErrInvalidArgument)
	}
	if taskCount <= 0 {
		return nil, fmt.Errorf("%w: task count must be > 0 (got %d)", ErrInvalidArgument, taskCount)
	}
	if processorCount <= 0 {
		return nil, fmt.Errorf("%w: processor count must be > 0 (got %d)", ErrInvalidArgument, processorCount)
	}
	assignment := make([]int, taskCount)
	for t := range assignment {
		assignment[t] = rng.Intn(processorCount)
	}
	return &Candidate{assignment: assignment}, nil
}

func (c *Candidate) Len() int {
	return len(c.assignment)
}

func (c *Candidate) Processor(task int) int {
	return c.assignment[task]
}

// Assignment returns a copy of the task-to-processor mapping.
func (c *Candidate) Assignment() []int {
	return append([]int(nil), c.assignment...)
}

// Score returns the last evaluated makespan and whether it is set.
func (c *Candidate) Score() (float64, bool) {
	return c.score, c.scored
}

// Fitness is 1/score. A zero score has infinite fitness.
func (c *Candidate) Fitness() (float64, error) {
	if !c.scored {
		return 0, fmt.Errorf("%w: candidate has no score", ErrNotRated)
	}
	if c.score == 0 {
		return math.Inf(1), nil
	}
	return 1 / c.score, nil
}

// Loads returns the total time assigned to every processor under cm.
func (c *Candidate) Loads(cm *costmodel.CostModel) ([]float64, error) {
	if cm == nil {
		return nil, fmt.Errorf("%w: cost model is required", ErrInvalidArgument)
	}
	if len(c.assignment) != cm.TaskCount() {
		return nil, fmt.Errorf("%w: assignment has %d tasks, cost model has %d",
			ErrMalformedInput, len(c.assignment), cm.TaskCount())
	}
	loads := make([]float64, cm.ProcessorCount())
	for t, p := range c.assignment {
		if p >= cm.ProcessorCount() {
			return nil, fmt.Errorf("%w: task %d assigned to processor %d, cost model has %d",
				ErrMalformedInput, t, p, cm.ProcessorCount())
		}
		loads[p] += cm.Time(t, p)
	}
	return loads, nil
}

// Makespan is the maximum processor load. It does not touch the stored score.
func (c *Candidate) Makespan(cm *costmodel.CostModel) (float64, error) {
	loads, err := c.Loads(cm)
	if err != nil {
		return 0, err
	}
	return floats.Max(loads), nil
}

// Evaluate computes the makespan and stores it as the candidate's score.
func (c *Candidate) Evaluate(cm *costmodel.CostModel) (float64, error) {
	score, err := c.Makespan(cm)
	if err != nil {
		return 0, err
	}
	c.score = score
	c.scored = true
	return score, nil
}

func (c *Candidate) clearScore() {
	c.score = 0
	c.scored = false
}

// Crossover splices the parents at point: the first child takes c's prefix
// [0, point) and other's suffix, the second child the complement. point must
// lie strictly inside (0, Len()) so neither child is a copy of a parent's full sequence.
func (c *Candidate) Crossover(other *Candidate, point int) (*Candidate, *Candidate, error) {
	if other == nil {
		return nil, nil, fmt.Errorf("%w: crossover partner is required", ErrInvalidArgument)
	}
	n := len(c.assignment)
	if len(other.assignment) != n {
		return nil, nil, fmt.Errorf("%w: parents differ in length (%d vs %d)", ErrInvalidArgument, n, len(other.assignment))
	}
	if point <= 0 || point >= n {
		return nil, nil, fmt.Errorf("%w: crossing point must be in (0,%d) (got %d)", ErrInvalidArgument, n, point)
	}

	first := make([]int, n)
	second := make([]int, n)
	copy(first, c.assignment[:point])
	copy(first[point:], other.assignment[point:])
	copy(second, other.assignment[:point])
	copy(second[point:], c.assignment[point:])
	return &Candidate{assignment: first}, &Candidate{assignment: second}, nil
}

// CrossoverRandom crosses at a uniformly random point in [1, Len()-1].
func (c *Candidate) CrossoverRandom(rng *rand.Rand, other *Candidate) (*Candidate, *Candidate, error) {
	if rng == nil {
		return nil, nil, fmt.Errorf("%w: random source is required", ErrInvalidArgument)
	}
	if len(c.assignment) < 2 {
		return nil, nil, fmt.Errorf("%w: crossover needs at least 2 tasks (got %d)", ErrInvalidArgument, len(c.assignment))
	}
	return c.Crossover(other, 1+rng.Intn(len(c.assignment)-1))
}

// Mutate applies the swap mutation in place.
func (c *Candidate) Mutate(rng *rand.Rand) error {
	return SwapMutation{}.Mutate(rng, c, 0)
}

func (c *Candidate) Clone() *Candidate {
	return &Candidate{
		assignment: append([]int(nil), c.assignment...),
		score:      c.score,
		scored:     c.scored,
	}
}

// Equal compares assignments only.
func (c *Candidate) Equal(other *Candidate) bool {
	if c == nil || other == nil {
		return c == other
	}
	if len(c.assignment) != len(other.assignment) {
		return false
	}
	for i := range c.assignment {
		if c.assignment[i] != other.assignment[i] {
			return false
		}
	}
	return true
}

// TasksByProcessor groups task indices by the processor they are assigned to.
func (c *Candidate) TasksByProcessor() map[int][]int {
	out := make(map[int][]int)
	for t, p := range c.assignment {
		out[p] = append(out[p], t)
	}
	return out
}

func (c *Candidate) String() string {
	var b strings.Builder
	if c.scored {
		fitness, _ := c.Fitness()
		fmt.Fprintf(&b, "candidate with fitness %g and score %g\n", fitness, c.score)
	} else {
		b.WriteString("unrated candidate\n")
	}
	b.WriteString("tasks per processor:")
	groups := c.TasksByProcessor()
	processors := make([]int, 0, len(groups))
	for p := range groups {
		processors = append(processors, p)
	}
	sort.Ints(processors)
	for _, p := range processors {
		tasks := make([]string, len(groups[p]))
		for i, t := range groups[p] {
			tasks[i] = strconv.Itoa(t)
		}
		fmt.Fprintf(&b, "\nprocessor %d: %s", p, strings.Join(tasks, " "))
	}
	return b.String()
}
