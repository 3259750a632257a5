package evo

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
)

// MutationStrategy perturbs a candidate in place. Implementations clear the
// candidate's score because the assignment changes.
type MutationStrategy interface {
	Name() string
	Mutate(rng *rand.Rand, c *Candidate, processorCount int) error
}

// SwapMutation exchanges the processors of two distinct tasks. The multiset of
// processor values is preserved; no new processor is ever introduced. When the
// candidate holds at least two distinct processors the second index is drawn
// among tasks on a different processor than the first, so the swap always
// changes the assignment.
type SwapMutation struct{}

func (SwapMutation) Name() string {
	return "swap"
}

func (SwapMutation) Mutate(rng *rand.Rand, c *Candidate, _ int) error {
	if rng == nil {
		return fmt.Errorf("%w: random source is required", ErrInvalidArgument)
	}
	if c == nil {
		return fmt.Errorf("%w: candidate is required", ErrInvalidArgument)
	}
	a := c.assignment
	n := len(a)
	if n < 2 {
		return fmt.Errorf("%w: swap mutation needs at least 2 tasks (got %d)", ErrInvalidArgument, n)
	}

	i := rng.Intn(n)
	differing := 0
	for k := range a {
		if a[k] != a[i] {
			differing++
		}
	}

	var j int
	if differing == 0 {
		j = rng.Intn(n - 1)
		if j >= i {
			j++
		}
	} else {
		nth := rng.Intn(differing)
		for k := range a {
			if a[k] == a[i] {
				continue
			}
			if nth == 0 {
				j = k
				break
			}
			nth--
		}
	}

	a[i], a[j] = a[j], a[i]
	c.clearScore()
	return nil
}

// ReassignMutation moves one uniformly chosen task to a uniformly chosen
// processor other than its current one. Unlike SwapMutation it can introduce
// processor values the candidate did not use before.
type ReassignMutation struct{}

func (ReassignMutation) Name() string {
	return "reassign"
}

func (ReassignMutation) Mutate(rng *rand.Rand, c *Candidate, processorCount int) error {
	if rng == nil {
		return fmt.Errorf("%w: random source is required", ErrInvalidArgument)
	}
	if c == nil || len(c.assignment) == 0 {
		return fmt.Errorf("%w: candidate is required", ErrInvalidArgument)
	}
	if processorCount < 2 {
		return fmt.Errorf("%w: reassign mutation needs at least 2 processors (got %d)", ErrInvalidArgument, processorCount)
	}
	t := rng.Intn(len(c.assignment))
	current := c.assignment[t]
	if current >= processorCount {
		return fmt.Errorf("%w: task %d assigned to processor %d, only %d available", ErrInvalidArgument, t, current, processorCount)
	}
	next := rng.Intn(processorCount - 1)
	if next >= current {
		next++
	}
	c.assignment[t] = next
	c.clearScore()
	return nil
}

var (
	ErrMutationExists   = errors.New("mutation strategy already registered")
	ErrMutationNotFound = errors.New("mutation strategy not found")
)

var mutationRegistry = struct {
	sync.RWMutex
	byName map[string]MutationStrategy
}{
	byName: map[string]MutationStrategy{
		SwapMutation{}.Name():     SwapMutation{},
		ReassignMutation{}.Name(): ReassignMutation{},
	},
}

// RegisterMutation makes a strategy available to MutationByName.
func RegisterMutation(strategy MutationStrategy) error {
	if strategy == nil || strategy.Name() == "" {
		return fmt.Errorf("%w: mutation strategy needs a name", ErrInvalidArgument)
	}
	mutationRegistry.Lock()
	defer mutationRegistry.Unlock()

	if _, ok := mutationRegistry.byName[strategy.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrMutationExists, strategy.Name())
	}
	mutationRegistry.byName[strategy.Name()] = strategy
	return nil
}

// MutationByName resolves a registered strategy. The empty name selects swap.
func MutationByName(name string) (MutationStrategy, error) {
	if name == "" {
		return SwapMutation{}, nil
	}
	mutationRegistry.RLock()
	defer mutationRegistry.RUnlock()

	strategy, ok := mutationRegistry.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMutationNotFound, name)
	}
	return strategy, nil
}

// MutationNames lists registered strategies in lexical order.
func MutationNames() []string {
	mutationRegistry.RLock()
	defer mutationRegistry.RUnlock()

	names := make([]string, 0, len(mutationRegistry.byName))
	for name := range mutationRegistry.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
