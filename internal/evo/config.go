package evo

import (
	"fmt"
	"log/slog"
	"time"
)

type Config struct {
	PopulationSize int
	// MaxGenerations counts generation 0.
	MaxGenerations       int
	MutationRatePercent  float64
	CrossoverRatePercent float64
	Seed                 int64
	// Workers bounds the goroutines used to rate a generation.
	Workers  int
	Mutation MutationStrategy
	// Elitism copies the previous best candidate into every new generation
	// unmodified, which makes the per-generation best score non-increasing.
	Elitism bool
	// Archive keeps only the summary of superseded generations.
	Archive bool
	// TimeBudget stops Run once exceeded; zero means no budget.
	TimeBudget time.Duration
	Logger     *slog.Logger
	// Observer is called synchronously after every rated generation.
	Observer func(GenerationSummary)
}

func DefaultConfig() Config {
	return Config{
		PopulationSize:       10,
		MaxGenerations:       100,
		MutationRatePercent:  5,
		CrossoverRatePercent: 100,
		Workers:              1,
		Mutation:             SwapMutation{},
		Archive:              true,
	}
}

func (c Config) Validate() error {
	if c.PopulationSize <= 0 {
		return fmt.Errorf("%w: population size must be > 0 (got %d)", ErrInvalidArgument, c.PopulationSize)
	}
	if c.Elitism && c.PopulationSize < 2 {
		return fmt.Errorf("%w: elitism needs a population size >= 2 (got %d)", ErrInvalidArgument, c.PopulationSize)
	}
	if c.MaxGenerations <= 0 {
		return fmt.Errorf("%w: max generations must be > 0 (got %d)", ErrInvalidArgument, c.MaxGenerations)
	}
	if c.MutationRatePercent < 0 || c.MutationRatePercent > 100 {
		return fmt.Errorf("%w: mutation rate must be in [0,100] (got %v)", ErrInvalidArgument, c.MutationRatePercent)
	}
	if c.CrossoverRatePercent < 0 || c.CrossoverRatePercent > 100 {
		return fmt.Errorf("%w: crossover rate must be in [0,100] (got %v)", ErrInvalidArgument, c.CrossoverRatePercent)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0 (got %d)", ErrInvalidArgument, c.Workers)
	}
	if c.TimeBudget < 0 {
		return fmt.Errorf("%w: time budget must be >= 0 (got %s)", ErrInvalidArgument, c.TimeBudget)
	}
	return nil
}
