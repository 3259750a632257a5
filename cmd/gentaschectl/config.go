package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"gentasche/pkg/gentasche"
)

type runFileConfig struct {
	Dataset         string   `yaml:"dataset"`
	Population      int      `yaml:"population"`
	Generations     int      `yaml:"generations"`
	MutationRate    *float64 `yaml:"mutation_rate"`
	CrossoverRate   *float64 `yaml:"crossover_rate"`
	Mutation        string   `yaml:"mutation"`
	Seed            int64    `yaml:"seed"`
	Workers         int      `yaml:"workers"`
	Elitism         bool     `yaml:"elitism"`
	KeepGenerations bool     `yaml:"keep_generations"`
	TimeBudget      string   `yaml:"time_budget"`
}

func loadRunRequestFromConfig(path string) (gentasche.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return gentasche.RunRequest{}, fmt.Errorf("read run config: %w", err)
	}

	var cfg runFileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return gentasche.RunRequest{}, fmt.Errorf("decode run config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return gentasche.RunRequest{}, fmt.Errorf("run config %s: %w", path, err)
	}

	req := gentasche.RunRequest{
		DatasetPath:     cfg.Dataset,
		Population:      cfg.Population,
		Generations:     cfg.Generations,
		MutationRate:    cfg.MutationRate,
		CrossoverRate:   cfg.CrossoverRate,
		Mutation:        cfg.Mutation,
		Seed:            cfg.Seed,
		Workers:         cfg.Workers,
		Elitism:         cfg.Elitism,
		KeepGenerations: cfg.KeepGenerations,
	}
	if cfg.TimeBudget != "" {
		budget, err := time.ParseDuration(cfg.TimeBudget)
		if err != nil {
			return gentasche.RunRequest{}, fmt.Errorf("run config %s: time_budget: %w", path, err)
		}
		req.TimeBudget = budget
	}
	return req, nil
}

func (c runFileConfig) validate() error {
	if c.Population < 0 {
		return errors.New("population must be >= 0")
	}
	if c.Generations < 0 {
		return errors.New("generations must be >= 0")
	}
	if c.Workers < 0 {
		return errors.New("workers must be >= 0")
	}
	if c.MutationRate != nil && (*c.MutationRate < 0 || *c.MutationRate > 100) {
		return errors.New("mutation_rate must be in [0, 100]")
	}
	if c.CrossoverRate != nil && (*c.CrossoverRate < 0 || *c.CrossoverRate > 100) {
		return errors.New("crossover_rate must be in [0, 100]")
	}
	return nil
}

func overrideFromFlags(req *gentasche.RunRequest, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		value, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "dataset":
			v, ok := value.(string)
			if !ok {
				return fmt.Errorf("invalid value type for %s", name)
			}
			req.DatasetPath = v
		case "mutation":
			v, ok := value.(string)
			if !ok {
				return fmt.Errorf("invalid value type for %s", name)
			}
			req.Mutation = v
		case "pop", "gens", "workers":
			v, ok := value.(int)
			if !ok {
				return fmt.Errorf("invalid value type for %s", name)
			}
			switch name {
			case "pop":
				req.Population = v
			case "gens":
				req.Generations = v
			case "workers":
				req.Workers = v
			}
		case "mutation-rate", "crossover-rate":
			v, ok := value.(float64)
			if !ok {
				return fmt.Errorf("invalid value type for %s", name)
			}
			if name == "mutation-rate" {
				req.MutationRate = &v
			} else {
				req.CrossoverRate = &v
			}
		case "seed":
			v, ok := value.(int64)
			if !ok {
				return fmt.Errorf("invalid value type for %s", name)
			}
			req.Seed = v
		case "elitism", "keep-generations":
			v, ok := value.(bool)
			if !ok {
				return fmt.Errorf("invalid value type for %s", name)
			}
			if name == "elitism" {
				req.Elitism = v
			} else {
				req.KeepGenerations = v
			}
		case "time-budget":
			v, ok := value.(time.Duration)
			if !ok {
				return fmt.Errorf("invalid value type for %s", name)
			}
			req.TimeBudget = v
		}
	}
	return nil
}
