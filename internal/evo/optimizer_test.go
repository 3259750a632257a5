package evo

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"gentasche/internal/costmodel"
)

func randomCostModel(t *testing.T, tasks, processors int) *costmodel.CostModel {
	t.Helper()
	cm, err := costmodel.Random(rand.New(rand.NewSource(7)), tasks, processors, costmodel.GenerateSpeeds)
	if err != nil {
		t.Fatalf("random cost model: %v", err)
	}
	return cm
}

func testConfig(seed int64) Config {
	cfg := DefaultConfig()
	cfg.PopulationSize = 20
	cfg.MaxGenerations = 30
	cfg.Seed = seed
	return cfg
}

func runOptimizer(t *testing.T, cfg Config, cm *costmodel.CostModel) *Optimizer {
	t.Helper()
	opt, err := NewOptimizer(cfg)
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}
	if err := opt.Feed(context.Background(), cm); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if err := opt.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	return opt
}

func TestOptimizerRunImprovesOnRandomStart(t *testing.T) {
	cfg := testConfig(1)
	cfg.PopulationSize = 30
	cfg.MaxGenerations = 50
	cm := randomCostModel(t, 40, 4)

	opt := runOptimizer(t, cfg, cm)
	if opt.State() != StateDone || opt.StopReason() != StopReasonGenerations {
		t.Fatalf("unexpected final state %s (%q)", opt.State(), opt.StopReason())
	}
	if opt.Generations() != 50 {
		t.Fatalf("expected 50 generations, got %d", opt.Generations())
	}
	if opt.Evaluations() != 50*30 {
		t.Fatalf("expected %d evaluations, got %d", 50*30, opt.Evaluations())
	}

	stats := opt.Statistics()
	best, err := opt.BestOfAll()
	if err != nil {
		t.Fatalf("best of all: %v", err)
	}
	score, ok := best.Score()
	if !ok {
		t.Fatal("best of all must carry its score")
	}
	if score >= stats[0].MeanScore {
		t.Fatalf("expected best %v to beat the initial mean %v", score, stats[0].MeanScore)
	}
	makespan, err := best.Makespan(cm)
	if err != nil || makespan != score {
		t.Fatalf("stored score %v disagrees with makespan %v (%v)", score, makespan, err)
	}
}

func TestOptimizerBestOfAllIsMinimum(t *testing.T) {
	opt := runOptimizer(t, testConfig(3), randomCostModel(t, 16, 4))

	stats := opt.Statistics()
	minScore, minGen := stats[0].BestScore, 0
	for _, s := range stats {
		if s.BestScore < minScore {
			minScore, minGen = s.BestScore, s.Generation
		}
	}
	best, err := opt.BestOfAll()
	if err != nil {
		t.Fatalf("best of all: %v", err)
	}
	if score, _ := best.Score(); score != minScore {
		t.Fatalf("expected best score %v, got %v", minScore, score)
	}
	if !best.Equal(stats[minGen].Best) {
		t.Fatal("expected the earliest best candidate")
	}
	for i, s := range stats {
		if s.Generation != i {
			t.Fatalf("summary %d labelled generation %d", i, s.Generation)
		}
		if s.BestScore > s.MedianScore || s.MedianScore > s.WorstScore {
			t.Fatalf("summary %d out of order: %+v", i, s)
		}
	}
}

func TestOptimizerArchiveKeepsIdenticalStatistics(t *testing.T) {
	cm := randomCostModel(t, 12, 2)
	archived := testConfig(9)
	retained := testConfig(9)
	retained.Archive = false

	a := runOptimizer(t, archived, cm)
	r := runOptimizer(t, retained, cm)

	as, rs := a.Statistics(), r.Statistics()
	if len(as) != len(rs) {
		t.Fatalf("statistics length differs: %d vs %d", len(as), len(rs))
	}
	for i := range as {
		if as[i].BestScore != rs[i].BestScore || as[i].WorstScore != rs[i].WorstScore ||
			as[i].MedianScore != rs[i].MedianScore || as[i].MeanScore != rs[i].MeanScore {
			t.Fatalf("generation %d statistics differ: %+v vs %+v", i, as[i], rs[i])
		}
	}

	if _, ok := a.Generation(0); ok {
		t.Fatal("archived optimizer must drop superseded generations")
	}
	if _, ok := r.Generation(0); !ok {
		t.Fatal("retaining optimizer must keep every generation")
	}
	last := len(as) - 1
	if _, ok := a.Generation(last); !ok {
		t.Fatal("the current generation is never archived")
	}
}

func TestOptimizerOddPopulation(t *testing.T) {
	cfg := testConfig(4)
	cfg.PopulationSize = 7
	cfg.Archive = false
	opt := runOptimizer(t, cfg, randomCostModel(t, 10, 2))

	for i := 0; i < opt.Generations(); i++ {
		g, ok := opt.Generation(i)
		if !ok {
			t.Fatalf("generation %d missing", i)
		}
		if g.Len() != 7 {
			t.Fatalf("generation %d has %d members", i, g.Len())
		}
	}
}

func TestOptimizerElitismNeverRegresses(t *testing.T) {
	cfg := testConfig(12)
	cfg.Elitism = true
	cfg.MutationRatePercent = 30
	opt := runOptimizer(t, cfg, randomCostModel(t, 24, 4))

	stats := opt.Statistics()
	for i := 1; i < len(stats); i++ {
		if stats[i].BestScore > stats[i-1].BestScore {
			t.Fatalf("best score regressed at generation %d: %v -> %v", i, stats[i-1].BestScore, stats[i].BestScore)
		}
	}
}

func TestOptimizerDeterministic(t *testing.T) {
	cm := randomCostModel(t, 20, 4)
	sequential := testConfig(42)
	parallel := testConfig(42)
	parallel.Workers = 4
	parallel.Mutation = ReassignMutation{}
	sequential.Mutation = ReassignMutation{}

	runs := []*Optimizer{
		runOptimizer(t, sequential, cm),
		runOptimizer(t, sequential, cm),
		runOptimizer(t, parallel, cm),
	}
	base := runs[0].Statistics()
	for _, opt := range runs[1:] {
		stats := opt.Statistics()
		for i := range base {
			if stats[i].BestScore != base[i].BestScore || !stats[i].Best.Equal(base[i].Best) {
				t.Fatalf("generation %d differs between identical seeds", i)
			}
		}
	}
}

func TestOptimizerStateMachine(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(2)
	cfg.MaxGenerations = 3
	cm := randomCostModel(t, 8, 2)

	opt, err := NewOptimizer(cfg)
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}
	if opt.State() != StateUnprepared {
		t.Fatalf("expected unprepared, got %s", opt.State())
	}
	if err := opt.Prepare(ctx); !errors.Is(err, ErrPreconditionViolation) {
		t.Fatalf("expected precondition violation without a cost model, got %v", err)
	}
	if _, err := opt.Advance(ctx); !errors.Is(err, ErrPreconditionViolation) {
		t.Fatalf("expected precondition violation before prepare, got %v", err)
	}
	if _, err := opt.BestOfAll(); !errors.Is(err, ErrNotRated) {
		t.Fatalf("expected not rated before prepare, got %v", err)
	}
	if err := opt.Feed(ctx, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for nil cost model, got %v", err)
	}
	if err := opt.Feed(ctx, cm); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if err := opt.Prepare(ctx); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if opt.State() != StatePrepared || opt.Generations() != 1 {
		t.Fatalf("expected prepared with one generation, got %s/%d", opt.State(), opt.Generations())
	}
	if err := opt.Prepare(ctx); !errors.Is(err, ErrPreconditionViolation) {
		t.Fatalf("expected precondition violation on second prepare, got %v", err)
	}

	if err := opt.Feed(ctx, randomCostModel(t, 9, 2)); !errors.Is(err, ErrPreconditionViolation) {
		t.Fatalf("expected precondition violation for a different shape, got %v", err)
	}
	if err := opt.Feed(ctx, cm); err != nil {
		t.Fatalf("re-feed with same shape: %v", err)
	}
	if opt.Generations() != 1 {
		t.Fatalf("re-feed must keep a single generation, got %d", opt.Generations())
	}

	summary, err := opt.Advance(ctx)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if summary.Generation != 1 || opt.State() != StateRunning {
		t.Fatalf("unexpected state after advance: %s, generation %d", opt.State(), summary.Generation)
	}
	if err := opt.Feed(ctx, cm); !errors.Is(err, ErrPreconditionViolation) {
		t.Fatalf("expected precondition violation when feeding a running optimizer, got %v", err)
	}

	if _, err := opt.Advance(ctx); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if opt.State() != StateDone {
		t.Fatalf("expected done at the generation limit, got %s", opt.State())
	}
	if _, err := opt.Advance(ctx); !errors.Is(err, ErrPreconditionViolation) {
		t.Fatalf("expected precondition violation after done, got %v", err)
	}
	if err := opt.Run(ctx); !errors.Is(err, ErrPreconditionViolation) {
		t.Fatalf("expected precondition violation on run after done, got %v", err)
	}
}

func TestOptimizerRejectsTinyInstances(t *testing.T) {
	ctx := context.Background()
	single, err := costmodel.New(1, 3, [][]float64{{1, 2, 3}})
	if err != nil {
		t.Fatalf("cost model: %v", err)
	}
	opt, err := NewOptimizer(testConfig(1))
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}
	if err := opt.Feed(ctx, single); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if err := opt.Prepare(ctx); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for a single task, got %v", err)
	}

	oneProcessor, err := costmodel.New(3, 1, [][]float64{{1}, {2}, {3}})
	if err != nil {
		t.Fatalf("cost model: %v", err)
	}
	cfg := testConfig(1)
	cfg.Mutation = ReassignMutation{}
	opt, err = NewOptimizer(cfg)
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}
	if err := opt.Feed(ctx, oneProcessor); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if err := opt.Prepare(ctx); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for reassign on one processor, got %v", err)
	}

	cfg.Mutation = &ReassignMutation{}
	opt, err = NewOptimizer(cfg)
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}
	if err := opt.Feed(ctx, oneProcessor); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if err := opt.Prepare(ctx); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for *ReassignMutation on one processor, got %v", err)
	}
}

func TestOptimizerFailedFeedKeepsGenerationZero(t *testing.T) {
	cm := randomCostModel(t, 8, 2)
	cfg := testConfig(3)
	cfg.MaxGenerations = 4
	opt, err := NewOptimizer(cfg)
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}
	if err := opt.Feed(context.Background(), cm); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if err := opt.Prepare(context.Background()); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	before := opt.Statistics()[0]

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := opt.Feed(cancelled, cm); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if opt.State() != StatePrepared || opt.Generations() != 1 || opt.Evaluations() != cfg.PopulationSize {
		t.Fatalf("failed feed changed the optimizer: %s/%d generations/%d evaluations",
			opt.State(), opt.Generations(), opt.Evaluations())
	}
	if opt.CostModel() != cm {
		t.Fatal("failed feed must keep the previous cost model")
	}
	if after := opt.Statistics()[0]; after.BestScore != before.BestScore || after.MedianScore != before.MedianScore {
		t.Fatalf("generation 0 changed: %+v vs %+v", after, before)
	}
	gen0, ok := opt.Generation(0)
	if !ok || !gen0.IsRated() {
		t.Fatal("generation 0 must stay rated")
	}

	if _, err := opt.Advance(context.Background()); err != nil {
		t.Fatalf("advance after failed feed: %v", err)
	}
	if err := opt.Run(context.Background()); err != nil {
		t.Fatalf("run after failed feed: %v", err)
	}
	if opt.State() != StateDone || opt.Generations() != cfg.MaxGenerations {
		t.Fatalf("unexpected final state %s/%d", opt.State(), opt.Generations())
	}
}

func TestOptimizerAdvancesWhenEveryMakespanOverflows(t *testing.T) {
	// One processor: every assignment sums all three times and overflows.
	cm, err := costmodel.New(3, 1, [][]float64{{1e308}, {1e308}, {1e308}})
	if err != nil {
		t.Fatalf("cost model: %v", err)
	}
	cfg := testConfig(4)
	cfg.PopulationSize = 6
	cfg.MaxGenerations = 3
	cfg.MutationRatePercent = 100
	opt, err := NewOptimizer(cfg)
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}
	if err := opt.Feed(context.Background(), cm); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if err := opt.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if opt.Generations() != 3 {
		t.Fatalf("expected 3 generations, got %d", opt.Generations())
	}
}

func TestOptimizerSingleProcessorSwap(t *testing.T) {
	cm, err := costmodel.New(3, 1, [][]float64{{1}, {2}, {3}})
	if err != nil {
		t.Fatalf("cost model: %v", err)
	}
	cfg := testConfig(1)
	cfg.MutationRatePercent = 100
	opt := runOptimizer(t, cfg, cm)
	best, err := opt.BestOfAll()
	if err != nil {
		t.Fatalf("best of all: %v", err)
	}
	if score, _ := best.Score(); score != 6 {
		t.Fatalf("expected makespan 6 on one processor, got %v", score)
	}
}

func TestOptimizerSingleGenerationLimit(t *testing.T) {
	cfg := testConfig(1)
	cfg.MaxGenerations = 1
	opt := runOptimizer(t, cfg, randomCostModel(t, 6, 2))
	if opt.State() != StateDone || opt.Generations() != 1 {
		t.Fatalf("expected done after generation 0, got %s/%d", opt.State(), opt.Generations())
	}
}

func TestOptimizerTimeBudget(t *testing.T) {
	cfg := testConfig(1)
	cfg.MaxGenerations = 1_000_000
	cfg.TimeBudget = time.Nanosecond
	opt := runOptimizer(t, cfg, randomCostModel(t, 8, 2))
	if opt.StopReason() != StopReasonTimeBudget {
		t.Fatalf("expected time budget stop, got %q", opt.StopReason())
	}
	if opt.State() != StateDone || opt.Generations() >= cfg.MaxGenerations {
		t.Fatalf("unexpected state %s after %d generations", opt.State(), opt.Generations())
	}
}

func TestOptimizerRunHonoursCancellation(t *testing.T) {
	opt, err := NewOptimizer(testConfig(1))
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}
	if err := opt.Feed(context.Background(), randomCostModel(t, 8, 2)); err != nil {
		t.Fatalf("feed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := opt.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestOptimizerObserverSeesEveryGeneration(t *testing.T) {
	cfg := testConfig(5)
	var seen []int
	cfg.Observer = func(s GenerationSummary) {
		seen = append(seen, s.Generation)
	}
	opt := runOptimizer(t, cfg, randomCostModel(t, 8, 2))
	if len(seen) != opt.Generations() {
		t.Fatalf("observer saw %d generations, expected %d", len(seen), opt.Generations())
	}
	for i, g := range seen {
		if g != i {
			t.Fatalf("observer order broken at %d: %v", i, seen)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"population":  func(c *Config) { c.PopulationSize = 0 },
		"generations": func(c *Config) { c.MaxGenerations = 0 },
		"mutation":    func(c *Config) { c.MutationRatePercent = 101 },
		"crossover":   func(c *Config) { c.CrossoverRatePercent = -1 },
		"workers":     func(c *Config) { c.Workers = -2 },
		"elitism": func(c *Config) {
			c.Elitism = true
			c.PopulationSize = 1
		},
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		if _, err := NewOptimizer(cfg); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("%s: expected invalid argument, got %v", name, err)
		}
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
