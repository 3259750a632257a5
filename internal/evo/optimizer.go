package evo

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"gentasche/internal/costmodel"
)

type State int

const (
	StateUnprepared State = iota
	StatePrepared
	StateRunning
	StateDone
)

func (s State) String() string {
	switch s {
	case StateUnprepared:
		return "unprepared"
	case StatePrepared:
		return "prepared"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type StopReason string

const (
	StopReasonNone        StopReason = ""
	StopReasonGenerations StopReason = "generations"
	StopReasonTimeBudget  StopReason = "time_budget"
)

type historyEntry struct {
	summary GenerationSummary
	// generation is nil once archived.
	generation *Generation
}

// Optimizer runs the generational search for one problem instance.
//
// Selection is fitness-proportionate with replacement and gives the current
// best candidate no survival guarantee: the best score of a generation can get
// worse than the one before it. BestOfAll still reports the best candidate ever
// rated. Set Config.Elitism to make per-generation best scores non-increasing.
type Optimizer struct {
	cfg    Config
	rng    *rand.Rand
	logger *slog.Logger

	cm          *costmodel.CostModel
	state       State
	initial     *Generation
	history     []historyEntry
	evaluations int
	started     time.Time
	elapsed     time.Duration
	stopReason  StopReason
}

func NewOptimizer(cfg Config) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if cfg.Mutation == nil {
		cfg.Mutation = SwapMutation{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Optimizer{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		logger: logger,
	}, nil
}

func (o *Optimizer) Config() Config {
	return o.cfg
}

func (o *Optimizer) State() State {
	return o.state
}

func (o *Optimizer) StopReason() StopReason {
	return o.stopReason
}

// Generations is the number of rated generations, generation 0 included.
func (o *Optimizer) Generations() int {
	return len(o.history)
}

// Evaluations counts candidate scorings performed so far.
func (o *Optimizer) Evaluations() int {
	return o.evaluations
}

// Elapsed is the time from Prepare until the last rated generation.
func (o *Optimizer) Elapsed() time.Duration {
	return o.elapsed
}

func (o *Optimizer) CostModel() *costmodel.CostModel {
	return o.cm
}

// Feed attaches the problem instance. It may be called until the optimizer
// starts running. Feeding a prepared optimizer requires the same shape and
// re-rates generation 0 against the new instance.
func (o *Optimizer) Feed(ctx context.Context, cm *costmodel.CostModel) error {
	if cm == nil {
		return fmt.Errorf("%w: cost model is required", ErrInvalidArgument)
	}
	switch o.state {
	case StateUnprepared:
		o.cm = cm
		return nil
	case StatePrepared:
		if cm.TaskCount() != o.cm.TaskCount() || cm.ProcessorCount() != o.cm.ProcessorCount() {
			return fmt.Errorf("%w: prepared for %dx%d, got %dx%d", ErrPreconditionViolation,
				o.cm.TaskCount(), o.cm.ProcessorCount(), cm.TaskCount(), cm.ProcessorCount())
		}
		// Re-rate a copy so a failure leaves the recorded generation 0 in place.
		initial := o.initial.clone()
		if err := initial.Rate(ctx, cm, o.cfg.Workers); err != nil {
			return err
		}
		o.cm = cm
		o.initial = initial
		o.history = o.history[:0]
		o.evaluations = 0
		return o.record(initial)
	default:
		return fmt.Errorf("%w: cannot feed a %s optimizer", ErrPreconditionViolation, o.state)
	}
}

// Prepare builds, rates and records generation 0.
func (o *Optimizer) Prepare(ctx context.Context) error {
	if o.state != StateUnprepared {
		return fmt.Errorf("%w: optimizer already %s", ErrPreconditionViolation, o.state)
	}
	if o.cm == nil {
		return fmt.Errorf("%w: no cost model fed", ErrPreconditionViolation)
	}
	if o.cm.TaskCount() < 2 {
		return fmt.Errorf("%w: crossover and swap mutation need at least 2 tasks (got %d)", ErrInvalidArgument, o.cm.TaskCount())
	}
	if o.cfg.Mutation.Name() == (ReassignMutation{}).Name() && o.cm.ProcessorCount() < 2 {
		return fmt.Errorf("%w: reassign mutation needs at least 2 processors", ErrInvalidArgument)
	}

	o.started = time.Now()
	initial, err := RandomGeneration(o.rng, o.cfg.PopulationSize, o.cm.TaskCount(), o.cm.ProcessorCount())
	if err != nil {
		return err
	}
	o.initial = initial
	if err := o.rateAndAppend(ctx, initial); err != nil {
		return err
	}
	o.state = StatePrepared
	return nil
}

// Advance derives the next generation from the last one: selection, pairing
// and crossover, mutation, rating.
func (o *Optimizer) Advance(ctx context.Context) (GenerationSummary, error) {
	switch o.state {
	case StateUnprepared:
		return GenerationSummary{}, fmt.Errorf("%w: prepare must be called first", ErrPreconditionViolation)
	case StateDone:
		return GenerationSummary{}, fmt.Errorf("%w: optimizer is done", ErrPreconditionViolation)
	}
	if len(o.history) == 0 {
		return GenerationSummary{}, fmt.Errorf("%w: no generation recorded", ErrPreconditionViolation)
	}
	if len(o.history) >= o.cfg.MaxGenerations {
		return GenerationSummary{}, fmt.Errorf("%w: generation limit %d reached", ErrPreconditionViolation, o.cfg.MaxGenerations)
	}

	prev := o.history[len(o.history)-1].generation
	if prev == nil || !prev.IsRated() {
		return GenerationSummary{}, fmt.Errorf("%w: previous generation is not available", ErrNotRated)
	}
	next, err := o.breed(prev)
	if err != nil {
		return GenerationSummary{}, err
	}
	if err := o.rateAndAppend(ctx, next); err != nil {
		return GenerationSummary{}, err
	}
	if o.cfg.Archive {
		o.history[len(o.history)-2].generation = nil
	}

	o.initial = nil
	o.state = StateRunning
	if len(o.history) == o.cfg.MaxGenerations {
		o.state = StateDone
		o.stopReason = StopReasonGenerations
	}
	return o.history[len(o.history)-1].summary, nil
}

// Run prepares the optimizer if needed and advances until MaxGenerations
// generations exist, the time budget is spent, or ctx is cancelled.
func (o *Optimizer) Run(ctx context.Context) error {
	if o.state == StateDone {
		return fmt.Errorf("%w: optimizer is done", ErrPreconditionViolation)
	}
	if o.state == StateUnprepared {
		if err := o.Prepare(ctx); err != nil {
			return err
		}
	}

	runStart := time.Now()
	for len(o.history) < o.cfg.MaxGenerations {
		if err := ctx.Err(); err != nil {
			return err
		}
		if o.cfg.TimeBudget > 0 && time.Since(runStart) >= o.cfg.TimeBudget {
			o.state = StateDone
			o.stopReason = StopReasonTimeBudget
			o.logger.Info("time budget exhausted", "generations", len(o.history), "budget", o.cfg.TimeBudget)
			return nil
		}
		if _, err := o.Advance(ctx); err != nil {
			return err
		}
	}
	o.state = StateDone
	if o.stopReason == StopReasonNone {
		o.stopReason = StopReasonGenerations
	}
	return nil
}

// BestOfAll returns a copy of the lowest-score candidate over every recorded
// generation. Ties resolve to the earliest generation.
func (o *Optimizer) BestOfAll() (*Candidate, error) {
	if len(o.history) == 0 {
		return nil, fmt.Errorf("%w: no rated generation", ErrNotRated)
	}
	best := o.history[0].summary
	for _, entry := range o.history[1:] {
		if entry.summary.BestScore < best.BestScore {
			best = entry.summary
		}
	}
	return best.Best.Clone(), nil
}

// Statistics returns one summary per recorded generation, in order.
func (o *Optimizer) Statistics() []GenerationSummary {
	out := make([]GenerationSummary, len(o.history))
	for i, entry := range o.history {
		out[i] = entry.summary
		out[i].Best = entry.summary.Best.Clone()
	}
	return out
}

// Generation returns the i-th generation when it is still held in full. The
// generation belongs to the optimizer: Members and Member hand out copies,
// while Best and the selection methods return shared candidates that must
// not be mutated.
func (o *Optimizer) Generation(i int) (*Generation, bool) {
	if i < 0 || i >= len(o.history) || o.history[i].generation == nil {
		return nil, false
	}
	return o.history[i].generation, true
}

func (o *Optimizer) rateAndAppend(ctx context.Context, g *Generation) error {
	if err := g.Rate(ctx, o.cm, o.cfg.Workers); err != nil {
		return err
	}
	return o.record(g)
}

// record appends a rated generation to the history.
func (o *Optimizer) record(g *Generation) error {
	o.evaluations += g.Len()
	summary, err := Summarize(g, len(o.history))
	if err != nil {
		return err
	}
	o.history = append(o.history, historyEntry{summary: summary, generation: g})
	o.elapsed = time.Since(o.started)

	o.logger.Debug("generation rated",
		"generation", summary.Generation,
		"best", summary.BestScore,
		"median", summary.MedianScore,
		"worst", summary.WorstScore,
	)
	if o.cfg.Observer != nil {
		o.cfg.Observer(summary)
	}
	return nil
}

func (o *Optimizer) breed(prev *Generation) (*Generation, error) {
	size := o.cfg.PopulationSize
	next := make([]*Candidate, 0, size)

	if o.cfg.Elitism {
		best, err := prev.Best()
		if err != nil {
			return nil, err
		}
		next = append(next, best.Clone())
	}

	// Parents are shared with prev; crossover and Clone produce fresh children.
	parents := make([]*Candidate, size-len(next))
	for i := range parents {
		p, err := prev.SelectOne(o.rng)
		if err != nil {
			return nil, err
		}
		parents[i] = p
	}

	// An odd parent count leaves one unpaired: the best drawn parent goes
	// through unchanged.
	if len(parents)%2 == 1 {
		bi := 0
		for i, p := range parents {
			if p.score < parents[bi].score {
				bi = i
			}
		}
		next = append(next, parents[bi].Clone())
		parents = append(parents[:bi], parents[bi+1:]...)
	}

	o.rng.Shuffle(len(parents), func(i, j int) {
		parents[i], parents[j] = parents[j], parents[i]
	})

	children := make([]*Candidate, 0, len(parents))
	for i := 0; i < len(parents); i += 2 {
		a, b := parents[i], parents[i+1]
		if o.rng.Float64()*100 < o.cfg.CrossoverRatePercent {
			c1, c2, err := a.CrossoverRandom(o.rng, b)
			if err != nil {
				return nil, err
			}
			children = append(children, c1, c2)
		} else {
			children = append(children, a.Clone(), b.Clone())
		}
	}

	for _, child := range children {
		if o.rng.Float64()*100 < o.cfg.MutationRatePercent {
			if err := o.cfg.Mutation.Mutate(o.rng, child, o.cm.ProcessorCount()); err != nil {
				return nil, err
			}
		}
	}

	next = append(next, children...)
	return NewGeneration(next)
}
