package gentasche

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"gentasche/internal/costmodel"
	"gentasche/internal/evo"
	"gentasche/internal/model"
	"gentasche/internal/stats"
	"gentasche/internal/storage"
)

const (
	defaultRunsDir    = "runs"
	defaultExportsDir = "exports"
	defaultDBPath     = "gentasche.db"
)

type (
	Run             = model.Run
	GenerationStats = model.GenerationStats
	Assignment      = model.Assignment
	PlotPoint       = stats.PlotPoint
)

type Options struct {
	StoreKind  string
	DBPath     string
	RunsDir    string
	ExportsDir string
	Logger     *slog.Logger
}

type Client struct {
	store  storage.Store
	logger *slog.Logger

	runsDir    string
	exportsDir string

	initMu      sync.Mutex
	initialized bool
}

// GenerationProgress is reported after every rated generation of a run.
type GenerationProgress struct {
	Generation  int
	BestScore   float64
	MedianScore float64
	WorstScore  float64
}

type RunRequest struct {
	// DatasetPath names a cost model file; Matrix is used when it is empty.
	DatasetPath string
	Matrix      [][]float64
	Population  int
	Generations int
	// MutationRate and CrossoverRate are percentages; nil selects the default.
	MutationRate  *float64
	CrossoverRate *float64
	Mutation      string
	Seed          int64
	Workers       int
	Elitism       bool
	// KeepGenerations disables archival of superseded generations.
	KeepGenerations bool
	TimeBudget      time.Duration
	Progress        func(GenerationProgress)
}

type RunSummary struct {
	RunID          string
	ArtifactsDir   string
	Dataset        string
	Tasks          int
	Processors     int
	Generations    int
	Evaluations    int
	BestScore      float64
	BestGeneration int
	BestAssignment []int
	Loads          []float64
	Statistics     []GenerationStats
	StopReason     string
	Elapsed        time.Duration
}

type RunsRequest struct {
	Limit int
}

type StatisticsRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type BestRequest struct {
	RunID  string
	Latest bool
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type GenerateRequest struct {
	Tasks      int
	Processors int
	Mode       string
	Seed       int64
	OutPath    string
}

type GenerateSummary struct {
	Name       string
	Path       string
	Tasks      int
	Processors int
}

type CompareRequest struct {
	RunIDs []string
}

type CompareSummary struct {
	RunIDs []string
	// AverageBest is the per-generation best score averaged over the runs.
	AverageBest []PlotPoint
	// LowestBest holds each run's lowest best score, indexed like RunIDs.
	LowestBest []PlotPoint
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		logger:     logger,
		runsDir:    runsDir,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.ensureStore(ctx)
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Population <= 0 {
		req.Population = 10
	}
	if req.Generations <= 0 {
		req.Generations = 100
	}
	if req.Workers <= 0 {
		req.Workers = 1
	}
	mutationRate := 5.0
	if req.MutationRate != nil {
		mutationRate = *req.MutationRate
	}
	crossoverRate := 100.0
	if req.CrossoverRate != nil {
		crossoverRate = *req.CrossoverRate
	}
	mutation, err := evo.MutationByName(req.Mutation)
	if err != nil {
		return RunSummary{}, err
	}

	cm, err := loadCostModel(req)
	if err != nil {
		return RunSummary{}, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return RunSummary{}, err
	}

	now := time.Now().UTC()
	runID := uuid.NewString()
	logger := c.logger.With("run_id", runID)

	cfg := evo.Config{
		PopulationSize:       req.Population,
		MaxGenerations:       req.Generations,
		MutationRatePercent:  mutationRate,
		CrossoverRatePercent: crossoverRate,
		Seed:                 req.Seed,
		Workers:              req.Workers,
		Mutation:             mutation,
		Elitism:              req.Elitism,
		Archive:              !req.KeepGenerations,
		TimeBudget:           req.TimeBudget,
		Logger:               logger,
	}
	if req.Progress != nil {
		progress := req.Progress
		cfg.Observer = func(s evo.GenerationSummary) {
			progress(GenerationProgress{
				Generation:  s.Generation,
				BestScore:   s.BestScore,
				MedianScore: s.MedianScore,
				WorstScore:  s.WorstScore,
			})
		}
	}

	opt, err := evo.NewOptimizer(cfg)
	if err != nil {
		return RunSummary{}, err
	}
	if err := opt.Feed(ctx, cm); err != nil {
		return RunSummary{}, err
	}
	logger.Info("run started",
		"dataset", cm.Name(),
		"tasks", cm.TaskCount(),
		"processors", cm.ProcessorCount(),
		"population", req.Population,
		"generations", req.Generations,
	)
	if err := opt.Run(ctx); err != nil {
		return RunSummary{}, err
	}

	best, err := opt.BestOfAll()
	if err != nil {
		return RunSummary{}, err
	}
	bestScore, _ := best.Score()
	loads, err := best.Loads(cm)
	if err != nil {
		return RunSummary{}, err
	}
	summaries := opt.Statistics()
	history := toGenerationStats(summaries)
	bestGeneration := earliestBest(summaries)

	run := model.Run{
		VersionedRecord:      storage.Versioned(),
		ID:                   runID,
		Dataset:              cm.Name(),
		Tasks:                cm.TaskCount(),
		Processors:           cm.ProcessorCount(),
		PopulationSize:       req.Population,
		MaxGenerations:       req.Generations,
		MutationRatePercent:  mutationRate,
		CrossoverRatePercent: crossoverRate,
		Mutation:             mutation.Name(),
		Seed:                 req.Seed,
		Workers:              req.Workers,
		Elitism:              req.Elitism,
		Generations:          opt.Generations(),
		Evaluations:          opt.Evaluations(),
		BestScore:            bestScore,
		StopReason:           string(opt.StopReason()),
		ElapsedMillis:        opt.Elapsed().Milliseconds(),
		CreatedAt:            now,
	}
	assignment := model.Assignment{
		VersionedRecord: storage.Versioned(),
		RunID:           runID,
		Generation:      bestGeneration,
		Score:           bestScore,
		Processors:      best.Assignment(),
		Loads:           loads,
	}
	// Every step from here on persists something; a failure removes it all.
	fail := func(err error) (RunSummary, error) {
		c.discardRun(ctx, runID)
		return RunSummary{}, err
	}
	if err := c.store.SaveRun(ctx, run); err != nil {
		return fail(err)
	}
	if err := c.store.SaveStatistics(ctx, runID, history); err != nil {
		return fail(err)
	}
	if err := c.store.SaveBest(ctx, assignment); err != nil {
		return fail(err)
	}

	runDir, err := stats.WriteRunArtifacts(c.runsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:                runID,
			Dataset:              run.Dataset,
			Tasks:                run.Tasks,
			Processors:           run.Processors,
			PopulationSize:       run.PopulationSize,
			MaxGenerations:       run.MaxGenerations,
			MutationRatePercent:  run.MutationRatePercent,
			CrossoverRatePercent: run.CrossoverRatePercent,
			Mutation:             run.Mutation,
			Seed:                 run.Seed,
			Workers:              run.Workers,
			Elitism:              run.Elitism,
			Archive:              cfg.Archive,
			TimeBudgetMS:         req.TimeBudget.Milliseconds(),
		},
		Statistics: history,
		Best: stats.BestAssignment{
			Generation: assignment.Generation,
			Score:      assignment.Score,
			Processors: assignment.Processors,
			Loads:      assignment.Loads,
		},
		FinalBestScore: bestScore,
		StopReason:     run.StopReason,
		ElapsedMS:      run.ElapsedMillis,
	})
	if err != nil {
		return fail(err)
	}
	if err := stats.AppendRunIndex(c.runsDir, stats.RunIndexEntry{
		RunID:          runID,
		Dataset:        run.Dataset,
		Tasks:          run.Tasks,
		Processors:     run.Processors,
		PopulationSize: run.PopulationSize,
		Generations:    run.Generations,
		Seed:           run.Seed,
		Workers:        run.Workers,
		FinalBestScore: bestScore,
		CreatedAtUTC:   now.Format(time.RFC3339Nano),
	}); err != nil {
		return fail(err)
	}

	logger.Info("run finished",
		"generations", run.Generations,
		"best", bestScore,
		"stop_reason", run.StopReason,
		"elapsed", opt.Elapsed(),
	)

	return RunSummary{
		RunID:          runID,
		ArtifactsDir:   filepath.Clean(runDir),
		Dataset:        run.Dataset,
		Tasks:          run.Tasks,
		Processors:     run.Processors,
		Generations:    run.Generations,
		Evaluations:    run.Evaluations,
		BestScore:      bestScore,
		BestGeneration: bestGeneration,
		BestAssignment: assignment.Processors,
		Loads:          loads,
		Statistics:     history,
		StopReason:     run.StopReason,
		Elapsed:        opt.Elapsed(),
	}, nil
}

// Runs lists stored runs newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]Run, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}

	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Run, 0, min(len(runs), req.Limit))
	for i := len(runs) - 1; i >= 0 && len(out) < req.Limit; i-- {
		out = append(out, runs[i])
	}
	return out, nil
}

func (c *Client) Statistics(ctx context.Context, req StatisticsRequest) ([]GenerationStats, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "statistics")
	if err != nil {
		return nil, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}

	history, ok, err := c.store.GetStatistics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("statistics not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return history, nil
}

func (c *Client) Best(ctx context.Context, req BestRequest) (Assignment, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, "best")
	if err != nil {
		return Assignment{}, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return Assignment{}, err
	}

	best, ok, err := c.store.GetBest(ctx, runID)
	if err != nil {
		return Assignment{}, err
	}
	if !ok {
		return Assignment{}, fmt.Errorf("best assignment not found for run id: %s", runID)
	}
	return best, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "export")
	if err != nil {
		return ExportSummary{}, err
	}

	exportedDir, err := stats.ExportRunArtifacts(c.runsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// Generate writes a synthetic cost model file.
func (c *Client) Generate(_ context.Context, req GenerateRequest) (GenerateSummary, error) {
	if req.OutPath == "" {
		return GenerateSummary{}, errors.New("output path is required")
	}
	mode := costmodel.GenerateMode(req.Mode)
	if mode == "" {
		mode = costmodel.GenerateSpeeds
	}

	cm, err := costmodel.Random(rand.New(rand.NewSource(req.Seed)), req.Tasks, req.Processors, mode)
	if err != nil {
		return GenerateSummary{}, err
	}
	if err := costmodel.WriteFile(req.OutPath, cm); err != nil {
		return GenerateSummary{}, err
	}
	c.logger.Info("cost model generated", "path", req.OutPath, "tasks", req.Tasks, "processors", req.Processors, "mode", mode)
	return GenerateSummary{
		Name:       cm.Name(),
		Path:       filepath.Clean(req.OutPath),
		Tasks:      cm.TaskCount(),
		Processors: cm.ProcessorCount(),
	}, nil
}

// Compare summarises the convergence of several stored runs.
func (c *Client) Compare(ctx context.Context, req CompareRequest) (CompareSummary, error) {
	if len(req.RunIDs) == 0 {
		return CompareSummary{}, errors.New("compare requires at least one run id")
	}
	if err := c.ensureStore(ctx); err != nil {
		return CompareSummary{}, err
	}

	lists := make([][]float64, 0, len(req.RunIDs))
	for _, runID := range req.RunIDs {
		history, ok, err := c.store.GetStatistics(ctx, runID)
		if err != nil {
			return CompareSummary{}, err
		}
		if !ok {
			return CompareSummary{}, fmt.Errorf("statistics not found for run id: %s", runID)
		}
		best := make([]float64, len(history))
		for i, s := range history {
			best[i] = s.BestScore
		}
		lists = append(lists, best)
	}
	return CompareSummary{
		RunIDs:      append([]string(nil), req.RunIDs...),
		AverageBest: stats.BuildAveragePlot(lists),
		LowestBest:  stats.BuildMinPlot(lists),
	}, nil
}

// discardRun deletes the records and artifact directory of a run that failed
// while being persisted. It runs even when ctx is already cancelled.
func (c *Client) discardRun(ctx context.Context, runID string) {
	cleanupCtx := context.WithoutCancel(ctx)
	if err := c.store.DeleteRun(cleanupCtx, runID); err != nil {
		c.logger.Warn("discard run records", "run_id", runID, "error", err)
	}
	if err := os.RemoveAll(filepath.Join(c.runsDir, runID)); err != nil {
		c.logger.Warn("discard run artifacts", "run_id", runID, "error", err)
	}
}

func (c *Client) ensureStore(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

func (c *Client) resolveRunID(runID string, latest bool, what string) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if !latest {
		if runID == "" {
			return "", fmt.Errorf("%s requires run id or latest", what)
		}
		return runID, nil
	}
	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func loadCostModel(req RunRequest) (*costmodel.CostModel, error) {
	if req.DatasetPath != "" {
		return costmodel.ReadFile(req.DatasetPath)
	}
	if len(req.Matrix) == 0 {
		return nil, errors.New("run requires a dataset path or a cost matrix")
	}
	cm, err := costmodel.New(len(req.Matrix), len(req.Matrix[0]), req.Matrix)
	if err != nil {
		return nil, err
	}
	return cm.WithName("inline"), nil
}

func toGenerationStats(summaries []evo.GenerationSummary) []GenerationStats {
	out := make([]GenerationStats, len(summaries))
	for i, s := range summaries {
		out[i] = GenerationStats{
			Generation:  s.Generation,
			BestScore:   s.BestScore,
			WorstScore:  s.WorstScore,
			MedianScore: s.MedianScore,
			MeanScore:   s.MeanScore,
			StdDevScore: s.StdDevScore,
		}
	}
	return out
}

// earliestBest mirrors Optimizer.BestOfAll's tie-breaking.
func earliestBest(summaries []evo.GenerationSummary) int {
	best := 0
	for i, s := range summaries {
		if s.BestScore < summaries[best].BestScore {
			best = i
		}
	}
	return best
}
