package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"

	"gentasche/internal/storage"
	"gentasche/pkg/gentasche"
)

const (
	defaultRunsDir    = "runs"
	defaultExportsDir = "exports"
	defaultDBPath     = "gentasche.db"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "generate":
		return runGenerate(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "stats":
		return runStats(ctx, args[1:])
	case "best":
		return runBest(ctx, args[1:])
	case "compare":
		return runCompare(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type clientFlags struct {
	storeKind *string
	dbPath    *string
	runsDir   *string
	verbose   *bool
}

func registerClientFlags(fs *flag.FlagSet) clientFlags {
	return clientFlags{
		storeKind: fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite"),
		dbPath:    fs.String("db-path", defaultDBPath, "sqlite database path"),
		runsDir:   fs.String("runs-dir", defaultRunsDir, "run artifacts directory"),
		verbose:   fs.Bool("v", false, "enable debug logging"),
	}
}

func (f clientFlags) open(ctx context.Context) (*gentasche.Client, *slog.Logger, error) {
	logger := newLogger(stderr, *f.verbose)
	client, err := gentasche.New(gentasche.Options{
		StoreKind:  *f.storeKind,
		DBPath:     *f.dbPath,
		RunsDir:    *f.runsDir,
		ExportsDir: defaultExportsDir,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := client.Init(ctx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return client, logger, nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	configPath := fs.String("config", "", "YAML run config path")
	dataset := fs.String("dataset", "", "cost model file")
	pop := fs.Int("pop", 10, "population size")
	gens := fs.Int("gens", 100, "generation count, generation 0 included")
	mutationRate := fs.Float64("mutation-rate", 5, "mutation probability percent per child")
	crossoverRate := fs.Float64("crossover-rate", 100, "crossover probability percent per pair")
	mutation := fs.String("mutation", "swap", "mutation strategy: swap|reassign")
	seed := fs.Int64("seed", 1, "random seed")
	workers := fs.Int("workers", 1, "rating goroutines")
	elitism := fs.Bool("elitism", false, "carry the best candidate into every generation")
	keepGenerations := fs.Bool("keep-generations", false, "retain superseded generations in memory")
	timeBudget := fs.Duration("time-budget", 0, "stop after this long (0 = no limit)")
	progress := fs.Bool("progress", true, "show a progress bar")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dataset == "" && fs.NArg() > 0 {
		*dataset = fs.Arg(0)
	}

	req := gentasche.RunRequest{
		DatasetPath:     *dataset,
		Population:      *pop,
		Generations:     *gens,
		MutationRate:    mutationRate,
		CrossoverRate:   crossoverRate,
		Mutation:        *mutation,
		Seed:            *seed,
		Workers:         *workers,
		Elitism:         *elitism,
		KeepGenerations: *keepGenerations,
		TimeBudget:      *timeBudget,
	}
	if *configPath != "" {
		loaded, err := loadRunRequestFromConfig(*configPath)
		if err != nil {
			return err
		}
		set := make(map[string]bool)
		fs.Visit(func(f *flag.Flag) {
			set[f.Name] = true
		})
		if fs.NArg() > 0 {
			set["dataset"] = true
		}
		if err := overrideFromFlags(&loaded, set, map[string]any{
			"dataset":          *dataset,
			"pop":              *pop,
			"gens":             *gens,
			"mutation-rate":    *mutationRate,
			"crossover-rate":   *crossoverRate,
			"mutation":         *mutation,
			"seed":             *seed,
			"workers":          *workers,
			"elitism":          *elitism,
			"keep-generations": *keepGenerations,
			"time-budget":      *timeBudget,
		}); err != nil {
			return err
		}
		req = loaded
	}
	if req.DatasetPath == "" {
		return errors.New("run requires a dataset (-dataset, positional argument or config)")
	}

	client, logger, err := cf.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	generations := req.Generations
	if generations <= 0 {
		generations = 100
	}
	var bar *progressbar.ProgressBar
	if *progress {
		bar = newProgressBar(generations, stderr)
		req.Progress = func(p gentasche.GenerationProgress) {
			bar.Describe(fmt.Sprintf("best %.3f", p.BestScore))
			_ = bar.Add(1)
		}
	} else {
		limiter := rate.NewLimiter(rate.Every(time.Second), 1)
		req.Progress = func(p gentasche.GenerationProgress) {
			if p.Generation == generations-1 || limiter.Allow() {
				logger.Info("generation rated",
					"generation", p.Generation,
					"best", p.BestScore,
					"median", p.MedianScore,
					"worst", p.WorstScore,
				)
			}
		}
	}

	summary, err := client.Run(ctx, req)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return err
	}
	printRunSummary(stdout, summary)
	return nil
}

func runGenerate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	tasks := fs.Int("tasks", 100, "task count")
	processors := fs.Int("processors", 4, "processor count")
	mode := fs.String("mode", "speeds", "generator: speeds|uniform")
	seed := fs.Int64("seed", 1, "random seed")
	out := fs.String("out", "", "output file")
	verbose := fs.Bool("v", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" && fs.NArg() > 0 {
		*out = fs.Arg(0)
	}
	if *out == "" {
		return errors.New("generate requires an output file (-out or positional argument)")
	}

	client, err := gentasche.New(gentasche.Options{StoreKind: "memory", Logger: newLogger(stderr, *verbose)})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Generate(ctx, gentasche.GenerateRequest{
		Tasks:      *tasks,
		Processors: *processors,
		Mode:       *mode,
		Seed:       *seed,
		OutPath:    *out,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "generated %s tasks=%d processors=%d path=%s\n", summary.Name, summary.Tasks, summary.Processors, summary.Path)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, _, err := cf.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, gentasche.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}
	printRuns(stdout, runs)
	return nil
}

func runStats(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	limit := fs.Int("limit", 0, "max generations to show (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, _, err := cf.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.Statistics(ctx, gentasche.StatisticsRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}
	printStatistics(stdout, history)
	return nil
}

func runBest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("best", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, _, err := cf.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	best, err := client.Best(ctx, gentasche.BestRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	printBest(stdout, best)
	return nil
}

func runCompare(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	runIDs := fs.String("run-ids", "", "comma-separated run ids")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ids := splitList(*runIDs)
	ids = append(ids, fs.Args()...)
	if len(ids) == 0 {
		return errors.New("compare requires run ids")
	}

	client, _, err := cf.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Compare(ctx, gentasche.CompareRequest{RunIDs: ids})
	if err != nil {
		return err
	}
	printCompare(stdout, summary)
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runsDir := fs.String("runs-dir", defaultRunsDir, "run artifacts directory")
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run")
	outDir := fs.String("out", defaultExportsDir, "export directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := gentasche.New(gentasche.Options{StoreKind: "memory", RunsDir: *runsDir, ExportsDir: *outDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, gentasche.ExportRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported run_id=%s dir=%s\n", exported.RunID, exported.Directory)
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: gentaschectl <run|generate|runs|stats|best|compare|export> [flags]", msg)
}
