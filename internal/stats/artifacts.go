package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gentasche/internal/model"
)

const runIndexFile = "run_index.json"

var artifactFiles = []string{"config.json", "statistics.json", "statistics.csv", "best.json", "convergence.json"}

var statisticsHeader = []string{"generation", "best", "worst", "median", "mean", "stddev"}

type RunConfig struct {
	RunID                string  `json:"run_id"`
	Dataset              string  `json:"dataset"`
	Tasks                int     `json:"tasks"`
	Processors           int     `json:"processors"`
	PopulationSize       int     `json:"population_size"`
	MaxGenerations       int     `json:"max_generations"`
	MutationRatePercent  float64 `json:"mutation_rate_percent"`
	CrossoverRatePercent float64 `json:"crossover_rate_percent"`
	Mutation             string  `json:"mutation"`
	Seed                 int64   `json:"seed"`
	Workers              int     `json:"workers"`
	Elitism              bool    `json:"elitism"`
	Archive              bool    `json:"archive"`
	TimeBudgetMS         int64   `json:"time_budget_ms,omitempty"`
}

type BestAssignment struct {
	Generation int       `json:"generation"`
	Score      float64   `json:"score"`
	Processors []int     `json:"processors"`
	Loads      []float64 `json:"loads"`
}

type RunArtifacts struct {
	Config         RunConfig               `json:"config"`
	Statistics     []model.GenerationStats `json:"statistics"`
	Best           BestAssignment          `json:"best"`
	FinalBestScore float64                 `json:"final_best_score"`
	StopReason     string                  `json:"stop_reason"`
	ElapsedMS      int64                   `json:"elapsed_ms"`
}

type RunIndexEntry struct {
	RunID          string  `json:"run_id"`
	Dataset        string  `json:"dataset"`
	Tasks          int     `json:"tasks"`
	Processors     int     `json:"processors"`
	PopulationSize int     `json:"population_size"`
	Generations    int     `json:"generations"`
	Seed           int64   `json:"seed"`
	Workers        int     `json:"workers"`
	FinalBestScore float64 `json:"final_best_score"`
	CreatedAtUTC   string  `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "statistics.json"), map[string]any{
		"statistics":       artifacts.Statistics,
		"final_best_score": artifacts.FinalBestScore,
		"stop_reason":      artifacts.StopReason,
		"elapsed_ms":       artifacts.ElapsedMS,
	}); err != nil {
		return "", err
	}
	if err := WriteStatisticsCSV(filepath.Join(runDir, "statistics.csv"), artifacts.Statistics); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "best.json"), artifacts.Best); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "convergence.json"), BuildConvergencePlot(artifacts.Statistics)); err != nil {
		return "", err
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies a run directory's artifact files into outDir/runID.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range artifactFiles {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		if err := copyFile(path, filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	path := filepath.Join(baseDir, runID, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

func WriteStatisticsCSV(path string, stats []model.GenerationStats) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(statisticsHeader); err != nil {
		return err
	}
	for _, s := range stats {
		if err := writer.Write([]string{
			strconv.Itoa(s.Generation),
			formatFloat(s.BestScore),
			formatFloat(s.WorstScore),
			formatFloat(s.MedianScore),
			formatFloat(s.MeanScore),
			formatFloat(s.StdDevScore),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadStatisticsCSV(baseDir, runID string) ([]model.GenerationStats, bool, error) {
	path := filepath.Join(baseDir, runID, "statistics.csv")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(statisticsHeader)
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return []model.GenerationStats{}, true, nil
		}
		return nil, false, err
	}

	stats := make([]model.GenerationStats, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		generation, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, false, fmt.Errorf("statistics generation %q: %w", record[0], err)
		}
		values := make([]float64, 5)
		for i := range values {
			values[i], err = strconv.ParseFloat(record[i+1], 64)
			if err != nil {
				return nil, false, fmt.Errorf("statistics %s %q: %w", statisticsHeader[i+1], record[i+1], err)
			}
		}
		stats = append(stats, model.GenerationStats{
			Generation:  generation,
			BestScore:   values[0],
			WorstScore:  values[1],
			MedianScore: values[2],
			MeanScore:   values[3],
			StdDevScore: values[4],
		})
	}
	return stats, true, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
