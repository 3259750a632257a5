package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Run describes one optimizer execution and its outcome.
type Run struct {
	VersionedRecord
	ID                   string    `json:"id"`
	Dataset              string    `json:"dataset"`
	Tasks                int       `json:"tasks"`
	Processors           int       `json:"processors"`
	PopulationSize       int       `json:"population_size"`
	MaxGenerations       int       `json:"max_generations"`
	MutationRatePercent  float64   `json:"mutation_rate_percent"`
	CrossoverRatePercent float64   `json:"crossover_rate_percent"`
	Mutation             string    `json:"mutation"`
	Seed                 int64     `json:"seed"`
	Workers              int       `json:"workers"`
	Elitism              bool      `json:"elitism"`
	Generations          int       `json:"generations"`
	Evaluations          int       `json:"evaluations"`
	BestScore            float64   `json:"best_score"`
	StopReason           string    `json:"stop_reason"`
	ElapsedMillis        int64     `json:"elapsed_ms"`
	CreatedAt            time.Time `json:"created_at"`
}

// GenerationStats is the persisted form of one generation summary.
type GenerationStats struct {
	Generation  int     `json:"generation"`
	BestScore   float64 `json:"best_score"`
	WorstScore  float64 `json:"worst_score"`
	MedianScore float64 `json:"median_score"`
	MeanScore   float64 `json:"mean_score"`
	StdDevScore float64 `json:"stddev_score"`
}

// Assignment is the best task-to-processor mapping found by a run.
type Assignment struct {
	VersionedRecord
	RunID      string    `json:"run_id"`
	Generation int       `json:"generation"`
	Score      float64   `json:"score"`
	Processors []int     `json:"processors"`
	Loads      []float64 `json:"loads"`
}
