package storage

import (
	"context"

	"gentasche/internal/model"
)

// Store defines transaction-like persistence operations for optimizer runs.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.Run) error
	GetRun(ctx context.Context, id string) (model.Run, bool, error)
	// ListRuns returns every run ordered by creation time, oldest first.
	ListRuns(ctx context.Context) ([]model.Run, error)
	DeleteRun(ctx context.Context, id string) error
	SaveStatistics(ctx context.Context, runID string, stats []model.GenerationStats) error
	GetStatistics(ctx context.Context, runID string) ([]model.GenerationStats, bool, error)
	SaveBest(ctx context.Context, best model.Assignment) error
	GetBest(ctx context.Context, runID string) (model.Assignment, bool, error)
}
