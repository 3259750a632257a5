// Package costmodel holds the static problem instance consumed by the optimizer:
// the time every task takes on every processor.
package costmodel

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrMalformedInput  = errors.New("malformed input")
)

// CostModel is an immutable taskCount x processorCount time matrix.
type CostModel struct {
	name           string
	taskCount      int
	processorCount int
	times          *mat.Dense
}

// New validates times and copies it into a new CostModel.
func New(taskCount, processorCount int, times [][]float64) (*CostModel, error) {
	if err := checkCounts(taskCount, processorCount); err != nil {
		return nil, err
	}
	if len(times) != taskCount {
		return nil, fmt.Errorf("%w: expected %d rows, got %d", ErrMalformedInput, taskCount, len(times))
	}
	flat := make([]float64, 0, taskCount*processorCount)
	for t, row := range times {
		if len(row) != processorCount {
			return nil, fmt.Errorf("%w: row %d has %d entries, expected %d", ErrMalformedInput, t, len(row), processorCount)
		}
		flat = append(flat, row...)
	}
	return FromFlat(taskCount, processorCount, flat)
}

// FromFlat builds a CostModel from a row-major slice of length taskCount*processorCount.
// The slice is copied.
func FromFlat(taskCount, processorCount int, flat []float64) (*CostModel, error) {
	if err := checkCounts(taskCount, processorCount); err != nil {
		return nil, err
	}
	if len(flat) != taskCount*processorCount {
		return nil, fmt.Errorf("%w: expected %d entries, got %d", ErrMalformedInput, taskCount*processorCount, len(flat))
	}
	for i, v := range flat {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, fmt.Errorf("%w: time[%d][%d]=%v must be finite and >= 0",
				ErrMalformedInput, i/processorCount, i%processorCount, v)
		}
	}
	data := append([]float64(nil), flat...)
	return &CostModel{
		taskCount:      taskCount,
		processorCount: processorCount,
		times:          mat.NewDense(taskCount, processorCount, data),
	}, nil
}

func checkCounts(taskCount, processorCount int) error {
	if taskCount <= 0 {
		return fmt.Errorf("%w: task count must be > 0 (got %d)", ErrInvalidArgument, taskCount)
	}
	if processorCount <= 0 {
		return fmt.Errorf("%w: processor count must be > 0 (got %d)", ErrInvalidArgument, processorCount)
	}
	return nil
}

// WithName returns a copy of cm labelled with name. The matrix is shared.
func (cm *CostModel) WithName(name string) *CostModel {
	out := *cm
	out.name = name
	return &out
}

func (cm *CostModel) Name() string {
	return cm.name
}

func (cm *CostModel) TaskCount() int {
	return cm.taskCount
}

func (cm *CostModel) ProcessorCount() int {
	return cm.processorCount
}

// Time returns the time task takes on processor. It panics on out-of-range indices.
func (cm *CostModel) Time(task, processor int) float64 {
	return cm.times.At(task, processor)
}

// Row returns a copy of the per-processor times of task.
func (cm *CostModel) Row(task int) []float64 {
	return append([]float64(nil), cm.times.RawRowView(task)...)
}

// Rows returns a deep copy of the matrix.
func (cm *CostModel) Rows() [][]float64 {
	rows := make([][]float64, cm.taskCount)
	for t := range rows {
		rows[t] = cm.Row(t)
	}
	return rows
}

// Equal reports whether both models have the same shape and entries.
func (cm *CostModel) Equal(other *CostModel) bool {
	if cm == nil || other == nil {
		return cm == other
	}
	if cm.taskCount != other.taskCount || cm.processorCount != other.processorCount {
		return false
	}
	return mat.Equal(cm.times, other.times)
}
