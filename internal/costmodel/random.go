package costmodel

import (
	"fmt"
	"math"
	"math/bits"
	"math/rand"
)

// GenerateMode selects how processor speeds are drawn for synthetic instances.
type GenerateMode string

const (
	// GenerateSpeeds uses a fixed table of processor speeds; the processor
	// count must be a power of two.
	GenerateSpeeds GenerateMode = "speeds"
	// GenerateUniform draws each processor speed uniformly from 1.0e6..3.5e6.
	GenerateUniform GenerateMode = "uniform"
)

const (
	minTaskSize = 500_000
	maxTaskSize = 10_000_000
)

var speedTable = []float64{1.0e6, 1.5e6, 2.0e6, 2.5e6, 3.0e6, 3.5e6, 4.0e6, 5.0e6}

// Random builds a synthetic instance: every task gets a size in
// [500000, 10000000] and time[t][p] = size[t] / speed[p], rounded to 3 decimals.
func Random(rng *rand.Rand, taskCount, processorCount int, mode GenerateMode) (*CostModel, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: random source is required", ErrInvalidArgument)
	}
	if err := checkCounts(taskCount, processorCount); err != nil {
		return nil, err
	}

	var speeds []float64
	switch mode {
	case GenerateSpeeds, "":
		s, err := tableSpeeds(processorCount)
		if err != nil {
			return nil, err
		}
		speeds = s
	case GenerateUniform:
		speeds = make([]float64, processorCount)
		for p := range speeds {
			speeds[p] = float64(10+rng.Intn(26)) * 100_000
		}
	default:
		return nil, fmt.Errorf("%w: unknown generate mode %q", ErrInvalidArgument, mode)
	}

	flat := make([]float64, 0, taskCount*processorCount)
	for t := 0; t < taskCount; t++ {
		size := float64(minTaskSize + rng.Intn(maxTaskSize-minTaskSize+1))
		for _, speed := range speeds {
			flat = append(flat, math.Round(size/speed*1000)/1000)
		}
	}
	cm, err := FromFlat(taskCount, processorCount, flat)
	if err != nil {
		return nil, err
	}
	return cm.WithName(fmt.Sprintf("random_%dx%d", taskCount, processorCount)), nil
}

func tableSpeeds(processorCount int) ([]float64, error) {
	if bits.OnesCount(uint(processorCount)) != 1 {
		return nil, fmt.Errorf("%w: processor count must be a power of 2 (got %d)", ErrInvalidArgument, processorCount)
	}
	switch {
	case processorCount == 1:
		return []float64{speedTable[0]}, nil
	case processorCount == 2:
		return []float64{speedTable[1], speedTable[3]}, nil
	case processorCount == 4:
		return []float64{speedTable[0], speedTable[2], speedTable[4], speedTable[6]}, nil
	case processorCount == 8:
		return append([]float64(nil), speedTable...), nil
	default:
		repeat := processorCount / len(speedTable)
		speeds := make([]float64, 0, processorCount)
		for _, s := range speedTable {
			for i := 0; i < repeat; i++ {
				speeds = append(speeds, s)
			}
		}
		return speeds, nil
	}
}
