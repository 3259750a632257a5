package stats

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"gentasche/internal/model"
)

type PlotPoint struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

// ConvergencePlot holds the series an external plotter needs to draw a run.
type ConvergencePlot struct {
	Best        []PlotPoint `json:"best"`
	Median      []PlotPoint `json:"median"`
	Worst       []PlotPoint `json:"worst"`
	RunningBest []PlotPoint `json:"running_best"`
}

func BuildConvergencePlot(stats []model.GenerationStats) ConvergencePlot {
	best := make([]float64, len(stats))
	plot := ConvergencePlot{
		Best:   make([]PlotPoint, 0, len(stats)),
		Median: make([]PlotPoint, 0, len(stats)),
		Worst:  make([]PlotPoint, 0, len(stats)),
	}
	for i, s := range stats {
		best[i] = s.BestScore
		plot.Best = append(plot.Best, PlotPoint{Index: s.Generation, Value: s.BestScore})
		plot.Median = append(plot.Median, PlotPoint{Index: s.Generation, Value: s.MedianScore})
		plot.Worst = append(plot.Worst, PlotPoint{Index: s.Generation, Value: s.WorstScore})
	}
	running := RunningBest(best)
	plot.RunningBest = make([]PlotPoint, 0, len(running))
	for i, v := range running {
		plot.RunningBest = append(plot.RunningBest, PlotPoint{Index: stats[i].Generation, Value: v})
	}
	return plot
}

// RunningBest returns the lowest value seen up to each position.
func RunningBest(series []float64) []float64 {
	out := make([]float64, len(series))
	for i, v := range series {
		if i == 0 || v < out[i-1] {
			out[i] = v
			continue
		}
		out[i] = out[i-1]
	}
	return out
}

// BuildAveragePlot averages several per-generation series position by
// position. Shorter series drop out once exhausted.
func BuildAveragePlot(lists [][]float64) []PlotPoint {
	points := make([]PlotPoint, 0, 128)
	for index := 0; ; index++ {
		values := make([]float64, 0, len(lists))
		for _, list := range lists {
			if index < len(list) {
				values = append(values, list[index])
			}
		}
		if len(values) == 0 {
			break
		}
		points = append(points, PlotPoint{Index: index, Value: stat.Mean(values, nil)})
	}
	return points
}

// BuildMinPlot reports the lowest value of each series.
func BuildMinPlot(lists [][]float64) []PlotPoint {
	points := make([]PlotPoint, 0, len(lists))
	for i, list := range lists {
		if len(list) == 0 {
			continue
		}
		points = append(points, PlotPoint{Index: i, Value: floats.Min(list)})
	}
	return points
}
