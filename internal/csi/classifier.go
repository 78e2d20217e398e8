package csi

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultThreshold is the mean per-subcarrier standard deviation above which a
// window is classified as motion.
const DefaultThreshold = 6.0

// Result is the outcome of one classifier run.
type Result struct {
	Motion bool
	Metric float64
}

// MotionDetector thresholds the mean over subcarriers of the population
// standard deviation of each subcarrier across the window.
type MotionDetector struct {
	Threshold float64
}

// Classify computes the detector metric over window, whose rows are frames and
// whose columns are subcarriers. Columns are visited in order and rows summed
// top to bottom within each column, so identical windows always produce
// bit-identical metrics.
func (d MotionDetector) Classify(window mat.Matrix) Result {
	rows, cols := window.Dims()
	if rows == 0 || cols == 0 {
		return Result{}
	}

	stdSum := 0.0
	for c := 0; c < cols; c++ {
		sum, sumSq := 0.0, 0.0
		for r := 0; r < rows; r++ {
			v := window.At(r, c)
			sum += v
			sumSq += v * v
		}
		mean := sum / float64(rows)
		variance := sumSq/float64(rows) - mean*mean
		// E[x²]-mean² can dip just below zero on a flat column
		if variance < 0 {
			variance = 0
		}
		stdSum += math.Sqrt(variance)
	}

	metric := stdSum / float64(cols)
	return Result{
		Motion: metric > d.Threshold,
		Metric: metric,
	}
}
