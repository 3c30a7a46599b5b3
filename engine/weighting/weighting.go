// Package weighting implements the pure numeric kernel of the consensus
// algorithm: spatial, temporal and consensus weights, composite weight
// normalization, weighted statistics, outlier rejection, exponential
// smoothing, and cluster analysis. Every function operates on plain numeric
// arguments, holds no state, and is safe for concurrent invocation.
package weighting

import (
	"math"
	"sort"
)

// NoLocationWeight is the spatial weight of an input without an attached
// location.
const NoLocationWeight = 0.5

// epsilon guards divisions by a zero cluster threshold.
const epsilon = 1e-9

// SpatialWeight computes the influence multiplier of an input submitted at
// (x, y) relative to the stage at (stageX, stageY). The zone base multiplier
// is applied first, then the distance attenuation
// exp(-decayRate * d / diag) where diag is the venue diagonal.
func SpatialWeight(x, y, stageX, stageY, diag, decayRate, zoneMultiplier float64) float64 {
	if diag <= 0 {
		diag = 1
	}
	d := math.Hypot(x-stageX, y-stageY)
	return zoneMultiplier * math.Exp(-decayRate*d/diag)
}

// TemporalWeight computes the influence multiplier of an input of the given
// age: exp(-decayRate * age / window). Age zero evaluates to 1; age equal to
// the window evaluates to exp(-decayRate).
func TemporalWeight(ageMs, windowMs int64, decayRate float64) float64 {
	if windowMs <= 0 {
		return 1
	}
	if ageMs < 0 {
		ageMs = 0
	}
	return math.Exp(-decayRate * float64(ageMs) / float64(windowMs))
}

// ConsensusWeight computes the influence multiplier of a candidate value by
// its proximity to the median of the current value set. Values within the
// cluster threshold of the median carry full weight; beyond it the weight
// falls off linearly to zero. A single input carries full weight.
func ConsensusWeight(v float64, values []float64, clusterThreshold float64) float64 {
	if len(values) <= 1 {
		return 1
	}
	dist := math.Abs(v - Median(values))
	if dist <= clusterThreshold {
		return 1
	}
	return 1 - math.Min(1, dist/(clusterThreshold+epsilon))
}

// CompositeWeight combines the three weight components with the config
// coefficients. Normalization across a batch is done separately.
func CompositeWeight(spatial, temporal, consensus, alpha, beta, gamma float64) float64 {
	return alpha*spatial + beta*temporal + gamma*consensus
}

// Normalize scales weights in place so they sum to 1. A batch whose weights
// sum to zero is given equal weights.
func Normalize(weights []float64) {
	if len(weights) == 0 {
		return
	}
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		eq := 1 / float64(len(weights))
		for i := range weights {
			weights[i] = eq
		}
		return
	}
	for i := range weights {
		weights[i] /= sum
	}
}

// WeightedMean computes the weighted mean of the values. Weights need not be
// normalized. An empty set returns 0.5, the neutral midpoint.
func WeightedMean(values, weights []float64) float64 {
	if len(values) == 0 {
		return 0.5
	}
	var sum, wsum float64
	for i, v := range values {
		sum += v * weights[i]
		wsum += weights[i]
	}
	if wsum == 0 {
		return Mean(values)
	}
	return sum / wsum
}

// Mean computes the arithmetic mean. An empty set returns 0.5.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.5
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev computes the population standard deviation with equal weights. It
// is used only for outlier detection and confidence.
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}

// Median computes the median of the values without mutating the input.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0.5
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// FilterOutliers returns the indices of values whose z-score does not exceed
// the threshold. With a zero standard deviation nothing is filtered.
func FilterOutliers(values []float64, threshold float64) []int {
	keep := make([]int, 0, len(values))
	sd := StdDev(values)
	if sd == 0 {
		for i := range values {
			keep = append(keep, i)
		}
		return keep
	}
	mean := Mean(values)
	for i, v := range values {
		if math.Abs(v-mean) <= threshold*sd {
			keep = append(keep, i)
		}
	}
	return keep
}

// Smooth applies exponential smoothing: previous + factor*(next - previous).
// A nil previous disables smoothing and returns next.
func Smooth(previous *float64, next, factor float64) float64 {
	if previous == nil {
		return next
	}
	return *previous + factor*(next-*previous)
}

// Clamp01 clamps a value into [0,1]. NaN clamps to the midpoint.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Finite reports whether a value is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
