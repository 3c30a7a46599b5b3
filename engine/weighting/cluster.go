package weighting

import "math"

// bimodalShare is the minimum share of inputs each of two clusters must hold
// for the distribution to be reported as bimodal.
const bimodalShare = 0.3

// Cluster is a locally dense group of input values.
type Cluster struct {
	Centroid float64 `json:"centroid"`
	Density  int     `json:"density"`
	MinValue float64 `json:"minValue"`
	MaxValue float64 `json:"maxValue"`
}

// ClusterAnalysis summarizes the cluster structure of a value set.
type ClusterAnalysis struct {
	Clusters      []Cluster `json:"clusters"`
	Bimodal       bool      `json:"bimodal"`
	DominantIndex int       `json:"dominantIndex"`
	Entropy       float64   `json:"entropy"`
}

// AnalyzeClusters bins the value range [0,1] into bins of the cluster
// threshold width (minimum two bins), identifies clusters of contiguous
// non-empty bins, and computes centroid and density per cluster. The
// analysis is bimodal when at least two clusters each hold 30% of the
// inputs. The dominant cluster is the one with the highest density, ties
// broken by proximity to the previous consensus value. Entropy is the
// normalized Shannon entropy over cluster densities.
func AnalyzeClusters(values []float64, clusterThreshold, prevConsensus float64) *ClusterAnalysis {
	analysis := &ClusterAnalysis{DominantIndex: -1}
	if len(values) == 0 {
		return analysis
	}

	numBins := 2
	if clusterThreshold > 0 {
		numBins = int(math.Ceil(1 / clusterThreshold))
		if numBins < 2 {
			numBins = 2
		}
	}

	bins := make([][]float64, numBins)
	for _, v := range values {
		idx := int(v * float64(numBins))
		if idx >= numBins {
			idx = numBins - 1
		}
		if idx < 0 {
			idx = 0
		}
		bins[idx] = append(bins[idx], v)
	}

	// Contiguous runs of non-empty bins form clusters.
	var current []float64
	flush := func() {
		if len(current) == 0 {
			return
		}
		c := Cluster{Density: len(current), MinValue: current[0], MaxValue: current[0]}
		var sum float64
		for _, v := range current {
			sum += v
			if v < c.MinValue {
				c.MinValue = v
			}
			if v > c.MaxValue {
				c.MaxValue = v
			}
		}
		c.Centroid = sum / float64(len(current))
		analysis.Clusters = append(analysis.Clusters, c)
		current = nil
	}
	for _, bin := range bins {
		if len(bin) == 0 {
			flush()
			continue
		}
		current = append(current, bin...)
	}
	flush()

	total := len(values)
	var largeClusters int
	for _, c := range analysis.Clusters {
		if float64(c.Density) >= bimodalShare*float64(total) {
			largeClusters++
		}
	}
	analysis.Bimodal = largeClusters >= 2

	for i, c := range analysis.Clusters {
		if analysis.DominantIndex < 0 {
			analysis.DominantIndex = i
			continue
		}
		dom := analysis.Clusters[analysis.DominantIndex]
		if c.Density > dom.Density {
			analysis.DominantIndex = i
			continue
		}
		if c.Density == dom.Density &&
			math.Abs(c.Centroid-prevConsensus) < math.Abs(dom.Centroid-prevConsensus) {
			analysis.DominantIndex = i
		}
	}

	if n := len(analysis.Clusters); n > 1 {
		var entropy float64
		for _, c := range analysis.Clusters {
			p := float64(c.Density) / float64(total)
			if p > 0 {
				entropy -= p * math.Log(p)
			}
		}
		analysis.Entropy = entropy / math.Log(float64(n))
	}

	return analysis
}
