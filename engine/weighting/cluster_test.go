package weighting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeClusters_Empty(t *testing.T) {
	a := AnalyzeClusters(nil, 0.1, 0.5)
	assert.Equal(t, 0, len(a.Clusters))
	assert.Equal(t, false, a.Bimodal)
	assert.Equal(t, -1, a.DominantIndex)
}

func TestAnalyzeClusters_SingleCluster(t *testing.T) {
	values := []float64{0.48, 0.5, 0.52, 0.51, 0.49}
	a := AnalyzeClusters(values, 0.1, 0.5)
	require.Equal(t, 1, len(a.Clusters))
	assert.Equal(t, 5, a.Clusters[0].Density)
	require.InDelta(t, 0.5, a.Clusters[0].Centroid, 0.01)
	assert.Equal(t, false, a.Bimodal)
	assert.Equal(t, 0, a.DominantIndex)
	assert.Equal(t, 0.0, a.Entropy)
}

func TestAnalyzeClusters_Bimodal(t *testing.T) {
	// Six inputs near 0.1 and six near 0.9 (scenario of two audience camps).
	values := []float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9}
	a := AnalyzeClusters(values, 0.1, 0.5)
	require.Equal(t, 2, len(a.Clusters))
	assert.Equal(t, true, a.Bimodal)
	assert.Equal(t, 6, a.Clusters[0].Density)
	assert.Equal(t, 6, a.Clusters[1].Density)
	require.InDelta(t, 0.1, a.Clusters[0].Centroid, 1e-9)
	require.InDelta(t, 0.9, a.Clusters[1].Centroid, 1e-9)
	// Equal densities: the tie breaks toward the previous consensus.
	a = AnalyzeClusters(values, 0.1, 0.85)
	assert.Equal(t, 1, a.DominantIndex)
	a = AnalyzeClusters(values, 0.1, 0.15)
	assert.Equal(t, 0, a.DominantIndex)
	// Balanced densities maximize entropy.
	require.InDelta(t, 1.0, a.Entropy, 1e-9)
}

func TestAnalyzeClusters_MinorityNotBimodal(t *testing.T) {
	// The second camp holds under 30% of inputs.
	values := []float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.9, 0.9}
	a := AnalyzeClusters(values, 0.1, 0.5)
	require.Equal(t, 2, len(a.Clusters))
	assert.Equal(t, false, a.Bimodal)
	assert.Equal(t, 0, a.DominantIndex)
}

func TestAnalyzeClusters_WideThresholdUsesTwoBins(t *testing.T) {
	// A threshold above 0.5 still produces at least two bins.
	values := []float64{0.2, 0.8}
	a := AnalyzeClusters(values, 0.9, 0.5)
	require.Equal(t, 1, len(a.Clusters))
	assert.Equal(t, 2, a.Clusters[0].Density)
}
