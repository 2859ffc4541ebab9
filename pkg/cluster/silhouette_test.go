package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSilhouetteSeparatedClusters(t *testing.T) {
	// Two tight, distant blobs: score should approach 1.
	data := [][]float64{
		{0, 0}, {0.1, 0}, {0, 0.1},
		{100, 100}, {100.1, 100}, {100, 100.1},
	}
	labels := []int{0, 0, 0, 1, 1, 1}

	s, err := Silhouette(data, labels)
	require.NoError(t, err)
	assert.Greater(t, s, 0.95)
	assert.LessOrEqual(t, s, 1.0)
}

func TestSilhouetteOverlappingClusters(t *testing.T) {
	// Interleaved points split arbitrarily: score should be poor.
	data := [][]float64{
		{0, 0}, {1, 0}, {2, 0}, {3, 0},
	}
	labels := []int{0, 1, 0, 1}

	s, err := Silhouette(data, labels)
	require.NoError(t, err)
	assert.Less(t, s, 0.0)
	assert.GreaterOrEqual(t, s, -1.0)
}

func TestSilhouetteExcludesNoise(t *testing.T) {
	data := [][]float64{
		{0, 0}, {0.1, 0},
		{10, 10}, {10.1, 10},
		{500, -500}, // far outlier
	}
	withNoise := []int{0, 0, 1, 1, Noise}
	without := []int{0, 0, 1, 1}

	a, err := Silhouette(data, withNoise)
	require.NoError(t, err)
	b, err := Silhouette(data[:4], without)
	require.NoError(t, err)

	assert.Equal(t, b, a, "noise points must not contribute to the score")
}

func TestSilhouetteErrors(t *testing.T) {
	data := [][]float64{{0}, {1}, {2}}

	_, err := Silhouette(data, []int{0, 0})
	assert.Error(t, err, "length mismatch")

	_, err = Silhouette(data, []int{0, 0, 0})
	assert.Error(t, err, "single cluster")

	_, err = Silhouette(data, []int{0, Noise, Noise})
	assert.Error(t, err, "single cluster after noise removal")
}
