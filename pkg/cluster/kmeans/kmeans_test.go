package kmeans

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		opts        []Option
		wantMaxIter int
		wantSeed    int64
	}{
		{
			name:        "defaults",
			opts:        nil,
			wantMaxIter: 300,
			wantSeed:    42,
		},
		{
			name:        "custom options",
			opts:        []Option{WithMaxIterations(50), WithSeed(7)},
			wantMaxIter: 50,
			wantSeed:    7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(4, tt.opts...)
			assert.Equal(t, 4, m.K())
			assert.Equal(t, tt.wantMaxIter, m.maxIter)
			assert.Equal(t, tt.wantSeed, m.seed)
		})
	}
}

func TestFitPredictErrors(t *testing.T) {
	tests := []struct {
		name string
		k    int
		data [][]float64
	}{
		{name: "empty data", k: 2, data: nil},
		{name: "fewer samples than clusters", k: 5, data: [][]float64{{1}, {2}}},
		{name: "zero clusters", k: 0, data: [][]float64{{1}, {2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.k).FitPredict(tt.data)
			assert.Error(t, err)
		})
	}
}

func TestFitPredictSeparatedBlobs(t *testing.T) {
	data := blobs(3, 50, 13)

	m := New(3, WithSeed(42))
	labels, err := m.FitPredict(data)
	require.NoError(t, err)
	require.Len(t, labels, len(data))

	// Labels stay in [0, k).
	for _, l := range labels {
		assert.GreaterOrEqual(t, l, 0)
		assert.Less(t, l, 3)
	}

	// Every blob must land in exactly one cluster.
	for b := 0; b < 3; b++ {
		first := labels[b*50]
		for i := 0; i < 50; i++ {
			assert.Equal(t, first, labels[b*50+i], "blob %d split across clusters", b)
		}
	}

	assert.Greater(t, m.Inertia(), 0.0)
}

func TestFitPredictDeterminism(t *testing.T) {
	data := blobs(4, 40, 99)

	var runs [][]int
	for i := 0; i < 3; i++ {
		m := New(4, WithSeed(42))
		labels, err := m.FitPredict(data)
		require.NoError(t, err)
		runs = append(runs, labels)
	}

	assert.Equal(t, runs[0], runs[1])
	assert.Equal(t, runs[1], runs[2])
}

func TestPredict(t *testing.T) {
	data := blobs(2, 50, 5)
	m := New(2, WithSeed(42))
	trainLabels, err := m.FitPredict(data)
	require.NoError(t, err)

	t.Run("training points keep their cluster", func(t *testing.T) {
		labels, err := m.Predict(data)
		require.NoError(t, err)
		assert.Equal(t, trainLabels, labels)
	})

	t.Run("new points near a blob join it", func(t *testing.T) {
		labels, err := m.Predict([][]float64{{0.2, -0.1}, {10.1, 10.3}})
		require.NoError(t, err)
		assert.NotEqual(t, labels[0], labels[1])
	})

	t.Run("before fit", func(t *testing.T) {
		_, err := New(2).Predict(data)
		assert.ErrorIs(t, err, ErrNotFitted)
	})

	t.Run("feature mismatch", func(t *testing.T) {
		_, err := m.Predict([][]float64{{1, 2, 3}})
		assert.Error(t, err)
	})
}

func TestEquidistantTieBreak(t *testing.T) {
	m := New(2)
	m.centroids = [][]float64{{-1, 0}, {1, 0}}
	m.fitted = true

	// The origin is exactly equidistant from both centroids; the lowest
	// centroid index must win.
	labels, err := m.Predict([][]float64{{0, 0}})
	require.NoError(t, err)
	assert.Equal(t, 0, labels[0])
}

func TestRefitRejected(t *testing.T) {
	data := blobs(2, 20, 3)
	m := New(2)
	_, err := m.FitPredict(data)
	require.NoError(t, err)

	_, err = m.FitPredict(data)
	assert.Error(t, err, "fitted instances are immutable")
}

func TestWCSS(t *testing.T) {
	data := blobs(3, 30, 8)

	wcss, err := WCSS(data, 5, WithSeed(42))
	require.NoError(t, err)
	require.Len(t, wcss, 5)

	// More clusters never fit worse on k-means++ seeded runs of blob data.
	assert.Greater(t, wcss[0], wcss[2])
	assert.Greater(t, wcss[2], wcss[4])
}

func TestSaveLoad(t *testing.T) {
	data := blobs(3, 40, 44)
	original := New(3, WithSeed(42))
	_, err := original.FitPredict(data)
	require.NoError(t, err)

	want, err := original.Predict(data)
	require.NoError(t, err)

	blob, err := original.Save()
	require.NoError(t, err)
	assert.NotEmpty(t, blob)

	loaded := New(0)
	require.NoError(t, loaded.Load(blob))

	got, err := loaded.Predict(data)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, original.Centroids(), loaded.Centroids())
}

func TestSaveBeforeFit(t *testing.T) {
	_, err := New(2).Save()
	assert.ErrorIs(t, err, ErrNotFitted)
}

func BenchmarkFitPredict(b *testing.B) {
	data := blobs(4, 500, 1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := New(4, WithSeed(42))
		m.FitPredict(data)
	}
}

// blobs generates n points around each of k well-separated 2D centers.
func blobs(k, n int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	data := make([][]float64, 0, k*n)
	for b := 0; b < k; b++ {
		cx, cy := float64(b*10), float64(b*10)
		for i := 0; i < n; i++ {
			data = append(data, []float64{
				cx + rng.NormFloat64()*0.5,
				cy + rng.NormFloat64()*0.5,
			})
		}
	}
	return data
}
