// Package kmeans implements fixed-k partitioning clustering with seeded
// k-means++ initialization.
package kmeans

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/seglab/gosegment/pkg/cluster"
)

// ErrNotFitted indicates Predict was called before FitPredict.
var ErrNotFitted = errors.New("kmeans model not fitted")

// KMeans partitions samples into a fixed number of clusters by Lloyd
// iteration: assign each point to its nearest centroid under Euclidean
// distance, recompute centroid means, repeat until assignments stabilize
// or the iteration budget runs out.
//
// For a fixed seed and identical input the produced labels are identical
// across runs. Equidistant assignments break ties toward the lowest
// centroid index.
type KMeans struct {
	mu sync.RWMutex

	k       int
	maxIter int
	seed    int64

	centroids [][]float64
	inertia   float64
	fitted    bool
}

// Option configures a KMeans engine.
type Option func(*KMeans)

// WithMaxIterations sets the Lloyd iteration budget.
func WithMaxIterations(n int) Option {
	return func(m *KMeans) {
		m.maxIter = n
	}
}

// WithSeed sets the random seed for centroid initialization.
func WithSeed(seed int64) Option {
	return func(m *KMeans) {
		m.seed = seed
	}
}

// New creates a KMeans engine with k clusters.
func New(k int, opts ...Option) *KMeans {
	m := &KMeans{
		k:       k,
		maxIter: 300,
		seed:    42,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FitPredict clusters the matrix and returns one label in [0, k) per row.
func (m *KMeans) FitPredict(data [][]float64) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fitted {
		return nil, errors.New("kmeans already fitted; create a new instance to refit")
	}
	if len(data) == 0 {
		return nil, errors.New("empty training data")
	}
	if m.k < 1 {
		return nil, fmt.Errorf("invalid cluster count %d", m.k)
	}
	n, d := len(data), len(data[0])
	if n < m.k {
		return nil, fmt.Errorf("%d samples cannot form %d clusters", n, m.k)
	}

	rng := rand.New(rand.NewSource(m.seed))
	m.centroids = initPlusPlus(data, m.k, rng)

	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}

	for it := 0; it < m.maxIter; it++ {
		changed := false

		// Assignment step.
		for i := 0; i < n; i++ {
			best := nearest(data[i], m.centroids)
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		// Update step.
		sums := make([][]float64, m.k)
		counts := make([]int, m.k)
		for k := range sums {
			sums[k] = make([]float64, d)
		}
		for i := 0; i < n; i++ {
			k := assign[i]
			counts[k]++
			for j := 0; j < d; j++ {
				sums[k][j] += data[i][j]
			}
		}
		for k := 0; k < m.k; k++ {
			if counts[k] == 0 {
				continue // empty cluster keeps its centroid
			}
			for j := 0; j < d; j++ {
				m.centroids[k][j] = sums[k][j] / float64(counts[k])
			}
		}
	}

	m.inertia = 0
	for i := 0; i < n; i++ {
		m.inertia += cluster.SquaredDistance(data[i], m.centroids[assign[i]])
	}

	m.fitted = true
	return assign, nil
}

// Predict assigns previously unseen samples to the nearest fitted
// centroid without refitting.
func (m *KMeans) Predict(data [][]float64) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.fitted {
		return nil, ErrNotFitted
	}
	if len(data) == 0 {
		return nil, errors.New("empty prediction data")
	}
	d := len(m.centroids[0])
	for i := range data {
		if len(data[i]) != d {
			return nil, fmt.Errorf("row %d has %d features, model expects %d",
				i, len(data[i]), d)
		}
	}

	labels := make([]int, len(data))
	for i := range data {
		labels[i] = nearest(data[i], m.centroids)
	}
	return labels, nil
}

// Centroids returns a copy of the fitted cluster centers.
func (m *KMeans) Centroids() [][]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([][]float64, len(m.centroids))
	for i, c := range m.centroids {
		out[i] = append([]float64(nil), c...)
	}
	return out
}

// Inertia returns the sum of squared distances of samples to their
// assigned centroid after fitting.
func (m *KMeans) Inertia() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inertia
}

// K returns the configured cluster count.
func (m *KMeans) K() int {
	return m.k
}

// nearest returns the index of the closest centroid. The scan runs in
// index order with a strict comparison, so equidistant centroids resolve
// to the lowest index.
func nearest(x []float64, centroids [][]float64) int {
	best, bestDist := 0, math.MaxFloat64
	for k, c := range centroids {
		if d := cluster.SquaredDistance(x, c); d < bestDist {
			bestDist = d
			best = k
		}
	}
	return best
}

// initPlusPlus seeds centroids with the k-means++ scheme: the first
// center uniformly at random, each next one with probability proportional
// to its squared distance from the nearest chosen center.
func initPlusPlus(data [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(data)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, append([]float64(nil), data[rng.Intn(n)]...))

	distSq := make([]float64, n)
	for len(centroids) < k {
		total := 0.0
		for i, x := range data {
			minDist := math.MaxFloat64
			for _, c := range centroids {
				if d := cluster.SquaredDistance(x, c); d < minDist {
					minDist = d
				}
			}
			distSq[i] = minDist
			total += minDist
		}

		if total == 0 {
			// All remaining points coincide with chosen centers.
			centroids = append(centroids, append([]float64(nil), data[rng.Intn(n)]...))
			continue
		}

		r := rng.Float64() * total
		cumulative := 0.0
		picked := n - 1
		for i, d := range distSq {
			cumulative += d
			if cumulative >= r {
				picked = i
				break
			}
		}
		centroids = append(centroids, append([]float64(nil), data[picked]...))
	}
	return centroids
}

// WCSS computes the within-cluster sum of squares for k = 1..maxK on the
// same data, for elbow-method cluster-count selection.
func WCSS(data [][]float64, maxK int, opts ...Option) ([]float64, error) {
	if maxK < 1 {
		return nil, fmt.Errorf("invalid max cluster count %d", maxK)
	}

	out := make([]float64, 0, maxK)
	for k := 1; k <= maxK; k++ {
		m := New(k, opts...)
		if _, err := m.FitPredict(data); err != nil {
			return nil, fmt.Errorf("k=%d: %w", k, err)
		}
		out = append(out, m.Inertia())
	}
	return out, nil
}

type kmeansState struct {
	K         int
	MaxIter   int
	Seed      int64
	Centroids [][]float64
	Inertia   float64
}

// Save serializes the fitted model.
func (m *KMeans) Save() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.fitted {
		return nil, ErrNotFitted
	}

	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(kmeansState{
		K:         m.k,
		MaxIter:   m.maxIter,
		Seed:      m.seed,
		Centroids: m.centroids,
		Inertia:   m.inertia,
	})
	if err != nil {
		return nil, fmt.Errorf("encode kmeans: %w", err)
	}
	return buf.Bytes(), nil
}

// Load deserializes a fitted model.
func (m *KMeans) Load(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var st kmeansState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return fmt.Errorf("decode kmeans: %w", err)
	}
	if st.K < 1 || len(st.Centroids) != st.K {
		return errors.New("decode kmeans: inconsistent state")
	}

	m.k = st.K
	m.maxIter = st.MaxIter
	m.seed = st.Seed
	m.centroids = st.Centroids
	m.inertia = st.Inertia
	m.fitted = true
	return nil
}

var (
	_ cluster.Engine    = (*KMeans)(nil)
	_ cluster.Predictor = (*KMeans)(nil)
)
