// Package dbscan implements density-based clustering with noise labeling.
package dbscan

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"sync"

	"github.com/seglab/gosegment/pkg/cluster"
)

// DBSCAN groups samples into density-connected clusters. A point is a core
// point when at least minSamples other points lie within eps of it;
// clusters grow by chaining core points through overlapping neighborhoods.
// Points reachable from no core point are labeled cluster.Noise.
//
// The cluster count is data-dependent, and there is no out-of-sample
// assignment: DBSCAN deliberately does not implement cluster.Predictor,
// and callers needing labels for a new batch re-run FitPredict on it.
type DBSCAN struct {
	mu sync.RWMutex

	eps        float64
	minSamples int

	labels   []int
	clusters int
	fitted   bool
}

// New creates a DBSCAN engine with the given neighborhood radius and
// minimum neighborhood size.
func New(eps float64, minSamples int) *DBSCAN {
	return &DBSCAN{
		eps:        eps,
		minSamples: minSamples,
	}
}

// Eps returns the configured neighborhood radius.
func (d *DBSCAN) Eps() float64 {
	return d.eps
}

// MinSamples returns the configured minimum neighborhood size.
func (d *DBSCAN) MinSamples() int {
	return d.minSamples
}

// FitPredict clusters the matrix and returns one label per row; noise
// points get cluster.Noise. The result is deterministic: clusters are
// numbered in order of their first core point's row index.
func (d *DBSCAN) FitPredict(data [][]float64) ([]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fitted {
		return nil, errors.New("dbscan already fitted; create a new instance to refit")
	}
	if len(data) == 0 {
		return nil, errors.New("empty training data")
	}
	if d.eps <= 0 {
		return nil, fmt.Errorf("invalid eps %v", d.eps)
	}
	if d.minSamples < 1 {
		return nil, fmt.Errorf("invalid min samples %d", d.minSamples)
	}

	n := len(data)
	epsSq := d.eps * d.eps

	// Neighborhoods exclude the point itself; a core point needs
	// minSamples *other* points within eps.
	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if cluster.SquaredDistance(data[i], data[j]) <= epsSq {
				neighbors[i] = append(neighbors[i], j)
				neighbors[j] = append(neighbors[j], i)
			}
		}
	}
	core := make([]bool, n)
	for i := 0; i < n; i++ {
		core[i] = len(neighbors[i]) >= d.minSamples
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = cluster.Noise
	}

	next := 0
	for i := 0; i < n; i++ {
		if !core[i] || labels[i] != cluster.Noise {
			continue
		}

		// Grow a new cluster from this core point.
		labels[i] = next
		queue := append([]int(nil), neighbors[i]...)
		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]
			if labels[p] != cluster.Noise {
				continue
			}
			labels[p] = next
			if core[p] {
				queue = append(queue, neighbors[p]...)
			}
		}
		next++
	}

	d.labels = labels
	d.clusters = next
	d.fitted = true

	out := make([]int, n)
	copy(out, labels)
	return out, nil
}

// Labels returns a copy of the labels from the last fit.
func (d *DBSCAN) Labels() ([]int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.fitted {
		return nil, errors.New("dbscan model not fitted")
	}
	out := make([]int, len(d.labels))
	copy(out, d.labels)
	return out, nil
}

// Clusters returns the number of clusters found by the last fit.
func (d *DBSCAN) Clusters() (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.fitted {
		return 0, errors.New("dbscan model not fitted")
	}
	return d.clusters, nil
}

type dbscanState struct {
	Eps        float64
	MinSamples int
}

// Save serializes the engine parameters. Density clustering carries no
// fitted basis to persist; loading restores a ready-to-fit engine with
// the same parameters.
func (d *DBSCAN) Save() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(dbscanState{
		Eps:        d.eps,
		MinSamples: d.minSamples,
	})
	if err != nil {
		return nil, fmt.Errorf("encode dbscan: %w", err)
	}
	return buf.Bytes(), nil
}

// Load deserializes engine parameters.
func (d *DBSCAN) Load(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var st dbscanState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return fmt.Errorf("decode dbscan: %w", err)
	}
	if st.Eps <= 0 || st.MinSamples < 1 {
		return errors.New("decode dbscan: inconsistent state")
	}

	d.eps = st.Eps
	d.minSamples = st.MinSamples
	d.labels = nil
	d.clusters = 0
	d.fitted = false
	return nil
}

var _ cluster.Engine = (*DBSCAN)(nil)
