// Package reduce provides linear dimensionality reduction by principal
// component analysis.
package reduce

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrNotFitted indicates Transform was called before Fit.
var ErrNotFitted = errors.New("pca not fitted")

// InvalidDimensionError reports a component count outside the valid range
// for the input matrix.
type InvalidDimensionError struct {
	Requested int
	Features  int
	Samples   int
}

func (e *InvalidDimensionError) Error() string {
	return fmt.Sprintf("cannot extract %d components from %d samples x %d features",
		e.Requested, e.Samples, e.Features)
}

// PCA projects data onto the directions of maximum variance, computed by
// singular value decomposition of the centered training matrix. Fitted
// parameters are immutable; Transform is deterministic and safe for
// unlimited concurrent readers.
type PCA struct {
	components int
	mean       []float64
	loadings   *mat.Dense // features x components, orthonormal columns
	explained  []float64  // explained variance ratio per component
	fitted     bool
}

// New creates a PCA reducer targeting the given number of components.
func New(components int) *PCA {
	return &PCA{components: components}
}

// Components returns the target dimensionality.
func (p *PCA) Components() int {
	return p.components
}

// ExplainedVarianceRatio returns the fraction of total variance captured
// by each fitted component, in order.
func (p *PCA) ExplainedVarianceRatio() []float64 {
	out := make([]float64, len(p.explained))
	copy(out, p.explained)
	return out
}

// Fit computes the principal component basis from the training matrix.
// The component count must satisfy 1 <= components <= min(samples, features).
func (p *PCA) Fit(X [][]float64) error {
	if p.fitted {
		return errors.New("pca already fitted; create a new instance to refit")
	}
	if len(X) == 0 {
		return errors.New("input matrix is empty")
	}

	n, d := len(X), len(X[0])
	if p.components < 1 || p.components > d || p.components > n {
		return &InvalidDimensionError{Requested: p.components, Features: d, Samples: n}
	}

	// Center the matrix.
	p.mean = make([]float64, d)
	for j := 0; j < d; j++ {
		for i := 0; i < n; i++ {
			p.mean[j] += X[i][j]
		}
		p.mean[j] /= float64(n)
	}

	centered := mat.NewDense(n, d, nil)
	totalVar := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			v := X[i][j] - p.mean[j]
			centered.Set(i, j, v)
			totalVar += v * v
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(centered, mat.SVDThin); !ok {
		return errors.New("svd factorization failed")
	}

	var v mat.Dense
	svd.VTo(&v)
	sigma := svd.Values(nil)

	loadings := mat.NewDense(d, p.components, nil)
	p.explained = make([]float64, p.components)
	for k := 0; k < p.components; k++ {
		col := mat.Col(nil, k, &v)
		flipSign(col)
		loadings.SetCol(k, col)
		if totalVar > 0 {
			p.explained[k] = sigma[k] * sigma[k] / totalVar
		}
	}

	p.loadings = loadings
	p.fitted = true
	return nil
}

// Transform projects rows onto the fitted basis. The output always has
// exactly Components columns.
func (p *PCA) Transform(X [][]float64) ([][]float64, error) {
	if !p.fitted {
		return nil, ErrNotFitted
	}
	if len(X) == 0 {
		return [][]float64{}, nil
	}

	d := len(p.mean)
	for i := range X {
		if len(X[i]) != d {
			return nil, fmt.Errorf("row %d has %d features, fitted basis expects %d",
				i, len(X[i]), d)
		}
	}

	n := len(X)
	centered := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			centered.Set(i, j, X[i][j]-p.mean[j])
		}
	}

	var projected mat.Dense
	projected.Mul(centered, p.loadings)

	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, p.components)
		copy(row, projected.RawRowView(i))
		out[i] = row
	}
	return out, nil
}

// FitTransform fits the basis and projects the same matrix.
func (p *PCA) FitTransform(X [][]float64) ([][]float64, error) {
	if err := p.Fit(X); err != nil {
		return nil, err
	}
	return p.Transform(X)
}

// flipSign fixes the sign indeterminacy of singular vectors: the loading
// coefficient with the largest magnitude is made positive.
func flipSign(col []float64) {
	maxAbs, maxIdx := 0.0, 0
	for i, v := range col {
		a := v
		if a < 0 {
			a = -a
		}
		if a > maxAbs {
			maxAbs = a
			maxIdx = i
		}
	}
	if col[maxIdx] < 0 {
		for i := range col {
			col[i] = -col[i]
		}
	}
}

type pcaState struct {
	Components int
	Mean       []float64
	Loadings   []float64 // row-major, features x components
	Explained  []float64
}

// Save serializes the fitted projection parameters.
func (p *PCA) Save() ([]byte, error) {
	if !p.fitted {
		return nil, ErrNotFitted
	}

	raw := make([]float64, 0, len(p.mean)*p.components)
	for i := 0; i < len(p.mean); i++ {
		raw = append(raw, p.loadings.RawRowView(i)...)
	}

	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(pcaState{
		Components: p.components,
		Mean:       p.mean,
		Loadings:   raw,
		Explained:  p.explained,
	})
	if err != nil {
		return nil, fmt.Errorf("encode pca: %w", err)
	}
	return buf.Bytes(), nil
}

// Load deserializes fitted projection parameters.
func (p *PCA) Load(data []byte) error {
	var st pcaState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return fmt.Errorf("decode pca: %w", err)
	}
	if st.Components < 1 || len(st.Mean) == 0 ||
		len(st.Loadings) != len(st.Mean)*st.Components {
		return errors.New("decode pca: inconsistent state")
	}

	p.components = st.Components
	p.mean = st.Mean
	p.loadings = mat.NewDense(len(st.Mean), st.Components, st.Loadings)
	p.explained = st.Explained
	p.fitted = true
	return nil
}

// InputDim returns the feature count the fitted basis expects, or 0 when
// the reducer is unfitted.
func (p *PCA) InputDim() int {
	return len(p.mean)
}
