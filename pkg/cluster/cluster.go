// Package cluster defines the common interfaces for clustering engines and
// their quality metrics.
package cluster

// Noise is the label for points that belong to no cluster. Density-based
// engines produce it as a valid, expected outcome.
const Noise = -1

// Engine is the common interface for all clustering algorithms.
type Engine interface {
	// FitPredict clusters the matrix and returns one integer label per
	// row. data is a 2D slice where each row is a sample and each column
	// a feature.
	FitPredict(data [][]float64) ([]int, error)

	// Save serializes the fitted model to bytes.
	Save() ([]byte, error)

	// Load deserializes a fitted model from bytes.
	Load(data []byte) error
}

// Predictor is the optional capability of assigning previously unseen
// samples to the clusters of an already fitted model. Partitioning engines
// implement it; density engines do not and must re-run FitPredict on each
// batch. Callers branch on this capability, not on algorithm identity:
//
//	if p, ok := engine.(Predictor); ok {
//	    labels, err = p.Predict(data)
//	} else {
//	    labels, err = engine.FitPredict(data)
//	}
type Predictor interface {
	// Predict returns cluster labels for the given samples using the
	// fitted model, without refitting.
	Predict(data [][]float64) ([]int, error)
}
