// Package preprocess provides fitted feature standardization over a fixed
// feature set.
package preprocess

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"

	"github.com/seglab/gosegment/pkg/dataset"
)

// ErrNotFitted indicates Transform was called before Fit.
var ErrNotFitted = errors.New("scaler not fitted")

// StandardScaler standardizes each feature to zero mean and unit variance
// using parameters fitted from a training batch. The fitted parameters are
// immutable: Transform never modifies scaler state, so one fitted scaler is
// safe for unlimited concurrent readers.
type StandardScaler struct {
	features []string
	mean     []float64
	std      []float64
	fitted   bool
}

// NewStandardScaler creates a scaler over the given ordered feature set.
func NewStandardScaler(features []string) *StandardScaler {
	fs := make([]string, len(features))
	copy(fs, features)
	return &StandardScaler{features: fs}
}

// Features returns the ordered feature set the scaler operates on.
func (s *StandardScaler) Features() []string {
	fs := make([]string, len(s.features))
	copy(fs, s.features)
	return fs
}

// Fit computes per-feature mean and population standard deviation from the
// training rows. Rows missing a required feature fail the fit.
func (s *StandardScaler) Fit(rows []dataset.Row) error {
	if s.fitted {
		return errors.New("scaler already fitted; create a new instance to refit")
	}
	if len(s.features) == 0 {
		return errors.New("no features configured")
	}

	X, err := dataset.Matrix(rows, s.features)
	if err != nil {
		return err
	}

	n := float64(len(X))
	d := len(s.features)
	s.mean = make([]float64, d)
	s.std = make([]float64, d)

	for j := 0; j < d; j++ {
		sum := 0.0
		for i := range X {
			sum += X[i][j]
		}
		s.mean[j] = sum / n

		v := 0.0
		for i := range X {
			dev := X[i][j] - s.mean[j]
			v += dev * dev
		}
		s.std[j] = math.Sqrt(v / n)
	}

	s.fitted = true
	return nil
}

// Transform standardizes rows with the fitted parameters. A feature whose
// fitted standard deviation is exactly zero maps to 0 (the centered value
// carries no information), never to Inf or NaN.
func (s *StandardScaler) Transform(rows []dataset.Row) ([][]float64, error) {
	if !s.fitted {
		return nil, ErrNotFitted
	}

	X, err := dataset.Matrix(rows, s.features)
	if err != nil {
		return nil, err
	}

	out := make([][]float64, len(X))
	for i := range X {
		row := make([]float64, len(s.features))
		for j := range s.features {
			if s.std[j] == 0 {
				row[j] = 0
				continue
			}
			row[j] = (X[i][j] - s.mean[j]) / s.std[j]
		}
		out[i] = row
	}
	return out, nil
}

// FitTransform fits the scaler and standardizes the same rows.
func (s *StandardScaler) FitTransform(rows []dataset.Row) ([][]float64, error) {
	if err := s.Fit(rows); err != nil {
		return nil, err
	}
	return s.Transform(rows)
}

type scalerState struct {
	Features []string
	Mean     []float64
	Std      []float64
}

// Save serializes the fitted parameters.
func (s *StandardScaler) Save() ([]byte, error) {
	if !s.fitted {
		return nil, ErrNotFitted
	}

	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(scalerState{
		Features: s.features,
		Mean:     s.mean,
		Std:      s.std,
	})
	if err != nil {
		return nil, fmt.Errorf("encode scaler: %w", err)
	}
	return buf.Bytes(), nil
}

// Load deserializes fitted parameters, replacing any configured state.
func (s *StandardScaler) Load(data []byte) error {
	var st scalerState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return fmt.Errorf("decode scaler: %w", err)
	}

	s.features = st.Features
	s.mean = st.Mean
	s.std = st.Std
	s.fitted = true
	return nil
}
