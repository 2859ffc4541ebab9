package preprocess

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seglab/gosegment/pkg/dataset"
)

func TestFit(t *testing.T) {
	tests := []struct {
		name    string
		rows    []dataset.Row
		wantErr error
	}{
		{
			name:    "empty dataset",
			rows:    nil,
			wantErr: dataset.ErrEmptyDataset,
		},
		{
			name: "missing feature",
			rows: []dataset.Row{
				{CustomerID: 0, Fields: map[string]float64{"income": 1, "recency": 2}},
				{CustomerID: 1, Fields: map[string]float64{"income": 3}},
			},
			wantErr: &dataset.MissingFeatureError{},
		},
		{
			name: "valid rows",
			rows: []dataset.Row{
				{CustomerID: 0, Fields: map[string]float64{"income": 1, "recency": 2}},
				{CustomerID: 1, Fields: map[string]float64{"income": 3, "recency": 4}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStandardScaler([]string{"income", "recency"})
			err := s.Fit(tt.rows)

			switch want := tt.wantErr.(type) {
			case nil:
				assert.NoError(t, err)
			case *dataset.MissingFeatureError:
				var mfe *dataset.MissingFeatureError
				require.ErrorAs(t, err, &mfe)
				assert.Equal(t, "recency", mfe.Feature)
				assert.Equal(t, 1, mfe.Row)
			default:
				assert.ErrorIs(t, err, want)
			}
		})
	}
}

func TestTransformRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	features := []string{"a", "b", "c"}
	rows := make([]dataset.Row, 500)
	for i := range rows {
		rows[i] = dataset.Row{
			CustomerID: i,
			Fields: map[string]float64{
				"a": 50 + 10*rng.NormFloat64(),
				"b": -3 + 0.5*rng.NormFloat64(),
				"c": 1000 * rng.Float64(),
			},
		}
	}

	s := NewStandardScaler(features)
	X, err := s.FitTransform(rows)
	require.NoError(t, err)
	require.Len(t, X, len(rows))

	// Standardized columns must have mean ~0 and std ~1.
	for j := range features {
		sum := 0.0
		for i := range X {
			sum += X[i][j]
		}
		mean := sum / float64(len(X))
		assert.InDelta(t, 0, mean, 1e-9)

		v := 0.0
		for i := range X {
			d := X[i][j] - mean
			v += d * d
		}
		std := math.Sqrt(v / float64(len(X)))
		assert.InDelta(t, 1, std, 1e-9)
	}
}

func TestTransformZeroVariance(t *testing.T) {
	rows := []dataset.Row{
		{CustomerID: 0, Fields: map[string]float64{"flat": 5, "varied": 1}},
		{CustomerID: 1, Fields: map[string]float64{"flat": 5, "varied": 3}},
		{CustomerID: 2, Fields: map[string]float64{"flat": 5, "varied": 5}},
	}

	s := NewStandardScaler([]string{"flat", "varied"})
	X, err := s.FitTransform(rows)
	require.NoError(t, err)

	for i := range X {
		assert.Equal(t, 0.0, X[i][0], "zero-variance feature must standardize to 0")
		assert.False(t, math.IsNaN(X[i][1]))
		assert.False(t, math.IsInf(X[i][1], 0))
	}
}

func TestTransformBeforeFit(t *testing.T) {
	s := NewStandardScaler([]string{"a"})
	_, err := s.Transform([]dataset.Row{{Fields: map[string]float64{"a": 1}}})
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestRefitRejected(t *testing.T) {
	rows := []dataset.Row{
		{CustomerID: 0, Fields: map[string]float64{"a": 1}},
		{CustomerID: 1, Fields: map[string]float64{"a": 2}},
	}

	s := NewStandardScaler([]string{"a"})
	require.NoError(t, s.Fit(rows))
	assert.Error(t, s.Fit(rows), "fitted parameters are immutable")
}

func TestSaveLoad(t *testing.T) {
	rows := []dataset.Row{
		{CustomerID: 0, Fields: map[string]float64{"a": 1, "b": 10}},
		{CustomerID: 1, Fields: map[string]float64{"a": 2, "b": 30}},
		{CustomerID: 2, Fields: map[string]float64{"a": 6, "b": 20}},
	}

	original := NewStandardScaler([]string{"a", "b"})
	want, err := original.FitTransform(rows)
	require.NoError(t, err)

	data, err := original.Save()
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	loaded := NewStandardScaler(nil)
	require.NoError(t, loaded.Load(data))
	assert.Equal(t, original.Features(), loaded.Features())

	got, err := loaded.Transform(rows)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSaveBeforeFit(t *testing.T) {
	s := NewStandardScaler([]string{"a"})
	_, err := s.Save()
	assert.True(t, errors.Is(err, ErrNotFitted))
}
