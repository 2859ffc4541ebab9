// Package dataset provides loading and feature extraction for tabular
// customer data.
package dataset

import (
	"errors"
	"fmt"
)

// ErrEmptyDataset indicates an operation was given zero rows.
var ErrEmptyDataset = errors.New("dataset is empty")

// MissingFeatureError reports a row that lacks a required feature field.
// Rows with missing fields are rejected rather than imputed.
type MissingFeatureError struct {
	Feature string
	Row     int
}

func (e *MissingFeatureError) Error() string {
	return fmt.Sprintf("row %d is missing feature %q", e.Row, e.Feature)
}

// Row is a single customer record: an identifier plus named numeric fields.
// Categorical columns from the source file are not carried; only fields
// that parse as numbers appear in Fields.
type Row struct {
	CustomerID int
	Fields     map[string]float64
}

// Source is the interface for reading customer rows from a data source.
type Source interface {
	// ReadAll returns the complete dataset.
	ReadAll() ([]Row, error)

	// Close releases resources.
	Close() error
}

// Matrix extracts the named features from rows into a dense matrix with
// one column per feature, in order. Any row missing a feature fails the
// whole extraction.
func Matrix(rows []Row, features []string) ([][]float64, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyDataset
	}
	out := make([][]float64, len(rows))
	for i, r := range rows {
		vec := make([]float64, len(features))
		for j, f := range features {
			v, ok := r.Fields[f]
			if !ok {
				return nil, &MissingFeatureError{Feature: f, Row: i}
			}
			vec[j] = v
		}
		out[i] = vec
	}
	return out, nil
}

// Columns extracts the named features from rows into per-feature value
// slices, keyed by feature name. Like Matrix, a single missing field
// fails the extraction.
func Columns(rows []Row, features []string) (map[string][]float64, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyDataset
	}
	out := make(map[string][]float64, len(features))
	for _, f := range features {
		out[f] = make([]float64, len(rows))
	}
	for i, r := range rows {
		for _, f := range features {
			v, ok := r.Fields[f]
			if !ok {
				return nil, &MissingFeatureError{Feature: f, Row: i}
			}
			out[f][i] = v
		}
	}
	return out, nil
}

// IDs returns the customer identifiers of rows, in order.
func IDs(rows []Row) []int {
	ids := make([]int, len(rows))
	for i, r := range rows {
		ids[i] = r.CustomerID
	}
	return ids
}
