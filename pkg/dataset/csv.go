package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// CSVReader reads customer rows from CSV files with a header row.
type CSVReader struct {
	file     *os.File
	reader   *csv.Reader
	headers  []string
	idColumn string
}

// CSVOption configures a CSVReader.
type CSVOption func(*CSVReader)

// WithIDColumn names the column holding the customer identifier. Without
// it, rows are numbered sequentially from zero.
func WithIDColumn(name string) CSVOption {
	return func(r *CSVReader) {
		r.idColumn = name
	}
}

// WithSeparator sets the field separator. Marketing campaign exports are
// commonly tab-separated.
func WithSeparator(sep rune) CSVOption {
	return func(r *CSVReader) {
		r.reader.Comma = sep
	}
}

// NewCSVReader opens a CSV file and reads its header row.
func NewCSVReader(filename string, opts ...CSVOption) (*CSVReader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	r := &CSVReader{
		file:   file,
		reader: csv.NewReader(file),
	}
	for _, opt := range opts {
		opt(r)
	}

	headers, err := r.reader.Read()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read header: %w", err)
	}
	r.headers = headers

	return r, nil
}

// Headers returns the column headers.
func (r *CSVReader) Headers() []string {
	return r.headers
}

// ReadAll returns all rows. Cells that parse as numbers become row
// fields; categorical cells are dropped. Whole-row parse failures are
// errors, never silently skipped.
func (r *CSVReader) ReadAll() ([]Row, error) {
	var rows []Row
	idx := 0

	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record %d: %w", idx, err)
		}

		row, err := r.parseRecord(record, idx)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
		idx++
	}

	if len(rows) == 0 {
		return nil, ErrEmptyDataset
	}
	return rows, nil
}

// Close releases the underlying file.
func (r *CSVReader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

func (r *CSVReader) parseRecord(record []string, idx int) (Row, error) {
	if len(record) != len(r.headers) {
		return Row{}, fmt.Errorf("record %d has %d fields, header has %d",
			idx, len(record), len(r.headers))
	}

	row := Row{CustomerID: idx, Fields: make(map[string]float64, len(record))}
	for i, cell := range record {
		if cell == "" {
			continue // absent value; rejected later if the field is required
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			continue // categorical column
		}
		name := r.headers[i]
		if name == r.idColumn {
			row.CustomerID = int(v)
			continue
		}
		row.Fields[name] = v
	}
	return row, nil
}

var _ Source = (*CSVReader)(nil)
