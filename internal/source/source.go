// Package source enumerates CSV files in an input directory and reads them
// row by row.
package source

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/agentstation/recordsync/pkg/constants"
	"github.com/agentstation/recordsync/pkg/errors"
	"github.com/agentstation/recordsync/pkg/logging"
	"github.com/agentstation/recordsync/pkg/records"
)

// Directory is a flat directory of CSV files.
type Directory struct {
	Path string
}

// IsCSV reports whether a file name has the CSV extension.
func IsCSV(name string) bool {
	return strings.EqualFold(filepath.Ext(name), constants.CSVExtension)
}

// Files returns the CSV files directly inside the directory in lexical order.
// Subdirectories and other files are skipped.
func (d Directory) Files(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, errors.WrapIO("read", d.Path, err)
	}

	logger := logging.FromContext(ctx)
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !IsCSV(e.Name()) {
			logger.Debug().Str("entry", e.Name()).Msg("Skipping non-CSV entry")
			continue
		}
		files = append(files, filepath.Join(d.Path, e.Name()))
	}
	slices.Sort(files)
	return files, nil
}

// Reader yields the rows of one CSV file. The first row is the header.
type Reader struct {
	path   string
	file   *os.File
	csv    *csv.Reader
	header []string
}

// Open opens a CSV file and reads its header.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewSourceReadError(path, 0, err)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil && err != io.EOF {
		_ = f.Close()
		return nil, errors.NewSourceReadError(path, 1, err)
	}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		header[i] = strings.TrimSpace(h)
	}

	return &Reader{path: path, file: f, csv: r, header: header}, nil
}

// Path returns the file path.
func (r *Reader) Path() string {
	return r.path
}

// Header returns the column names.
func (r *Reader) Header() []string {
	return r.header
}

// Next returns the next non-empty row, or io.EOF after the last one.
// Short rows leave trailing columns absent; extra cells are ignored.
func (r *Reader) Next() (records.Row, error) {
	if r.header == nil {
		return records.Row{}, io.EOF
	}
	for {
		cells, err := r.csv.Read()
		if err == io.EOF {
			return records.Row{}, io.EOF
		}
		if err != nil {
			line := 0
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.Line
			}
			return records.Row{}, errors.NewSourceReadError(r.path, line, err)
		}
		line, _ := r.csv.FieldPos(0)
		if allBlank(cells) {
			continue
		}

		values := make(records.Raw, len(r.header))
		for i, col := range r.header {
			if i >= len(cells) {
				break
			}
			if _, dup := values[col]; dup || col == "" {
				continue
			}
			values[col] = cells[i]
		}
		return records.Row{File: r.path, Line: line, Values: values}, nil
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

func allBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
