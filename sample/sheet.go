// Copyright 2017, Square, Inc.

package sample

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/square/looper/attrtree"
	lerr "github.com/square/looper/errors"
)

// Sheet is a sample annotation sheet. Rows are kept as read, every column
// present, so the sheet can be re-exported; Samples are made from the rows
// by Materialize.
type Sheet struct {
	Path    string
	Columns []string
	Rows    []*attrtree.Tree
	Samples []*Sample
}

// LoadSheet reads a sample annotation sheet. Values are strings. The sheet
// must have a sample_name column.
func LoadSheet(path string) (*Sheet, error) {
	cols, rows, err := readTable(path)
	if err != nil {
		if _, ok := err.(lerr.ValidationError); ok {
			return nil, err
		}
		return nil, lerr.ConfigError{File: path, Err: err}
	}
	return &Sheet{
		Path:    path,
		Columns: cols,
		Rows:    rows,
	}, nil
}

// Materialize makes one Sample per row, in order, replacing any made before.
// Empty fields are removed from each row, then the row is passed to the
// Constructor registered for its library, or to New. Any invalid row fails
// the whole sheet.
func (sh *Sheet) Materialize(reg *Registry) error {
	samples := make([]*Sample, 0, len(sh.Rows))
	for i, row := range sh.Rows {
		s, err := reg.Make(stripEmpty(row))
		if err != nil {
			if verr, ok := err.(lerr.ValidationError); ok {
				verr.Source = fmt.Sprintf("%s row %d", sh.Path, i+1)
				return verr
			}
			return err
		}
		samples = append(samples, s)
	}
	sh.Samples = samples
	return nil
}

// WriteCSV writes the samples as a comma-separated sheet. With allAttrs
// false the columns are those of the original sheet, with current values
// (derived columns are resolved); with allAttrs true every scalar
// attribute of any sample is a column.
func (sh *Sheet) WriteCSV(path string, allAttrs bool) error {
	cols := sh.Columns
	if allAttrs {
		cols = []string{}
		for _, s := range sh.Samples {
			for _, k := range s.Keys() {
				v, _ := s.Lookup(k)
				if attrtree.KindOf(v) != attrtree.Scalar || contains(cols, k) {
					continue
				}
				cols = append(cols, k)
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(cols); err != nil {
		f.Close()
		return err
	}
	for _, s := range sh.Samples {
		rec := make([]string, len(cols))
		for i, col := range cols {
			if v, ok := s.Lookup(col); ok && v != nil {
				rec[i] = fmt.Sprint(attrtree.SerializeValue(v))
			}
		}
		if err := w.Write(rec); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
