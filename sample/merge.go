// Copyright 2017, Square, Inc.

package sample

import (
	"strings"

	"github.com/square/looper/attrtree"
	lerr "github.com/square/looper/errors"
)

// MergeTable folds several input rows into one sample. Rows are matched to
// samples by sample_name.
type MergeTable struct {
	Path    string
	Columns []string
	Rows    []*attrtree.Tree
}

// LoadMergeTable reads a merge table. Like a sample sheet, it must have a
// sample_name column.
func LoadMergeTable(path string) (*MergeTable, error) {
	cols, rows, err := readTable(path)
	if err != nil {
		if _, ok := err.(lerr.ValidationError); ok {
			return nil, err
		}
		return nil, lerr.ConfigError{File: path, Err: err}
	}
	return &MergeTable{
		Path:    path,
		Columns: cols,
		Rows:    rows,
	}, nil
}

// RowsFor returns the rows for a sample, in table order.
func (m *MergeTable) RowsFor(name string) []*attrtree.Tree {
	rows := []*attrtree.Tree{}
	for _, row := range m.Rows {
		if v, _ := row.GetString(NameColumn); v == name {
			rows = append(rows, row)
		}
	}
	return rows
}

// Apply folds the table rows for s into s and returns true if there were
// any. In each row, every derived column is resolved through its data source
// with the row's values taking precedence over the sample's, and the raw
// value is kept as <column>_key. Then, for every column but sample_name, the
// non-empty values of all rows are joined with spaces and set on the sample.
// The joined values are recorded in MergedCols so SetFilePaths does not
// resolve them again.
func (m *MergeTable) Apply(s *Sample) (bool, error) {
	rows := m.RowsFor(s.Name)
	if len(rows) == 0 {
		return false, nil
	}
	var derived []string
	if s.prj != nil {
		derived = s.prj.DerivedColumns()
	}

	keys := []string{}
	merged := map[string]string{}
	addKey := func(k string) {
		if _, ok := merged[k]; !ok {
			keys = append(keys, k)
			merged[k] = ""
		}
	}
	for _, col := range m.Columns {
		if col != NameColumn {
			addKey(col)
		}
	}

	for _, row := range rows {
		rowKeys := []string{}
		vals := map[string]string{}
		for _, k := range row.Keys() {
			v, _ := row.GetString(k)
			rowKeys = append(rowKeys, k)
			vals[k] = v
		}
		for _, col := range m.Columns {
			if col == NameColumn || !contains(derived, col) {
				continue
			}
			addKey(col + "_key")
			raw := vals[col]
			if _, ok := vals[col+"_key"]; !ok {
				rowKeys = append(rowKeys, col+"_key")
			}
			vals[col+"_key"] = raw
			if raw == "" {
				continue
			}
			vals[col], _ = s.LocateDataSource(col, raw, vals)
		}
		for _, k := range rowKeys {
			if k == NameColumn || vals[k] == "" {
				continue
			}
			merged[k] = strings.TrimSpace(merged[k] + " " + vals[k])
		}
	}

	pairs := make([]attrtree.Pair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, attrtree.Pair{Key: k, Value: merged[k]})
	}
	cols, err := attrtree.New(pairs)
	if err != nil {
		return false, err
	}
	for _, p := range pairs {
		if err := s.setAttr(p.Key, p.Value); err != nil {
			return false, err
		}
	}
	s.Merged = true
	s.MergedCols = cols
	return true, nil
}
