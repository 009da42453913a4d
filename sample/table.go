// Copyright 2017, Square, Inc.

package sample

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/square/looper/attrtree"
	lerr "github.com/square/looper/errors"
)

// NameColumn is the one required column of sample sheets and merge tables.
const NameColumn = "sample_name"

// delimiter returns the field delimiter for a table file: tab for .tsv and
// .txt files, comma otherwise.
func delimiter(file string) rune {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".tsv", ".txt":
		return '\t'
	default:
		return ','
	}
}

// readTable reads a delimited table with a header row. Every value is a
// string; short rows are padded with "". The table must have NameColumn.
func readTable(file string) ([]string, []*attrtree.Tree, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = delimiter(file)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, lerr.ValidationError{Source: file, Message: "empty table"}
	}
	if err != nil {
		return nil, nil, lerr.ValidationError{Source: file, Message: err.Error()}
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.TrimSpace(h)
	}
	if !contains(cols, NameColumn) {
		return nil, nil, lerr.ValidationError{Source: file, Message: "table is missing columns: " + NameColumn}
	}

	rows := []*attrtree.Tree{}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, lerr.ValidationError{Source: file, Message: err.Error()}
		}
		if len(rec) > len(cols) {
			return nil, nil, lerr.ValidationError{Source: file, Message: "row has more fields than the header: " + strings.Join(rec, ",")}
		}
		pairs := make([]attrtree.Pair, len(cols))
		for i, col := range cols {
			v := ""
			if i < len(rec) {
				v = strings.TrimSpace(rec[i])
			}
			pairs[i] = attrtree.Pair{Key: col, Value: v}
		}
		row, err := attrtree.New(pairs)
		if err != nil {
			return nil, nil, lerr.ValidationError{Source: file, Message: err.Error()}
		}
		rows = append(rows, row)
	}
	return cols, rows, nil
}

// stripEmpty returns a copy of row without its empty fields.
func stripEmpty(row *attrtree.Tree) *attrtree.Tree {
	pairs := []attrtree.Pair{}
	for _, k := range row.Keys() {
		v, _ := row.Lookup(k)
		if v == nil || v == "" {
			continue
		}
		pairs = append(pairs, attrtree.Pair{Key: k, Value: v})
	}
	// Keys come from a Tree, so none is a metadata key.
	return attrtree.MustNew(pairs)
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
