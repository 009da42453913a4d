// Copyright 2017, Square, Inc.

package reads_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/go-test/deep"

	"github.com/square/looper/attrtree"
	"github.com/square/looper/reads"
)

// writeBAM writes n unmapped reads of the given length. The first nPaired are
// flagged paired.
func writeBAM(t *testing.T, file string, n, nPaired, length int) {
	t.Helper()
	h, err := sam.NewHeader(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(file)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w, err := bam.NewWriter(f, h, 1)
	if err != nil {
		t.Fatal(err)
	}
	seq := bytes.Repeat([]byte("A"), length)
	qual := bytes.Repeat([]byte{30}, length)
	for i := 0; i < n; i++ {
		rec, err := sam.NewRecord(fmt.Sprintf("read%d", i), nil, nil, -1, -1, 0, 0, nil, seq, qual, nil)
		if err != nil {
			t.Fatal(err)
		}
		rec.Flags = sam.Unmapped
		if i < nPaired {
			rec.Flags |= sam.Paired | sam.MateUnmapped
		}
		if err := w.Write(rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestInspectFile(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		nPaired int
		length  int
		expect  reads.Info
	}{
		{"paired.bam", 10, 100, reads.Info{ReadLength: 100, Paired: true}},
		{"single.bam", 0, 50, reads.Info{ReadLength: 50, Paired: false}},
		{"half.bam", 5, 75, reads.Info{ReadLength: 75, Paired: false}},
		{"most.bam", 6, 75, reads.Info{ReadLength: 75, Paired: true}},
	}
	for _, tt := range tests {
		file := filepath.Join(dir, tt.name)
		writeBAM(t, file, 20, tt.nPaired, tt.length)
		got, err := reads.InspectFile(file, reads.DefaultReads)
		if err != nil {
			t.Errorf("%s: %s", tt.name, err)
			continue
		}
		tt.expect.File = file
		if diff := deep.Equal(got, tt.expect); diff != nil {
			t.Errorf("%s: %v", tt.name, diff)
		}
	}
}

func TestInspectFileUnsupported(t *testing.T) {
	if _, err := reads.InspectFile("/data/x.fastq.gz", 10); err != reads.ErrFastqUnsupported {
		t.Errorf("got error %v, expected ErrFastqUnsupported", err)
	}
	if _, err := reads.InspectFile("/data/x.txt", 10); err == nil {
		t.Error("no error for an unknown file type")
	} else if _, ok := err.(reads.UnknownTypeError); !ok {
		t.Errorf("got error %T, expected UnknownTypeError", err)
	}
	if _, err := reads.InspectFile(filepath.Join(t.TempDir(), "missing.bam"), 10); err == nil {
		t.Error("no error for a missing file")
	}
}

func TestResultPairs(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bam")
	b := filepath.Join(dir, "b.bam")
	c := filepath.Join(dir, "c.bam")
	writeBAM(t, a, 10, 10, 100)
	writeBAM(t, b, 10, 10, 100)
	writeBAM(t, c, 10, 0, 100)

	r, err := reads.Inspect([]string{a, b}, reads.DefaultReads)
	if err != nil {
		t.Fatal(err)
	}
	expect := []attrtree.Pair{
		{Key: "read_length", Value: 100},
		{Key: "read_type", Value: "paired"},
		{Key: "paired", Value: true},
	}
	if diff := deep.Equal(r.Pairs(nil), expect); diff != nil {
		t.Error(diff)
	}

	r, err = reads.Inspect([]string{a, c}, reads.DefaultReads)
	if err != nil {
		t.Fatal(err)
	}
	expect = []attrtree.Pair{
		{Key: "read_length", Value: 100},
		{Key: "read_type", Value: nil},
		{Key: "paired", Value: nil},
	}
	if diff := deep.Equal(r.Pairs(nil), expect); diff != nil {
		t.Error(diff)
	}

	if pairs := (reads.Result{}).Pairs(nil); pairs != nil {
		t.Errorf("got %v for no files, expected nil", pairs)
	}
}
