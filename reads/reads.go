// Copyright 2017, Square, Inc.

// Package reads inspects NGS input files for the read attributes pipelines
// take as arguments: read_length, read_type and paired. Only BAM files are
// inspected; FASTQ inspection is not supported.
package reads

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	log "github.com/sirupsen/logrus"

	"github.com/square/looper/attrtree"
)

// DefaultReads is how many reads of each file are inspected.
const DefaultReads = 10

const (
	Paired = "paired"
	Single = "single"
)

// Attribute names set from a Result.
var Attributes = []string{"read_length", "read_type", "paired"}

var ErrFastqUnsupported = errors.New("detection of read type/length for fastq input is not yet implemented")

var _ error = UnknownTypeError{}

type UnknownTypeError struct {
	File string
}

func (e UnknownTypeError) Error() string {
	return fmt.Sprintf("type of input file does not end in either '.bam' or '.fastq' [file: '%s']", e.File)
}

// --------------------------------------------------------------------------

// Info is what one file says about its reads.
type Info struct {
	File       string
	ReadLength int // longest read seen
	Paired     bool
}

func (i Info) ReadType() string {
	if i.Paired {
		return Paired
	}
	return Single
}

// Kind returns "bam" or "fastq" for an input file name.
func Kind(file string) (string, error) {
	switch {
	case strings.HasSuffix(file, ".bam"):
		return "bam", nil
	case strings.HasSuffix(file, ".fastq"), strings.HasSuffix(file, ".fq"),
		strings.HasSuffix(file, ".fastq.gz"), strings.HasSuffix(file, ".fq.gz"):
		return "fastq", nil
	default:
		return "", UnknownTypeError{File: file}
	}
}

// InspectFile reads up to n reads of a BAM file. The file is paired-end if
// more than half of n reads are flagged paired.
func InspectFile(file string, n int) (Info, error) {
	info := Info{File: file}
	kind, err := Kind(file)
	if err != nil {
		return info, err
	}
	if kind == "fastq" {
		return info, ErrFastqUnsupported
	}

	f, err := os.Open(file)
	if err != nil {
		return info, err
	}
	defer f.Close()
	br, err := bam.NewReader(f, 1)
	if err != nil {
		return info, fmt.Errorf("cannot read BAM %s: %s", file, err)
	}
	defer br.Close()

	paired := 0
	for i := 0; i < n; i++ {
		rec, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return info, fmt.Errorf("cannot read BAM %s: %s", file, err)
		}
		if rec.Seq.Length > info.ReadLength {
			info.ReadLength = rec.Seq.Length
		}
		if rec.Flags&sam.Paired != 0 {
			paired++
		}
	}
	info.Paired = paired > n/2
	return info, nil
}

// Result is the combined Info of a sample's input files.
type Result struct {
	Files []Info
}

// Inspect inspects every file. It stops at the first file that cannot be
// inspected and returns the error; nothing is set from a partial result.
func Inspect(files []string, n int) (Result, error) {
	r := Result{}
	for _, file := range files {
		info, err := InspectFile(file, n)
		if err != nil {
			return Result{}, err
		}
		r.Files = append(r.Files, info)
	}
	return r, nil
}

// Pairs returns read_length, read_type and paired for the files, in that
// order. An attribute on which the files disagree is nil, and logged.
func (r Result) Pairs(l *log.Entry) []attrtree.Pair {
	if len(r.Files) == 0 {
		return nil
	}
	values := func(i Info) []interface{} {
		return []interface{}{i.ReadLength, i.ReadType(), i.Paired}
	}
	first := values(r.Files[0])
	pairs := make([]attrtree.Pair, len(Attributes))
	for j, attr := range Attributes {
		pairs[j] = attrtree.Pair{Key: attr, Value: first[j]}
		for _, info := range r.Files[1:] {
			if values(info)[j] != first[j] {
				pairs[j].Value = nil
				if l != nil {
					l.WithField("attribute", attr).Warn("Not all input files agree")
				}
				break
			}
		}
	}
	return pairs
}
