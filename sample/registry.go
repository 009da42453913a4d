// Copyright 2017, Square, Inc.

package sample

import (
	"fmt"
	"strings"

	"github.com/orcaman/concurrent-map"

	"github.com/square/looper/attrtree"
)

// LibraryColumn is the sheet column that selects a sample type.
const LibraryColumn = "library"

// Constructor makes a Sample of a protocol-specific type from one sheet row
// with empty fields removed. A Constructor usually calls New, then sets
// FilePathsHook or other fields.
type Constructor func(row *attrtree.Tree) (*Sample, error)

// Registry maps library (protocol) names to sample Constructors. Lookups are
// case-insensitive. It is safe to Register from package init functions.
type Registry struct {
	c cmap.ConcurrentMap
}

func NewRegistry() *Registry {
	return &Registry{
		c: cmap.New(),
	}
}

// Register sets the Constructor for a library, replacing any previous one.
func (r *Registry) Register(library string, c Constructor) {
	r.c.Set(strings.ToUpper(library), c)
}

// Lookup returns the Constructor for a library, if one is registered.
func (r *Registry) Lookup(library string) (Constructor, bool) {
	v, ok := r.c.Get(strings.ToUpper(library))
	if !ok {
		return nil, false
	}
	c, ok := v.(Constructor)
	return c, ok
}

// Libraries returns every registered library name, upper-cased.
func (r *Registry) Libraries() []string {
	return r.c.Keys()
}

// Make makes a Sample from row with the Constructor registered for the row's
// library. Rows without a library, or with an unregistered one, make a base
// Sample with New. A nil Registry always makes base Samples.
func (r *Registry) Make(row *attrtree.Tree) (*Sample, error) {
	if r == nil {
		return New(row)
	}
	library, ok := row.GetString(LibraryColumn)
	if !ok {
		return New(row)
	}
	c, ok := r.Lookup(library)
	if !ok {
		return New(row)
	}
	s, err := c(row)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("constructor for library %s returned no sample", library)
	}
	return s, nil
}
