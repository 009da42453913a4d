// Copyright 2017, Square, Inc.

// Package sample models the samples of a project: the annotation sheet, one
// Sample per row, and everything derived for a sample from the project
// config (data source paths, merged rows from a merge table, genomes,
// sample paths and pipeline inputs).
package sample

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/square/looper/attrtree"
	lerr "github.com/square/looper/errors"
	"github.com/square/looper/project"
	"github.com/square/looper/util"
)

// Keys left out of a sample's YAML at every level.
var yamlSkip = []string{"samples", "sheet", "sheet_attributes"}

// Sample is one row of the annotation sheet. Sheet columns, and attributes
// derived later, are keys of the embedded tree; the fields below are the
// sample's own bookkeeping. Attr reads both.
type Sample struct {
	*attrtree.Tree

	Name            string         // sample_name
	Merged          bool           // true if merge table rows were folded in
	MergedCols      *attrtree.Tree // values set by the merge table
	DerivedColsDone []string       // derived columns already resolved
	Paths           *attrtree.Tree // sample_root and any paths added by a FilePathsHook
	SheetAttributes []string       // sheet columns, in order
	YAMLFile        string         // set by WriteYAML

	// FilePathsHook, if set, is called at the end of SetFilePaths. Sample
	// types use it to add their own paths and attributes.
	FilePathsHook func(*Sample) error

	prj *project.Config
	log *log.Entry
}

// New makes a base Sample from one sheet row. The row must have a non-empty
// sample_name.
func New(row *attrtree.Tree) (*Sample, error) {
	if row == nil {
		row = attrtree.MustNew(nil)
	}
	name, ok := row.GetString(NameColumn)
	name = strings.TrimSpace(name)
	if !ok || name == "" || strings.EqualFold(name, "nan") {
		return nil, lerr.ValidationError{Message: "missing value for " + NameColumn}
	}
	return &Sample{
		Tree:            row.Copy(),
		Name:            name,
		MergedCols:      attrtree.MustNew(nil),
		DerivedColsDone: []string{},
		Paths:           attrtree.MustNew(nil),
		SheetAttributes: row.Keys(),
		log:             util.Logger(nil).WithField("sample", name),
	}, nil
}

func (s *Sample) String() string {
	return fmt.Sprintf("Sample '%s'", s.Name)
}

// SetProject ties the sample to its project. Derivations that need project
// config (data sources, paths, genomes) require it.
func (s *Sample) SetProject(prj *project.Config) {
	s.prj = prj
	s.log = prj.Logger().WithField("sample", s.Name)
}

func (s *Sample) Project() *project.Config {
	return s.prj
}

// Attr returns the attribute at a dotted path. The bookkeeping fields are
// attributes too: name, merged, merged_cols, derived_cols_done, paths and
// yaml_file; so is the project, as prj.
func (s *Sample) Attr(path string) (interface{}, error) {
	head, rest := path, ""
	if i := strings.Index(path, "."); i >= 0 {
		head, rest = path[:i], path[i+1:]
	}
	var sub *attrtree.Tree
	switch head {
	case "name":
		if rest == "" {
			return s.Name, nil
		}
	case "merged":
		if rest == "" {
			return s.Merged, nil
		}
	case "derived_cols_done":
		if rest == "" {
			return stringsValue(s.DerivedColsDone), nil
		}
	case "yaml_file":
		if rest == "" && s.YAMLFile != "" {
			return s.YAMLFile, nil
		}
	case "merged_cols":
		sub = s.MergedCols
	case "paths":
		sub = s.Paths
	case "prj":
		if s.prj != nil {
			sub = s.prj.Tree
		}
	}
	if sub == nil {
		return s.Tree.Attr(path)
	}
	if rest == "" {
		return sub, nil
	}
	v, err := sub.Attr(rest)
	if err != nil {
		return nil, attrtree.AttributeNotFoundError{Attribute: path}
	}
	return v, nil
}

// HasAttr returns true if Attr finds path.
func (s *Sample) HasAttr(path string) bool {
	_, err := s.Attr(path)
	return err == nil
}

// SampleName returns the sample name.
func (s *Sample) SampleName() string {
	return s.Name
}

// SheetDict returns the sheet columns of the sample, in sheet order, with
// their current values.
func (s *Sample) SheetDict() yaml.MapSlice {
	out := yaml.MapSlice{}
	for _, k := range s.SheetAttributes {
		v, _ := s.Lookup(k)
		out = append(out, yaml.MapItem{Key: k, Value: attrtree.SerializeValue(v)})
	}
	return out
}

// Serialize returns the sample as nested YAML values: its attributes, its
// bookkeeping fields and its project (as prj). The samples, sheet and
// sheet_attributes keys are left out at every level.
func (s *Sample) Serialize() yaml.MapSlice {
	out := s.Tree.Serialize(yamlSkip...)
	out = append(out,
		yaml.MapItem{Key: "name", Value: s.Name},
		yaml.MapItem{Key: "merged", Value: s.Merged},
		yaml.MapItem{Key: "merged_cols", Value: s.MergedCols.Serialize(yamlSkip...)},
		yaml.MapItem{Key: "derived_cols_done", Value: stringsValue(s.DerivedColsDone)},
		yaml.MapItem{Key: "paths", Value: s.Paths.Serialize(yamlSkip...)},
	)
	if s.YAMLFile != "" {
		out = append(out, yaml.MapItem{Key: "yaml_file", Value: s.YAMLFile})
	}
	if s.prj != nil {
		out = append(out, yaml.MapItem{Key: "prj", Value: s.prj.Serialize(yamlSkip...)})
	}
	return out
}

// ToYAML returns Serialize as a YAML document.
func (s *Sample) ToYAML() ([]byte, error) {
	return yaml.Marshal(s.Serialize())
}

// WriteYAML writes the sample as YAML to path, or to
// <submission_subdir>/<sample_name>.yaml if path is empty.
func (s *Sample) WriteYAML(path string) error {
	if path == "" {
		if s.prj == nil {
			return fmt.Errorf("sample %s: no project to place the YAML file", s.Name)
		}
		path = filepath.Join(s.prj.SubmissionSubdir(), s.Name+".yaml")
	}
	s.YAMLFile = path
	bytes, err := s.ToYAML()
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, bytes, 0644)
}

// MakeSampleDirs creates every directory in Paths.
func (s *Sample) MakeSampleDirs() error {
	for _, k := range s.Paths.Keys() {
		dir, ok := s.Paths.GetString(k)
		if !ok || dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// SetGenomeTranscriptome sets genome and transcriptome from the project's
// genomes and transcriptomes sections for the sample's organism. A missing
// mapping is logged and leaves the attribute unset.
func (s *Sample) SetGenomeTranscriptome() error {
	organism, ok := s.GetString("organism")
	if !ok || s.prj == nil {
		return nil
	}
	for attr, section := range map[string]string{"genome": "genomes", "transcriptome": "transcriptomes"} {
		ref, ok := s.prj.Reference(section, organism)
		if !ok {
			s.log.WithFields(log.Fields{"organism": organism, "attribute": attr}).
				Warnf("Project config lacks %s mapping for organism", attr)
			continue
		}
		if err := s.Set(attr, ref); err != nil {
			return err
		}
	}
	return nil
}

// setAttr stores v under key, replacing any existing value, nil included.
func (s *Sample) setAttr(key string, v interface{}) error {
	s.Delete(key)
	return s.Set(key, v)
}

func stringsValue(list []string) []interface{} {
	out := make([]interface{}, len(list))
	for i, v := range list {
		out[i] = v
	}
	return out
}
