// Copyright 2017, Square, Inc.

package sample

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/square/looper/attrtree"
	lerr "github.com/square/looper/errors"
	"github.com/square/looper/reads"
)

// Pipeline interface keys that list sample attributes holding input files.
const (
	NGSInputFiles      = "ngs_input_files"
	RequiredInputFiles = "required_input_files"
	AllInputFiles      = "all_input_files"
)

// AttributeLister returns the value of a pipeline interface key as a list.
// pipeline.Interface implements it.
type AttributeLister interface {
	Attribute(pipeline, key string) ([]string, error)
}

// SetPipelineAttributes sets the attributes that depend on the pipeline a
// sample runs through. The pipeline interface names which sample attributes
// are NGS, required and all input files; those names are set as
// ngs_inputs_attr, required_inputs_attr and all_inputs_attr, and their
// values as ngs_inputs, required_inputs and all_inputs. all_inputs defaults
// to required_inputs. input_file_size is the size of all inputs in GB. If
// there are NGS inputs, read attributes are detected from them.
func (s *Sample) SetPipelineAttributes(pi AttributeLister, pipeline string) error {
	ngsAttrs, err := pi.Attribute(pipeline, NGSInputFiles)
	if err != nil {
		return err
	}
	requiredAttrs, err := pi.Attribute(pipeline, RequiredInputFiles)
	if err != nil {
		return err
	}
	allAttrs, err := pi.Attribute(pipeline, AllInputFiles)
	if err != nil {
		return err
	}
	if len(allAttrs) == 0 {
		allAttrs = requiredAttrs
	}

	all := s.attrValues(allAttrs)
	attrs := []attrtree.Pair{
		{Key: "ngs_inputs_attr", Value: listValue(ngsAttrs)},
		{Key: "required_inputs_attr", Value: listValue(requiredAttrs)},
		{Key: "all_inputs_attr", Value: listValue(allAttrs)},
		{Key: "required_inputs", Value: listValue(s.attrValues(requiredAttrs))},
		{Key: "all_inputs", Value: listValue(all)},
		{Key: "input_file_size", Value: FileSize(all)},
	}
	if len(ngsAttrs) > 0 {
		attrs = append(attrs, attrtree.Pair{Key: "ngs_inputs", Value: listValue(s.attrValues(ngsAttrs))})
	}
	for _, p := range attrs {
		if err := s.setAttr(p.Key, p.Value); err != nil {
			return err
		}
	}
	if len(ngsAttrs) > 0 {
		return s.SetReadType(reads.DefaultReads)
	}
	return nil
}

// ConfirmRequiredInputs checks that the required input attributes exist and
// name files that exist. A value can list several files separated by
// spaces. Missing inputs are logged; they return a MissingInputsError unless
// permissive, in which case they return false. SetPipelineAttributes must be
// called first; if it was not, there is nothing to check.
func (s *Sample) ConfirmRequiredInputs(permissive bool) (bool, error) {
	if !s.Has("required_inputs_attr") {
		s.log.Warn("Required inputs not set: call SetPipelineAttributes before ConfirmRequiredInputs")
		return true, nil
	}
	attrs := s.GetStrings("required_inputs_attr")
	if len(attrs) == 0 {
		return true, nil
	}

	missingAttrs := []string{}
	for _, attr := range attrs {
		if !s.HasAttr(attr) {
			missingAttrs = append(missingAttrs, attr)
		}
	}
	if len(missingAttrs) > 0 {
		err := lerr.MissingInputsError{Sample: s.Name, Attributes: missingAttrs}
		s.log.WithField("attribute", strings.Join(missingAttrs, ",")).Warn("Sample missing required input attribute")
		if !permissive {
			return false, err
		}
		return false, nil
	}

	missingFiles := []string{}
	for _, value := range s.GetStrings("required_inputs") {
		for _, file := range strings.Fields(value) {
			if _, err := os.Stat(file); err != nil {
				missingFiles = append(missingFiles, file)
			}
		}
	}
	if len(missingFiles) > 0 {
		err := lerr.MissingInputsError{Sample: s.Name, Files: missingFiles}
		s.log.WithField("files", missingFiles).Warn("Input file does not exist or cannot be read")
		if !permissive {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// SetReadType sets read_length, read_type and paired from the first n reads
// of the NGS input files that exist. The attributes are nil if they were not
// already set and nothing can be detected. Files that cannot be inspected
// are logged and leave the attributes unchanged; inspection never fails the
// sample.
func (s *Sample) SetReadType(n int) error {
	for _, attr := range reads.Attributes {
		if s.Has(attr) {
			continue
		}
		if err := s.Set(attr, nil); err != nil {
			return err
		}
	}
	existing := []string{}
	for _, value := range s.GetStrings("ngs_inputs") {
		for _, file := range strings.Fields(value) {
			if _, err := os.Stat(file); err != nil {
				s.log.WithField("file", file).Debug("NGS input does not exist")
				continue
			}
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	result, err := reads.Inspect(existing, n)
	if err != nil {
		s.log.WithFields(log.Fields{"files": existing}).Warnf("Cannot detect read attributes: %s", err)
		return nil
	}
	for _, p := range result.Pairs(s.log) {
		if err := s.setAttr(p.Key, p.Value); err != nil {
			return err
		}
	}
	return nil
}

// FileSize returns the total size in GB of the files listed in values. Each
// value can list several files separated by spaces. Files that do not exist
// count as 0.
func FileSize(values []string) float64 {
	var bytes int64
	for _, value := range values {
		for _, file := range strings.Fields(value) {
			fi, err := os.Stat(file)
			if err != nil {
				continue
			}
			bytes += fi.Size()
		}
	}
	return float64(bytes) / (1 << 30)
}

// attrValues returns the values of the named attributes as strings. Missing
// and nil attributes are skipped; ConfirmRequiredInputs reports them.
func (s *Sample) attrValues(attrs []string) []string {
	values := []string{}
	for _, attr := range attrs {
		v, err := s.Attr(attr)
		if err != nil || v == nil {
			continue
		}
		switch val := v.(type) {
		case []interface{}:
			for _, e := range val {
				if e != nil {
					values = append(values, fmt.Sprint(e))
				}
			}
		case *attrtree.Tree:
			continue
		default:
			values = append(values, fmt.Sprint(val))
		}
	}
	return values
}

func listValue(list []string) []interface{} {
	if list == nil {
		return nil
	}
	return stringsValue(list)
}
