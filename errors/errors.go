// Copyright 2017, Square, Inc.

// Package errors provides errors reported to the user. Configuration and
// validation errors are fatal and abort the run; the rest are returned to
// callers that decide whether a failure is fatal (strict) or only logged
// (permissive). Messages are terse because they are reported in context,
// e.g. "looper run project.yaml" failing on a missing output_dir.
package errors

import (
	"fmt"
	"strings"
)

var _ error = ConfigError{}

// ConfigError is a missing required field or an unreadable config or
// environment file. No partial project is usable after one.
type ConfigError struct {
	File  string // config or environment file, if known
	Field string // missing field, if that's the problem
	Err   error  // underlying error, if any
}

func (e ConfigError) Error() string {
	switch {
	case e.Field != "" && e.File != "":
		return fmt.Sprintf("required field not in config file %s: %s", e.File, e.Field)
	case e.Field != "":
		return fmt.Sprintf("required field not in config file: %s", e.Field)
	default:
		return fmt.Sprintf("cannot load config file %s: %s", e.File, e.Err)
	}
}

// --------------------------------------------------------------------------

var _ error = ValidationError{}

// ValidationError is an invalid sample annotation sheet, merge table, or
// sample. It is raised immediately at construction.
type ValidationError struct {
	Source  string // sheet path or sample name
	Message string
}

func (e ValidationError) Error() string {
	if e.Source == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Message)
}

// --------------------------------------------------------------------------

var _ error = PipelineNotFoundError{}

type PipelineNotFoundError struct {
	Pipeline string
	File     string
}

func (e PipelineNotFoundError) Error() string {
	return fmt.Sprintf("missing pipeline description: '%s' not found in '%s'", e.Pipeline, e.File)
}

// --------------------------------------------------------------------------

var _ error = ResourcesNotFoundError{}

type ResourcesNotFoundError struct {
	Pipeline string
	File     string
	Tier     string // set if the resources section lacks a tier
}

func (e ResourcesNotFoundError) Error() string {
	if e.Tier != "" {
		return fmt.Sprintf("no '%s' resources found for '%s' in '%s'", e.Tier, e.Pipeline, e.File)
	}
	return fmt.Sprintf("no resources found for '%s' in '%s'", e.Pipeline, e.File)
}

// --------------------------------------------------------------------------

var _ error = MissingAttributeError{}

// MissingAttributeError is a required pipeline argument whose sample
// attribute does not exist. The pipeline cannot run without it.
type MissingAttributeError struct {
	Pipeline  string
	Argument  string
	Attribute string
	Sample    string
}

func (e MissingAttributeError) Error() string {
	return fmt.Sprintf("missing attribute: '%s' requires sample attribute '%s' for argument '%s' [sample '%s']",
		e.Pipeline, e.Attribute, e.Argument, e.Sample)
}

// --------------------------------------------------------------------------

var _ error = MissingInputsError{}

// MissingInputsError is a sample whose required input attributes or files
// do not exist.
type MissingInputsError struct {
	Sample     string
	Attributes []string
	Files      []string
}

func (e MissingInputsError) Error() string {
	if len(e.Attributes) > 0 {
		return fmt.Sprintf("sample %s missing required input attribute(s): %s",
			e.Sample, strings.Join(e.Attributes, ", "))
	}
	return fmt.Sprintf("sample %s: input file(s) do not exist or cannot be read: %s",
		e.Sample, strings.Join(e.Files, ", "))
}

// --------------------------------------------------------------------------

var _ error = CommandsNotCallableError{}

type CommandsNotCallableError struct {
	Commands []string
}

func (e CommandsNotCallableError) Error() string {
	return fmt.Sprintf("config file contains non-callable tools: %s", strings.Join(e.Commands, ", "))
}
