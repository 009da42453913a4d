// Copyright 2017, Square, Inc.

// Package pipeline reads the files that describe pipelines to looper: the
// pipeline interface (resources, arguments and inputs of each pipeline) and
// the protocol mappings (which pipelines run for a sample's protocol).
package pipeline

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/square/looper/attrtree"
	lerr "github.com/square/looper/errors"
	"github.com/square/looper/util"
)

// DefaultTier is the resource tier used when no other tier fits. Its
// file_size threshold is "0".
const DefaultTier = "default"

// Sample is what ArgString needs from a sample.
type Sample interface {
	Attr(path string) (interface{}, error)
	SampleName() string
}

// Interface is a loaded pipeline interface file: pipeline id (usually the
// script name, like wgbs.py) to pipeline description, in file order.
type Interface struct {
	File      string
	pipelines *attrtree.Tree
	log       *log.Entry
}

// ResourcePackage is the resource tier chosen for a job.
type ResourcePackage struct {
	Name     string  // tier name
	FileSize float64 // tier threshold in GB
	Settings *attrtree.Tree
}

// LoadInterface loads a pipeline interface file.
func LoadInterface(file string, l *log.Entry) (*Interface, error) {
	bytes, err := ioutil.ReadFile(file)
	if err != nil {
		return nil, lerr.ConfigError{File: file, Err: err}
	}
	var ms yaml.MapSlice
	if err := yaml.Unmarshal(bytes, &ms); err != nil {
		return nil, lerr.ConfigError{File: file, Err: err}
	}
	pipelines, err := attrtree.New(ms)
	if err != nil {
		return nil, lerr.ConfigError{File: file, Err: err}
	}
	return &Interface{
		File:      file,
		pipelines: pipelines,
		log:       util.Logger(l).WithField("pipeline_interface", file),
	}, nil
}

// Pipelines returns the pipeline ids in file order.
func (pi *Interface) Pipelines() []string {
	return pi.pipelines.Keys()
}

// Select returns the description of a pipeline.
func (pi *Interface) Select(pipeline string) (*attrtree.Tree, error) {
	v, ok := pi.pipelines.Lookup(pipeline)
	if !ok {
		return nil, lerr.PipelineNotFoundError{Pipeline: pipeline, File: pi.File}
	}
	config, ok := v.(*attrtree.Tree)
	if !ok {
		// A pipeline declared with no settings.
		return attrtree.MustNew(nil), nil
	}
	return config, nil
}

// PipelineName returns the pipeline's name, or its id without extension if
// the pipeline has no name.
func (pi *Interface) PipelineName(pipeline string) (string, error) {
	config, err := pi.Select(pipeline)
	if err != nil {
		return "", err
	}
	if name, ok := config.GetString("name"); ok && name != "" {
		return name, nil
	}
	return strings.TrimSuffix(pipeline, filepath.Ext(pipeline)), nil
}

// Attribute returns the value of key in the pipeline's description as a
// list. A string is a one-element list; a missing key is an empty list.
func (pi *Interface) Attribute(pipeline, key string) ([]string, error) {
	config, err := pi.Select(pipeline)
	if err != nil {
		return nil, err
	}
	v, ok := config.Lookup(key)
	if !ok || v == nil {
		return []string{}, nil
	}
	return config.GetStrings(key), nil
}

// UsesLooperArgs returns true if the pipeline takes looper's own arguments
// (config file, output dir, cores and memory) in addition to its arguments.
func (pi *Interface) UsesLooperArgs(pipeline string) bool {
	config, err := pi.Select(pipeline)
	if err != nil {
		return false
	}
	v, _ := config.Lookup("looper_args")
	b, _ := v.(bool)
	return b
}

// ChooseResources returns the resource tier for input of sizeGB. Tiers with
// file_size "0" are defaults and never picked over a better match. Of the
// other tiers, the one with the largest threshold not above sizeGB wins; on
// ties the last declared tier wins. With no such tier, the default tier is
// returned.
func (pi *Interface) ChooseResources(pipeline string, sizeGB float64) (ResourcePackage, error) {
	config, err := pi.Select(pipeline)
	if err != nil {
		return ResourcePackage{}, err
	}
	table, ok := config.Sub("resources")
	if !ok {
		return ResourcePackage{}, lerr.ResourcesNotFoundError{Pipeline: pipeline, File: pi.File}
	}

	pick := DefaultTier
	pickSize := 0.0
	for _, tier := range table.Keys() {
		threshold, err := tierThreshold(table, tier)
		if err != nil {
			return ResourcePackage{}, fmt.Errorf("pipeline %s: %s", pipeline, err)
		}
		if threshold == 0 || sizeGB < threshold {
			continue
		}
		if threshold >= pickSize {
			pick = tier
			pickSize = threshold
		}
	}

	v, _ := table.Lookup(pick)
	settings, ok := v.(*attrtree.Tree)
	if !ok {
		return ResourcePackage{}, lerr.ResourcesNotFoundError{Pipeline: pipeline, File: pi.File, Tier: pick}
	}
	pi.log.WithFields(log.Fields{"pipeline": pipeline, "tier": pick, "size": sizeGB}).Debug("Chose resources")
	return ResourcePackage{
		Name:     pick,
		FileSize: pickSize,
		Settings: settings,
	}, nil
}

// tierThreshold returns the file_size of a tier in GB. A tier without
// file_size is a default tier.
func tierThreshold(table *attrtree.Tree, tier string) (float64, error) {
	settings, _ := table.Lookup(tier)
	t, ok := settings.(*attrtree.Tree)
	if !ok {
		return 0, fmt.Errorf("resource tier %s is not a mapping", tier)
	}
	v, ok := stringValue(t, "file_size")
	if !ok {
		return 0, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("resource tier %s: invalid file_size %q", tier, v)
	}
	return f, nil
}

// ArgString returns the command line arguments of a pipeline for a sample:
// " <flag> <value>" for each entry of arguments, then of optional_arguments,
// in declaration order. An argument maps a flag to a sample attribute. A
// missing attribute is a MissingAttributeError for arguments, and is logged
// and skipped for optional_arguments. A nil attribute adds only the flag, and
// a flag mapped to nothing is skipped. A pipeline without arguments has an
// empty argument string.
func (pi *Interface) ArgString(pipeline string, s Sample) (string, error) {
	config, err := pi.Select(pipeline)
	if err != nil {
		return "", err
	}
	l := pi.log.WithFields(log.Fields{"pipeline": pipeline, "sample": s.SampleName()})

	args, ok := config.Sub("arguments")
	if !ok {
		l.Warn("No arguments found for pipeline")
		return "", nil
	}

	var b strings.Builder
	for _, flag := range args.Keys() {
		attr, ok := stringValue(args, flag)
		if !ok {
			continue
		}
		v, err := s.Attr(attr)
		if err != nil {
			l.WithFields(log.Fields{"argument": flag, "attribute": attr}).Error("Pipeline requires sample attribute")
			return "", lerr.MissingAttributeError{
				Pipeline:  pipeline,
				Argument:  flag,
				Attribute: attr,
				Sample:    s.SampleName(),
			}
		}
		writeArg(&b, flag, v)
	}

	if optional, ok := config.Sub("optional_arguments"); ok {
		for _, flag := range optional.Keys() {
			attr, ok := stringValue(optional, flag)
			if !ok {
				continue
			}
			v, err := s.Attr(attr)
			if err != nil {
				l.WithFields(log.Fields{"argument": flag, "attribute": attr}).Info("Pipeline requests sample attribute for optional argument")
				continue
			}
			writeArg(&b, flag, v)
		}
	}
	return b.String(), nil
}

// stringValue returns the value under key, which may contain dots, as a
// string.
func stringValue(t *attrtree.Tree, key string) (string, bool) {
	v, ok := t.Lookup(key)
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

func writeArg(b *strings.Builder, flag string, v interface{}) {
	b.WriteString(" " + flag)
	if v == nil {
		return
	}
	b.WriteString(" " + argValue(v))
}

// argValue formats an attribute value for a command line. Lists are space
// separated.
func argValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, e := range val {
			if e != nil {
				parts = append(parts, fmt.Sprint(e))
			}
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(attrtree.SerializeValue(v))
	}
}
