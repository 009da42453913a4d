// Copyright 2017, Square, Inc.

// Package project loads a project config: the compute environment, the
// project YAML and an optional subproject overlay, layered into one
// attribute tree with every path made absolute.
package project

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/square/looper/attrtree"
	lerr "github.com/square/looper/errors"
	"github.com/square/looper/util"
)

const (
	// EnvVar names the environment file when none is given on the command line.
	EnvVar = "LOOPERENV"

	DefaultResultsSubdir    = "results_pipeline"
	DefaultSubmissionSubdir = "submission"

	// DataSourceColumn is always a derived column.
	DataSourceColumn = "data_source"
)

// Sections whose string values are paths relative to the project config file.
var relativeSections = []string{"metadata", "pipeline_config"}

// LoadOptions are optional inputs to Load.
type LoadOptions struct {
	// Environment is a compute environment file layered over the default
	// environment. Empty means the default environment only.
	Environment string

	// DefaultEnvironment replaces the packaged default environment. It's
	// mostly for tests.
	DefaultEnvironment string

	// Subproject names a section of "subprojects" overlaid on the config.
	Subproject string

	Logger *log.Entry
}

// Config is a loaded project config. The embedded tree holds every section
// of the project YAML (metadata, compute, derived_columns, data_sources,
// pipeline_config, pipeline_args, genomes, trackhubs, ...) after layering.
type Config struct {
	*attrtree.Tree

	ConfigFile string // absolute path of the project YAML
	Subproject string

	env     *attrtree.Tree // merged compute environments
	envFile string         // last environment file loaded, "" for the packaged one
	name    string
	log     *log.Entry
}

// Load loads a project config. The layers are applied in order:
//
//   1. the packaged default environment, then opts.Environment
//   2. the "default" compute tier of the environment
//   3. the project YAML
//   4. subprojects.<opts.Subproject>
//
// After layering, required metadata is checked and paths are resolved. Any
// error is a ConfigError and no partial Config is returned.
func Load(configFile string, opts LoadOptions) (*Config, error) {
	absFile, err := filepath.Abs(configFile)
	if err != nil {
		return nil, lerr.ConfigError{File: configFile, Err: err}
	}
	c := &Config{
		Tree:       attrtree.MustNew(nil),
		ConfigFile: absFile,
		Subproject: opts.Subproject,
		log:        util.Logger(opts.Logger),
	}

	if opts.DefaultEnvironment != "" {
		err = c.UpdateEnvironment(opts.DefaultEnvironment)
	} else {
		err = c.updateEnvironment(defaultEnvironment, "", defaultEnvironmentFile)
	}
	if err != nil {
		return nil, err
	}
	if opts.Environment != "" {
		if err := c.UpdateEnvironment(opts.Environment); err != nil {
			return nil, err
		}
	} else {
		c.log.Infof("Using default environment. Set %s to configure compute settings.", EnvVar)
	}
	c.SelectCompute("default")

	if err := c.parseConfigFile(); err != nil {
		return nil, err
	}

	c.name = filepath.Base(c.OutputDir())
	c.log = c.log.WithField("project", c.name)

	cols := c.GetStrings("derived_columns")
	if !contains(cols, DataSourceColumn) {
		cols = append(cols, DataSourceColumn)
	}
	if err := c.Set("derived_columns", cols); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Config) parseConfigFile() error {
	bytes, err := ioutil.ReadFile(c.ConfigFile)
	if err != nil {
		return lerr.ConfigError{File: c.ConfigFile, Err: err}
	}
	var entries yaml.MapSlice
	if err := yaml.Unmarshal(bytes, &entries); err != nil {
		return lerr.ConfigError{File: c.ConfigFile, Err: err}
	}
	if err := c.Update(entries); err != nil {
		return lerr.ConfigError{File: c.ConfigFile, Err: err}
	}

	if c.Subproject != "" {
		subs, _ := c.Sub("subprojects")
		var overlay interface{}
		ok := false
		if subs != nil {
			overlay, ok = subs.Lookup(c.Subproject)
		}
		if !ok {
			return lerr.ConfigError{File: c.ConfigFile, Field: "subprojects." + c.Subproject}
		}
		if err := c.Update(overlay); err != nil {
			return lerr.ConfigError{File: c.ConfigFile, Err: err}
		}
	}

	// The paths section was folded into metadata.
	if paths, ok := c.Sub("paths"); ok {
		c.log.Warn("paths section in project config is deprecated: move all paths attributes to the metadata section")
		if err := c.Set("metadata", paths); err != nil {
			return lerr.ConfigError{File: c.ConfigFile, Err: err}
		}
		c.Delete("paths")
	}

	metadata, ok := c.Sub("metadata")
	if !ok {
		return lerr.ConfigError{File: c.ConfigFile, Field: "metadata"}
	}
	for _, field := range []string{"output_dir", "pipelines_dir"} {
		v, ok := metadata.GetString(field)
		if !ok {
			return lerr.ConfigError{File: c.ConfigFile, Field: field}
		}
		if err := metadata.Set(field, util.ExpandVars(v)); err != nil {
			return lerr.ConfigError{File: c.ConfigFile, Field: field, Err: err}
		}
	}

	outputDir, _ := metadata.GetString("output_dir")
	for field, def := range map[string]string{
		"results_subdir":    DefaultResultsSubdir,
		"submission_subdir": DefaultSubmissionSubdir,
	} {
		v, ok := metadata.GetString(field)
		if !ok {
			v = def
		}
		if !filepath.IsAbs(v) {
			v = filepath.Join(outputDir, v)
		}
		if err := metadata.Set(field, v); err != nil {
			return lerr.ConfigError{File: c.ConfigFile, Field: field, Err: err}
		}
	}

	configDir := filepath.Dir(c.ConfigFile)
	for _, name := range relativeSections {
		section, ok := c.Sub(name)
		if !ok {
			continue
		}
		for _, k := range section.Keys() {
			v, _ := section.Lookup(k)
			s, ok := v.(string)
			if !ok {
				continue // null, nested or list values are not paths
			}
			if err := section.Set(k, util.AbsFrom(configDir, s)); err != nil {
				return lerr.ConfigError{File: c.ConfigFile, Field: name + "." + k, Err: err}
			}
		}
	}

	// The project YAML may have set a relative template.
	if err := c.absSubmissionTemplate(); err != nil {
		return lerr.ConfigError{File: c.ConfigFile, Field: "compute.submission_template", Err: err}
	}

	if _, ok := metadata.GetString("sample_annotation"); !ok {
		return lerr.ConfigError{File: c.ConfigFile, Field: "sample_annotation"}
	}
	return nil
}

// PipelineArgs returns the extra arguments the project passes to a pipeline:
// pipeline_args.default followed by pipeline_args.<pipeline>, each as
// " <flag> [value]". A null value adds only the flag.
func (c *Config) PipelineArgs(pipeline string) string {
	args, ok := c.Sub("pipeline_args")
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, section := range []string{"default", pipeline} {
		v, ok := args.Lookup(section)
		if !ok {
			continue
		}
		flags, ok := v.(*attrtree.Tree)
		if !ok {
			continue
		}
		for _, flag := range flags.Keys() {
			b.WriteString(" " + flag)
			if val, _ := flags.Lookup(flag); val != nil && val != "" {
				b.WriteString(" " + fmt.Sprint(val))
			}
		}
	}
	return b.String()
}

// EnsureDirectories creates every directory named in metadata, that is,
// every *_dir and *_subdir field except pipelines_dir, which must already
// exist. Existing directories are ok; any other failure is returned.
func (c *Config) EnsureDirectories() error {
	metadata, ok := c.Sub("metadata")
	if !ok {
		return nil
	}
	for _, k := range metadata.Keys() {
		if k == "pipelines_dir" || !(strings.HasSuffix(k, "_dir") || strings.HasSuffix(k, "_subdir")) {
			continue
		}
		dir, ok := metadata.GetString(k)
		if !ok || dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("cannot create directory %s: %s", dir, err)
		}
		c.log.WithField("dir", dir).Debug("created project directory")
	}
	return nil
}

// Name is the project name: the base name of the output directory.
func (c *Config) Name() string {
	return c.name
}

// Logger returns the logger the project was loaded with, with the project
// name as a field.
func (c *Config) Logger() *log.Entry {
	return c.log
}

func (c *Config) metadata(field string) string {
	v, _ := c.GetString("metadata." + field)
	return v
}

func (c *Config) OutputDir() string        { return c.metadata("output_dir") }
func (c *Config) ResultsSubdir() string    { return c.metadata("results_subdir") }
func (c *Config) SubmissionSubdir() string { return c.metadata("submission_subdir") }
func (c *Config) PipelinesDir() string     { return c.metadata("pipelines_dir") }
func (c *Config) SampleAnnotation() string { return c.metadata("sample_annotation") }

// MergeTable returns the merge table path, if the project has one.
func (c *Config) MergeTable() (string, bool) {
	v := c.metadata("merge_table")
	return v, v != ""
}

// DerivedColumns returns the derived columns in declaration order. It always
// includes data_source.
func (c *Config) DerivedColumns() []string {
	return c.GetStrings("derived_columns")
}

// DataSource returns the template for a data source key.
func (c *Config) DataSource(key string) (string, bool) {
	sources, ok := c.Sub("data_sources")
	if !ok {
		return "", false
	}
	v, ok := sources.Lookup(key)
	if !ok || v == nil {
		return "", false
	}
	return fmt.Sprint(v), true
}

// Compute returns the active compute settings.
func (c *Config) Compute() *attrtree.Tree {
	compute, ok := c.Sub("compute")
	if !ok {
		return attrtree.MustNew(nil)
	}
	return compute
}

// Reference returns the assembly that the project maps organism to in
// section (genomes or transcriptomes).
func (c *Config) Reference(section, organism string) (string, bool) {
	refs, ok := c.Sub(section)
	if !ok {
		return "", false
	}
	v, ok := refs.Lookup(organism)
	if !ok || v == nil {
		return "", false
	}
	return fmt.Sprint(v), true
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

func sortedTiers(compute *attrtree.Tree) []string {
	if compute == nil {
		return nil
	}
	tiers := compute.Keys()
	sort.Strings(tiers)
	return tiers
}
