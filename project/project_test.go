// Copyright 2017, Square, Inc.

package project_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-test/deep"

	lerr "github.com/square/looper/errors"
	"github.com/square/looper/project"
	"github.com/square/looper/test"
)

func load(t *testing.T, f test.Fixture, opts project.LoadOptions) *project.Config {
	t.Helper()
	if opts.Environment == "" {
		opts.Environment = f.EnvFile
	}
	prj, err := project.Load(f.ConfigFile, opts)
	if err != nil {
		t.Fatalf("Load: %s", err)
	}
	return prj
}

func TestLoad(t *testing.T) {
	f := test.NewProject(t, "", "")
	prj := load(t, f, project.LoadOptions{})

	got := map[string]string{
		"output_dir":        prj.OutputDir(),
		"results_subdir":    prj.ResultsSubdir(),
		"submission_subdir": prj.SubmissionSubdir(),
		"pipelines_dir":     prj.PipelinesDir(),
		"sample_annotation": prj.SampleAnnotation(),
		"name":              prj.Name(),
	}
	expect := map[string]string{
		"output_dir":        filepath.Join(f.Dir, "output"),
		"results_subdir":    filepath.Join(f.Dir, "output", "results_pipeline"),
		"submission_subdir": filepath.Join(f.Dir, "output", "submission"),
		"pipelines_dir":     f.PipelinesDir,
		"sample_annotation": f.SheetFile,
		"name":              "output",
	}
	if diff := deep.Equal(got, expect); diff != nil {
		t.Error(diff)
	}

	if diff := deep.Equal(prj.DerivedColumns(), []string{"data_source"}); diff != nil {
		t.Error(diff)
	}

	pipelineConfig, ok := prj.Sub("pipeline_config")
	if !ok {
		t.Fatal("no pipeline_config section")
	}
	v, _ := pipelineConfig.Lookup("wgbs.py")
	if v != filepath.Join(f.Dir, "wgbs.yaml") {
		t.Errorf("pipeline_config wgbs.py = %v, expected it relative to the config file", v)
	}

	tmpl, _ := prj.Compute().GetString("submission_template")
	if tmpl != filepath.Join(f.Dir, "env", "templates", "local.sub") {
		t.Errorf("submission_template = %s, expected it relative to the environment file", tmpl)
	}
	if _, ok := prj.MergeTable(); ok {
		t.Errorf("MergeTable reported for a project without one")
	}
}

func TestLoadMissingRequiredField(t *testing.T) {
	tests := []struct {
		missing string
		config  string
	}{
		{"output_dir", "metadata:\n  pipelines_dir: p\n  sample_annotation: s.csv\n"},
		{"pipelines_dir", "metadata:\n  output_dir: o\n  sample_annotation: s.csv\n"},
		{"sample_annotation", "metadata:\n  output_dir: o\n  pipelines_dir: p\n"},
		{"metadata", "data_sources:\n  a: b\n"},
	}
	for _, tt := range tests {
		f := test.NewProject(t, tt.config, "")
		_, err := project.Load(f.ConfigFile, project.LoadOptions{Environment: f.EnvFile})
		cerr, ok := err.(lerr.ConfigError)
		if !ok {
			t.Errorf("missing %s: got error %v (%T), expected ConfigError", tt.missing, err, err)
			continue
		}
		if cerr.Field != tt.missing {
			t.Errorf("ConfigError.Field = %s, expected %s", cerr.Field, tt.missing)
		}
	}
}

func TestLoadUnreadableFiles(t *testing.T) {
	f := test.NewProject(t, "", "")
	if _, err := project.Load(filepath.Join(f.Dir, "nope.yaml"), project.LoadOptions{}); err == nil {
		t.Error("no error loading a config file that does not exist")
	}
	_, err := project.Load(f.ConfigFile, project.LoadOptions{Environment: filepath.Join(f.Dir, "nope.yaml")})
	if _, ok := err.(lerr.ConfigError); !ok {
		t.Errorf("got error %v (%T), expected ConfigError for a missing environment", err, err)
	}
}

func TestSubproject(t *testing.T) {
	config := test.ProjectConfig + `
subprojects:
  rerun:
    metadata:
      output_dir: rerun_output
      results_subdir: /abs/results
`
	f := test.NewProject(t, config, "")
	prj := load(t, f, project.LoadOptions{Subproject: "rerun"})
	if prj.OutputDir() != filepath.Join(f.Dir, "rerun_output") {
		t.Errorf("output_dir = %s, expected subproject value", prj.OutputDir())
	}
	if prj.Name() != "rerun_output" {
		t.Errorf("name = %s, expected rerun_output", prj.Name())
	}
	if prj.ResultsSubdir() != "/abs/results" {
		t.Errorf("results_subdir = %s, expected absolute path kept", prj.ResultsSubdir())
	}
	// Untouched metadata survives the overlay.
	if prj.SampleAnnotation() != f.SheetFile {
		t.Errorf("sample_annotation = %s, expected %s", prj.SampleAnnotation(), f.SheetFile)
	}

	_, err := project.Load(f.ConfigFile, project.LoadOptions{Environment: f.EnvFile, Subproject: "nope"})
	if _, ok := err.(lerr.ConfigError); !ok {
		t.Errorf("got error %v (%T), expected ConfigError for an unknown subproject", err, err)
	}
}

func TestPathsSectionDeprecated(t *testing.T) {
	config := `
paths:
  output_dir: old_output
  pipelines_dir: pipelines
metadata:
  sample_annotation: samples.csv
`
	f := test.NewProject(t, config, "")
	prj := load(t, f, project.LoadOptions{})
	if prj.Has("paths") {
		t.Error("paths section not removed")
	}
	if prj.OutputDir() != filepath.Join(f.Dir, "old_output") {
		t.Errorf("output_dir = %s, expected it from the paths section", prj.OutputDir())
	}
}

func TestExpandVarsInRequiredDirs(t *testing.T) {
	os.Setenv("LOOPER_PROJECT_TEST_OUT", "/scratch/out")
	defer os.Unsetenv("LOOPER_PROJECT_TEST_OUT")
	config := strings.Replace(test.ProjectConfig, "output_dir: output", "output_dir: $LOOPER_PROJECT_TEST_OUT/prj", 1)
	f := test.NewProject(t, config, "")
	prj := load(t, f, project.LoadOptions{})
	if prj.OutputDir() != "/scratch/out/prj" {
		t.Errorf("output_dir = %s, expected /scratch/out/prj", prj.OutputDir())
	}
}

func TestDerivedColumnsNotDuplicated(t *testing.T) {
	config := strings.Replace(test.ProjectConfig, "derived_columns: [data_source]", "derived_columns: [read1, data_source, read2]", 1)
	f := test.NewProject(t, config, "")
	prj := load(t, f, project.LoadOptions{})
	if diff := deep.Equal(prj.DerivedColumns(), []string{"read1", "data_source", "read2"}); diff != nil {
		t.Error(diff)
	}

	config = strings.Replace(test.ProjectConfig, "derived_columns: [data_source]", "derived_columns: [read1]", 1)
	f = test.NewProject(t, config, "")
	prj = load(t, f, project.LoadOptions{})
	if diff := deep.Equal(prj.DerivedColumns(), []string{"read1", "data_source"}); diff != nil {
		t.Error(diff)
	}
}

func TestSelectCompute(t *testing.T) {
	f := test.NewProject(t, "", "")
	prj := load(t, f, project.LoadOptions{})

	if !prj.SelectCompute("slurm") {
		t.Fatal("SelectCompute(slurm) returned false")
	}
	compute := prj.Compute()
	expect := map[string]interface{}{
		"submission_template": filepath.Join(f.Dir, "env", "templates", "slurm.sub"),
		"submission_command":  "sbatch",
		"partition":           "longq",
	}
	if !compute.Equal(expect) {
		t.Errorf("compute = %#v, expected %v", compute, expect)
	}

	if prj.SelectCompute("nope") {
		t.Error("SelectCompute(nope) returned true")
	}
	if !prj.Compute().Equal(expect) {
		t.Errorf("compute changed by an unknown tier: %#v", prj.Compute())
	}
}

func TestProjectTemplateRelativeToEnvironment(t *testing.T) {
	config := test.ProjectConfig + `
compute:
  submission_template: custom.sub
`
	f := test.NewProject(t, config, "")
	prj := load(t, f, project.LoadOptions{})
	tmpl, _ := prj.Compute().GetString("submission_template")
	if tmpl != filepath.Join(f.Dir, "env", "custom.sub") {
		t.Errorf("submission_template = %s, expected it relative to the environment file", tmpl)
	}
}

func TestDefaultEnvironment(t *testing.T) {
	f := test.NewProject(t, "", "")
	prj, err := project.Load(f.ConfigFile, project.LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if prj.EnvironmentFile() != "" {
		t.Errorf("environment file = %s, expected none", prj.EnvironmentFile())
	}
	tmpl, _ := prj.Compute().GetString("submission_template")
	if tmpl != "localhost_template.sub" {
		t.Errorf("submission_template = %s, expected localhost_template.sub", tmpl)
	}
	bytes, err := project.ReadSubmissionTemplate(tmpl)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(bytes), "{CODE}") {
		t.Errorf("packaged template has no {CODE}: %s", bytes)
	}
	if !prj.SelectCompute("local") {
		t.Error("packaged environment has no local tier")
	}
}

func TestReadSubmissionTemplateFromDisk(t *testing.T) {
	f := test.NewProject(t, "", "")
	bytes, err := project.ReadSubmissionTemplate(filepath.Join(f.Dir, "env", "templates", "local.sub"))
	if err != nil {
		t.Fatal(err)
	}
	if string(bytes) != test.LocalTemplate {
		t.Errorf("got %q, expected %q", bytes, test.LocalTemplate)
	}
	if _, err := project.ReadSubmissionTemplate(filepath.Join(f.Dir, "no_such.sub")); err == nil {
		t.Error("no error for a template that does not exist")
	}
}

func TestEnsureDirectories(t *testing.T) {
	f := test.NewProject(t, "", "")
	prj := load(t, f, project.LoadOptions{})
	if err := prj.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	for _, dir := range []string{prj.OutputDir(), prj.ResultsSubdir(), prj.SubmissionSubdir()} {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			t.Errorf("%s not created: %v", dir, err)
		}
	}
	// Existing directories are ok.
	if err := prj.EnsureDirectories(); err != nil {
		t.Errorf("second call: %s", err)
	}
	if fi, err := os.Stat(f.SheetFile); err != nil || fi.IsDir() {
		t.Errorf("sample_annotation changed: %v", err)
	}
}

func TestEnsureDirectoriesFails(t *testing.T) {
	f := test.NewProject(t, "", "")
	test.WriteFile(t, f.Dir, "output", "not a directory")
	prj := load(t, f, project.LoadOptions{})
	if err := prj.EnsureDirectories(); err == nil {
		t.Error("no error creating a directory over a file")
	}
}

func TestPipelineArgs(t *testing.T) {
	config := test.ProjectConfig + `
pipeline_args:
  default:
    "--verbose": null
  wgbs.py:
    "-t": "8"
    "--dirty": null
`
	f := test.NewProject(t, config, "")
	prj := load(t, f, project.LoadOptions{})
	if got := prj.PipelineArgs("wgbs.py"); got != " --verbose -t 8 --dirty" {
		t.Errorf("got %q, expected %q", got, " --verbose -t 8 --dirty")
	}
	if got := prj.PipelineArgs("rrbs.py"); got != " --verbose" {
		t.Errorf("got %q, expected %q", got, " --verbose")
	}

	f = test.NewProject(t, "", "")
	prj = load(t, f, project.LoadOptions{})
	if got := prj.PipelineArgs("wgbs.py"); got != "" {
		t.Errorf("got %q without pipeline_args, expected empty", got)
	}
}

func TestLookups(t *testing.T) {
	f := test.NewProject(t, "", "")
	prj := load(t, f, project.LoadOptions{})
	tmpl, ok := prj.DataSource("bams")
	if !ok || tmpl != f.Dir+"/data/{sample_name}.bam" {
		t.Errorf("DataSource(bams) = %q, %t", tmpl, ok)
	}
	if _, ok := prj.DataSource("nope"); ok {
		t.Error("DataSource(nope) found")
	}
	if g, ok := prj.Reference("genomes", "human"); !ok || g != "hg38" {
		t.Errorf("genome for human = %q, %t", g, ok)
	}
	if _, ok := prj.Reference("genomes", "mouse"); ok {
		t.Error("genome for mouse found")
	}
}
