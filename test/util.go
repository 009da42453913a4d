// Copyright 2017-2018, Square, Inc.

// Package test provides helper functions for tests.
package test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// DirVar in fixture content is replaced with the fixture directory.
const DirVar = "@DIR@"

const ProjectConfig = `
metadata:
  output_dir: output
  pipelines_dir: pipelines
  sample_annotation: samples.csv
derived_columns: [data_source]
data_sources:
  bams: "@DIR@/data/{sample_name}.bam"
  missing: "@DIR@/nowhere/{flowcell}.bam"
pipeline_config:
  wgbs.py: wgbs.yaml
genomes:
  human: hg38
transcriptomes:
  human: hg38_cdna
`

const SampleSheet = `sample_name,library,organism,data_source
s1,WGBS,human,bams
s2,RRBS,mouse,bams
`

const Environment = `
compute:
  default:
    submission_template: templates/local.sub
    submission_command: sh
  slurm:
    submission_template: templates/slurm.sub
    submission_command: sbatch
    partition: longq
`

const LocalTemplate = `#!/bin/bash
{CODE} | tee {LOGFILE}
`

const SlurmTemplate = `#!/bin/bash
#SBATCH --job-name='{JOBNAME}'
#SBATCH --output='{LOGFILE}'
#SBATCH --mem='{MEM}'
#SBATCH --cpus-per-task='{CORES}'
#SBATCH --time='{TIME}'
#SBATCH --partition='{PARTITION}'
{CODE}
`

const PipelineInterface = `
wgbs.py:
  name: WGBS
  looper_args: true
  arguments:
    "--sample-name": sample_name
    "--input": data_source
  optional_arguments:
    "--genome": genome
  required_input_files: data_source
  ngs_input_files: data_source
  resources:
    default:
      file_size: "0"
      cores: "2"
      mem: "4000"
      time: "0-02:00:00"
    high:
      file_size: "4"
      cores: "8"
      mem: "16000"
      time: "1-00:00:00"
rrbs.py:
  arguments:
    "--sample-name": sample_name
  resources:
    default:
      file_size: "0"
      cores: "1"
      mem: "2000"
      time: "0-01:00:00"
`

const ProtocolMappings = `
WGBS: wgbs.py
rrbs: rrbs.py; wgbs.py
`

// Fixture is a project laid out under a temp dir.
type Fixture struct {
	Dir          string
	ConfigFile   string
	SheetFile    string
	EnvFile      string
	PipelinesDir string
}

// WriteFile writes content to dir/name, creating parent dirs, and returns the
// full path. DirVar in content is replaced with dir.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	file := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		t.Fatal(err)
	}
	content = strings.Replace(content, DirVar, dir, -1)
	if err := ioutil.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return file
}

// NewProject writes a project under t.TempDir(): the config, the sample
// sheet, an environment with templates, and the pipeline interface and
// protocol mappings under pipelines/config/. Empty config or sheet content
// uses ProjectConfig or SampleSheet.
func NewProject(t *testing.T, config, sheet string) Fixture {
	t.Helper()
	if config == "" {
		config = ProjectConfig
	}
	if sheet == "" {
		sheet = SampleSheet
	}
	dir := t.TempDir()
	f := Fixture{
		Dir:          dir,
		ConfigFile:   WriteFile(t, dir, "project_config.yaml", config),
		SheetFile:    WriteFile(t, dir, "samples.csv", sheet),
		EnvFile:      WriteFile(t, dir, "env/compute.yaml", Environment),
		PipelinesDir: filepath.Join(dir, "pipelines"),
	}
	WriteFile(t, dir, "env/templates/local.sub", LocalTemplate)
	WriteFile(t, dir, "env/templates/slurm.sub", SlurmTemplate)
	WriteFile(t, dir, "pipelines/config/pipeline_interface.yaml", PipelineInterface)
	WriteFile(t, dir, "pipelines/config/protocol_mappings.yaml", ProtocolMappings)
	return f
}
