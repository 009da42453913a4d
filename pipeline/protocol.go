// Copyright 2017, Square, Inc.

package pipeline

import (
	"fmt"
	"io/ioutil"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	lerr "github.com/square/looper/errors"
	"github.com/square/looper/util"
)

// ProtocolMapper maps protocols (the library column of the sample sheet) to
// the pipelines that run for them. Protocols are case-insensitive.
type ProtocolMapper struct {
	File     string
	mappings map[string]string
	order    []string
	log      *log.Entry
}

// Stage is one step of a protocol's pipelines. Jobs in the same stage are
// alternatives that can run in parallel; they depend on the jobs of the
// stage before.
type Stage struct {
	Jobs      []string
	DependsOn []string
}

// LoadProtocolMapper loads a protocol mappings file: protocol to a
// semicolon-separated list of pipelines.
func LoadProtocolMapper(file string, l *log.Entry) (*ProtocolMapper, error) {
	bytes, err := ioutil.ReadFile(file)
	if err != nil {
		return nil, lerr.ConfigError{File: file, Err: err}
	}
	var ms yaml.MapSlice
	if err := yaml.Unmarshal(bytes, &ms); err != nil {
		return nil, lerr.ConfigError{File: file, Err: err}
	}
	pm := &ProtocolMapper{
		File:     file,
		mappings: map[string]string{},
		order:    []string{},
		log:      util.Logger(l).WithField("protocol_mappings", file),
	}
	for _, item := range ms {
		protocol := strings.ToUpper(fmt.Sprint(item.Key))
		if item.Value == nil {
			return nil, lerr.ConfigError{File: file, Err: fmt.Errorf("protocol %s maps to no pipelines", protocol)}
		}
		if _, ok := pm.mappings[protocol]; !ok {
			pm.order = append(pm.order, protocol)
		}
		pm.mappings[protocol] = fmt.Sprint(item.Value)
	}
	return pm, nil
}

// Protocols returns the mapped protocols, upper-cased, in file order.
func (pm *ProtocolMapper) Protocols() []string {
	out := make([]string, len(pm.order))
	copy(out, pm.order)
	return out
}

// Mapping returns the raw pipeline string of a protocol.
func (pm *ProtocolMapper) Mapping(protocol string) (string, bool) {
	v, ok := pm.mappings[strings.ToUpper(protocol)]
	return v, ok
}

// Build returns the pipelines of a protocol in order. An unmapped protocol
// is logged and has no pipelines. Parallel alternatives within a stage are
// not expanded; see Stages.
func (pm *ProtocolMapper) Build(protocol string) []string {
	mapping, ok := pm.Mapping(protocol)
	if !ok {
		pm.log.WithField("protocol", protocol).Warn("Missing protocol mapping")
		return []string{}
	}
	jobs := []string{}
	for _, job := range strings.Split(mapping, ";") {
		if job = strings.TrimSpace(job); job != "" {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// Stages parses a protocol's pipelines into stages. A stage like
// "(a.py, b.py)" holds parallel jobs that each depend on every job of the
// previous stage. The run loop uses Build; Stages is for tools that need the
// dependencies.
func (pm *ProtocolMapper) Stages(protocol string) []Stage {
	stages := []Stage{}
	var prev []string
	for _, stage := range pm.Build(protocol) {
		jobs := parseStage(stage)
		if len(jobs) == 0 {
			continue
		}
		stages = append(stages, Stage{Jobs: jobs, DependsOn: prev})
		prev = jobs
	}
	return stages
}

// parseStage returns the jobs of one stage: "(a.py, b.py)" is a.py and b.py.
func parseStage(stage string) []string {
	stage = strings.NewReplacer("(", "", ")", "").Replace(stage)
	jobs := []string{}
	for _, job := range strings.Split(stage, ",") {
		if job = strings.TrimSpace(job); job != "" {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// PipelineID returns the pipeline interface id of a mapped job. A job can
// carry script arguments after the id, like "wgbs.py --dedup".
func PipelineID(job string) string {
	fields := strings.Fields(job)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
