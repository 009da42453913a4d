// Copyright 2017, Square, Inc.

package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/square/looper/attrtree"
)

// DefaultCheckFactory makes the checks run by "looper check".
type DefaultCheckFactory struct {
	Interface *Interface
}

func (f DefaultCheckFactory) MakePipelineErrorChecks() ([]PipelineCheck, error) {
	return []PipelineCheck{
		HasResourcesCheck{},
		HasDefaultTierCheck{},
		ValidThresholdsCheck{},
	}, nil
}

func (f DefaultCheckFactory) MakePipelineWarningChecks() ([]PipelineCheck, error) {
	return []PipelineCheck{
		HasArgumentsCheck{},
		ArgumentsMappedCheck{},
	}, nil
}

func (f DefaultCheckFactory) MakeProtocolErrorChecks() ([]ProtocolCheck, error) {
	return []ProtocolCheck{
		HasPipelinesCheck{},
	}, nil
}

func (f DefaultCheckFactory) MakeProtocolWarningChecks() ([]ProtocolCheck, error) {
	if f.Interface == nil {
		return []ProtocolCheck{}, nil
	}
	return []ProtocolCheck{
		KnownPipelinesCheck{f.Interface},
	}, nil
}

// --------------------------------------------------------------------------

// Pipelines must have a resources section.
type HasResourcesCheck struct{}

func (c HasResourcesCheck) CheckPipeline(pipeline string, pi *Interface) error {
	config, err := pi.Select(pipeline)
	if err != nil {
		return err
	}
	if _, ok := config.Sub("resources"); !ok {
		return fmt.Errorf("no resources section")
	}
	return nil
}

// Resources must have a default tier.
type HasDefaultTierCheck struct{}

func (c HasDefaultTierCheck) CheckPipeline(pipeline string, pi *Interface) error {
	table, ok := resources(pi, pipeline)
	if !ok {
		return nil
	}
	if !table.Has(DefaultTier) {
		return fmt.Errorf("resources lack a %s tier", DefaultTier)
	}
	return nil
}

// Every resource tier threshold must be a number.
type ValidThresholdsCheck struct{}

func (c ValidThresholdsCheck) CheckPipeline(pipeline string, pi *Interface) error {
	table, ok := resources(pi, pipeline)
	if !ok {
		return nil
	}
	for _, tier := range table.Keys() {
		if _, err := tierThreshold(table, tier); err != nil {
			return err
		}
	}
	return nil
}

// Pipelines should take arguments.
type HasArgumentsCheck struct{}

func (c HasArgumentsCheck) CheckPipeline(pipeline string, pi *Interface) error {
	config, err := pi.Select(pipeline)
	if err != nil {
		return err
	}
	if _, ok := config.Sub("arguments"); !ok {
		return fmt.Errorf("no arguments section")
	}
	return nil
}

// Argument flags should map to a sample attribute.
type ArgumentsMappedCheck struct{}

func (c ArgumentsMappedCheck) CheckPipeline(pipeline string, pi *Interface) error {
	config, err := pi.Select(pipeline)
	if err != nil {
		return err
	}
	for _, section := range []string{"arguments", "optional_arguments"} {
		args, ok := config.Sub(section)
		if !ok {
			continue
		}
		for _, flag := range args.Keys() {
			v, _ := args.Lookup(flag)
			if attrtree.KindOf(v) != attrtree.Scalar || v == nil {
				return fmt.Errorf("%s flag %s does not map to a sample attribute", section, flag)
			}
		}
	}
	return nil
}

// Protocols must map to at least one pipeline.
type HasPipelinesCheck struct{}

func (c HasPipelinesCheck) CheckProtocol(protocol string, pipelines []string) error {
	if len(pipelines) == 0 {
		return fmt.Errorf("protocol maps to no pipelines")
	}
	return nil
}

// Protocols should map to pipelines in the pipeline interface. Script
// arguments after the pipeline id are ignored.
type KnownPipelinesCheck struct {
	Interface *Interface
}

func (c KnownPipelinesCheck) CheckProtocol(protocol string, pipelines []string) error {
	unknown := []string{}
	for _, stage := range pipelines {
		for _, job := range parseStage(stage) {
			id := PipelineID(job)
			if _, err := c.Interface.Select(id); err != nil {
				unknown = append(unknown, id)
			}
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("pipelines not in %s: %v", filepath.Base(c.Interface.File), unknown)
	}
	return nil
}

func resources(pi *Interface, pipeline string) (*attrtree.Tree, bool) {
	config, err := pi.Select(pipeline)
	if err != nil {
		return nil, false
	}
	return config.Sub("resources")
}
