// Copyright 2017, Square, Inc.

package looper

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/square/looper/app"
	"github.com/square/looper/pipeline"
	"github.com/square/looper/project"
	"github.com/square/looper/sample"
	"github.com/square/looper/submit"
)

// Summary is the result of "looper run".
type Summary struct {
	Samples   int
	Jobs      int
	Submitted int
	Skipped   []string // "<sample>: <reason>"
}

// run submits one job per sample and pipeline of its protocol. Samples
// without a protocol, or with an unmapped one, are skipped. Samples with
// missing required inputs fail the run unless --permissive, in which case
// they are skipped too.
func run(ctx app.Context, prj *project.Config, pi *pipeline.Interface, pm *pipeline.ProtocolMapper) (Summary, error) {
	summary := Summary{Skipped: []string{}}
	l := prj.Logger()

	if err := prj.EnsureDirectories(); err != nil {
		return summary, err
	}
	sheet, err := sample.AddSampleSheet(prj, ctx.Registry)
	if err != nil {
		return summary, err
	}
	summary.Samples = len(sheet.Samples)

	var runner submit.Runner
	if ctx.Factories.Runner != nil {
		if runner, err = ctx.Factories.Runner.Make(ctx); err != nil {
			return summary, err
		}
	}
	submitter := submit.NewSubmitter(prj, ctx.Options.DryRun, runner)
	if ctx.Options.Tries > 0 {
		submitter.Tries = ctx.Options.Tries
	}

	for _, s := range sheet.Samples {
		protocol, ok := s.GetString(sample.LibraryColumn)
		if !ok {
			l.WithField("sample", s.Name).Warn("Sample has no library, skipping")
			summary.Skipped = append(summary.Skipped, s.Name+": no library")
			continue
		}
		jobs := pm.Build(protocol)
		if len(jobs) == 0 {
			summary.Skipped = append(summary.Skipped, s.Name+": no pipelines for "+protocol)
			continue
		}
		if ctx.Options.SampleDirs {
			if err := s.MakeSampleDirs(); err != nil {
				return summary, err
			}
		}
		for _, mapped := range jobs {
			job, ok, err := makeJob(ctx, prj, pi, s, mapped)
			if err != nil {
				return summary, err
			}
			if !ok {
				summary.Skipped = append(summary.Skipped, s.Name+": missing inputs for "+mapped)
				continue
			}
			if ctx.Hooks.BeforeSubmit != nil {
				if err := ctx.Hooks.BeforeSubmit(s, &job); err != nil {
					return summary, err
				}
			}
			if err := s.WriteYAML(""); err != nil {
				return summary, err
			}
			summary.Jobs++
			res, err := submitter.Submit(context.Background(), job)
			if err != nil {
				return summary, err
			}
			if res.Submitted {
				summary.Submitted++
			}
		}
	}

	fmt.Fprintf(ctx.Out, "Samples: %d, jobs: %d, submitted: %d, skipped: %d\n",
		summary.Samples, summary.Jobs, summary.Submitted, len(summary.Skipped))
	for _, skip := range summary.Skipped {
		fmt.Fprintf(ctx.Out, "  skipped %s\n", skip)
	}
	return summary, nil
}

// makeJob makes the job for one sample and one mapped pipeline, which can
// carry script arguments after the pipeline id. It returns false if the
// sample lacks required inputs and the run is permissive.
func makeJob(ctx app.Context, prj *project.Config, pi *pipeline.Interface, s *sample.Sample, mapped string) (submit.Job, bool, error) {
	id := pipeline.PipelineID(mapped)
	scriptArgs := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(mapped), id))
	l := prj.Logger().WithFields(log.Fields{"sample": s.Name, "pipeline": id})

	name, err := pi.PipelineName(id)
	if err != nil {
		return submit.Job{}, false, err
	}
	if err := s.SetPipelineAttributes(pi, id); err != nil {
		return submit.Job{}, false, err
	}
	ok, err := s.ConfirmRequiredInputs(ctx.Options.Permissive)
	if err != nil {
		return submit.Job{}, false, err
	}
	if !ok {
		return submit.Job{}, false, nil
	}

	size, _ := s.Lookup("input_file_size")
	sizeGB, _ := size.(float64)
	resources, err := pi.ChooseResources(id, sizeGB)
	if err != nil {
		return submit.Job{}, false, err
	}
	args, err := pi.ArgString(id, s)
	if err != nil {
		return submit.Job{}, false, err
	}

	cmd := filepath.Join(prj.PipelinesDir(), id)
	if scriptArgs != "" {
		cmd += " " + scriptArgs
	}
	cmd += args
	if pi.UsesLooperArgs(id) {
		cmd += looperArgs(prj, id, resources)
	}
	cmd += prj.PipelineArgs(id)

	l.WithFields(log.Fields{"tier": resources.Name, "size": sizeGB}).Debug("Made job")
	return submit.Job{
		Name:      strings.Replace(name, " ", "_", -1) + "_" + s.Name,
		Command:   cmd,
		Resources: resources.Settings,
	}, true, nil
}

// looperArgs returns the arguments looper passes to pipelines that take
// them: the pipeline config file, if the project names one, the results
// directory, cores and memory.
func looperArgs(prj *project.Config, id string, resources pipeline.ResourcePackage) string {
	var b strings.Builder
	if configs, ok := prj.Sub("pipeline_config"); ok {
		if v, ok := configs.Lookup(id); ok && v != nil {
			fmt.Fprintf(&b, " -C %v", v)
		}
	}
	fmt.Fprintf(&b, " -O %s", prj.ResultsSubdir())
	if cores, ok := resources.Settings.GetString("cores"); ok {
		fmt.Fprintf(&b, " -P %s", cores)
	}
	if mem, ok := resources.Settings.GetString("mem"); ok {
		fmt.Fprintf(&b, " -M %s", mem)
	}
	return b.String()
}
