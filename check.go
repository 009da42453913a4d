// Copyright 2017, Square, Inc.

package looper

import (
	"errors"
	"fmt"
	"os"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/square/looper/app"
	"github.com/square/looper/attrtree"
	"github.com/square/looper/config"
	"github.com/square/looper/pipeline"
	"github.com/square/looper/project"
)

var ErrCheckFailed = errors.New("pipeline check failed")

// check checks the pipeline interface and protocol mappings, and that the
// tools of every pipeline config the project names are callable. Warnings
// are printed but do not fail the check.
func check(ctx app.Context, prj *project.Config, pi *pipeline.Interface, pm *pipeline.ProtocolMapper) (*pipeline.CheckResults, error) {
	checker, err := pipeline.NewChecker([]pipeline.CheckFactory{pipeline.DefaultCheckFactory{Interface: pi}})
	if err != nil {
		return nil, err
	}
	results := checker.RunChecks(pi, pm)

	if configs, ok := prj.Sub("pipeline_config"); ok {
		for _, id := range configs.Keys() {
			if err := checkTools(configs, id, prj.Logger()); err != nil {
				results.AddError(id, err)
			}
		}
	}

	keys := make([]string, 0, len(results.Results))
	for k := range results.Results {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r, _ := results.Get(k)
		for _, err := range r.Errors {
			fmt.Fprintf(ctx.Out, "ERROR   %s: %s\n", k, err)
		}
		for _, err := range r.Warnings {
			fmt.Fprintf(ctx.Out, "WARNING %s: %s\n", k, err)
		}
	}
	fmt.Fprintf(ctx.Out, "Checked %d pipelines and %d protocols\n", len(pi.Pipelines()), len(pm.Protocols()))

	if results.AnyError {
		return results, ErrCheckFailed
	}
	return results, nil
}

// checkTools checks the tools section of pipeline id's config file. A
// missing or unset file is not an error: pipelines can run with defaults.
func checkTools(configs *attrtree.Tree, id string, l *log.Entry) error {
	v, ok := configs.Lookup(id)
	if !ok || v == nil {
		return nil
	}
	file, ok := v.(string)
	if !ok {
		return fmt.Errorf("pipeline config for %s is %T, expected a file name", id, v)
	}
	if _, err := os.Stat(file); err != nil {
		l.WithFields(log.Fields{"pipeline": id, "file": file}).Debug("No pipeline config, not checking tools")
		return nil
	}
	cfg := &attrtree.Tree{}
	if err := config.Load(file, cfg); err != nil {
		return fmt.Errorf("loading %s: %s", file, err)
	}
	tools, _ := cfg.Sub("tools")
	return pipeline.CheckCommands(tools, l.WithField("pipeline", id))
}
