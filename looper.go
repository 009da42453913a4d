// Copyright 2017, Square, Inc.

// Package looper runs pipelines on the samples of a project. Given a project
// config, it derives every sample's attributes, picks the pipelines for its
// protocol, and submits one job per sample and pipeline to the compute tier.
package looper

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/square/looper/app"
	"github.com/square/looper/config"
	"github.com/square/looper/pipeline"
	"github.com/square/looper/project"
	"github.com/square/looper/version"
)

var ErrHelp = app.ErrHelp

// Pipeline description files, relative to the project's pipelines_dir.
var (
	InterfaceFile        = filepath.Join("config", "pipeline_interface.yaml")
	ProtocolMappingsFile = filepath.Join("config", "protocol_mappings.yaml")
)

// Run runs looper with args (without the program name). When using the
// standard looper bin, Run is called by bin/main.go. When looper is wrapped by
// custom code, that code calls Run with a custom context. ErrHelp is returned
// after printing help.
func Run(ctx app.Context, args []string) error {
	// //////////////////////////////////////////////////////////////////////
	// Config and command line
	// //////////////////////////////////////////////////////////////////////

	// Options are set in this order: config -> env var -> cmd line option.
	// So first we must apply config files, then do cmd line parsing which
	// will apply env vars and cmd line options.
	cmdLine, err := config.ParseCommandLine(config.Options{}, args)
	if err != nil {
		return err
	}
	configFiles := config.DEFAULT_CONFIG_FILES
	if cmdLine.Config != "" {
		configFiles = cmdLine.Config
	}
	l := logger(ctx, cmdLine.Verbose)
	def := config.ParseConfigFiles(configFiles, l)
	if cmdLine, err = config.ParseCommandLine(def, args); err != nil {
		return err
	}

	var o config.Options = cmdLine.Options
	var c config.Command = cmdLine.Command
	if ctx.Hooks.AfterParseOptions != nil {
		ctx.Hooks.AfterParseOptions(&o)
	}
	ctx.Options = o
	ctx.Command = c
	ctx.Log = logger(ctx, o.Verbose)
	if ctx.Out == nil {
		ctx.Out = os.Stdout
	}
	ctx.Log.WithFields(log.Fields{"command": c.Cmd, "options": fmt.Sprintf("%+v", o)}).Debug("Parsed command line")

	// //////////////////////////////////////////////////////////////////////
	// Help and version
	// //////////////////////////////////////////////////////////////////////
	if o.Help || c.Cmd == "" || c.Cmd == "help" {
		config.Help(ctx.Out)
		return ErrHelp
	}
	if o.Version || c.Cmd == config.CMD_VERSION {
		fmt.Fprintf(ctx.Out, "looper %s\n", version.Version())
		return nil
	}
	if c.Cmd != config.CMD_RUN && c.Cmd != config.CMD_CHECK {
		return fmt.Errorf("%s: %s. Run 'looper help' to list commands.", app.ErrUnknownCommand, c.Cmd)
	}
	if c.ProjectConfig == "" {
		return fmt.Errorf("%s requires a project config file", c.Cmd)
	}

	// //////////////////////////////////////////////////////////////////////
	// Project and pipelines
	// //////////////////////////////////////////////////////////////////////
	prj, err := project.Load(c.ProjectConfig, project.LoadOptions{
		Environment: o.Env,
		Subproject:  o.Subproject,
		Logger:      ctx.Log,
	})
	if err != nil {
		return err
	}
	if o.Compute != "" && !prj.SelectCompute(o.Compute) {
		return fmt.Errorf("compute tier %s not in environment %s", o.Compute, prj.EnvironmentFile())
	}
	if ctx.Hooks.AfterLoadProject != nil {
		if err := ctx.Hooks.AfterLoadProject(prj); err != nil {
			return err
		}
	}

	pi, err := pipeline.LoadInterface(filepath.Join(prj.PipelinesDir(), InterfaceFile), prj.Logger())
	if err != nil {
		return err
	}
	pm, err := pipeline.LoadProtocolMapper(filepath.Join(prj.PipelinesDir(), ProtocolMappingsFile), prj.Logger())
	if err != nil {
		return err
	}

	// //////////////////////////////////////////////////////////////////////
	// Commands
	// //////////////////////////////////////////////////////////////////////
	var result interface{}
	switch c.Cmd {
	case config.CMD_CHECK:
		result, err = check(ctx, prj, pi, pm)
	case config.CMD_RUN:
		result, err = run(ctx, prj, pi, pm)
	}
	if ctx.Hooks.CommandRunResult != nil {
		ctx.Hooks.CommandRunResult(result, err)
	}
	return err
}

// logger returns the context logger, or a stderr logger if the context has
// none. verbose sets debug level on a new logger.
func logger(ctx app.Context, verbose bool) *log.Entry {
	if ctx.Log != nil {
		return ctx.Log
	}
	logger := log.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return log.NewEntry(logger)
}
