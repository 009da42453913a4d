// Copyright 2017-2019, Square, Inc.

// Package app provides app-wide data structs and functions.
package app

import (
	"errors"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/square/looper/config"
	"github.com/square/looper/project"
	"github.com/square/looper/sample"
	"github.com/square/looper/submit"
)

var (
	ErrHelp           = errors.New("print help")
	ErrUnknownCommand = errors.New("unknown command")
)

// Context represents how to run looper. A context is passed to looper.Run().
// A default context is created in bin/main.go. Wrapper code can integrate
// with looper by passing a custom context to looper.Run(): registering
// sample types for its protocols, and setting hooks and factories.
type Context struct {
	// Set in main.go or by wrapper
	Out       io.Writer        // where to print results (default: stdout)
	Log       *log.Entry       // where to log (default: stderr)
	Registry  *sample.Registry // sample types by protocol (default: base Sample only)
	Hooks     Hooks            // for integration with other code
	Factories Factories        // for integration with other code

	// Set automatically in looper.Run()
	Options config.Options // command line options (--env, etc.)
	Command config.Command // command and project config file
}

// A RunnerFactory makes the Runner that submits jobs.
type RunnerFactory interface {
	Make(Context) (submit.Runner, error)
}

type Factories struct {
	Runner RunnerFactory
}

type Hooks struct {
	AfterParseOptions func(*config.Options)
	AfterLoadProject  func(*project.Config) error
	BeforeSubmit      func(*sample.Sample, *submit.Job) error
	CommandRunResult  func(interface{}, error)
}
