// Copyright 2017, Square, Inc.

package config

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/alexflint/go-arg"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const (
	DEFAULT_CONFIG_FILES = "/etc/looper/looper.yaml,~/.looper.yaml"
	DEFAULT_COMPUTE      = "default"
)

// Commands
const (
	CMD_RUN     = "run"
	CMD_CHECK   = "check"
	CMD_VERSION = "version"
)

// Options represents command line options: --env, --compute, etc. Options
// can be set in config files, which are overridden by env vars, which are
// overridden by the command line.
type Options struct {
	Config     string `arg:"env:LOOPER_CONFIG" help:"comma-separated looper config files"`
	Env        string `arg:"env:LOOPERENV" yaml:"env" help:"compute environment file"`
	Compute    string `yaml:"compute" help:"compute tier in the environment"`
	Subproject string `arg:"--sp" help:"subproject to activate"`
	DryRun     bool   `arg:"--dry-run" help:"write submission scripts but do not submit them"`
	Permissive bool   `yaml:"permissive" help:"skip samples with missing inputs instead of failing"`
	SampleDirs bool   `arg:"--make-sample-dirs" yaml:"make_sample_dirs" help:"create each submitted sample's directories"`
	Tries      int    `yaml:"tries" help:"times to try each submission"`
	Verbose    bool   `arg:"-v" yaml:"verbose" help:"debug logging"`
	Help       bool
	Version    bool
}

// Command represents a command (run, check) and the project config file.
type Command struct {
	Cmd           string `arg:"positional" help:"run or check"`
	ProjectConfig string `arg:"positional" help:"project config file"`
}

// CommandLine represents options (--env, etc.) and commands (run, etc.).
// The caller is expected to copy and use the embedded structs separately, like:
//
//   var o config.Options = cmdLine.Options
//   var c config.Command = cmdLine.Command
type CommandLine struct {
	Options
	Command
}

// ParseCommandLine parses args (without the program name) and env vars.
// Command line options override env vars, which override def. --help and
// --version set Help and Version; any other parse error is returned.
func ParseCommandLine(def Options, args []string) (CommandLine, error) {
	var c CommandLine
	c.Options = def
	p, err := arg.NewParser(arg.Config{Program: "looper"}, &c)
	if err != nil {
		return c, fmt.Errorf("arg.NewParser: %s", err)
	}
	if err := p.Parse(args); err != nil {
		switch err {
		case arg.ErrHelp:
			c.Help = true
		case arg.ErrVersion:
			c.Version = true
		default:
			return c, fmt.Errorf("Error parsing command line: %s", err)
		}
	}
	return c, nil
}

// Help writes the command line help to w.
func Help(w io.Writer) {
	var c CommandLine
	p, err := arg.NewParser(arg.Config{Program: "looper"}, &c)
	if err != nil {
		fmt.Fprintln(w, err)
		return
	}
	p.WriteHelp(w)
}

// ParseConfigFiles returns the options set in the comma-separated config
// files. Later files override earlier ones. Files that do not exist or
// cannot be parsed are skipped and logged at debug level.
func ParseConfigFiles(files string, l *log.Entry) Options {
	var def Options
	for _, file := range strings.Split(files, ",") {
		file = strings.TrimSpace(file)
		if file == "" {
			continue
		}
		// If file starts with ~/, we need to expand this to the user home dir
		// because this is a shell expansion, not something Go knows about.
		if strings.HasPrefix(file, "~/") {
			usr, err := user.Current()
			if err != nil {
				continue
			}
			file = filepath.Join(usr.HomeDir, file[2:])
		}

		var o Options
		if err := Load(file, &o); err != nil {
			if l != nil {
				l.WithField("file", file).Debugf("Skipping config file: %s", err)
			}
			continue
		}

		// Set options from this config file only if they're set
		if l != nil {
			l.WithField("file", file).Debug("Applying config file")
		}
		if o.Env != "" {
			def.Env = o.Env
		}
		if o.Compute != "" {
			def.Compute = o.Compute
		}
		if o.Permissive {
			def.Permissive = true
		}
		if o.SampleDirs {
			def.SampleDirs = true
		}
		if o.Tries != 0 {
			def.Tries = o.Tries
		}
		if o.Verbose {
			def.Verbose = true
		}
	}
	return def
}

// Load loads a YAML file into the struct pointed to by configStruct.
func Load(configFile string, configStruct interface{}) error {
	// Make sure the file exists.
	if _, err := os.Stat(configFile); err != nil {
		return err
	}

	data, err := ioutil.ReadFile(configFile)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, configStruct)
}
