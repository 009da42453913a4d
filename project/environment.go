// Copyright 2017, Square, Inc.

package project

import (
	"embed"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"github.com/square/looper/attrtree"
	lerr "github.com/square/looper/errors"
	"github.com/square/looper/util"
)

const defaultEnvironmentFile = "default_looperenv.yaml"

var (
	//go:embed submit_templates
	templates embed.FS

	//go:embed submit_templates/default_looperenv.yaml
	defaultEnvironment []byte
)

// UpdateEnvironment loads a compute environment file and merges it over the
// environments already loaded. Every compute.<tier>.submission_template is
// made absolute relative to the file. The active compute settings do not
// change until SelectCompute is called.
func (c *Config) UpdateEnvironment(file string) error {
	bytes, err := ioutil.ReadFile(file)
	if err != nil {
		return lerr.ConfigError{File: file, Err: err}
	}
	return c.updateEnvironment(bytes, file, file)
}

func (c *Config) updateEnvironment(bytes []byte, file, name string) error {
	var entries yaml.MapSlice
	if err := yaml.Unmarshal(bytes, &entries); err != nil {
		return lerr.ConfigError{File: name, Err: err}
	}
	env, err := attrtree.New(entries)
	if err != nil {
		return lerr.ConfigError{File: name, Err: err}
	}
	envDir := ""
	if file != "" {
		envDir = filepath.Dir(file)
	}
	if compute, ok := env.Sub("compute"); ok {
		for _, tier := range compute.Keys() {
			settings, ok := compute.Sub(tier)
			if !ok {
				continue
			}
			if tmpl, ok := settings.GetString("submission_template"); ok {
				if err := settings.Set("submission_template", util.AbsFrom(envDir, tmpl)); err != nil {
					return lerr.ConfigError{File: name, Field: "compute." + tier + ".submission_template", Err: err}
				}
			}
		}
	}

	c.log.WithField("file", name).Info("Loading environment")
	if c.env == nil {
		c.env = env
	} else if err := c.env.Update(env); err != nil {
		return lerr.ConfigError{File: name, Err: err}
	}
	c.envFile = file
	return nil
}

// SelectCompute merges the named tier of the loaded environments over the
// active compute settings. It returns false, and changes nothing, if no
// environment has that tier.
func (c *Config) SelectCompute(tier string) bool {
	if c.env == nil {
		c.log.WithField("tier", tier).Warn("Cannot load compute settings: no environment loaded")
		return false
	}
	settings, ok := c.env.Sub("compute")
	var tierSettings interface{}
	if ok {
		tierSettings, ok = settings.Lookup(tier)
	}
	if !ok {
		c.log.WithField("tier", tier).Warnf("Cannot load compute settings: no such tier in environment (have %v)", sortedTiers(settings))
		return false
	}
	c.log.WithField("tier", tier).Info("Loading compute settings")
	if err := c.Set("compute", tierSettings); err != nil {
		c.log.WithField("tier", tier).Warnf("Cannot load compute settings: %s", err)
		return false
	}
	if err := c.absSubmissionTemplate(); err != nil {
		c.log.WithField("tier", tier).Warnf("Cannot resolve submission template: %s", err)
		return false
	}
	return true
}

func (c *Config) absSubmissionTemplate() error {
	compute, ok := c.Sub("compute")
	if !ok {
		return nil
	}
	tmpl, ok := compute.GetString("submission_template")
	if !ok || c.envFile == "" {
		return nil
	}
	return compute.Set("submission_template", util.AbsFrom(filepath.Dir(c.envFile), tmpl))
}

// Environment returns the merged compute environments.
func (c *Config) Environment() *attrtree.Tree {
	if c.env == nil {
		return attrtree.MustNew(nil)
	}
	return c.env
}

// EnvironmentFile returns the last environment file loaded, or "" if only the
// packaged default environment was loaded.
func (c *Config) EnvironmentFile() string {
	return c.envFile
}

// ReadSubmissionTemplate reads a submission template. Templates that do not
// exist on disk are looked up by base name among the packaged templates, so
// the default environment works without an installation directory.
func ReadSubmissionTemplate(file string) ([]byte, error) {
	bytes, err := ioutil.ReadFile(file)
	if err == nil {
		return bytes, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	packaged, perr := templates.ReadFile(path.Join("submit_templates", filepath.Base(file)))
	if perr != nil {
		return nil, err
	}
	return packaged, nil
}
