/*
Copyright 2017, Square, Inc.

Package config handles looper's own configuration: config files, env vars
and the command line, applied in that order. It does not load project
configs; see package project.

Options can be set in YAML config files (DEFAULT_CONFIG_FILES, or --config):

	env: /shared/looper/compute.yaml
	compute: slurm
	permissive: true

The compute environment file is also read from LOOPERENV. The command line
is "looper [options] <run|check> <project config>".
*/
package config
