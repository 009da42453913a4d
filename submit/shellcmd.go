// Copyright 2017, Square, Inc.

package submit

import (
	"bytes"
	"context"
	"os/exec"
)

// Return is the outcome of running a command.
type Return struct {
	Exit   int   // exit code, -1 if the command did not run
	Error  error // error running the command, including a non-zero exit
	Stdout string
	Stderr string
}

// ShellCommand runs a command with arguments.
type ShellCommand struct {
	Cmd  string   // command to execute
	Args []string // args to cmd
}

func NewShellCommand(cmd string, args ...string) *ShellCommand {
	return &ShellCommand{
		Cmd:  cmd,
		Args: args,
	}
}

// Run runs the command and waits for it to return. Canceling ctx kills it.
func (j *ShellCommand) Run(ctx context.Context) Return {
	cmd := exec.CommandContext(ctx, j.Cmd, j.Args...)

	// Capture STDOUT and STDERR
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	exit := 0
	if err != nil {
		exit = -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exit = exitErr.ExitCode()
		}
	}
	return Return{
		Exit:   exit,
		Error:  err,
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
}
