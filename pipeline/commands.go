// Copyright 2017, Square, Inc.

package pipeline

import (
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/square/looper/attrtree"
	lerr "github.com/square/looper/errors"
	"github.com/square/looper/util"
)

// CheckCommands checks that every tool in a pipeline config's tools section
// (tool name to command) is callable. Every tool is checked; the ones that
// are not callable are logged and returned together in a
// CommandsNotCallableError.
func CheckCommands(tools *attrtree.Tree, l *log.Entry) error {
	l = util.Logger(l)
	if tools == nil {
		return nil
	}
	failed := []string{}
	for _, name := range tools.Keys() {
		command, ok := stringValue(tools, name)
		if !ok {
			command = name
		}
		if !Callable(command) {
			l.WithFields(log.Fields{"tool": name, "command": command}).Warn("Command is not callable")
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		return lerr.CommandsNotCallableError{Commands: failed}
	}
	return nil
}

// Callable returns true if the program of command is an executable file or
// is on PATH.
func Callable(command string) bool {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	_, err := exec.LookPath(fields[0])
	return err == nil
}
