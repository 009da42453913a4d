// Copyright 2017, Square, Inc.

package util

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"
)

// XID generates a globally unique, 12-byte xid.
func XID() xid.ID {
	return xid.New()
}

var envVarRe = regexp.MustCompile(`\$(\{[A-Za-z_][A-Za-z0-9_]*\}|[A-Za-z_][A-Za-z0-9_]*)`)

// ExpandVars replaces $VAR and ${VAR} in s with the value of the environment
// variable. Unlike os.ExpandEnv, references to unset variables are left
// untouched.
func ExpandVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.Trim(match[1:], "{}")
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// AbsFrom returns path unchanged if it's absolute, else path joined to dir.
// An empty dir leaves relative paths relative.
func AbsFrom(dir, path string) string {
	if path == "" || filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}

// Logger returns l, or a logger that discards everything if l is nil.
func Logger(l *log.Entry) *log.Entry {
	if l != nil {
		return l
	}
	discard := log.New()
	discard.Out = ioutil.Discard
	return log.NewEntry(discard)
}
