// Copyright 2017, Square, Inc.

// Package version provides the looper version.
package version

const VERSION = "0.9.0"

// BUILD is appended to VERSION if set: "VERSION+BUILD". The "+" is included automatically.
var BUILD string = ""

// Version returns the semver-compatible (https://semver.org/) version string.
func Version() string {
	v := VERSION // 0.9.0
	if BUILD != "" {
		v += "+" + BUILD // 0.9.0+sq1
	}
	return v
}
