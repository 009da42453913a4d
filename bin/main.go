// Copyright 2017, Square, Inc.

package main

import (
	"fmt"
	"os"

	"github.com/square/looper"
	"github.com/square/looper/app"
	"github.com/square/looper/sample"
)

func main() {
	defaultContext := app.Context{
		Out:       os.Stdout,
		Registry:  sample.NewRegistry(),
		Hooks:     app.Hooks{},
		Factories: app.Factories{},
	}
	if err := looper.Run(defaultContext, os.Args[1:]); err != nil {
		if err != looper.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
}
