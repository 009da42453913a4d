// Copyright 2017, Square, Inc.

// Package mock provides mocks for testing.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/square/looper/submit"
)

var (
	ErrRunner = errors.New("forced error in runner")
)

// Call is one command a Runner was asked to run.
type Call struct {
	Name string
	Cmd  string
	Args []string
}

// Runner records the commands it is asked to run. The first FailTimes calls
// fail with ErrRunner; the rest return RunReturn.
type Runner struct {
	RunReturn submit.Return
	FailTimes int
	RunFunc   func(name, cmd string, args ...string) submit.Return // used instead of RunReturn if set
	// --
	calls       []Call
	*sync.Mutex // guards calls
}

func NewRunner() *Runner {
	return &Runner{
		calls: []Call{},
		Mutex: &sync.Mutex{},
	}
}

func (r *Runner) Run(ctx context.Context, name, cmd string, args ...string) submit.Return {
	r.Lock()
	r.calls = append(r.calls, Call{Name: name, Cmd: cmd, Args: args})
	n := len(r.calls)
	r.Unlock()

	if n <= r.FailTimes {
		return submit.Return{Exit: 1, Error: ErrRunner, Stderr: "busy"}
	}
	if r.RunFunc != nil {
		return r.RunFunc(name, cmd, args...)
	}
	return r.RunReturn
}

// Calls returns the commands run so far.
func (r *Runner) Calls() []Call {
	r.Lock()
	defer r.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}
