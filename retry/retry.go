// Copyright 2017, Square, Inc.

// Package retry retries functions that can fail transiently, like submitting
// a job to a busy scheduler.
package retry

import (
	"context"
	"time"
)

type TryFunc func() error
type LogFunc func(try int, err error)

// Do calls tryFunc up to tries times, sleeping between tries, until it
// returns nil. Every failed try but the last is passed to logFunc, if set.
// The last error is returned. Do stops early if ctx is done, returning the
// last error from tryFunc.
func Do(ctx context.Context, tries int, sleep time.Duration, tryFunc TryFunc, logFunc LogFunc) error {
	if tries < 1 {
		tries = 1
	}
	var err error
	for try := 1; try <= tries; try++ {
		if err = tryFunc(); err == nil {
			return nil
		}
		if try == tries {
			break
		}
		if logFunc != nil {
			logFunc(try, err)
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(sleep):
		}
	}
	return err
}
