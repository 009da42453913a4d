// Copyright 2017, Square, Inc.

// Package submit writes job submission scripts from the compute tier's
// submission template and hands them to the tier's submission command (sh,
// sbatch, qsub, ...).
package submit

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasttemplate"

	"github.com/square/looper/attrtree"
	"github.com/square/looper/project"
	"github.com/square/looper/retry"
	"github.com/square/looper/util"
)

const (
	DefaultTries = 3
	DefaultWait  = 2 * time.Second
)

// A Runner runs a submission command. ShellRunner is the real one.
type Runner interface {
	Run(ctx context.Context, name, cmd string, args ...string) Return
}

// ShellRunner runs commands with ShellCommand. The job name is only used by
// other runners.
type ShellRunner struct{}

func (r ShellRunner) Run(ctx context.Context, name, cmd string, args ...string) Return {
	return NewShellCommand(cmd, args...).Run(ctx)
}

// Job is one pipeline run for one sample.
type Job struct {
	Name      string         // <pipeline name>_<sample name>
	Command   string         // full pipeline command line
	Resources *attrtree.Tree // chosen resource tier settings
}

// Result is what Submit did with a job.
type Result struct {
	Script    string // submission script written
	LogFile   string
	Submitted bool // false for dry runs
	Return    Return
}

// Submitter writes and submits job scripts for one compute tier.
type Submitter struct {
	Compute *attrtree.Tree // compute tier: submission_template, submission_command, ...
	Dir     string         // where scripts and logs are written
	DryRun  bool
	Tries   int
	Wait    time.Duration
	Runner  Runner
	log     *log.Entry
}

// NewSubmitter makes a Submitter for the project's active compute tier.
// A nil runner uses ShellRunner.
func NewSubmitter(prj *project.Config, dryRun bool, runner Runner) *Submitter {
	if runner == nil {
		runner = ShellRunner{}
	}
	return &Submitter{
		Compute: prj.Compute(),
		Dir:     prj.SubmissionSubdir(),
		DryRun:  dryRun,
		Tries:   DefaultTries,
		Wait:    DefaultWait,
		Runner:  runner,
		log:     prj.Logger(),
	}
}

// Vars returns the template values for a job: every scalar compute and
// resource setting, upper-cased, then CODE, JOBNAME and LOGFILE. Resource
// settings override compute settings.
func (s *Submitter) Vars(job Job, logFile string) map[string]string {
	vars := map[string]string{}
	for _, t := range []*attrtree.Tree{s.Compute, job.Resources} {
		if t == nil {
			continue
		}
		for _, k := range t.Keys() {
			v, _ := t.Lookup(k)
			if v == nil || attrtree.KindOf(v) != attrtree.Scalar {
				continue
			}
			vars[strings.ToUpper(k)] = fmt.Sprint(v)
		}
	}
	vars["CODE"] = job.Command
	vars["JOBNAME"] = job.Name
	vars["LOGFILE"] = logFile
	return vars
}

// Render fills the {NAME} placeholders of a template. Placeholders without
// a value are left as they are.
func Render(tmpl string, vars map[string]string) string {
	return fasttemplate.ExecuteFuncString(tmpl, "{", "}", func(w io.Writer, tag string) (int, error) {
		v, ok := vars[tag]
		if !ok {
			return w.Write([]byte("{" + tag + "}"))
		}
		return w.Write([]byte(v))
	})
}

// Script writes the submission script of a job to <Dir>/<job>.sub and
// returns its path and the job's log file, <Dir>/<job>.log.
func (s *Submitter) Script(job Job) (string, string, error) {
	tmplFile, ok := s.Compute.GetString("submission_template")
	if !ok {
		return "", "", fmt.Errorf("compute settings lack submission_template")
	}
	tmpl, err := project.ReadSubmissionTemplate(tmplFile)
	if err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", "", err
	}
	logFile := filepath.Join(s.Dir, job.Name+".log")
	script := filepath.Join(s.Dir, job.Name+".sub")
	content := Render(string(tmpl), s.Vars(job, logFile))
	if err := ioutil.WriteFile(script, []byte(content), 0755); err != nil {
		return "", "", err
	}
	return script, logFile, nil
}

// Submit writes the job's script and, unless this is a dry run, runs the
// submission command on it. A failed submission is retried.
func (s *Submitter) Submit(ctx context.Context, job Job) (Result, error) {
	script, logFile, err := s.Script(job)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		Script:  script,
		LogFile: logFile,
	}
	l := s.log.WithFields(log.Fields{"job": job.Name, "script": script, "submission_id": util.XID().String()})
	if s.DryRun {
		l.Info("Dry run, not submitted")
		return res, nil
	}

	command, _ := s.Compute.GetString("submission_command")
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return res, fmt.Errorf("compute settings lack submission_command")
	}
	args := append(fields[1:], script)

	err = retry.Do(ctx, s.Tries, s.Wait,
		func() error {
			res.Return = s.Runner.Run(ctx, job.Name, fields[0], args...)
			return res.Return.Error
		},
		func(try int, err error) {
			l.WithField("try", try).Warnf("Submission failed, retrying: %s", err)
		},
	)
	if err != nil {
		l.WithField("stderr", res.Return.Stderr).Errorf("Submission failed: %s", err)
		return res, fmt.Errorf("submitting %s: %s", job.Name, err)
	}
	res.Submitted = true
	l.Info("Submitted")
	return res, nil
}
