// Copyright 2017, Square, Inc.

package sample

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasttemplate"

	"github.com/square/looper/attrtree"
	"github.com/square/looper/util"
)

// LocateDataSource resolves a derived column through the data_sources
// section of the project config. sourceKey selects the template; if empty,
// the sample's current value of column is the key. $VAR references in the
// template are expanded from the environment, then {name} placeholders are
// filled from the sample's attributes and from extra, which takes
// precedence.
//
// The string returned is always usable. The bool is false if resolution
// failed softly: an unknown key returns "", and a placeholder without a
// value returns the template with only the environment expanded. Failures
// are logged.
func (s *Sample) LocateDataSource(column, sourceKey string, extra map[string]string) (string, bool) {
	l := s.log.WithField("attribute", column)
	if sourceKey == "" {
		v, ok := s.GetString(column)
		if !ok || v == "" {
			l.Warn("No source key given and sample lacks the attribute")
			return "", false
		}
		sourceKey = v
	}
	if s.prj == nil {
		l.WithField("source", sourceKey).Warn("Sample has no project to look up data sources")
		return "", false
	}
	tmpl, ok := s.prj.DataSource(sourceKey)
	if !ok {
		l.WithField("source", sourceKey).Warn("Config lacks entry for data_source key")
		return "", false
	}
	tmpl = util.ExpandVars(tmpl)

	vars := s.templateVars(extra)
	val, err := fasttemplate.ExecuteFuncStringWithErr(tmpl, "{", "}", func(w io.Writer, tag string) (int, error) {
		v, ok := vars[tag]
		if !ok {
			return 0, fmt.Errorf("no value for {%s}", tag)
		}
		return w.Write([]byte(v))
	})
	if err != nil {
		l.WithFields(log.Fields{"source": sourceKey, "template": tmpl}).Warnf("Cannot format data source: %s", err)
		return tmpl, false
	}
	return val, true
}

// templateVars returns the values available to data source templates: every
// scalar attribute, the sample name, and extra.
func (s *Sample) templateVars(extra map[string]string) map[string]string {
	vars := map[string]string{"name": s.Name}
	for _, k := range s.Keys() {
		v, _ := s.Lookup(k)
		if v == nil || attrtree.KindOf(v) != attrtree.Scalar {
			continue
		}
		vars[k] = fmt.Sprint(v)
	}
	for k, v := range extra {
		vars[k] = v
	}
	return vars
}

// SetFilePaths resolves derived columns and sets the sample's paths. Each
// derived column the sample has is resolved once: its original value is
// kept as <column>_key, and columns set by the merge table are skipped.
// Then results_subdir, paths.sample_root and the trackhub attributes are
// set. The FilePathsHook runs last.
func (s *Sample) SetFilePaths() error {
	if s.prj == nil {
		return fmt.Errorf("sample %s: file paths need a project", s.Name)
	}
	for _, col := range s.prj.DerivedColumns() {
		if !s.Has(col) || s.MergedCols.Has(col) || contains(s.DerivedColsDone, col) {
			continue
		}
		key, _ := s.Lookup(col)
		if err := s.setAttr(col+"_key", key); err != nil {
			return err
		}
		path, _ := s.LocateDataSource(col, "", nil)
		if err := s.Set(col, path); err != nil {
			return err
		}
		s.DerivedColsDone = append(s.DerivedColsDone, col)
	}

	results := s.prj.ResultsSubdir()
	if err := s.Set("results_subdir", results); err != nil {
		return err
	}
	if err := s.Paths.Set("sample_root", filepath.Join(results, s.Name)); err != nil {
		return err
	}
	if err := s.setTrackhub(); err != nil {
		return err
	}

	if s.FilePathsHook != nil {
		return s.FilePathsHook(s)
	}
	return nil
}

// setTrackhub sets bigwig under trackhubs.trackhub_dir and, only then,
// track_url under trackhubs.url. Projects without a trackhub_dir get
// neither.
func (s *Sample) setTrackhub() error {
	dir, ok := s.prj.GetString("trackhubs.trackhub_dir")
	if !ok {
		return nil
	}
	bigwig := s.Name + ".bigWig"
	if err := s.Set("bigwig", filepath.Join(dir, bigwig)); err != nil {
		return err
	}
	url, ok := s.prj.GetString("trackhubs.url")
	if !ok {
		return nil
	}
	return s.Set("track_url", strings.TrimSuffix(url, "/")+"/"+bigwig)
}
