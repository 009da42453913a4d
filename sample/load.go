// Copyright 2017, Square, Inc.

package sample

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/square/looper/project"
)

// AddSampleSheet loads the project's sample annotation sheet and makes its
// samples with reg. Each sample is tied to the project, merged with its merge
// table rows if the project has a merge table, given a genome and
// transcriptome for its organism, and has its file paths set. data_path
// mirrors the resolved data_source.
func AddSampleSheet(prj *project.Config, reg *Registry) (*Sheet, error) {
	l := prj.Logger()
	sheet, err := LoadSheet(prj.SampleAnnotation())
	if err != nil {
		return nil, err
	}
	if err := sheet.Materialize(reg); err != nil {
		return nil, err
	}
	l.WithField("samples", len(sheet.Samples)).Debug("Loaded sample sheet")

	for _, s := range sheet.Samples {
		s.SetProject(prj)
		s.Merged = false
	}

	if path, ok := prj.MergeTable(); ok {
		if _, err := os.Stat(path); err != nil {
			l.WithField("merge_table", path).Warn("Merge table does not exist")
		} else {
			table, err := LoadMergeTable(path)
			if err != nil {
				return nil, err
			}
			for _, s := range sheet.Samples {
				merged, err := table.Apply(s)
				if err != nil {
					return nil, err
				}
				if merged {
					s.log.WithField("merge_table", path).Debug("Merged rows")
				}
			}
		}
	}

	for _, s := range sheet.Samples {
		if s.Has("organism") {
			if err := s.SetGenomeTranscriptome(); err != nil {
				return nil, err
			}
		}
		if err := s.SetFilePaths(); err != nil {
			return nil, err
		}
		if v, ok := s.Lookup(project.DataSourceColumn); ok {
			if err := s.setAttr("data_path", v); err != nil {
				return nil, err
			}
		}
		s.log.WithFields(log.Fields{"merged": s.Merged, "derived": s.DerivedColsDone}).Debug("Sample ready")
	}
	return sheet, nil
}
