// Copyright 2017, Square, Inc.

package sample_test

import (
	"io/ioutil"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-test/deep"
	"gopkg.in/yaml.v2"

	"github.com/square/looper/attrtree"
	lerr "github.com/square/looper/errors"
	"github.com/square/looper/project"
	"github.com/square/looper/sample"
	"github.com/square/looper/test"
)

func loadProject(t *testing.T, f test.Fixture) *project.Config {
	t.Helper()
	prj, err := project.Load(f.ConfigFile, project.LoadOptions{Environment: f.EnvFile})
	if err != nil {
		t.Fatalf("project.Load: %s", err)
	}
	return prj
}

func find(t *testing.T, sheet *sample.Sheet, name string) *sample.Sample {
	t.Helper()
	for _, s := range sheet.Samples {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("no sample %s", name)
	return nil
}

func TestNew(t *testing.T) {
	s, err := sample.New(attrtree.MustNew(map[string]interface{}{"sample_name": "s1", "organism": "human"}))
	if err != nil {
		t.Fatal(err)
	}
	if s.Name != "s1" {
		t.Errorf("Name = %s, expected s1", s.Name)
	}
	if v, err := s.Attr("name"); err != nil || v != "s1" {
		t.Errorf("Attr(name) = %v, %v", v, err)
	}
	if v, err := s.Attr("merged"); err != nil || v != false {
		t.Errorf("Attr(merged) = %v, %v", v, err)
	}

	for _, name := range []interface{}{nil, "", "  ", "nan", "NaN"} {
		row := attrtree.MustNew(map[string]interface{}{"organism": "human"})
		if name != nil {
			row.Set("sample_name", name)
		}
		_, err := sample.New(row)
		if _, ok := err.(lerr.ValidationError); !ok {
			t.Errorf("sample_name %q: got error %v, expected ValidationError", name, err)
		}
	}
}

func TestLocateDataSource(t *testing.T) {
	config := `
metadata:
  output_dir: output
  pipelines_dir: pipelines
  sample_annotation: samples.csv
data_sources:
  src: "/data/{flowcell}/{lane}.bam"
  env: "$LOOPER_TEST_DATA/{flowcell}.bam"
  nokey: "/data/{nothing}.bam"
`
	f := test.NewProject(t, config, "")
	prj := loadProject(t, f)

	s, err := sample.New(attrtree.MustNew(yaml.MapSlice{
		{Key: "sample_name", Value: "s1"},
		{Key: "flowcell", Value: "FC1"},
		{Key: "lane", Value: "L1"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	s.SetProject(prj)

	got, ok := s.LocateDataSource("data_source", "src", nil)
	if !ok || got != "/data/FC1/L1.bam" {
		t.Errorf("got %s, %t, expected /data/FC1/L1.bam, true", got, ok)
	}

	got, ok = s.LocateDataSource("data_source", "src", map[string]string{"lane": "L2"})
	if !ok || got != "/data/FC1/L2.bam" {
		t.Errorf("got %s, %t, expected extra values to take precedence", got, ok)
	}

	t.Setenv("LOOPER_TEST_DATA", "/mnt/data")
	got, ok = s.LocateDataSource("data_source", "env", nil)
	if !ok || got != "/mnt/data/FC1.bam" {
		t.Errorf("got %s, %t, expected /mnt/data/FC1.bam", got, ok)
	}

	got, ok = s.LocateDataSource("data_source", "unknown", nil)
	if ok || got != "" {
		t.Errorf("got %s, %t for an unknown key, expected \"\", false", got, ok)
	}

	got, ok = s.LocateDataSource("data_source", "nokey", nil)
	if ok || got != "/data/{nothing}.bam" {
		t.Errorf("got %s, %t for a missing placeholder, expected the template, false", got, ok)
	}

	// No key and no attribute to take it from.
	got, ok = s.LocateDataSource("data_source", "", nil)
	if ok || got != "" {
		t.Errorf("got %s, %t without a key, expected \"\", false", got, ok)
	}
}

func TestMergeTableApply(t *testing.T) {
	dir := t.TempDir()
	file := test.WriteFile(t, dir, "merge.csv", "sample_name,file\ns1,a\ns2,c\ns1,b\n")
	table, err := sample.LoadMergeTable(file)
	if err != nil {
		t.Fatal(err)
	}

	s, err := sample.New(attrtree.MustNew(map[string]interface{}{"sample_name": "s1"}))
	if err != nil {
		t.Fatal(err)
	}
	merged, err := table.Apply(s)
	if err != nil {
		t.Fatal(err)
	}
	if !merged {
		t.Fatal("Apply returned false, expected rows for s1")
	}
	if v, _ := s.GetString("file"); v != "a b" {
		t.Errorf("file = %q, expected \"a b\"", v)
	}
	if !s.Merged {
		t.Error("Merged is false")
	}
	if v, _ := s.MergedCols.GetString("file"); v != "a b" {
		t.Errorf("merged_cols.file = %q, expected \"a b\"", v)
	}

	other, _ := sample.New(attrtree.MustNew(map[string]interface{}{"sample_name": "s3"}))
	if merged, err := table.Apply(other); merged || err != nil {
		t.Errorf("Apply = %t, %v for a sample without rows, expected false, nil", merged, err)
	}
	if other.Merged {
		t.Error("Merged is true for a sample without rows")
	}
}

func TestMergeTableApplyMetadataColumn(t *testing.T) {
	table := &sample.MergeTable{
		Columns: []string{"sample_name", attrtree.ForceNullsKey},
		Rows:    []*attrtree.Tree{attrtree.MustNew(map[string]interface{}{"sample_name": "s1"})},
	}
	s, err := sample.New(attrtree.MustNew(map[string]interface{}{"sample_name": "s1"}))
	if err != nil {
		t.Fatal(err)
	}
	merged, err := table.Apply(s)
	if _, ok := err.(attrtree.MetadataOperationError); !ok {
		t.Fatalf("got error %v, expected MetadataOperationError", err)
	}
	if merged || s.Merged {
		t.Error("sample marked merged after a failed Apply")
	}
}

func TestSetFilePathsTrackhub(t *testing.T) {
	tests := []struct {
		name     string
		trackhub string
		bigwig   string
		trackURL string
	}{
		{
			name:     "dir and url",
			trackhub: "trackhubs:\n  trackhub_dir: /hub\n  url: http://example.org/hub/\n",
			bigwig:   "/hub/s1.bigWig",
			trackURL: "http://example.org/hub/s1.bigWig",
		},
		{
			name:     "url only",
			trackhub: "trackhubs:\n  url: http://example.org/hub\n",
		},
		{
			name: "no trackhubs",
		},
	}
	for _, tt := range tests {
		f := test.NewProject(t, test.ProjectConfig+tt.trackhub, "")
		sheet, err := sample.AddSampleSheet(loadProject(t, f), nil)
		if err != nil {
			t.Fatalf("%s: %s", tt.name, err)
		}
		s1 := find(t, sheet, "s1")
		bigwig, _ := s1.GetString("bigwig")
		trackURL, _ := s1.GetString("track_url")
		if bigwig != tt.bigwig || s1.Has("bigwig") != (tt.bigwig != "") {
			t.Errorf("%s: bigwig = %q, expected %q", tt.name, bigwig, tt.bigwig)
		}
		if trackURL != tt.trackURL || s1.Has("track_url") != (tt.trackURL != "") {
			t.Errorf("%s: track_url = %q, expected %q", tt.name, trackURL, tt.trackURL)
		}
	}
}

func TestAddSampleSheet(t *testing.T) {
	f := test.NewProject(t, "", "")
	prj := loadProject(t, f)

	reg := sample.NewRegistry()
	reg.Register("wgbs", func(row *attrtree.Tree) (*sample.Sample, error) {
		s, err := sample.New(row)
		if err != nil {
			return nil, err
		}
		s.FilePathsHook = func(s *sample.Sample) error {
			root, _ := s.Paths.GetString("sample_root")
			return s.Paths.Set("bisulfite", filepath.Join(root, "bisulfite"))
		}
		return s, nil
	})

	sheet, err := sample.AddSampleSheet(prj, reg)
	if err != nil {
		t.Fatal(err)
	}
	if len(sheet.Samples) != 2 {
		t.Fatalf("got %d samples, expected 2", len(sheet.Samples))
	}

	s1 := find(t, sheet, "s1")
	got := map[string]string{}
	for _, k := range []string{"data_source", "data_source_key", "data_path", "genome", "transcriptome", "results_subdir", "paths.sample_root", "paths.bisulfite"} {
		v, err := s1.Attr(k)
		if err != nil {
			t.Errorf("s1 %s: %s", k, err)
			continue
		}
		got[k] = v.(string)
	}
	results := filepath.Join(f.Dir, "output", "results_pipeline")
	expect := map[string]string{
		"data_source":       filepath.Join(f.Dir, "data", "s1.bam"),
		"data_source_key":   "bams",
		"data_path":         filepath.Join(f.Dir, "data", "s1.bam"),
		"genome":            "hg38",
		"transcriptome":     "hg38_cdna",
		"results_subdir":    results,
		"paths.sample_root": filepath.Join(results, "s1"),
		"paths.bisulfite":   filepath.Join(results, "s1", "bisulfite"),
	}
	if diff := deep.Equal(got, expect); diff != nil {
		t.Error(diff)
	}
	if diff := deep.Equal(s1.DerivedColsDone, []string{"data_source"}); diff != nil {
		t.Error(diff)
	}
	if s1.Project() != prj {
		t.Error("sample not tied to the project")
	}

	// mouse has no genome mapping and RRBS no registered constructor
	s2 := find(t, sheet, "s2")
	if s2.Has("genome") {
		t.Error("s2 has a genome, expected none for mouse")
	}
	if s2.HasAttr("paths.bisulfite") {
		t.Error("s2 has the WGBS hook path")
	}

	// Resolving again does nothing.
	if err := s1.SetFilePaths(); err != nil {
		t.Fatal(err)
	}
	if v, _ := s1.GetString("data_source_key"); v != "bams" {
		t.Errorf("data_source_key = %s after SetFilePaths again, expected bams", v)
	}
}

func TestAddSampleSheetMergeTable(t *testing.T) {
	config := strings.Replace(test.ProjectConfig,
		"  sample_annotation: samples.csv",
		"  sample_annotation: samples.csv\n  merge_table: merge.csv", 1)
	f := test.NewProject(t, config, "")
	test.WriteFile(t, f.Dir, "merge.csv", "sample_name,data_source,flowcell\ns1,bams,FC1\ns1,missing,FC2\n")
	prj := loadProject(t, f)

	sheet, err := sample.AddSampleSheet(prj, nil)
	if err != nil {
		t.Fatal(err)
	}
	s1 := find(t, sheet, "s1")
	if !s1.Merged {
		t.Fatal("s1 not merged")
	}
	got := map[string]string{}
	for _, k := range []string{"data_source", "data_source_key", "flowcell"} {
		got[k], _ = s1.GetString(k)
	}
	expect := map[string]string{
		"data_source":     filepath.Join(f.Dir, "data", "s1.bam") + " " + filepath.Join(f.Dir, "nowhere", "FC2.bam"),
		"data_source_key": "bams missing",
		"flowcell":        "FC1 FC2",
	}
	if diff := deep.Equal(got, expect); diff != nil {
		t.Error(diff)
	}
	if contains(s1.DerivedColsDone, "data_source") {
		t.Error("merged data_source resolved again by SetFilePaths")
	}

	s2 := find(t, sheet, "s2")
	if s2.Merged {
		t.Error("s2 merged without merge table rows")
	}
}

func TestAddSampleSheetMissingMergeTable(t *testing.T) {
	config := strings.Replace(test.ProjectConfig,
		"  sample_annotation: samples.csv",
		"  sample_annotation: samples.csv\n  merge_table: merge.csv", 1)
	f := test.NewProject(t, config, "")
	prj := loadProject(t, f)

	sheet, err := sample.AddSampleSheet(prj, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range sheet.Samples {
		if s.Merged {
			t.Errorf("%s merged without a merge table", s)
		}
	}
}

func TestLoadSheetInvalid(t *testing.T) {
	tests := []struct {
		name   string
		sheet  string
		source string
	}{
		{"no name column", "name,library\ns1,WGBS\n", ""},
		{"empty name", "sample_name,library\ns1,WGBS\n,RRBS\n", "row 2"},
		{"long row", "sample_name,library\ns1,WGBS,extra\n", ""},
	}
	for _, tt := range tests {
		f := test.NewProject(t, "", tt.sheet)
		prj := loadProject(t, f)
		_, err := sample.AddSampleSheet(prj, nil)
		verr, ok := err.(lerr.ValidationError)
		if !ok {
			t.Errorf("%s: got error %v, expected ValidationError", tt.name, err)
			continue
		}
		if !strings.Contains(verr.Source, tt.source) {
			t.Errorf("%s: error source %q does not contain %q", tt.name, verr.Source, tt.source)
		}
	}

	if _, err := sample.LoadSheet(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("no error for a missing sheet")
	} else if _, ok := err.(lerr.ConfigError); !ok {
		t.Errorf("got error %T for a missing sheet, expected ConfigError", err)
	}
}

func TestLoadSheetTSV(t *testing.T) {
	dir := t.TempDir()
	file := test.WriteFile(t, dir, "samples.tsv", "sample_name\tlibrary\ns1\tWGBS\ns2\n")
	sheet, err := sample.LoadSheet(file)
	if err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(sheet.Columns, []string{"sample_name", "library"}); diff != nil {
		t.Error(diff)
	}
	if err := sheet.Materialize(nil); err != nil {
		t.Fatal(err)
	}
	// The short row is padded, then the empty field removed.
	if sheet.Samples[1].Has("library") {
		t.Error("s2 has an empty library attribute")
	}
}

func TestWriteCSV(t *testing.T) {
	f := test.NewProject(t, "", "")
	prj := loadProject(t, f)
	sheet, err := sample.AddSampleSheet(prj, nil)
	if err != nil {
		t.Fatal(err)
	}

	file := filepath.Join(f.Dir, "out.csv")
	if err := sheet.WriteCSV(file, false); err != nil {
		t.Fatal(err)
	}
	bytes, err := ioutil.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	expect := strings.Join([]string{
		"sample_name,library,organism,data_source",
		"s1,WGBS,human," + filepath.Join(f.Dir, "data", "s1.bam"),
		"s2,RRBS,mouse," + filepath.Join(f.Dir, "data", "s2.bam"),
	}, "\n") + "\n"
	if string(bytes) != expect {
		t.Errorf("got:\n%s\nexpected:\n%s", bytes, expect)
	}

	if err := sheet.WriteCSV(file, true); err != nil {
		t.Fatal(err)
	}
	bytes, _ = ioutil.ReadFile(file)
	header := strings.SplitN(string(bytes), "\n", 2)[0]
	for _, col := range []string{"data_source_key", "genome", "results_subdir"} {
		if !strings.Contains(header, col) {
			t.Errorf("header %q lacks %s", header, col)
		}
	}
}

func TestSheetDict(t *testing.T) {
	f := test.NewProject(t, "", "")
	prj := loadProject(t, f)
	sheet, err := sample.AddSampleSheet(prj, nil)
	if err != nil {
		t.Fatal(err)
	}
	expect := yaml.MapSlice{
		{Key: "sample_name", Value: "s1"},
		{Key: "library", Value: "WGBS"},
		{Key: "organism", Value: "human"},
		{Key: "data_source", Value: filepath.Join(f.Dir, "data", "s1.bam")},
	}
	if diff := deep.Equal(find(t, sheet, "s1").SheetDict(), expect); diff != nil {
		t.Error(diff)
	}
}

func TestWriteYAML(t *testing.T) {
	f := test.NewProject(t, "", "")
	prj := loadProject(t, f)
	if err := prj.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	sheet, err := sample.AddSampleSheet(prj, nil)
	if err != nil {
		t.Fatal(err)
	}
	s1 := find(t, sheet, "s1")
	s1.Set("score", math.NaN())
	s1.Set("samples", "left out")

	if err := s1.WriteYAML(""); err != nil {
		t.Fatal(err)
	}
	expectFile := filepath.Join(prj.SubmissionSubdir(), "s1.yaml")
	if s1.YAMLFile != expectFile {
		t.Errorf("YAMLFile = %s, expected %s", s1.YAMLFile, expectFile)
	}
	bytes, err := ioutil.ReadFile(expectFile)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]interface{}
	if err := yaml.Unmarshal(bytes, &got); err != nil {
		t.Fatal(err)
	}
	if got["sample_name"] != "s1" || got["name"] != "s1" {
		t.Errorf("sample_name %v, name %v, expected s1", got["sample_name"], got["name"])
	}
	if got["score"] != "NaN" {
		t.Errorf("score = %v, expected NaN", got["score"])
	}
	if _, ok := got["samples"]; ok {
		t.Error("samples written")
	}
	if got["yaml_file"] != expectFile {
		t.Errorf("yaml_file = %v, expected %s", got["yaml_file"], expectFile)
	}
	prjOut, ok := got["prj"].(map[interface{}]interface{})
	if !ok {
		t.Fatalf("prj = %T, expected a mapping", got["prj"])
	}
	if _, ok := prjOut["metadata"]; !ok {
		t.Error("prj written without metadata")
	}
}

func TestMakeSampleDirs(t *testing.T) {
	f := test.NewProject(t, "", "")
	prj := loadProject(t, f)
	sheet, err := sample.AddSampleSheet(prj, nil)
	if err != nil {
		t.Fatal(err)
	}
	s1 := find(t, sheet, "s1")
	if err := s1.MakeSampleDirs(); err != nil {
		t.Fatal(err)
	}
	root, _ := s1.Paths.GetString("sample_root")
	if _, err := ioutil.ReadDir(root); err != nil {
		t.Errorf("sample_root not created: %s", err)
	}
}

func TestRegistry(t *testing.T) {
	reg := sample.NewRegistry()
	called := 0
	reg.Register("ATAC", func(row *attrtree.Tree) (*sample.Sample, error) {
		called++
		return sample.New(row)
	})
	if _, ok := reg.Lookup("atac"); !ok {
		t.Error("Lookup is case-sensitive")
	}
	if diff := deep.Equal(reg.Libraries(), []string{"ATAC"}); diff != nil {
		t.Error(diff)
	}

	rows := []map[string]interface{}{
		{"sample_name": "a", "library": "atac"},
		{"sample_name": "b", "library": "chip"},
		{"sample_name": "c"},
	}
	for _, row := range rows {
		if _, err := reg.Make(attrtree.MustNew(row)); err != nil {
			t.Error(err)
		}
	}
	if called != 1 {
		t.Errorf("constructor called %d times, expected 1", called)
	}

	var none *sample.Registry
	if _, err := none.Make(attrtree.MustNew(rows[0])); err != nil {
		t.Errorf("nil Registry: %s", err)
	}
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
