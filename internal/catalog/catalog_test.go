package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if len(c.Nodes) != 5 {
		t.Fatalf("nodes: want=5 got=%d", len(c.Nodes))
	}
	if len(c.Relationships) != 5 {
		t.Fatalf("relationships: want=5 got=%d", len(c.Relationships))
	}

	teaches, err := c.Relationship("teaches")
	if err != nil {
		t.Fatalf("Relationship(teaches): %v", err)
	}
	if teaches.SourceLabel != "Professor" || teaches.TargetLabel != "Course" {
		t.Fatalf("teaches endpoints: got %s->%s", teaches.SourceLabel, teaches.TargetLabel)
	}
	if !teaches.Mirrored() || teaches.InverseLabel != "TAUGHT_BY" {
		t.Fatalf("teaches inverse: want=%q got=%q", "TAUGHT_BY", teaches.InverseLabel)
	}
	if teaches.SourceKey != "uid" || teaches.TargetKey != "uid" {
		t.Fatalf("teaches keys: got %q %q", teaches.SourceKey, teaches.TargetKey)
	}
	if len(teaches.Attributes) != 1 || teaches.Attributes[0] != "uid" {
		t.Fatalf("teaches attributes: want=[uid] got=%v", teaches.Attributes)
	}

	courses, err := c.Node("courses")
	if err != nil {
		t.Fatalf("Node(courses): %v", err)
	}
	if courses.IDColumn != "uid" {
		t.Fatalf("courses id column: want=%q got=%q", "uid", courses.IDColumn)
	}
	if got := strings.Join(courses.Properties, ","); got != "uid,code,name_mk,name_en,url,level" {
		t.Fatalf("courses properties: got %q", got)
	}
}

func TestLookupUnknownKind(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	_, err = c.Node("lecturers")
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Code != ConfigErrorUnknownKind {
		t.Fatalf("Node(lecturers): want unknown_kind got %v", err)
	}
	if _, err := c.Relationship("courses"); err == nil {
		t.Fatalf("Relationship(courses): expected error for node kind")
	}
	if _, err := c.Kind("offers"); err != nil {
		t.Fatalf("Kind(offers): %v", err)
	}
}

const validDoc = `
nodes:
  - name: courses
    source: courses.csv
    label: Course
    columns:
      - {from: course_id, to: uid}
      - {from: course_name, to: name}
relationships:
  - name: requires
    source: requires.csv
    label: REQUIRES
    source_label: Course
    target_label: Course
    source_column: course_id
    target_column: prerequisite_id
    columns:
      - {from: course_id, to: course_id}
      - {from: prerequisite_id, to: prerequisite_id}
      - {from: kind, to: kind}
`

func TestParseValidDocument(t *testing.T) {
	c, err := Parse([]byte(validDoc), "test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	r, _ := c.Relationship("requires")
	if len(r.Attributes) != 1 || r.Attributes[0] != "kind" {
		t.Fatalf("attributes: want=[kind] got=%v", r.Attributes)
	}
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	cases := []struct {
		name    string
		replace [2]string
		code    ConfigErrorCode
	}{
		{"unknown label", [2]string{"target_label: Course", "target_label: Lecture"}, ConfigErrorUnknownLabel},
		{"missing id column", [2]string{"{from: course_id, to: uid}", "{from: course_id, to: id}"}, ConfigErrorMissingColumn},
		{"missing endpoint column", [2]string{"target_column: prerequisite_id", "target_column: prereq"}, ConfigErrorMissingColumn},
		{"injection in label", [2]string{"label: REQUIRES", "label: \"REQUIRES]->() DETACH DELETE n //\""}, ConfigErrorInvalidIdentifier},
		{"duplicate kind", [2]string{"name: requires", "name: courses"}, ConfigErrorDuplicateKind},
		{"missing source", [2]string{"source: requires.csv", "source: \"\""}, ConfigErrorMissingSource},
		{"unsupported source", [2]string{"source: requires.csv", "source: requires.parquet"}, ConfigErrorUnsupportedSource},
		{"negative partitions", [2]string{"label: REQUIRES", "label: REQUIRES\n    partitions: -2"}, ConfigErrorInvalidPartitions},
		{"unknown field", [2]string{"label: REQUIRES", "label: REQUIRES\n    lable: X"}, ConfigErrorParse},
	}
	for _, tc := range cases {
		doc := strings.Replace(validDoc, tc.replace[0], tc.replace[1], 1)
		_, err := Parse([]byte(doc), "test")
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("%s: want ConfigError got %v", tc.name, err)
		}
		if cfgErr.Code != tc.code {
			t.Fatalf("%s: code want=%q got=%q (%v)", tc.name, tc.code, cfgErr.Code, err)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(validDoc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := c.Labels(); len(got) != 1 || got[0] != "Course" {
		t.Fatalf("labels: want=[Course] got=%v", got)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("Load(missing): expected error")
	}
}

func TestSelect(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	sub, err := c.Select([]string{"courses", "curricula", "includes"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(sub.Nodes) != 2 || len(sub.Relationships) != 1 {
		t.Fatalf("Select: got %d nodes %d relationships", len(sub.Nodes), len(sub.Relationships))
	}
	if _, err := c.Select([]string{"nope"}); err == nil {
		t.Fatalf("Select(nope): expected error")
	}
}

func TestSelectDropsRepeatedNames(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	sub, err := c.Select([]string{"professors", "professors", "courses", "teaches", "teaches"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(sub.Nodes) != 2 || len(sub.Relationships) != 1 {
		t.Fatalf("Select: want 2 nodes 1 relationship, got %d nodes %d relationships", len(sub.Nodes), len(sub.Relationships))
	}
}

func TestSelectRequiresEndpointKinds(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	cases := []struct {
		names []string
		label string
	}{
		{[]string{"teaches"}, "Professor"},
		{[]string{"professors", "teaches"}, "Course"},
	}
	for _, tc := range cases {
		_, err := c.Select(tc.names)
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Code != ConfigErrorUnknownLabel {
			t.Fatalf("Select(%v): want=%s got=%v", tc.names, ConfigErrorUnknownLabel, err)
		}
		if cfgErr.Entity != "teaches" || cfgErr.Value != tc.label {
			t.Fatalf("Select(%v): want teaches/%s got %s/%s", tc.names, tc.label, cfgErr.Entity, cfgErr.Value)
		}
	}
}
