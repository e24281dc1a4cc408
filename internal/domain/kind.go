package domain

import (
	"path"
	"strings"
)

// EntityKind tags a catalog entry as a node kind or a relationship kind.
type EntityKind string

const (
	EntityNode         EntityKind = "node"
	EntityRelationship EntityKind = "relationship"
)

const (
	// DefaultIDColumn is the node property every node kind is keyed by unless configured otherwise.
	DefaultIDColumn = "uid"
	// PartitionKeyField is the column the partitioner adds to relationship records.
	PartitionKeyField = "partition_key"
)

type ColumnMapping struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Dataset describes where an entity's rows come from and how their columns are renamed.
type Dataset struct {
	Name          string          `yaml:"name"`
	Source        string          `yaml:"source"`
	Columns       []ColumnMapping `yaml:"columns"`
	StringColumns []string        `yaml:"string_columns"`
}

// OutputColumns lists the renamed column names in declaration order.
func (d Dataset) OutputColumns() []string {
	out := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		out = append(out, c.To)
	}
	return out
}

// Source formats the loader can decode.
const (
	FormatCSV  = "csv"
	FormatAvro = "avro"
)

// Format is the lower-cased extension of the source name without the dot.
func (d Dataset) Format() string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(d.Source), "."))
}

func (d Dataset) HasOutput(col string) bool {
	for _, c := range d.Columns {
		if c.To == col {
			return true
		}
	}
	return false
}

type NodeKind struct {
	Dataset    `yaml:",inline"`
	Label      string   `yaml:"label"`
	IDColumn   string   `yaml:"id_column"`
	Properties []string `yaml:"properties"`
}

func (n NodeKind) Kind() EntityKind { return EntityNode }

type RelationshipKind struct {
	Dataset      `yaml:",inline"`
	Label        string `yaml:"label"`
	InverseLabel string `yaml:"inverse_label"`
	SourceLabel  string `yaml:"source_label"`
	TargetLabel  string `yaml:"target_label"`
	// SourceColumn and TargetColumn name the record columns holding the endpoint identifiers.
	SourceColumn string `yaml:"source_column"`
	TargetColumn string `yaml:"target_column"`
	// SourceKey and TargetKey name the node properties those identifiers are matched against.
	SourceKey  string   `yaml:"source_key"`
	TargetKey  string   `yaml:"target_key"`
	Attributes []string `yaml:"attributes"`
	// Partitions overrides the engine's partition count for this kind when positive.
	Partitions int `yaml:"partitions"`
}

func (r RelationshipKind) Kind() EntityKind { return EntityRelationship }

// Mirrored reports whether every edge is also written in the reverse direction.
func (r RelationshipKind) Mirrored() bool { return r.InverseLabel != "" }
