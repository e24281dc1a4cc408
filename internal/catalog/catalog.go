package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"io"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/studygraph-ingest/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var identifierRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Catalog is the table of node and relationship kinds a run ingests.
type Catalog struct {
	Nodes         []domain.NodeKind         `yaml:"nodes"`
	Relationships []domain.RelationshipKind `yaml:"relationships"`
}

// Default returns the built-in study-program catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog, "embedded")
}

// Load reads a catalog from path, or returns Default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Code: ConfigErrorParse, Value: path, Cause: err}
	}
	return Parse(data, path)
}

// Parse decodes, defaults and validates a YAML catalog. origin names the
// document in errors.
func Parse(data []byte, origin string) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var c Catalog
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigError{Code: ConfigErrorParse, Value: origin, Cause: err}
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) applyDefaults() {
	for i := range c.Nodes {
		n := &c.Nodes[i]
		if n.IDColumn == "" {
			n.IDColumn = domain.DefaultIDColumn
		}
		if len(n.Properties) == 0 {
			n.Properties = n.OutputColumns()
		}
	}
	for i := range c.Relationships {
		r := &c.Relationships[i]
		if r.SourceKey == "" {
			r.SourceKey = domain.DefaultIDColumn
		}
		if r.TargetKey == "" {
			r.TargetKey = domain.DefaultIDColumn
		}
		if r.Attributes == nil {
			attrs := make([]string, 0, len(r.Columns))
			for _, col := range r.OutputColumns() {
				if col == r.SourceColumn || col == r.TargetColumn || col == domain.PartitionKeyField {
					continue
				}
				attrs = append(attrs, col)
			}
			r.Attributes = attrs
		}
	}
}

// Validate checks names, labels and column references. Every label, key and
// column ends up inside a Cypher statement, so all of them must be plain
// identifiers.
func (c *Catalog) Validate() error {
	seen := map[string]bool{}
	labels := map[string]bool{}

	for _, n := range c.Nodes {
		if err := validateDataset(n.Dataset, seen); err != nil {
			return err
		}
		if err := identifiers(n.Name, n.Label, n.IDColumn); err != nil {
			return err
		}
		if err := identifiers(n.Name, n.Properties...); err != nil {
			return err
		}
		if !n.HasOutput(n.IDColumn) {
			return &ConfigError{Code: ConfigErrorMissingColumn, Entity: n.Name, Value: n.IDColumn}
		}
		for _, p := range n.Properties {
			if !n.HasOutput(p) {
				return &ConfigError{Code: ConfigErrorMissingColumn, Entity: n.Name, Value: p}
			}
		}
		labels[n.Label] = true
	}

	for _, r := range c.Relationships {
		if err := validateDataset(r.Dataset, seen); err != nil {
			return err
		}
		if err := identifiers(r.Name, r.Label, r.SourceLabel, r.TargetLabel, r.SourceColumn, r.TargetColumn, r.SourceKey, r.TargetKey); err != nil {
			return err
		}
		if r.InverseLabel != "" {
			if err := identifiers(r.Name, r.InverseLabel); err != nil {
				return err
			}
		}
		if err := identifiers(r.Name, r.Attributes...); err != nil {
			return err
		}
		for _, l := range []string{r.SourceLabel, r.TargetLabel} {
			if !labels[l] {
				return &ConfigError{Code: ConfigErrorUnknownLabel, Entity: r.Name, Value: l}
			}
		}
		for _, col := range append([]string{r.SourceColumn, r.TargetColumn}, r.Attributes...) {
			if !r.HasOutput(col) {
				return &ConfigError{Code: ConfigErrorMissingColumn, Entity: r.Name, Value: col}
			}
		}
		if r.Partitions < 0 {
			return &ConfigError{Code: ConfigErrorInvalidPartitions, Entity: r.Name, Value: strconv.Itoa(r.Partitions)}
		}
	}
	return nil
}

func validateDataset(d domain.Dataset, seen map[string]bool) error {
	if err := identifiers(d.Name, d.Name); err != nil {
		return err
	}
	if seen[d.Name] {
		return &ConfigError{Code: ConfigErrorDuplicateKind, Entity: d.Name, Value: d.Name}
	}
	seen[d.Name] = true
	if d.Source == "" {
		return &ConfigError{Code: ConfigErrorMissingSource, Entity: d.Name}
	}
	switch d.Format() {
	case domain.FormatCSV, domain.FormatAvro:
	default:
		return &ConfigError{Code: ConfigErrorUnsupportedSource, Entity: d.Name, Value: d.Source}
	}
	outputs := map[string]bool{}
	for _, m := range d.Columns {
		if m.From == "" {
			return &ConfigError{Code: ConfigErrorMissingColumn, Entity: d.Name, Value: m.To}
		}
		if err := identifiers(d.Name, m.To); err != nil {
			return err
		}
		if outputs[m.To] {
			return &ConfigError{Code: ConfigErrorDuplicateKind, Entity: d.Name, Value: d.Name + "." + m.To}
		}
		outputs[m.To] = true
	}
	for _, s := range d.StringColumns {
		if !outputs[s] {
			return &ConfigError{Code: ConfigErrorMissingColumn, Entity: d.Name, Value: s}
		}
	}
	return nil
}

func identifiers(entity string, names ...string) error {
	for _, n := range names {
		if !identifierRE.MatchString(n) {
			return &ConfigError{Code: ConfigErrorInvalidIdentifier, Entity: entity, Value: n}
		}
	}
	return nil
}

// Node looks up a node kind by name.
func (c *Catalog) Node(name string) (domain.NodeKind, error) {
	for _, n := range c.Nodes {
		if n.Name == name {
			return n, nil
		}
	}
	return domain.NodeKind{}, &ConfigError{Code: ConfigErrorUnknownKind, Value: name}
}

// Relationship looks up a relationship kind by name.
func (c *Catalog) Relationship(name string) (domain.RelationshipKind, error) {
	for _, r := range c.Relationships {
		if r.Name == name {
			return r, nil
		}
	}
	return domain.RelationshipKind{}, &ConfigError{Code: ConfigErrorUnknownKind, Value: name}
}

// Kind reports whether name is a node or relationship kind.
func (c *Catalog) Kind(name string) (domain.EntityKind, error) {
	if _, err := c.Node(name); err == nil {
		return domain.EntityNode, nil
	}
	if _, err := c.Relationship(name); err == nil {
		return domain.EntityRelationship, nil
	}
	return "", &ConfigError{Code: ConfigErrorUnknownKind, Value: name}
}

// Labels returns the node labels in declaration order.
func (c *Catalog) Labels() []string {
	out := make([]string, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		out = append(out, n.Label)
	}
	return out
}

// Select narrows the catalog to the named kinds. An empty selection returns c.
// Repeated names are kept once. Every selected relationship needs the node
// kinds of both endpoint labels in the selection, otherwise Select fails with
// an unknown_label ConfigError.
func (c *Catalog) Select(names []string) (*Catalog, error) {
	if len(names) == 0 {
		return c, nil
	}
	out := &Catalog{}
	picked := map[string]bool{}
	for _, name := range names {
		if picked[name] {
			continue
		}
		kind, err := c.Kind(name)
		if err != nil {
			return nil, err
		}
		picked[name] = true
		switch kind {
		case domain.EntityNode:
			n, _ := c.Node(name)
			out.Nodes = append(out.Nodes, n)
		case domain.EntityRelationship:
			r, _ := c.Relationship(name)
			out.Relationships = append(out.Relationships, r)
		}
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
