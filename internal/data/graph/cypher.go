package graph

import (
	"fmt"
	"strings"

	"github.com/yungbote/studygraph-ingest/internal/domain"
)

// Labels, keys and columns are interpolated into statements; the catalog
// only admits plain identifiers for them.

const clearDatabaseCypher = `MATCH (n) CALL { WITH n DETACH DELETE n } IN TRANSACTIONS OF 10000 ROWS`

const showConstraintsCypher = `SHOW CONSTRAINTS YIELD name RETURN name`

const showIndexesCypher = `SHOW INDEXES YIELD name, type, owningConstraint
WHERE type <> 'LOOKUP' AND owningConstraint IS NULL
RETURN name`

// NodeCreateCypher creates one node per row. Duplicate identifiers are not
// merged.
func NodeCreateCypher(kind domain.NodeKind) string {
	var b strings.Builder
	b.WriteString("UNWIND $rows AS row\n")
	fmt.Fprintf(&b, "CREATE (n:%s {%s: row.%s})\n", kind.Label, kind.IDColumn, kind.IDColumn)
	if sets := setClause("n", without(kind.Properties, kind.IDColumn)); sets != "" {
		b.WriteString(sets)
	}
	b.WriteString("RETURN count(n) AS created")
	return b.String()
}

// RelationshipCreateCypher matches both endpoints of every row and creates the
// edge, plus its inverse for mirrored kinds. It reports how many input rows
// found both endpoints (matched) and how many endpoint pairs were linked
// (created).
func RelationshipCreateCypher(kind domain.RelationshipKind) string {
	var b strings.Builder
	b.WriteString("UNWIND range(0, size($rows) - 1) AS i\n")
	b.WriteString("WITH i, $rows[i] AS row\n")
	fmt.Fprintf(&b, "MATCH (src:%s {%s: row.%s})\n", kind.SourceLabel, kind.SourceKey, kind.SourceColumn)
	fmt.Fprintf(&b, "MATCH (dst:%s {%s: row.%s})\n", kind.TargetLabel, kind.TargetKey, kind.TargetColumn)
	fmt.Fprintf(&b, "CREATE (src)-[r:%s]->(dst)\n", kind.Label)
	b.WriteString(setClause("r", kind.Attributes))
	if kind.Mirrored() {
		fmt.Fprintf(&b, "CREATE (dst)-[r2:%s]->(src)\n", kind.InverseLabel)
		b.WriteString(setClause("r2", kind.Attributes))
	}
	b.WriteString("WITH i, count(*) AS pairs\n")
	b.WriteString("RETURN count(i) AS matched, sum(pairs) AS created")
	return b.String()
}

func setClause(variable string, props []string) string {
	if len(props) == 0 {
		return ""
	}
	parts := make([]string, len(props))
	for i, p := range props {
		parts[i] = fmt.Sprintf("%s.%s = row.%s", variable, p, p)
	}
	return "SET " + strings.Join(parts, ", ") + "\n"
}

func without(cols []string, drop string) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if c != drop {
			out = append(out, c)
		}
	}
	return out
}

// IndexName is the schema name of the single-property index on label.property.
func IndexName(label, property string) string {
	return strings.ToLower(label) + "_" + property + "_index"
}

func CreateIndexCypher(label, property string) string {
	return fmt.Sprintf("CREATE INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.%s)", IndexName(label, property), label, property)
}

func DropIndexCypher(label, property string) string {
	return fmt.Sprintf("DROP INDEX %s IF EXISTS", IndexName(label, property))
}

// quoteName backtick-quotes a schema object name read back from the store.
func quoteName(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
