package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/studygraph-ingest/internal/domain"
	"github.com/yungbote/studygraph-ingest/internal/platform/logger"
	"github.com/yungbote/studygraph-ingest/internal/platform/neo4jdb"
)

// Neo4jStore writes catalog entities through a neo4jdb.Client. Every method is
// a single attempt; retries belong to the caller.
type Neo4jStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewNeo4jStore(client *neo4jdb.Client, log *logger.Logger) (*Neo4jStore, error) {
	if client == nil || client.Driver == nil {
		return nil, fmt.Errorf("graph: neo4j client required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Neo4jStore{client: client, log: log.With("store", "neo4j")}, nil
}

func (s *Neo4jStore) PoolSize() int { return s.client.PoolSize() }

func (s *Neo4jStore) VerifyConnectivity(ctx context.Context) error {
	return s.client.VerifyConnectivity(ctx)
}

func (s *Neo4jStore) CreateNodes(ctx context.Context, kind domain.NodeKind, records []domain.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	cypher := NodeCreateCypher(kind)
	rows := domain.Rows(records)
	out, err := s.client.Write(ctx, "create_nodes", func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{"rows": rows})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return intValue(rec, "created"), nil
	})
	if err != nil {
		return 0, err
	}
	return out.(int), nil
}

// CreateRelationships writes one batch in one transaction. When any row
// fails to match both endpoints the transaction is rolled back with a
// DanglingReferenceError.
func (s *Neo4jStore) CreateRelationships(ctx context.Context, kind domain.RelationshipKind, records []domain.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	cypher := RelationshipCreateCypher(kind)
	rows := domain.Rows(records)
	out, err := s.client.Write(ctx, "create_relationships", func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{"rows": rows})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		matched := intValue(rec, "matched")
		if matched < len(rows) {
			return nil, &DanglingReferenceError{Relationship: kind.Label, Expected: len(rows), Matched: matched}
		}
		return intValue(rec, "created"), nil
	})
	if err != nil {
		return 0, err
	}
	return out.(int), nil
}

func (s *Neo4jStore) CreateIndex(ctx context.Context, label, property string) error {
	_, err := s.client.Run(ctx, "create_index", CreateIndexCypher(label, property), nil)
	return err
}

func (s *Neo4jStore) DropIndex(ctx context.Context, label, property string) error {
	_, err := s.client.Run(ctx, "drop_index", DropIndexCypher(label, property), nil)
	return err
}

// ClearDatabase detaches and deletes every node in batched inner transactions.
func (s *Neo4jStore) ClearDatabase(ctx context.Context) error {
	_, err := s.client.Run(ctx, "clear_database", clearDatabaseCypher, nil)
	return err
}

func (s *Neo4jStore) DropAllConstraints(ctx context.Context) error {
	return s.dropAll(ctx, "drop_constraints", showConstraintsCypher, "DROP CONSTRAINT %s IF EXISTS")
}

// DropAllIndexes drops every index except token lookup indexes and those
// backing a constraint.
func (s *Neo4jStore) DropAllIndexes(ctx context.Context) error {
	return s.dropAll(ctx, "drop_indexes", showIndexesCypher, "DROP INDEX %s IF EXISTS")
}

func (s *Neo4jStore) dropAll(ctx context.Context, op, show, drop string) error {
	records, err := s.client.Run(ctx, op, show, nil)
	if err != nil {
		return err
	}
	for _, rec := range records {
		raw, ok := rec.Get("name")
		name, isString := raw.(string)
		if !ok || !isString || name == "" {
			continue
		}
		if _, err := s.client.Run(ctx, op, fmt.Sprintf(drop, quoteName(name)), nil); err != nil {
			return err
		}
		s.log.Debug("schema object dropped", "operation", op, "name", name)
	}
	return nil
}

func intValue(rec *neo4j.Record, key string) int {
	if rec == nil {
		return 0
	}
	raw, ok := rec.Get(key)
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
