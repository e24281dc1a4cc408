package neo4jdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/studygraph-ingest/internal/platform/logger"
)

// Config holds the connection and pool settings for one graph database.
type Config struct {
	URI      string
	User     string
	Password string
	Database string

	MaxPoolSize             int
	AcquisitionTimeout      time.Duration
	ConnectTimeout          time.Duration
	MaxConnectionLifetime   time.Duration
	MaxTransactionRetryTime time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.User) == "" {
		c.User = "neo4j"
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = 50
	}
	if c.AcquisitionTimeout <= 0 {
		c.AcquisitionTimeout = time.Minute
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.MaxConnectionLifetime <= 0 {
		c.MaxConnectionLifetime = time.Hour
	}
	if c.MaxTransactionRetryTime <= 0 {
		c.MaxTransactionRetryTime = 30 * time.Second
	}
	return c
}

type Client struct {
	Driver   neo4j.DriverWithContext
	Database string
	poolSize int
	log      *logger.Logger
}

// New builds a driver for cfg. It does not dial; callers verify
// connectivity under their own retry policy.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("neo4jdb: logger required")
	}
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, fmt.Errorf("neo4jdb: NEO4J_URI is required")
	}
	cfg = cfg.withDefaults()

	auth := neo4j.BasicAuth(cfg.User, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.MaxPoolSize
		c.ConnectionAcquisitionTimeout = cfg.AcquisitionTimeout
		c.SocketConnectTimeout = cfg.ConnectTimeout
		c.MaxConnectionLifetime = cfg.MaxConnectionLifetime
		c.MaxTransactionRetryTime = cfg.MaxTransactionRetryTime
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: init driver: %w", err)
	}

	return &Client{
		Driver:   driver,
		Database: cfg.Database,
		poolSize: cfg.MaxPoolSize,
		log:      log.With("client", "Neo4jDB"),
	}, nil
}

// PoolSize is the driver's connection pool bound.
func (c *Client) PoolSize() int {
	if c == nil {
		return 0
	}
	return c.poolSize
}

func (c *Client) VerifyConnectivity(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return classify("verify_connectivity", c.Driver.VerifyConnectivity(ctx))
}

// Write runs work in one explicit write transaction. The transaction commits
// when work returns nil and rolls back otherwise. The driver does not retry
// explicit transactions, so every attempt is a single transaction and its
// error reaches the caller classified but otherwise unchanged.
func (c *Client) Write(ctx context.Context, op string, work neo4j.ManagedTransactionWork) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: c.Database,
	})
	defer session.Close(ctx)

	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return nil, classify(op, err)
	}
	defer tx.Close(ctx)

	out, err := work(tx)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && c.log != nil {
			c.log.Warn("rollback failed", "operation", op, "error", rbErr)
		}
		return nil, classify(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

// Run executes one auto-commit statement and collects its records. Schema
// statements and CALL ... IN TRANSACTIONS must go through here.
func (c *Client) Run(ctx context.Context, op, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: c.Database,
	})
	defer session.Close(ctx)

	res, err := session.Run(ctx, cypher, params)
	if err != nil {
		return nil, classify(op, err)
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, classify(op, err)
	}
	return records, nil
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := c.Driver.Close(ctx)
	c.Driver = nil
	return err
}
