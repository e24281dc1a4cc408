package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/yungbote/studygraph-ingest/internal/ingest"
	"github.com/yungbote/studygraph-ingest/internal/observability"
	"github.com/yungbote/studygraph-ingest/internal/platform/neo4jdb"
	"github.com/yungbote/studygraph-ingest/internal/platform/retry"
)

const (
	GraphStoreNeo4j  = "neo4j"
	GraphStoreMemory = "memory"

	SourceStorageLocal       = "local"
	SourceStorageGCS         = "gcs"
	SourceStorageGCSEmulator = "gcs_emulator"
	SourceStorageS3          = "s3"
)

type Config struct {
	LogMode     string   `env:"LOG_MODE" envDefault:"development"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
	GraphStore  string   `env:"GRAPH_STORE" envDefault:"neo4j"`
	CatalogPath string   `env:"CATALOG_PATH"`
	Kinds       []string `env:"INGEST_KINDS" envSeparator:","`

	PushgatewayURL string `env:"PUSHGATEWAY_URL"`
	PushgatewayJob string `env:"PUSHGATEWAY_JOB" envDefault:"studygraph_ingest"`

	Neo4j   Neo4jConfig
	Ingest  IngestConfig
	Source  SourceConfig
	Tracing TracingConfig
}

type Neo4jConfig struct {
	URI                     string        `env:"NEO4J_URI"`
	User                    string        `env:"NEO4J_USER" envDefault:"neo4j"`
	Password                string        `env:"NEO4J_PASSWORD"`
	Database                string        `env:"NEO4J_DATABASE"`
	MaxPoolSize             int           `env:"NEO4J_MAX_POOL_SIZE" envDefault:"50"`
	AcquisitionTimeout      time.Duration `env:"NEO4J_CONNECTION_ACQUISITION_TIMEOUT" envDefault:"60s"`
	ConnectTimeout          time.Duration `env:"NEO4J_CONNECTION_TIMEOUT" envDefault:"5s"`
	MaxConnectionLifetime   time.Duration `env:"NEO4J_MAX_CONNECTION_LIFETIME" envDefault:"1h"`
	MaxTransactionRetryTime time.Duration `env:"NEO4J_MAX_TRANSACTION_RETRY_TIME" envDefault:"30s"`
}

type IngestConfig struct {
	Partitions        int           `env:"INGEST_PARTITIONS" envDefault:"16"`
	MaxConcurrency    int           `env:"INGEST_MAX_CONCURRENCY" envDefault:"0"`
	RetryMaxAttempts  int           `env:"INGEST_RETRY_MAX_ATTEMPTS" envDefault:"5"`
	RetryMultiplier   time.Duration `env:"INGEST_RETRY_MULTIPLIER" envDefault:"1s"`
	RetryExponentBase float64       `env:"INGEST_RETRY_EXPONENT_BASE" envDefault:"2"`
	RetryMaxWait      time.Duration `env:"INGEST_RETRY_MAX_WAIT" envDefault:"30s"`
	ResetStore        bool          `env:"INGEST_RESET_STORE" envDefault:"true"`
	Preflight         bool          `env:"INGEST_PREFLIGHT" envDefault:"true"`
}

type SourceConfig struct {
	Storage         string `env:"SOURCE_STORAGE" envDefault:"local"`
	Directory       string `env:"SOURCE_DIRECTORY" envDefault:"data"`
	Bucket          string `env:"SOURCE_BUCKET"`
	EmulatorHost    string `env:"STORAGE_EMULATOR_HOST"`
	CredentialsJSON string `env:"GOOGLE_APPLICATION_CREDENTIALS_JSON"`
	CredentialsFile string `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	S3Endpoint      string `env:"S3_ENDPOINT"`
	S3Region        string `env:"S3_REGION" envDefault:"us-east-1"`
	S3AccessKey     string `env:"S3_ACCESS_KEY"`
	S3SecretKey     string `env:"S3_SECRET_KEY"`
}

type TracingConfig struct {
	Enabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	ServiceName string  `env:"OTEL_SERVICE_NAME" envDefault:"studygraph-ingest"`
	Environment string  `env:"OTEL_ENVIRONMENT" envDefault:"local"`
	Version     string  `env:"OTEL_SERVICE_VERSION"`
	SampleRatio float64 `env:"OTEL_SAMPLER_RATIO" envDefault:"1"`
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Headers     string  `env:"OTEL_EXPORTER_OTLP_HEADERS"`
	Insecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`
}

type ConfigErrorCode string

const (
	ConfigErrorParse         ConfigErrorCode = "parse_failed"
	ConfigErrorGraphStore    ConfigErrorCode = "invalid_graph_store"
	ConfigErrorMissingNeo4j  ConfigErrorCode = "missing_neo4j_uri"
	ConfigErrorSourceStorage ConfigErrorCode = "invalid_source_storage"
	ConfigErrorIngestLimits  ConfigErrorCode = "invalid_ingest_limits"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Field string
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid configuration"
	}
	msg := fmt.Sprintf("invalid configuration (code=%s field=%s value=%q)", e.Code, e.Field, e.Value)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// LoadConfig reads an optional .env file, then the process environment.
// Variables already set in the environment win over the file.
func LoadConfig(envFile string) (Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, &ConfigError{Code: ConfigErrorParse, Field: "env_file", Value: envFile, Cause: err}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, &ConfigError{Code: ConfigErrorParse, Field: "environment", Cause: err}
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.GraphStore = strings.ToLower(strings.TrimSpace(c.GraphStore))
	if c.GraphStore == "" {
		c.GraphStore = GraphStoreNeo4j
	}
	c.Source.Storage = strings.ToLower(strings.TrimSpace(c.Source.Storage))
	if c.Source.Storage == "" {
		c.Source.Storage = SourceStorageLocal
	}
	kinds := c.Kinds[:0]
	for _, k := range c.Kinds {
		if k = strings.TrimSpace(k); k != "" {
			kinds = append(kinds, k)
		}
	}
	c.Kinds = kinds
}

func (c Config) Validate() error {
	switch c.GraphStore {
	case GraphStoreNeo4j:
		if strings.TrimSpace(c.Neo4j.URI) == "" {
			return &ConfigError{Code: ConfigErrorMissingNeo4j, Field: "NEO4J_URI"}
		}
	case GraphStoreMemory:
	default:
		return &ConfigError{Code: ConfigErrorGraphStore, Field: "GRAPH_STORE", Value: c.GraphStore}
	}
	switch c.Source.Storage {
	case SourceStorageLocal, SourceStorageGCS, SourceStorageGCSEmulator, SourceStorageS3:
	default:
		return &ConfigError{Code: ConfigErrorSourceStorage, Field: "SOURCE_STORAGE", Value: c.Source.Storage}
	}
	if c.Ingest.Partitions < 1 {
		return &ConfigError{Code: ConfigErrorIngestLimits, Field: "INGEST_PARTITIONS", Value: fmt.Sprint(c.Ingest.Partitions)}
	}
	if c.Ingest.MaxConcurrency < 0 {
		return &ConfigError{Code: ConfigErrorIngestLimits, Field: "INGEST_MAX_CONCURRENCY", Value: fmt.Sprint(c.Ingest.MaxConcurrency)}
	}
	if c.Ingest.RetryMaxAttempts < 1 {
		return &ConfigError{Code: ConfigErrorIngestLimits, Field: "INGEST_RETRY_MAX_ATTEMPTS", Value: fmt.Sprint(c.Ingest.RetryMaxAttempts)}
	}
	if c.Ingest.RetryExponentBase < 1 {
		return &ConfigError{Code: ConfigErrorIngestLimits, Field: "INGEST_RETRY_EXPONENT_BASE", Value: fmt.Sprint(c.Ingest.RetryExponentBase)}
	}
	return nil
}

func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  c.Ingest.RetryMaxAttempts,
		Multiplier:   c.Ingest.RetryMultiplier,
		ExponentBase: c.Ingest.RetryExponentBase,
		MaxWait:      c.Ingest.RetryMaxWait,
		Retryable:    retry.IsTransient,
	}
}

func (c Config) EngineOptions(metrics *observability.Metrics) ingest.Options {
	return ingest.Options{
		Policy:      c.RetryPolicy(),
		Partitions:  c.Ingest.Partitions,
		Concurrency: c.Ingest.MaxConcurrency,
		Metrics:     metrics,
		Tracer:      observability.Tracer(),
	}
}

func (c Config) Neo4jClientConfig() neo4jdb.Config {
	return neo4jdb.Config{
		URI:                     c.Neo4j.URI,
		User:                    c.Neo4j.User,
		Password:                c.Neo4j.Password,
		Database:                c.Neo4j.Database,
		MaxPoolSize:             c.Neo4j.MaxPoolSize,
		AcquisitionTimeout:      c.Neo4j.AcquisitionTimeout,
		ConnectTimeout:          c.Neo4j.ConnectTimeout,
		MaxConnectionLifetime:   c.Neo4j.MaxConnectionLifetime,
		MaxTransactionRetryTime: c.Neo4j.MaxTransactionRetryTime,
	}
}

func (c Config) TracingOptions() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.Tracing.ServiceName,
		Environment: c.Tracing.Environment,
		Version:     c.Tracing.Version,
		SampleRatio: c.Tracing.SampleRatio,
		Endpoint:    c.Tracing.Endpoint,
		Headers:     c.Tracing.Headers,
		Insecure:    c.Tracing.Insecure,
	}
}
