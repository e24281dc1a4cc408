package catalog

import "fmt"

type ConfigErrorCode string

const (
	ConfigErrorUnknownKind       ConfigErrorCode = "unknown_kind"
	ConfigErrorMissingColumn     ConfigErrorCode = "missing_column"
	ConfigErrorMissingSource     ConfigErrorCode = "missing_source"
	ConfigErrorInvalidIdentifier ConfigErrorCode = "invalid_identifier"
	ConfigErrorUnknownLabel      ConfigErrorCode = "unknown_label"
	ConfigErrorDuplicateKind     ConfigErrorCode = "duplicate_kind"
	ConfigErrorInvalidPartitions ConfigErrorCode = "invalid_partitions"
	ConfigErrorUnsupportedSource ConfigErrorCode = "unsupported_source"
	ConfigErrorParse             ConfigErrorCode = "parse_failed"
)

// ConfigError reports a catalog problem detected before any store I/O.
type ConfigError struct {
	Code   ConfigErrorCode
	Entity string
	Value  string
	Cause  error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid entity catalog"
	}
	switch e.Code {
	case ConfigErrorUnknownKind:
		return fmt.Sprintf("unknown entity kind %q", e.Value)
	case ConfigErrorMissingColumn:
		return fmt.Sprintf("entity %q: column %q is not available", e.Entity, e.Value)
	case ConfigErrorMissingSource:
		return fmt.Sprintf("entity %q: source is required", e.Entity)
	case ConfigErrorInvalidIdentifier:
		return fmt.Sprintf("entity %q: invalid identifier %q; expected [A-Za-z_][A-Za-z0-9_]*", e.Entity, e.Value)
	case ConfigErrorUnknownLabel:
		return fmt.Sprintf("entity %q: label %q is not a declared node kind", e.Entity, e.Value)
	case ConfigErrorDuplicateKind:
		return fmt.Sprintf("duplicate entity kind %q", e.Value)
	case ConfigErrorInvalidPartitions:
		return fmt.Sprintf("entity %q: invalid partition count %s; expected 0 (engine default) or a positive integer", e.Entity, e.Value)
	case ConfigErrorUnsupportedSource:
		return fmt.Sprintf("entity %q: unsupported source format %q; expected .csv or .avro", e.Entity, e.Value)
	case ConfigErrorParse:
		if e.Cause != nil {
			return fmt.Sprintf("parse entity catalog %s: %v", e.Value, e.Cause)
		}
		return fmt.Sprintf("parse entity catalog %s", e.Value)
	default:
		return "invalid entity catalog"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
