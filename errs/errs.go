// Package errs defines the closed set of error kinds the core raises
// across the cache, key codec, metadata store, codec registry, backend
// registry, gather and insert engines.
package errs

import "fmt"

// ConfigError reports malformed configuration, an unknown URI scheme, or
// a store-id that cannot be resolved and cannot be parsed as a URI.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "config error: " + e.Msg }

func NewConfigError(format string, a ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, a...)}
}

// MissingDataError reports that no descriptor exists for a (collection,
// dataset, store) triple, or that no rows intersected a requested range
// in any resolvable store.
type MissingDataError struct {
	Msg string
}

func (e *MissingDataError) Error() string { return "missing data: " + e.Msg }

func NewMissingDataError(format string, a ...any) *MissingDataError {
	return &MissingDataError{Msg: fmt.Sprintf(format, a...)}
}

// SchemaError reports an empty or type-incompatible input table to
// insert, a missing required column, or an incompatible user-supplied
// type override.
type SchemaError struct {
	Msg string
}

func (e *SchemaError) Error() string { return "schema error: " + e.Msg }

func NewSchemaError(format string, a ...any) *SchemaError {
	return &SchemaError{Msg: fmt.Sprintf(format, a...)}
}

// FormatError reports corrupt file framing, a double compression
// extension, or an unknown type tag encountered while decoding metadata.
type FormatError struct {
	Msg string
}

func (e *FormatError) Error() string { return "format error: " + e.Msg }

func NewFormatError(format string, a ...any) *FormatError {
	return &FormatError{Msg: fmt.Sprintf(format, a...)}
}

// ArgumentError reports a call-site argument that is never valid
// regardless of stored state - e.g. a cutoff supplied against a
// writable archive, which has no release_date concept at all. Distinct
// from SchemaError, which is about the shape of data against a
// descriptor, not the shape of a call.
type ArgumentError struct {
	Msg string
}

func (e *ArgumentError) Error() string { return "argument error: " + e.Msg }

func NewArgumentError(format string, a ...any) *ArgumentError {
	return &ArgumentError{Msg: fmt.Sprintf(format, a...)}
}

// TransientTransportError is raised by the file cache: it marks an
// object-store error as retryable. The cache retries it, and returns it
// to the caller only once the retry budget is exhausted.
type TransientTransportError struct {
	Cause error
}

func (e *TransientTransportError) Error() string {
	return "transient transport error: " + e.Cause.Error()
}

func (e *TransientTransportError) Unwrap() error { return e.Cause }

func NewTransientTransportError(cause error) *TransientTransportError {
	return &TransientTransportError{Cause: cause}
}
