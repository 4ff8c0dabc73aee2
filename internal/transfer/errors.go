package transfer

import "fmt"

// NotFoundError is returned when a name does not resolve to a published file.
type NotFoundError struct {
	Name string // Name that was looked up
	Err  error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("file %q not found", e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// RangeNotSatisfiableError represents a malformed or out-of-bounds byte range.
// Size always carries the authoritative total length of the file so callers
// can recompute a valid range.
type RangeNotSatisfiableError struct {
	Name   string // File the range was requested for
	Header string // Raw Range header value as received, if any
	Size   int64  // Total size of the file in bytes
	Reason string // Human-readable explanation of why the range was rejected
}

func (e *RangeNotSatisfiableError) Error() string {
	if e.Header != "" {
		return fmt.Sprintf("range %q not satisfiable for %q (size %d): %s", e.Header, e.Name, e.Size, e.Reason)
	}

	return fmt.Sprintf("range not satisfiable for %q (size %d): %s", e.Name, e.Size, e.Reason)
}

// IOError represents a storage read or write failure.
type IOError struct {
	Operation string // The operation that failed (e.g., "write_blob", "rename")
	Path      string // Path on disk involved in the failure
	Err       error  // Underlying error, if any
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("io error during %s on %s: %v", e.Operation, e.Path, e.Err)
	}

	return fmt.Sprintf("io error during %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// TransportError represents network failures and unexpected server responses,
// including 5xx statuses and request timeouts.
type TransportError struct {
	Operation  string // The operation that failed (e.g., "fetch_range", "info")
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	Message    string // Error message from the server or network layer
	Err        error  // Underlying error, if any
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport error during %s (HTTP %d): %s", e.Operation, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("transport error during %s: %s", e.Operation, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IntegrityError is returned when the reassembled content does not hash to
// the digest reported by the server.
type IntegrityError struct {
	Name     string // File that failed verification
	Expected string // Digest reported by the server
	Actual   string // Digest of the reassembled bytes
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %q: expected sha256 %s, got %s", e.Name, e.Expected, e.Actual)
}

// ProtocolError represents a byte count mismatch between what was requested
// and what was received or assembled.
type ProtocolError struct {
	Name     string // File being transferred
	Reason   string // Human-readable explanation
	Expected int64  // Number of bytes expected
	Actual   int64  // Number of bytes observed
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error for %q: %s (expected %d bytes, got %d)", e.Name, e.Reason, e.Expected, e.Actual)
}

// InvalidArgumentError represents a request that was rejected before touching
// storage, such as an unsafe file name or a negative size.
type InvalidArgumentError struct {
	Field  string // Name of the offending input
	Reason string // Human-readable explanation
	Err    error  // Underlying error, if any
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidArgumentError) Unwrap() error {
	return e.Err
}
