// Package errs defines the typed error taxonomy raised by the routing core.
package errs

import (
	"errors"
	"fmt"
)

// BufferExceedsNetwork is raised when a catchment buffer requires an H3-3
// shard that is not covered by the loaded routing network.
type BufferExceedsNetwork struct {
	H3_3  int64
	Cause error
}

func (e *BufferExceedsNetwork) Error() string {
	return fmt.Sprintf("buffer exceeds network: h3_3=%d not in geofence", e.H3_3)
}

func (e *BufferExceedsNetwork) Unwrap() error { return e.Cause }

// DisconnectedOrigin is raised when no eligible edge lies within splice
// tolerance of any requested origin.
type DisconnectedOrigin struct {
	NumOrigins int
}

func (e *DisconnectedOrigin) Error() string {
	return fmt.Sprintf("disconnected origin: no eligible edge found for any of %d origin(s)", e.NumOrigins)
}

// ShardLoadFailure wraps a database or disk cache I/O failure while
// loading a network shard. Retryable at the caller's discretion.
type ShardLoadFailure struct {
	H3_3  int64
	Cause error
}

func (e *ShardLoadFailure) Error() string {
	return fmt.Sprintf("shard load failure: h3_3=%d: %v", e.H3_3, e.Cause)
}

func (e *ShardLoadFailure) Unwrap() error { return e.Cause }

// DatabaseError wraps any other SQL failure during assembly or persistence.
type DatabaseError struct {
	Op    string
	Cause error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Op, e.Cause)
}

func (e *DatabaseError) Unwrap() error { return e.Cause }

// InvalidRequest signals a violated input constraint. The core never
// raises this directly; it exists so request-layer validation can share
// the same error taxonomy.
type InvalidRequest struct {
	Reason string
}

func (e *InvalidRequest) Error() string {
	return "invalid request: " + e.Reason
}

// IsBufferExceedsNetwork reports whether err is, or wraps, a BufferExceedsNetwork.
func IsBufferExceedsNetwork(err error) bool {
	var target *BufferExceedsNetwork
	return errors.As(err, &target)
}

// IsDisconnectedOrigin reports whether err is, or wraps, a DisconnectedOrigin.
func IsDisconnectedOrigin(err error) bool {
	var target *DisconnectedOrigin
	return errors.As(err, &target)
}
