// Package cidxerr implements the error taxonomy shared by the daemon, the
// temporal indexer, and the lightweight client. Every error that crosses the
// RPC boundary is a *Error carrying a Kind, a message, and a retryable flag;
// no other fields are serialized.
package cidxerr

import (
	"errors"
	"fmt"
)

// Kind identifies an error category from the taxonomy.
type Kind string

const (
	DaemonUnreachable  Kind = "daemon_unreachable"
	AddressInUse       Kind = "address_in_use"
	StaleSocket        Kind = "stale_socket"
	WrongRepository    Kind = "wrong_repository"
	IndexUnavailable   Kind = "index_unavailable"
	StorageError       Kind = "storage_error"
	EmbeddingTransient Kind = "embedding_transient"
	EmbeddingFatal     Kind = "embedding_fatal"
	ChunkTooLarge      Kind = "chunk_too_large"
	NoMatchingBranches Kind = "no_matching_branches"
	CheckpointInvalid  Kind = "checkpoint_invalid"
	Cancelled          Kind = "cancelled"
	Timeout            Kind = "timeout"
	WatchActive        Kind = "watch_active"
)

// Retryable reports whether the kind is recovered by the caller retrying the
// same operation, rather than surfaced to the user as terminal.
func (k Kind) Retryable() bool {
	switch k {
	case EmbeddingTransient, Timeout:
		return true
	default:
		return false
	}
}

// Error is the sum type the spec's taxonomy maps onto: a Kind plus a
// human-readable message and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match on Kind alone, so callers can write
// errors.Is(err, cidxerr.New(cidxerr.WrongRepository, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err, if it (or something it wraps) is an
// *Error. The second return is false for plain errors.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err's Kind equals kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

var (
	ErrChunkTooLarge = New(ChunkTooLarge, "chunk exceeds provider token cap")
	ErrCancelled     = New(Cancelled, "operation cancelled")
)
