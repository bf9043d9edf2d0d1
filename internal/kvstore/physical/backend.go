// Package physical defines the record storage interface behind the identity
// directory and the mailbox, and a registry of named backend factories.
package physical

import (
	"context"
	"fmt"

	arcerrors "github.com/gezibash/arc-ledger/pkg/errors"
)

var (
	// ErrNotFound indicates the requested record was not found.
	ErrNotFound = fmt.Errorf("record %w", arcerrors.ErrNotFound)

	// ErrExists indicates a conditional write hit an existing record.
	ErrExists = fmt.Errorf("record %w", arcerrors.ErrAlreadyExists)

	// ErrClosed indicates the backend has been closed.
	ErrClosed = fmt.Errorf("backend %w", arcerrors.ErrClosed)
)

// Backend is the physical storage interface for directory records and
// mailbox queues. Keys and queue names are opaque strings chosen by the
// caller. All implementations must be safe for concurrent use.
type Backend interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// PutIfAbsent stores value at key only if no value exists, else ErrExists.
	PutIfAbsent(ctx context.Context, key string, value []byte) error
	// Append adds value to the tail of the named queue.
	Append(ctx context.Context, queue string, value []byte) error
	// Drain atomically removes and returns every value in the named queue,
	// oldest first. An empty or unknown queue yields an empty slice.
	Drain(ctx context.Context, queue string) ([][]byte, error)
	// Close releases the backend's resources.
	Close() error
}
