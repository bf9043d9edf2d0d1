// Package memory provides an in-process kvstore backend. Contents live for
// the lifetime of the process.
package memory

import (
	"context"
	"sync"

	"github.com/gezibash/arc-ledger/internal/kvstore/physical"
	"github.com/gezibash/arc-ledger/internal/storage"
)

func init() {
	physical.Register("memory", NewFactory, Defaults)
}

// Defaults returns the default configuration for the memory backend.
func Defaults() storage.Options {
	return storage.Options{}
}

// NewFactory creates a new memory backend.
func NewFactory(_ context.Context, _ storage.Options) (physical.Backend, error) {
	return New(), nil
}

// Backend is a map-backed implementation of physical.Backend.
type Backend struct {
	mu      sync.Mutex
	records map[string][]byte
	queues  map[string][][]byte
	closed  bool
}

// New creates an empty memory backend.
func New() *Backend {
	return &Backend{
		records: make(map[string][]byte),
		queues:  make(map[string][][]byte),
	}
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, physical.ErrClosed
	}
	v, ok := b.records[key]
	if !ok {
		return nil, physical.ErrNotFound
	}
	return clone(v), nil
}

func (b *Backend) PutIfAbsent(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return physical.ErrClosed
	}
	if _, ok := b.records[key]; ok {
		return physical.ErrExists
	}
	b.records[key] = clone(value)
	return nil
}

func (b *Backend) Append(_ context.Context, queue string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return physical.ErrClosed
	}
	b.queues[queue] = append(b.queues[queue], clone(value))
	return nil
}

func (b *Backend) Drain(_ context.Context, queue string) ([][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, physical.ErrClosed
	}
	out := b.queues[queue]
	delete(b.queues, queue)
	if out == nil {
		out = [][]byte{}
	}
	return out, nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func clone(v []byte) []byte {
	out := make([]byte, len(v))
	copy(out, v)
	return out
}
