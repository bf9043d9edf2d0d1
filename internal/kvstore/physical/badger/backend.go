// Package badger provides a BadgerDB-backed kvstore backend.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/gezibash/arc-ledger/internal/kvstore/physical"
	"github.com/gezibash/arc-ledger/internal/storage"
)

const (
	prefixRecord = "rec/"
	prefixQueue  = "queue/"
	keySequence  = "meta/queue-seq"

	sequenceBandwidth = 128
	maxConflictRetry  = 5
)

const (
	KeyPath             = "path"
	KeySyncWrites       = "sync_writes"
	KeyValueLogFileSize = "value_log_file_size"
	KeyInMemory         = "in_memory"
)

func init() {
	physical.Register("badger", NewFactory, Defaults)
}

// Defaults returns the default configuration for the BadgerDB backend.
func Defaults() storage.Options {
	return storage.Options{
		KeyPath:             "~/.arc/ledger/records",
		KeySyncWrites:       "true",
		KeyValueLogFileSize: strconv.FormatInt(64<<20, 10),
		KeyInMemory:         "false",
	}
}

// NewFactory creates a new BadgerDB backend from its options.
func NewFactory(_ context.Context, opts storage.Options) (physical.Backend, error) {
	inMemory, err := opts.GetBool("badger", KeyInMemory, false)
	if err != nil {
		return nil, err
	}

	var bopts badger.Options
	if inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		path := opts.GetString(KeyPath, "")
		if path == "" {
			return nil, storage.NewConfigError("badger", KeyPath, "cannot be empty")
		}
		path = storage.ExpandPath(path)
		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, storage.NewConfigErrorWithCause("badger", KeyPath, "failed to create directory", err)
		}

		syncWrites, err := opts.GetBool("badger", KeySyncWrites, true)
		if err != nil {
			return nil, err
		}
		valueLogFileSize, err := opts.GetInt64("badger", KeyValueLogFileSize, 64<<20)
		if err != nil {
			return nil, err
		}

		bopts = badger.DefaultOptions(path).WithSyncWrites(syncWrites)
		if valueLogFileSize > 0 {
			bopts = bopts.WithValueLogFileSize(valueLogFileSize)
		}
	}
	bopts = bopts.WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, storage.NewConfigErrorWithCause("badger", KeyPath, "failed to open database", err)
	}

	b, err := NewWithDB(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("badger kvstore initialized", "path", bopts.Dir, "in_memory", inMemory)
	return b, nil
}

// Backend is a BadgerDB implementation of physical.Backend. Queue entries are
// keyed by a monotonically increasing sequence so iteration order is append
// order.
type Backend struct {
	db     *badger.DB
	seq    *badger.Sequence
	closed atomic.Bool
}

// NewWithDB wraps an already-open BadgerDB. The backend takes ownership of db.
func NewWithDB(db *badger.DB) (*Backend, error) {
	seq, err := db.GetSequence([]byte(keySequence), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("badger: queue sequence: %w", err)
	}
	return &Backend{db: db, seq: seq}, nil
}

func recordKey(key string) []byte {
	return []byte(prefixRecord + key)
}

// queuePrefix terminates the queue name with a NUL so "a" never matches "ab".
func queuePrefix(queue string) []byte {
	return []byte(prefixQueue + queue + "\x00")
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, physical.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return out, nil
}

func (b *Backend) PutIfAbsent(_ context.Context, key string, value []byte) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	k := recordKey(key)
	for range maxConflictRetry {
		err := b.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(k)
			if err == nil {
				return physical.ErrExists
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			return txn.Set(k, value)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil && !errors.Is(err, physical.ErrExists) {
			return fmt.Errorf("badger put if absent: %w", err)
		}
		return err
	}
	return fmt.Errorf("badger put if absent: %w", badger.ErrConflict)
}

func (b *Backend) Append(_ context.Context, queue string, value []byte) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	n, err := b.seq.Next()
	if err != nil {
		return fmt.Errorf("badger append: sequence: %w", err)
	}
	key := queuePrefix(queue)
	key = binary.BigEndian.AppendUint64(key, n)
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	}); err != nil {
		return fmt.Errorf("badger append: %w", err)
	}
	return nil
}

func (b *Backend) Drain(_ context.Context, queue string) ([][]byte, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	prefix := queuePrefix(queue)
	for range maxConflictRetry {
		out := [][]byte{}
		err := b.db.Update(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
			var keys [][]byte
			for it.Rewind(); it.Valid(); it.Next() {
				item := it.Item()
				v, err := item.ValueCopy(nil)
				if err != nil {
					it.Close()
					return err
				}
				keys = append(keys, item.KeyCopy(nil))
				out = append(out, v)
			}
			it.Close()
			for _, k := range keys {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			return nil
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("badger drain: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("badger drain: %w", badger.ErrConflict)
}

func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	if err := b.seq.Release(); err != nil {
		_ = b.db.Close()
		return fmt.Errorf("badger close: release sequence: %w", err)
	}
	return b.db.Close()
}
