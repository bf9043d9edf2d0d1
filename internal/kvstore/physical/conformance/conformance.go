// Package conformance provides a shared behavioural test suite that every
// kvstore backend runs against itself.
package conformance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/gezibash/arc-ledger/internal/kvstore/physical"
)

// NewBackend returns a fresh, empty backend for one subtest.
type NewBackend func(t *testing.T) physical.Backend

// Run exercises the physical.Backend contract.
func Run(t *testing.T, newBackend NewBackend) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		b := newBackend(t)
		if _, err := b.Get(ctx, "missing"); !errors.Is(err, physical.ErrNotFound) {
			t.Fatalf("Get missing: err = %v, want ErrNotFound", err)
		}
	})

	t.Run("PutGet", func(t *testing.T) {
		b := newBackend(t)
		value := []byte("v1")
		if err := b.PutIfAbsent(ctx, "user/alice", value); err != nil {
			t.Fatalf("PutIfAbsent: %v", err)
		}
		value[0] = 'x'
		got, err := b.Get(ctx, "user/alice")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got) != "v1" {
			t.Fatalf("Get = %q, want %q", got, "v1")
		}
	})

	t.Run("PutIfAbsent", func(t *testing.T) {
		b := newBackend(t)
		if err := b.PutIfAbsent(ctx, "k", []byte("first")); err != nil {
			t.Fatalf("PutIfAbsent: %v", err)
		}
		if err := b.PutIfAbsent(ctx, "k", []byte("second")); !errors.Is(err, physical.ErrExists) {
			t.Fatalf("PutIfAbsent twice: err = %v, want ErrExists", err)
		}
		got, _ := b.Get(ctx, "k")
		if string(got) != "first" {
			t.Fatalf("value overwritten: %q", got)
		}
	})

	t.Run("PutIfAbsentConcurrent", func(t *testing.T) {
		b := newBackend(t)
		const n = 8
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := b.PutIfAbsent(ctx, "race", []byte(fmt.Sprint(i)))
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				} else if !errors.Is(err, physical.ErrExists) {
					t.Errorf("PutIfAbsent: %v", err)
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Fatalf("expected exactly one winner, got %d", wins)
		}
	})

	t.Run("AppendDrain", func(t *testing.T) {
		b := newBackend(t)
		for _, m := range []string{"m1", "m2", "m3"} {
			if err := b.Append(ctx, "inbox/bob", []byte(m)); err != nil {
				t.Fatalf("Append: %v", err)
			}
		}
		if err := b.Append(ctx, "inbox/carol", []byte("other")); err != nil {
			t.Fatalf("Append: %v", err)
		}

		got, err := b.Drain(ctx, "inbox/bob")
		if err != nil {
			t.Fatalf("Drain: %v", err)
		}
		if len(got) != 3 || string(got[0]) != "m1" || string(got[2]) != "m3" {
			t.Fatalf("Drain = %q, want [m1 m2 m3]", got)
		}

		again, err := b.Drain(ctx, "inbox/bob")
		if err != nil {
			t.Fatalf("Drain again: %v", err)
		}
		if again == nil || len(again) != 0 {
			t.Fatalf("second Drain = %q, want empty non-nil slice", again)
		}

		other, _ := b.Drain(ctx, "inbox/carol")
		if len(other) != 1 {
			t.Fatalf("other queue affected: %q", other)
		}
	})

	t.Run("QueueAndRecordNamespacesAreSeparate", func(t *testing.T) {
		b := newBackend(t)
		if err := b.PutIfAbsent(ctx, "same", []byte("record")); err != nil {
			t.Fatal(err)
		}
		if err := b.Append(ctx, "same", []byte("queued")); err != nil {
			t.Fatal(err)
		}
		got, _ := b.Drain(ctx, "same")
		if len(got) != 1 || string(got[0]) != "queued" {
			t.Fatalf("Drain = %q", got)
		}
		rec, err := b.Get(ctx, "same")
		if err != nil || string(rec) != "record" {
			t.Fatalf("Get = %q, %v", rec, err)
		}
	})

	t.Run("Closed", func(t *testing.T) {
		b := newBackend(t)
		if err := b.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if _, err := b.Get(ctx, "k"); !errors.Is(err, physical.ErrClosed) {
			t.Fatalf("Get after close: err = %v, want ErrClosed", err)
		}
		if err := b.PutIfAbsent(ctx, "k", nil); !errors.Is(err, physical.ErrClosed) {
			t.Fatalf("PutIfAbsent after close: err = %v, want ErrClosed", err)
		}
		if err := b.Append(ctx, "q", nil); !errors.Is(err, physical.ErrClosed) {
			t.Fatalf("Append after close: err = %v, want ErrClosed", err)
		}
	})
}
