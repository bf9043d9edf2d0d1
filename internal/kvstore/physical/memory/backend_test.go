package memory

import (
	"testing"

	"github.com/gezibash/arc-ledger/internal/kvstore/physical"
	"github.com/gezibash/arc-ledger/internal/kvstore/physical/conformance"
)

func TestConformance(t *testing.T) {
	conformance.Run(t, func(t *testing.T) physical.Backend {
		b := New()
		t.Cleanup(func() { _ = b.Close() })
		return b
	})
}

func TestDrainReturnsCopies(t *testing.T) {
	b := New()
	value := []byte("hello")
	if err := b.Append(t.Context(), "q", value); err != nil {
		t.Fatal(err)
	}
	value[0] = 'j'
	got, _ := b.Drain(t.Context(), "q")
	if string(got[0]) != "hello" {
		t.Fatalf("stored value aliased caller slice: %q", got[0])
	}
}
