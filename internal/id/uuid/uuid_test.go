// Package uuid includes tests for the UUID generator wrapper.
package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
)

// TestGeneratorNewID ensures generated IDs are unique and non-nil.
func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	id1 := gen.NewID()
	id2 := gen.NewID()
	if id1 == id2 {
		t.Fatalf("expected unique IDs, got %s and %s", id1, id2)
	}
	if id1 == goUUID.Nil {
		t.Fatal("expected non-nil UUID")
	}
}
