package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7Unique(t *testing.T) {
	// WHAT: Sequential UUIDv7 IDs are distinct and well-formed.
	gen := UUIDv7()
	seen := make(map[string]bool)
	for range 100 {
		id := gen()
		if len(id) != 36 {
			t.Fatalf("uuid length: got %d, want 36 (%q)", len(id), id)
		}
		if seen[id] {
			t.Fatalf("duplicate id: %s", id)
		}
		seen[id] = true
	}
}

func TestNanoIDLengthAndAlphabet(t *testing.T) {
	gen := NanoID(12)
	id := gen()
	if len(id) != 12 {
		t.Fatalf("nanoid length: got %d, want 12", len(id))
	}
	for _, r := range id {
		if !strings.ContainsRune("0123456789abcdefghijklmnopqrstuvwxyz", r) {
			t.Fatalf("nanoid contains %q outside alphabet", r)
		}
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("run_", NanoID(8))
	id := gen()
	if !strings.HasPrefix(id, "run_") {
		t.Fatalf("prefixed id %q missing prefix", id)
	}
	if len(id) != len("run_")+8 {
		t.Fatalf("prefixed id length: got %d", len(id))
	}
}
