package util

import "testing"

func TestRandomHex(t *testing.T) {
	a, err := RandomHex(24)
	if err != nil {
		t.Fatalf("random hex: %v", err)
	}
	if len(a) != 48 {
		t.Fatalf("len = %d, want 48", len(a))
	}
	b, _ := RandomHex(24)
	if a == b {
		t.Fatalf("expected distinct values")
	}
	if len(NewID()) != 24 {
		t.Fatalf("unexpected NewID length")
	}
}
