package core

import "testing"

func TestNewUUIDv7(t *testing.T) {
	id := NewUUIDv7()
	if id == "" {
		t.Fatal("NewUUIDv7() returned empty string")
	}
	if !IsValidUUIDv7(id) {
		t.Errorf("NewUUIDv7() = %q, not a valid UUIDv7", id)
	}
}

func TestNewUUIDv7_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewUUIDv7()
		if seen[id] {
			t.Errorf("NewUUIDv7() produced duplicate: %s", id)
		}
		seen[id] = true
	}
}

func TestIsValidUUIDv7(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{NewUUIDv7(), true},
		{"", false},
		{"adhoc", false},
		// UUIDv4: version nibble is 4
		{"9b2d8f0a-1c3e-4f5a-9b7c-0d1e2f3a4b5c", false},
	}

	for _, tt := range tests {
		if got := IsValidUUIDv7(tt.input); got != tt.want {
			t.Errorf("IsValidUUIDv7(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestIsValidUUID(t *testing.T) {
	if !IsValidUUID(NewUUIDv7()) {
		t.Error("IsValidUUID should accept a v7 id")
	}
	if !IsValidUUID("9b2d8f0a-1c3e-4f5a-9b7c-0d1e2f3a4b5c") {
		t.Error("IsValidUUID should accept a v4 id")
	}
	if IsValidUUID("not-a-uuid") {
		t.Error("IsValidUUID should reject junk")
	}
}
