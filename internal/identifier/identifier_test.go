package identifier

import (
	"strings"
	"testing"
)

func TestUUIDGenerator_Prefixes(t *testing.T) {
	gen := New()

	tests := []struct {
		name   string
		id     string
		prefix string
	}{
		{"form", gen.FormID(), "form_"},
		{"step", gen.StepID(), "step_"},
		{"field", gen.FieldID(), "field_"},
		{"submission", gen.SubmissionID(), "sub_"},
	}

	for _, tt := range tests {
		if !strings.HasPrefix(tt.id, tt.prefix) {
			t.Errorf("%s id %q missing prefix %q", tt.name, tt.id, tt.prefix)
		}
		if len(tt.id) != len(tt.prefix)+36 {
			t.Errorf("%s id %q has unexpected length %d", tt.name, tt.id, len(tt.id))
		}
	}
}

func TestUUIDGenerator_Unique(t *testing.T) {
	gen := New()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := gen.FieldID()
		if seen[id] {
			t.Fatalf("duplicate id %q after %d generations", id, i)
		}
		seen[id] = true
	}
}

func TestUUIDGenerator_TimeSortable(t *testing.T) {
	gen := New()
	prev := gen.FormID()
	// UUIDv7 embeds a millisecond timestamp in the most significant bits, so
	// ids generated later never sort before ids generated earlier.
	for i := 0; i < 100; i++ {
		next := gen.FormID()
		if next < prev {
			t.Fatalf("id %q sorts before earlier id %q", next, prev)
		}
		prev = next
	}
}
