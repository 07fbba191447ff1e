package ids

import (
	"testing"
	"time"
)

func TestNewIsSortableByTime(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	earlier := NewAt(base)
	later := NewAt(base.Add(time.Second))
	if !(earlier < later) {
		t.Fatalf("expected %q < %q", earlier, later)
	}
	if len(New()) != 26 {
		t.Fatalf("unexpected ULID length")
	}
}

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
