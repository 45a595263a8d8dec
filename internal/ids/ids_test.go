package ids

import (
	"testing"
	"time"
)

func TestNewIsOrdered(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		if next <= prev {
			t.Fatalf("ids not ordered: %s <= %s", next, prev)
		}
		prev = next
	}
}

func TestAtUsesGivenTime(t *testing.T) {
	early := At(time.Unix(1_600_000_000, 0))
	late := At(time.Unix(1_700_000_000, 0))
	if early >= late {
		t.Fatalf("expected %s < %s", early, late)
	}
}
