package main

import (
	"testing"
	"time"
)

func TestNextLocal0900BeforeNoon(t *testing.T) {
	now := time.Date(2026, 7, 30, 6, 0, 0, 0, time.UTC)
	delay := nextLocal0900(now)
	want := 3 * time.Hour
	if delay != want {
		t.Fatalf("expected %s until 09:00, got %s", want, delay)
	}
}

func TestNextLocal0900RollsOverToTomorrow(t *testing.T) {
	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	delay := nextLocal0900(now)
	want := 24 * time.Hour
	if delay != want {
		t.Fatalf("expected roll-over to tomorrow's 09:00, got %s", delay)
	}

	now = time.Date(2026, 7, 30, 15, 30, 0, 0, time.UTC)
	delay = nextLocal0900(now)
	want = 17*time.Hour + 30*time.Minute
	if delay != want {
		t.Fatalf("expected %s until tomorrow's 09:00, got %s", want, delay)
	}
}
