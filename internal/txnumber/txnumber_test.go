package txnumber_test

import (
	"context"
	"testing"
	"time"

	"github.com/rvmonterde003/kashpos/internal/store/memory"
	"github.com/rvmonterde003/kashpos/internal/txnumber"
)

func TestPrefixUsesUTCYearMonth(t *testing.T) {
	at := time.Date(2026, time.September, 1, 3, 4, 5, 0, time.UTC)
	if got := txnumber.Prefix(at); got != "26-09" {
		t.Fatalf("expected prefix 26-09, got %s", got)
	}
}

func TestFormatZeroPadsSequence(t *testing.T) {
	if got := txnumber.Format("26-09", 7); got != "26-09-00007" {
		t.Fatalf("expected 26-09-00007, got %s", got)
	}
	if got := txnumber.Format("26-09", 123456); got != "26-09-123456" {
		t.Fatalf("expected overflow to widen, got %s", got)
	}
}

func TestParseSequence(t *testing.T) {
	if got := txnumber.ParseSequence("26-09-00042"); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if got := txnumber.ParseSequence(""); got != 0 {
		t.Fatalf("expected 0 for empty number, got %d", got)
	}
	if got := txnumber.ParseSequence("garbage"); got != 0 {
		t.Fatalf("expected 0 for malformed number, got %d", got)
	}
	if got := txnumber.ParseSequence("26-09-"); got != 0 {
		t.Fatalf("expected 0 for trailing dash, got %d", got)
	}
}

func TestAllocatorNumbersAreStrictlyIncreasing(t *testing.T) {
	repo := memory.NewSeeded()
	at := time.Date(2026, time.September, 14, 10, 0, 0, 0, time.UTC)
	alloc := txnumber.NewAllocator(repo).WithClock(func() time.Time { return at })

	prev := ""
	for i := 0; i < 5; i++ {
		number, err := alloc.Next(context.Background())
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if number <= prev {
			t.Fatalf("expected strictly increasing numbers, got %s after %s", number, prev)
		}
		prev = number
	}
	if prev != "26-09-00005" {
		t.Fatalf("expected fifth number 26-09-00005, got %s", prev)
	}
}

func TestAllocatorResetsAcrossMonths(t *testing.T) {
	repo := memory.NewSeeded()
	september := time.Date(2026, time.September, 30, 23, 0, 0, 0, time.UTC)
	october := time.Date(2026, time.October, 1, 0, 30, 0, 0, time.UTC)

	clock := september
	alloc := txnumber.NewAllocator(repo).WithClock(func() time.Time { return clock })

	first, err := alloc.Next(context.Background())
	if err != nil {
		t.Fatalf("next in september: %v", err)
	}
	if first != "26-09-00001" {
		t.Fatalf("expected 26-09-00001, got %s", first)
	}

	clock = october
	second, err := alloc.Next(context.Background())
	if err != nil {
		t.Fatalf("next in october: %v", err)
	}
	if second != "26-10-00001" {
		t.Fatalf("expected sequence to reset to 26-10-00001, got %s", second)
	}
}
