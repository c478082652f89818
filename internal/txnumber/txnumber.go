package txnumber

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Transaction numbers look like "26-09-00042": a YY-MM prefix and a
// 5-digit, zero-padded sequence that is strictly increasing within the
// prefix. The sequence resets each calendar month because allocation is
// always scoped to the current prefix.

const sequenceDigits = 5

// Prefix returns the YY-MM bucket for t.
func Prefix(t time.Time) string {
	return t.UTC().Format("06-01")
}

// Format renders a full transaction number under the given prefix.
func Format(prefix string, seq int) string {
	return fmt.Sprintf("%s-%0*d", prefix, sequenceDigits, seq)
}

// ParseSequence extracts the trailing sequence from a transaction number.
// Returns 0 when the number is empty or the suffix does not parse, which
// lets allocation start fresh instead of failing on malformed legacy rows.
func ParseSequence(number string) int {
	idx := strings.LastIndex(number, "-")
	if idx < 0 || idx == len(number)-1 {
		return 0
	}
	seq, err := strconv.Atoi(number[idx+1:])
	if err != nil || seq < 0 {
		return 0
	}
	return seq
}

// Sequencer hands out the next sequence for a prefix atomically.
type Sequencer interface {
	NextTransactionSequence(ctx context.Context, prefix string) (int, error)
}

// Allocator produces the next transaction number for the current month.
type Allocator struct {
	seq Sequencer
	now func() time.Time
}

func NewAllocator(seq Sequencer) *Allocator {
	return &Allocator{seq: seq, now: time.Now}
}

// WithClock overrides the allocator's clock. Used in tests.
func (a *Allocator) WithClock(now func() time.Time) *Allocator {
	a.now = now
	return a
}

func (a *Allocator) Next(ctx context.Context) (string, error) {
	prefix := Prefix(a.now())
	seq, err := a.seq.NextTransactionSequence(ctx, prefix)
	if err != nil {
		return "", err
	}
	return Format(prefix, seq), nil
}
