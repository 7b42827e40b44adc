// Package retry provides the shared exponential backoff used by the HTTP
// discovery client, the chain RPC calls, and the streaming reconnect loop.
package retry

import (
	"context"
	"time"
)

// Policy is a bounded retry policy for individual calls. Delays grow
// exponentially from Base up to Cap between attempts.
type Policy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

// DefaultPolicy matches the discovery and RPC retry behaviour: 1s base, 30s
// cap, 5 attempts.
func DefaultPolicy() Policy {
	return Policy{Base: time.Second, Cap: 30 * time.Second, MaxAttempts: 5}
}

// Do invokes fn up to MaxAttempts times, sleeping between attempts. It
// returns nil on the first success, the context error if cancelled while
// waiting, or the last fn error once attempts are exhausted.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := NewBackoff(p.Base, p.Cap)
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(b.Next())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// Backoff is an open-ended exponential delay generator for reconnect loops.
// Next doubles the delay up to cap; Reset returns it to base after a
// successfully-processed message.
type Backoff struct {
	base time.Duration
	cap  time.Duration
	next time.Duration
}

// NewBackoff creates a Backoff starting at base and capped at cap.
func NewBackoff(base, cap time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if cap < base {
		cap = base
	}
	return &Backoff{base: base, cap: cap, next: base}
}

// Next returns the current delay and advances the sequence.
func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.cap {
		b.next = b.cap
	}
	return d
}

// Reset returns the sequence to the base delay.
func (b *Backoff) Reset() {
	b.next = b.base
}
