// Package retry decides what happens to a queue entry after a failed dispatch.
package retry

import (
	"errors"
	"time"
)

const DefaultMaxRetries = 6

// DefaultBackoff is indexed by the number of attempts already made
var DefaultBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	32 * time.Second,
}

var ErrEmptyBackoff = errors.New("retry: backoff schedule is empty")

// Policy holds the backoff table and the retry ceiling. Immutable after construction.
type Policy struct {
	backoff    []time.Duration
	maxRetries int
}

// Decision is the outcome of a failed attempt
type Decision struct {
	Terminal    bool
	RetryCount  int
	NextRetryAt time.Time
	Delay       time.Duration
}

func NewPolicy(backoff []time.Duration, maxRetries int) (Policy, error) {
	if len(backoff) == 0 {
		return Policy{}, ErrEmptyBackoff
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	table := make([]time.Duration, len(backoff))
	copy(table, backoff)
	return Policy{backoff: table, maxRetries: maxRetries}, nil
}

// DefaultPolicy returns the 1s..32s schedule with a ceiling of 6 attempts
func DefaultPolicy() Policy {
	p, _ := NewPolicy(DefaultBackoff, DefaultMaxRetries)
	return p
}

func (p Policy) MaxRetries() int {
	if p.maxRetries <= 0 {
		return DefaultMaxRetries
	}
	return p.maxRetries
}

// NextDelay returns backoff[min(retryCount, len-1)]
func (p Policy) NextDelay(retryCount int) time.Duration {
	table := p.backoff
	if len(table) == 0 {
		table = DefaultBackoff
	}
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= len(table) {
		retryCount = len(table) - 1
	}
	return table[retryCount]
}

// Decide computes the next state for an entry that has already been attempted retryCount times
// and just failed again.
func (p Policy) Decide(retryCount int, now time.Time) Decision {
	next := retryCount + 1
	if next >= p.MaxRetries() {
		return Decision{Terminal: true, RetryCount: next}
	}
	delay := p.NextDelay(retryCount)
	return Decision{
		RetryCount:  next,
		NextRetryAt: now.Add(delay),
		Delay:       delay,
	}
}

// TotalWindow is the cumulative backoff delay an entry can accumulate before going terminal
func (p Policy) TotalWindow() time.Duration {
	var total time.Duration
	for i := 0; i < p.MaxRetries(); i++ {
		total += p.NextDelay(i)
	}
	return total
}
