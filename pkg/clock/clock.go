// Package clock provides the "current date" used by every accrual and status
// computation. Callers read Now once per logical operation and pass the value
// down, so a single operation never observes two different instants.
package clock

import (
	"sync"
	"time"
)

// Clock is a source of the current instant.
type Clock interface {
	Now() time.Time
}

// Real reads the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Fixed always returns the same instant.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f) }

// Simulated wraps a base clock and lets the host application move "now"
// around for demos and tests. With no simulated date set it defers to base.
type Simulated struct {
	mu        sync.RWMutex
	base      Clock
	simulated *time.Time
}

func NewSimulated(base Clock) *Simulated {
	if base == nil {
		base = Real{}
	}
	return &Simulated{base: base}
}

func (s *Simulated) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.simulated != nil {
		return *s.simulated
	}
	return s.base.Now()
}

// Set pins the simulated date to t.
func (s *Simulated) Set(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.simulated = &t
}

// AddDays moves the simulated date by n calendar days, starting from the
// current effective date.
func (s *Simulated) AddDays(n int) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.base.Now()
	if s.simulated != nil {
		current = *s.simulated
	}
	next := current.AddDate(0, 0, n)
	s.simulated = &next
	return next
}

// Reset returns to the base clock.
func (s *Simulated) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.simulated = nil
}

// IsSimulated reports whether a simulated date is in effect.
func (s *Simulated) IsSimulated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.simulated != nil
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
