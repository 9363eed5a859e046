// Package clock lets the collector read the current time through an
// interface so service dates and document stamps can be pinned in tests.
package clock

import (
	"sync"
	"time"

	"takao35/pkg/timeutil"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system time.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// MockClock is a thread-safe settable clock for tests.
type MockClock struct {
	mu          sync.Mutex
	currentTime time.Time
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{currentTime: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = t
}

// Advance moves the clock by d, which may be negative.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)
}

// ServiceDate returns midnight JST of the day c currently reads.
func ServiceDate(c Clock) time.Time {
	now := c.Now().In(timeutil.JST)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, timeutil.JST)
}

// ParseServiceDate reads a YYYY-MM-DD or YYYYMMDD date as midnight JST.
func ParseServiceDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "20060102"} {
		if t, err := time.ParseInLocation(layout, s, timeutil.JST); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &time.ParseError{Layout: "2006-01-02", Value: s, Message: ": expected YYYY-MM-DD or YYYYMMDD"}
}
