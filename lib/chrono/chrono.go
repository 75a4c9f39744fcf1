package chrono

import (
	"time"
)

// TimeAPI is the interface that anything depending on the system clock should use.
// The health registry and the result cache take one so tests can run against a
// controllable clock.
type TimeAPI interface {
	Now() time.Time
}

// StandardTime is the standard implementation of TimeAPI using the standard library.
type StandardTime struct{}

// NewStandardTime is the constructor of StandardTime.
func NewStandardTime() StandardTime {
	return StandardTime{}
}

func (s StandardTime) Now() time.Time {
	return time.Now()
}

// FakeTime is a manually advanced clock for tests.
type FakeTime struct {
	Current time.Time
}

func NewFakeTime(start time.Time) *FakeTime {
	return &FakeTime{Current: start}
}

func (f *FakeTime) Now() time.Time {
	return f.Current
}

// Advance moves the clock forward by d.
func (f *FakeTime) Advance(d time.Duration) {
	f.Current = f.Current.Add(d)
}
