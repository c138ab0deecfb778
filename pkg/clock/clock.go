// Package clock abstracts time for the coordination core. Decision paths
// (quota months, registration windows, completion sweeps) read the clock
// through this interface so tests can pin or step time.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func Real() Clock { return realClock{} }

// Fixed returns a clock frozen at t.
func Fixed(t time.Time) *FixedClock { return &FixedClock{t: t} }

// FixedClock is a settable clock for tests.
type FixedClock struct {
	t time.Time
}

func (c *FixedClock) Now() time.Time { return c.t }

func (c *FixedClock) Set(t time.Time) { c.t = t }

func (c *FixedClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
