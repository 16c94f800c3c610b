package scheduler

import "time"

// fixedRate fires at start+k*period for k >= 1, regardless of how long
// earlier runs took. Ticks missed while the process was stalled are not
// replayed; the next one is the first multiple after t.
type fixedRate struct {
	start  time.Time
	period time.Duration
}

func (f fixedRate) Next(t time.Time) time.Time {
	if f.period <= 0 {
		return time.Time{}
	}
	if t.Before(f.start) {
		return f.start.Add(f.period)
	}
	k := t.Sub(f.start)/f.period + 1
	return f.start.Add(k * f.period)
}
