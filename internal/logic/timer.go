package logic

import "time"

// timer measures dwell time from the last state entry.
type timer struct {
	start time.Time
}

func (t *timer) reset(now time.Time) {
	t.start = now
}

// since returns the time elapsed since the last reset.
// A clock reading earlier than the reset counts as zero.
func (t timer) since(now time.Time) time.Duration {
	d := now.Sub(t.start)
	if d < 0 {
		return 0
	}
	return d
}

func (t timer) elapsed(now time.Time, d time.Duration) bool {
	return t.since(now) >= d
}
