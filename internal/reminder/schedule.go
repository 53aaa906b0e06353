package reminder

import "time"

// nextTick returns the first multiple of interval strictly after now, so an
// hourly sweep fires at the top of each hour.
func nextTick(now time.Time, interval time.Duration) time.Time {
	return now.Truncate(interval).Add(interval)
}

// dueWithin reports whether due falls in the closed window [now, horizon].
func dueWithin(due, now, horizon time.Time) bool {
	return !due.Before(now) && !due.After(horizon)
}
