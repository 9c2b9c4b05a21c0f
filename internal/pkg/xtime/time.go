package xtime

import "time"

func UTCNow() time.Time {
	return time.Now().UTC()
}

var utcNowFunc = UTCNow

// Now returns the current UTC time through the mockable clock.
func Now() time.Time {
	return utcNowFunc()
}

// setUTCNowFunc sets the function used to get current UTC time.
// This is primarily used for testing to mock the current time.
func setUTCNowFunc(f func() time.Time) {
	utcNowFunc = f
}

// resetUTCNowFunc resets the UTC now function to the default implementation.
// This should be called in test cleanup to avoid affecting other tests.
func resetUTCNowFunc() {
	utcNowFunc = UTCNow
}

// Period represents a billing period with Start (inclusive) and End (exclusive).
// The period is a half-open interval [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether ts falls inside the period.
func (p Period) Contains(ts time.Time) bool {
	return !ts.Before(p.Start) && ts.Before(p.End)
}

// Remaining returns the time left in the period relative to ts. Zero if the
// period has already ended.
func (p Period) Remaining(ts time.Time) time.Duration {
	if !ts.Before(p.End) {
		return 0
	}

	return p.End.Sub(ts)
}

// Length returns the full duration of the period.
func (p Period) Length() time.Duration {
	return p.End.Sub(p.Start)
}

// CurrentMonthlyPeriod returns the calendar-month billing period containing
// now in the given location: [1st 00:00:00 this month, 1st 00:00:00 next month),
// expressed in UTC. Usage counters accumulate over this window and reset at
// rollover.
func CurrentMonthlyPeriod(loc *time.Location) Period {
	return MonthlyPeriodAt(Now(), loc)
}

// MonthlyPeriodAt returns the calendar-month period containing ts.
func MonthlyPeriodAt(ts time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}

	local := ts.In(loc)
	startLocal := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	endLocal := startLocal.AddDate(0, 1, 0)

	return Period{Start: startLocal.UTC(), End: endLocal.UTC()}
}
