package xtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonthlyPeriodAt(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		loc       *time.Location
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "mid-month UTC",
			now:       time.Date(2024, 1, 17, 14, 30, 0, 0, time.UTC),
			loc:       time.UTC,
			wantStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "first instant of month",
			now:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			loc:       time.UTC,
			wantStart: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "december rolls into next year",
			now:       time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC),
			loc:       time.UTC,
			wantStart: time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "nil location defaults to UTC",
			now:       time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC),
			loc:       nil,
			wantStart: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := MonthlyPeriodAt(tt.now, tt.loc)
			require.Equal(t, tt.wantStart, p.Start)
			require.Equal(t, tt.wantEnd, p.End)
		})
	}
}

func TestMonthlyPeriodAt_Location(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2024-02-01 02:00 UTC is still January 31st in New York.
	now := time.Date(2024, 2, 1, 2, 0, 0, 0, time.UTC)
	p := MonthlyPeriodAt(now, loc)

	require.Equal(t, time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC), p.Start)
	require.True(t, p.Contains(now))
}

func TestCurrentMonthlyPeriod_MockedClock(t *testing.T) {
	setUTCNowFunc(func() time.Time {
		return time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	})
	t.Cleanup(resetUTCNowFunc)

	p := CurrentMonthlyPeriod(time.UTC)
	require.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), p.Start)
	require.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), p.End)
}

func TestPeriodHelpers(t *testing.T) {
	p := Period{
		Start: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}

	require.True(t, p.Contains(p.Start))
	require.False(t, p.Contains(p.End))
	require.Equal(t, 31*24*time.Hour, p.Length())
	require.Equal(t, time.Duration(0), p.Remaining(p.End))
	require.Equal(t, 24*time.Hour, p.Remaining(time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)))
}
