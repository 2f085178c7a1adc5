package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToInstantOffsets(t *testing.T) {
	cases := []struct {
		name  string
		date  string
		clock string
		want  time.Time
	}{
		{"winter 24h", "2024-01-15", "09:30", time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)},
		{"winter 12h pm", "2024-12-02", "3:05 PM", time.Date(2024, 12, 2, 20, 5, 0, 0, time.UTC)},
		{"summer 12h am", "2024-07-04", "9:00 am", time.Date(2024, 7, 4, 13, 0, 0, 0, time.UTC)},
		{"march is daylight from day one", "2024-03-01", "00:00", time.Date(2024, 3, 1, 4, 0, 0, 0, time.UTC)},
		{"october is daylight to the end", "2024-10-31", "23:59", time.Date(2024, 11, 1, 3, 59, 0, 0, time.UTC)},
		{"november is standard", "2024-11-01", "00:00", time.Date(2024, 11, 1, 5, 0, 0, 0, time.UTC)},
		{"midnight 12 AM", "2024-02-10", "12:00 AM", time.Date(2024, 2, 10, 5, 0, 0, 0, time.UTC)},
		{"noon 12 PM", "2024-02-10", "12:00PM", time.Date(2024, 2, 10, 17, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToInstant(tc.date, tc.clock)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "want %s, got %s", tc.want, got)
		})
	}
}

func TestToInstantBadClockFallsBackToMidnight(t *testing.T) {
	got, err := ToInstant("2024-06-01", "quarter past nine")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidClock))
	assert.True(t, time.Date(2024, 6, 1, 4, 0, 0, 0, time.UTC).Equal(got))

	_, err = ToInstant("2024-06-01", "13:00 PM")
	assert.ErrorIs(t, err, ErrInvalidClock)

	_, err = ToInstant("2024-06-01", "24:00")
	assert.ErrorIs(t, err, ErrInvalidClock)
}

func TestToInstantBadDate(t *testing.T) {
	got, err := ToInstant("06/01/2024", "10:00")
	assert.ErrorIs(t, err, ErrInvalidDate)
	assert.True(t, got.IsZero())
}

func TestCivilRoundTrip(t *testing.T) {
	pairs := [][2]string{
		{"2024-01-01", "00:00"},
		{"2024-02-29", "12:45"},
		{"2024-03-01", "00:30"},
		{"2024-06-15", "18:20"},
		{"2024-10-31", "23:30"},
		{"2024-11-01", "00:30"},
		{"2024-12-31", "23:59"},
	}
	for _, p := range pairs {
		instant, err := ToInstant(p[0], p[1])
		require.NoError(t, err)
		date, clock := ToCivil(instant)
		assert.Equal(t, p[0], date, "date for %v", p)
		assert.Equal(t, p[1], clock, "clock for %v", p)
	}
}

func TestCivilRoundTrip12HourInput(t *testing.T) {
	instant, err := ToInstant("2025-08-09", "7:15 PM")
	require.NoError(t, err)
	date, clock := ToCivil(instant)
	assert.Equal(t, "2025-08-09", date)
	assert.Equal(t, "19:15", clock)
	assert.Equal(t, "7:15 PM", Format12(clock))
}

func TestFormat12(t *testing.T) {
	assert.Equal(t, "12:00 AM", Format12("00:00"))
	assert.Equal(t, "12:30 PM", Format12("12:30"))
	assert.Equal(t, "11:59 PM", Format12("23:59"))
	assert.Equal(t, "nonsense", Format12("nonsense"))
}
