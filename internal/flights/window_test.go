package flights

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollingWindow(t *testing.T) {
	now := time.Date(2024, time.May, 10, 14, 30, 0, 750_000_000, time.UTC)

	begin, end, err := Window(RollingWindow, 1, now)
	require.NoError(t, err)
	assert.Equal(t, now.Unix(), end)
	assert.Equal(t, time.Date(2024, time.May, 9, 14, 30, 0, 0, time.UTC).Unix(), begin)

	begin, end, err = Window(RollingWindow, 0, now)
	require.NoError(t, err)
	assert.Equal(t, begin, end)
}

func TestCalendarWindow(t *testing.T) {
	brussels := time.FixedZone("CEST", 2*60*60)
	now := time.Date(2024, time.May, 10, 14, 30, 0, 0, brussels)

	tests := []struct {
		name      string
		days      int
		wantBegin time.Time
	}{
		{name: "today only", days: 1, wantBegin: time.Date(2024, time.May, 10, 0, 0, 0, 0, brussels)},
		{name: "zero treated as today", days: 0, wantBegin: time.Date(2024, time.May, 10, 0, 0, 0, 0, brussels)},
		{name: "three days", days: 3, wantBegin: time.Date(2024, time.May, 8, 0, 0, 0, 0, brussels)},
	}

	wantEnd := time.Date(2024, time.May, 10, 23, 59, 59, 0, brussels).Unix()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			begin, end, err := Window(CalendarWindow, tc.days, now)
			require.NoError(t, err)
			assert.Equal(t, tc.wantBegin.Unix(), begin)
			assert.Equal(t, wantEnd, end)
		})
	}
}

func TestCalendarWindowCrossesMonth(t *testing.T) {
	now := time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC)

	begin, _, err := Window(CalendarWindow, 2, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC).Unix(), begin)
}

func TestWindowRejectsNegativeLookback(t *testing.T) {
	for _, policy := range []WindowPolicy{RollingWindow, CalendarWindow} {
		_, _, err := Window(policy, -1, time.Now())
		assert.ErrorIs(t, err, ErrInvalidLookback, policy.String())
	}
}

func TestWindowUnknownPolicy(t *testing.T) {
	_, _, err := Window(WindowPolicy(9), 1, time.Now())
	assert.ErrorIs(t, err, ErrUnknownWindowPolicy)
}

func TestParseWindowPolicy(t *testing.T) {
	p, err := ParseWindowPolicy("")
	require.NoError(t, err)
	assert.Equal(t, RollingWindow, p)

	p, err = ParseWindowPolicy(" Calendar ")
	require.NoError(t, err)
	assert.Equal(t, CalendarWindow, p)

	_, err = ParseWindowPolicy("weekly")
	assert.ErrorIs(t, err, ErrUnknownWindowPolicy)
}
