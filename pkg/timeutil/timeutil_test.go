package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextMidnightUTC(t *testing.T) {
	almaty := time.FixedZone("Asia/Almaty", 5*60*60)

	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"midday", time.Date(2024, 3, 10, 12, 30, 0, 0, time.UTC), time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)},
		{"exact midnight", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)},
		{"last nanosecond", time.Date(2024, 12, 31, 23, 59, 59, 999999999, time.UTC), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"other zone", time.Date(2024, 3, 11, 2, 0, 0, 0, almaty), time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(NextMidnightUTC(tt.in)))
		})
	}
}

func TestDayUTC(t *testing.T) {
	almaty := time.FixedZone("Asia/Almaty", 5*60*60)

	assert.Equal(t, "2024-03-10", DayUTC(time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)))
	// 02:00 in Almaty is still the previous day in UTC.
	assert.Equal(t, "2024-03-10", DayUTC(time.Date(2024, 3, 11, 2, 0, 0, 0, almaty)))
	assert.Equal(t, "2024-03-03", DaysAgoUTC(time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC), 7))
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDay("29.02.2024")
	assert.Error(t, err)
}

func TestFormatReset(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "2024-03-11T00:00:00Z", FormatReset(NextMidnightUTC(now)))
	assert.Equal(t, 8*time.Hour+55*time.Minute+55*time.Second, UntilNextMidnightUTC(now))
}
