package daterange

import (
	"testing"
	"time"

	errs "bhascraper/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(r Range) []time.Time {
	var days []time.Time
	for d := range r.Days() {
		days = append(days, d)
	}
	return days
}

func TestDaysCountAndOrder(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		want       int
	}{
		{"single day", "2024-03-10", "2024-03-10", 1},
		{"one week", "2024-03-01", "2024-03-07", 7},
		{"across leap day", "2024-02-27", "2024-03-02", 5},
		{"across year end", "2023-12-30", "2024-01-02", 4},
		{"across DST change", "2024-03-30", "2024-04-01", 3},
		{"full year", "2023-01-01", "2023-12-31", 365},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Parse(tt.start, tt.end)
			require.NoError(t, err)

			days := collect(r)
			require.Len(t, days, tt.want)
			assert.Equal(t, tt.want, r.Len())
			assert.Equal(t, r.Start, days[0])
			assert.Equal(t, r.End, days[len(days)-1])

			for i := 1; i < len(days); i++ {
				assert.Equal(t, days[i-1].AddDate(0, 0, 1), days[i], "gap at %d", i)
			}
		})
	}
}

func TestSingleDayEqualsBoth(t *testing.T) {
	r, err := Parse("2024-06-15", "2024-06-15")
	require.NoError(t, err)

	days := collect(r)
	require.Len(t, days, 1)
	assert.True(t, days[0].Equal(r.Start))
	assert.True(t, days[0].Equal(r.End))
}

func TestInvertedRange(t *testing.T) {
	r, err := Parse("2024-03-02", "2024-03-01")
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeInvertedRange))
	assert.Empty(t, collect(r))
}

func TestInvalidDates(t *testing.T) {
	inputs := [][2]string{
		{"2024-02-30", "2024-03-01"},
		{"2024-03-01", "not-a-date"},
		{"", "2024-03-01"},
		{"2024/03/01", "2024-03-02"},
	}

	for _, in := range inputs {
		_, err := Parse(in[0], in[1])
		require.Error(t, err, in)
		assert.True(t, errs.IsType(err, errs.ErrorTypeInvalidRange), in)
	}

	_, err := New(time.Time{}, time.Now())
	assert.True(t, errs.IsType(err, errs.ErrorTypeInvalidRange))
}

func TestDaysRestartable(t *testing.T) {
	r, err := Parse("2024-01-01", "2024-01-05")
	require.NoError(t, err)

	first := collect(r)
	second := collect(r)
	assert.Equal(t, first, second)

	// early break does not disturb the next iteration
	for range r.Days() {
		break
	}
	assert.Len(t, collect(r), 5)
}

func TestNewTruncatesToDate(t *testing.T) {
	loc := time.FixedZone("X", 5*3600)
	r, err := New(time.Date(2024, 5, 1, 23, 59, 0, 0, loc), time.Date(2024, 5, 2, 0, 1, 0, 0, loc))
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), r.Start)
	assert.Equal(t, 2, r.Len())
	assert.True(t, r.Contains(time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)))
	assert.False(t, r.Contains(time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-05-01..2024-05-02", r.String())
}
