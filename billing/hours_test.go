package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clock(t *testing.T, s string) Clock {
	t.Helper()
	c, err := ParseClock(s)
	require.NoError(t, err)
	return c
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("08:30")
	require.NoError(t, err)
	assert.Equal(t, NewClock(8, 30), c)
	assert.Equal(t, "08:30", c.String())

	for _, bad := range []string{"", "8h", "24:00", "12:60", "-1:00"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestNetWorked(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		flag     StatusFlag
		want     Minutes
	}{
		{"morning only", "08:00", "12:00", FlagNone, 240},
		{"afternoon only", "13:00", "17:00", FlagNone, 240},
		{"spans lunch", "08:00", "17:00", FlagNone, 8 * 60},
		{"spans lunch with overtime flag", "08:00", "14:00", FlagLunchOvertime, 6 * 60},
		{"touches lunch start", "09:00", "12:00", FlagNone, 180},
		{"starts at lunch", "12:00", "15:00", FlagNone, 180},
		{"ends at lunch end", "10:00", "13:00", FlagNone, 180},
		{"inside lunch", "12:15", "12:45", FlagNone, 30},
		{"crosses midnight", "22:00", "02:00", FlagNone, 240},
		{"zero length", "09:00", "09:00", FlagNone, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iv := Interval{Start: clock(t, tt.from), End: clock(t, tt.to)}
			assert.Equal(t, tt.want, NetWorked(iv, tt.flag, DefaultLunch))
		})
	}
}

func TestNetWorked_CustomLunch(t *testing.T) {
	lunch := LunchWindow{Start: NewClock(11, 30), End: NewClock(12, 15)}
	iv := Interval{Start: NewClock(9, 0), End: NewClock(15, 0)}
	assert.Equal(t, Minutes(6*60-45), NetWorked(iv, FlagNone, lunch))
}

func TestNormalizer_UsesLocalZone(t *testing.T) {
	// GIVEN: An entry stored in UTC that spans lunch in JST
	// WHEN: Normalizing with the JST zone
	// THEN: Lunch is subtracted based on local wall clock

	n := Normalizer{Zone: DefaultZone}
	e := TimesheetEntry{
		Start: time.Date(2025, 4, 6, 23, 0, 0, 0, time.UTC), // 08:00 JST
		End:   time.Date(2025, 4, 7, 8, 0, 0, 0, time.UTC),  // 17:00 JST
	}
	assert.Equal(t, Minutes(8*60), n.Worked(e))

	utc := Normalizer{Zone: time.UTC}
	assert.Equal(t, Minutes(9*60), utc.Worked(e), "no lunch overlap in UTC")
}

func TestMinutes_Hours(t *testing.T) {
	assert.True(t, Minutes(90).Hours().Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, "0.33", Minutes(20).Display().StringFixed(2))
}

func TestAmountFor(t *testing.T) {
	tests := []struct {
		minutes Minutes
		rate    string
		want    string
	}{
		{16 * 60, "11000", "176000"},
		{20, "1000", "333"},   // 333.33
		{30, "1001", "501"},   // 500.5 rounds half away from zero
		{30, "-1001", "-501"}, // negative deltas mirror
		{0, "5000", "0"},
	}
	for _, tt := range tests {
		got := AmountFor(tt.minutes, decimal.RequireFromString(tt.rate))
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "%d min x %s = %s", tt.minutes, tt.rate, got)
	}
}

func TestAmountFor_ExactMinutesDoNotDrift(t *testing.T) {
	// Three 20-minute entries summed as minutes bill exactly one hour.
	rate := decimal.NewFromInt(1000)
	assert.True(t, AmountFor(60, rate).Equal(decimal.NewFromInt(1000)))

	perEntry := AmountFor(20, rate)
	assert.True(t, perEntry.Mul(decimal.NewFromInt(3)).Equal(decimal.NewFromInt(999)))
}

func TestFormatYen(t *testing.T) {
	tests := map[string]string{
		"0":         "0",
		"999":       "999",
		"1000":      "1,000",
		"11000":     "11,000",
		"1234567":   "1,234,567",
		"-16000":    "-16,000",
		"12500.5":   "12,500.5",
		"100000000": "100,000,000",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatYen(decimal.RequireFromString(in)), in)
	}
}

func TestMarkedUp(t *testing.T) {
	assert.True(t, MarkedUp(decimal.NewFromInt(1001), DefaultMarkup).Equal(decimal.NewFromInt(1202)), "1201.2 ceils")
	assert.True(t, MarkedUp(decimal.NewFromInt(2500), DefaultMarkup).Equal(decimal.NewFromInt(3000)))
}
