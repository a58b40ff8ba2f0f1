package timewindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = mustDate("2024-10-19") // a Saturday

func mustDate(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func assertRange(t *testing.T, w Window, start, end string) {
	t.Helper()
	require.Equal(t, Range, w.Kind, "window %v", w)
	assert.Equal(t, start, w.StartDate())
	assert.Equal(t, end, w.EndDate())
}

func assertHorizon(t *testing.T, w Window, days int) {
	t.Helper()
	require.Equal(t, Horizon, w.Kind, "window %v", w)
	assert.Equal(t, days, w.Days)
}

func TestResolveDays(t *testing.T) {
	assertRange(t, ResolveDays(today, Last, 5), "2024-10-14", "2024-10-18")
	assertRange(t, ResolveDays(today, Last, 1), "2024-10-18", "2024-10-18")
	assertHorizon(t, ResolveDays(today, Next, 5), 5)
}

func TestResolveDaysLength(t *testing.T) {
	start := mustDate("2023-12-20")
	for d := 0; d < 120; d++ {
		date := start.AddDate(0, 0, d)
		for n := 1; n <= 62; n++ {
			w := ResolveDays(date, Last, n)
			require.Equal(t, Range, w.Kind)
			require.Equal(t, date.AddDate(0, 0, -1), w.End, "date %s n %d", date.Format(DateLayout), n)
			require.Equal(t, n, daysBetween(w.Start, w.End)+1, "date %s n %d", date.Format(DateLayout), n)
		}
	}
}

func TestResolveWeeks(t *testing.T) {
	assertRange(t, ResolveWeeks(today, Last, 2), "2024-09-30", "2024-10-13")
	assertRange(t, ResolveWeeks(today, Last, 1), "2024-10-07", "2024-10-13")

	// From a Saturday, next week ends on Sunday 2024-10-27.
	assertHorizon(t, ResolveWeeks(today, Next, 1), 8)
	assertHorizon(t, ResolveWeeks(today, Next, 3), 22)

	monday := mustDate("2024-10-14")
	assertRange(t, ResolveWeeks(monday, Last, 1), "2024-10-07", "2024-10-13")
	assertHorizon(t, ResolveWeeks(monday, Next, 1), 13)
}

func TestResolveWeeksAlignment(t *testing.T) {
	start := mustDate("2024-01-01")
	for d := 0; d < 366; d++ {
		date := start.AddDate(0, 0, d)
		w := ResolveWeeks(date, Last, 3)
		require.Equal(t, time.Monday, w.Start.Weekday(), date.Format(DateLayout))
		require.Equal(t, time.Sunday, w.End.Weekday(), date.Format(DateLayout))
		require.Equal(t, 21, daysBetween(w.Start, w.End)+1)

		h := ResolveWeeks(date, Next, 2)
		require.Equal(t, time.Sunday, date.AddDate(0, 0, h.Days).Weekday(), date.Format(DateLayout))
	}
}

func TestResolveMonths(t *testing.T) {
	assertRange(t, ResolveMonths(today, Last, 1), "2024-09-01", "2024-09-30")
	assertRange(t, ResolveMonths(today, Last, 2), "2024-08-01", "2024-09-30")
	assertRange(t, ResolveMonths(today, Last, 12), "2023-10-01", "2024-09-30")

	assertHorizon(t, ResolveMonths(today, Next, 1), 42)
	assertHorizon(t, ResolveMonths(today, Next, 3), 104)
}

func TestResolveMonthsCalendarEdges(t *testing.T) {
	// Leap February.
	assertRange(t, ResolveMonths(mustDate("2024-03-31"), Last, 1), "2024-02-01", "2024-02-29")
	assertRange(t, ResolveMonths(mustDate("2023-03-31"), Last, 1), "2023-02-01", "2023-02-28")
	assertHorizon(t, ResolveMonths(mustDate("2024-01-31"), Next, 1), 29)

	// Year rollover.
	assertRange(t, ResolveMonths(mustDate("2025-01-10"), Last, 2), "2024-11-01", "2024-12-31")
	assertHorizon(t, ResolveMonths(mustDate("2024-12-31"), Next, 1), 31)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		literal string
		want    Spec
	}{
		{"NULL", Spec{Kind: SpecNull}},
		{"  null ", Spec{Kind: SpecNull}},
		{"'NULL'", Spec{Kind: SpecNull}},
		{"2024-05-03 -> 2024-06-07", Spec{Kind: SpecAbsolute, Start: "2024-05-03", End: "2024-06-07"}},
		{"2024-05-03->2024-06-07", Spec{Kind: SpecAbsolute, Start: "2024-05-03", End: "2024-06-07"}},
		{"<last, 5, days>", Spec{Kind: SpecRelative, Direction: Last, Amount: 5, Unit: Days}},
		{"<next,3,weeks>", Spec{Kind: SpecRelative, Direction: Next, Amount: 3, Unit: Weeks}},
		{"< Next , 1 , month >", Spec{Kind: SpecRelative, Direction: Next, Amount: 1, Unit: Months}},
	}
	for _, tt := range tests {
		t.Run(tt.literal, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode(tt.literal))
		})
	}
}

func TestDecodeInvalid(t *testing.T) {
	for _, literal := range []string{
		"",
		"yesterday",
		"<last, 5>",
		"<last, five, days>",
		"<soon, 5, days>",
		"<last, 5, years>",
		"<last, 5, days",
		"<last, -2, days>",
		"NONE",
		"<last, 10001, days>",
		"<next, 1317624576693539402, weeks>",
	} {
		t.Run(literal, func(t *testing.T) {
			spec := Decode(literal)
			assert.Equal(t, SpecInvalid, spec.Kind)
			assert.NotEmpty(t, spec.Reason)
		})
	}
}

func TestResolveNullDefaults(t *testing.T) {
	w, err := Resolve("NULL", Calculation, today)
	require.NoError(t, err)
	assertRange(t, w, "2024-09-19", "2024-10-18")

	w, err = Resolve("NULL", Prediction, today)
	require.NoError(t, err)
	assertHorizon(t, w, 30)
}

func TestResolveAbsolute(t *testing.T) {
	tests := []struct {
		name    string
		literal string
		mode    Mode
		start   string
		end     string
		horizon int
		invalid bool
	}{
		{name: "future calc", literal: "2024-11-01 -> 2024-11-30", mode: Calculation, invalid: true},
		{name: "future prediction", literal: "2024-11-01 -> 2024-11-30", mode: Prediction, horizon: 42},
		{name: "past calc", literal: "2024-05-03 -> 2024-06-07", mode: Calculation, start: "2024-05-03", end: "2024-06-07"},
		{name: "past prediction", literal: "2024-05-03 -> 2024-06-07", mode: Prediction, invalid: true},
		{name: "straddling calc is clipped", literal: "2024-10-01 -> 2024-10-31", mode: Calculation, start: "2024-10-01", end: "2024-10-18"},
		{name: "straddling prediction", literal: "2024-10-01 -> 2024-10-31", mode: Prediction, horizon: 12},
		{name: "yesterday", literal: "2024-10-18 -> 2024-10-18", mode: Calculation, start: "2024-10-18", end: "2024-10-18"},
		{name: "today calc", literal: "2024-10-19 -> 2024-10-19", mode: Calculation, invalid: true},
		{name: "today prediction", literal: "2024-10-19 -> 2024-10-19", mode: Prediction, invalid: true},
		{name: "tomorrow", literal: "2024-10-20 -> 2024-10-20", mode: Prediction, horizon: 1},
		{name: "reversed", literal: "2024-11-20 -> 2024-11-18", mode: Prediction, invalid: true},
		{name: "bad start", literal: "2024-13-01 -> 2024-11-18", mode: Calculation, invalid: true},
		{name: "bad end", literal: "2024-10-01 -> 18/11/2024", mode: Calculation, invalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := Resolve(tt.literal, tt.mode, today)
			if tt.invalid {
				require.ErrorIs(t, err, ErrInvalidWindow)
				assert.Equal(t, Invalid, w.Kind)
				return
			}
			require.NoError(t, err)
			if tt.mode == Prediction {
				assertHorizon(t, w, tt.horizon)
			} else {
				assertRange(t, w, tt.start, tt.end)
			}
		})
	}
}

func TestResolveRelative(t *testing.T) {
	w, err := Resolve("<last, 2, months>", Calculation, today)
	require.NoError(t, err)
	assertRange(t, w, "2024-08-01", "2024-09-30")

	w, err = Resolve("<next, 3, weeks>", Prediction, today)
	require.NoError(t, err)
	assertHorizon(t, w, 22)

	for _, tc := range []struct {
		literal string
		mode    Mode
	}{
		{"<next, 2, days>", Calculation},
		{"<last, 2, days>", Prediction},
		{"<last, 0, days>", Calculation},
		{"<next, 0, months>", Prediction},
		{"<last, 2, fortnights>", Calculation},
		{"<next, 1317624576693539402, weeks>", Prediction},
		{"<last, 9223372036854775807, days>", Calculation},
		{"<next, 10001, days>", Prediction},
	} {
		w, err := Resolve(tc.literal, tc.mode, today)
		assert.ErrorIs(t, err, ErrInvalidWindow, tc.literal)
		assert.Equal(t, Invalid, w.Kind, tc.literal)
	}

	// The largest accepted amounts still give well-formed windows.
	for _, tc := range []struct {
		literal string
		mode    Mode
	}{
		{"<last, 10000, days>", Calculation},
		{"<last, 10000, weeks>", Calculation},
		{"<last, 10000, months>", Calculation},
		{"<next, 10000, weeks>", Prediction},
		{"<next, 10000, months>", Prediction},
	} {
		w, err := Resolve(tc.literal, tc.mode, today)
		require.NoError(t, err, tc.literal)
		if tc.mode == Prediction {
			assert.Equal(t, Horizon, w.Kind, tc.literal)
			assert.Positive(t, w.Days, tc.literal)
			continue
		}
		assert.Equal(t, Range, w.Kind, tc.literal)
		assert.False(t, w.End.Before(w.Start), tc.literal)
		assert.True(t, w.End.Before(today), tc.literal)
	}

	// 2024-10-19 to 2858-02-28.
	w, err = Resolve("<next, 10000, months>", Prediction, today)
	require.NoError(t, err)
	assertHorizon(t, w, 304379)
}

func TestResolveIgnoresClock(t *testing.T) {
	late := time.Date(2024, 10, 19, 23, 59, 0, 0, time.UTC)
	w, err := Resolve("<last, 5, days>", Calculation, late)
	require.NoError(t, err)
	assertRange(t, w, "2024-10-14", "2024-10-18")
}

func TestWindowString(t *testing.T) {
	assert.Equal(t, "2024-10-14 -> 2024-10-18", ResolveDays(today, Last, 5).String())
	assert.Equal(t, "+5d", ResolveDays(today, Next, 5).String())
	assert.Equal(t, "invalid", Window{}.String())
}
