package recurrence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cadence/internal/domain"
)

func strptr(s string) *string { return &s }

func TestExpandDaily(t *testing.T) {
	rule := Rule{Type: domain.RecurrenceDaily}

	tests := []struct {
		name        string
		seriesStart string
		seriesEnd   *string
		rangeStart  string
		rangeEnd    string
		expected    []string
	}{
		{
			name:        "bounded series clipped by range",
			seriesStart: "2024-01-01",
			seriesEnd:   strptr("2024-01-10"),
			rangeStart:  "2024-01-05",
			rangeEnd:    "2024-01-20",
			expected: []string{
				"2024-01-05", "2024-01-06", "2024-01-07",
				"2024-01-08", "2024-01-09", "2024-01-10",
			},
		},
		{
			name:        "range before series start",
			seriesStart: "2024-02-01",
			rangeStart:  "2024-01-01",
			rangeEnd:    "2024-01-31",
			expected:    nil,
		},
		{
			name:        "range after series end",
			seriesStart: "2024-01-01",
			seriesEnd:   strptr("2024-01-31"),
			rangeStart:  "2024-02-01",
			rangeEnd:    "2024-02-07",
			expected:    nil,
		},
		{
			name:        "open ended series",
			seriesStart: "2024-01-01",
			rangeStart:  "2024-03-01",
			rangeEnd:    "2024-03-03",
			expected:    []string{"2024-03-01", "2024-03-02", "2024-03-03"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(rule, tt.seriesStart, tt.seriesEnd, tt.rangeStart, tt.rangeEnd)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestExpandWeekly(t *testing.T) {
	// Mon/Wed/Fri over a 14-day window: exactly those weekdays, nothing else.
	rule := Rule{Type: domain.RecurrenceWeekly, DaysOfWeek: []int{1, 3, 5}}

	// 2024-01-01 is a Monday.
	got, err := Expand(rule, "2024-01-01", nil, "2024-01-01", "2024-01-14")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2024-01-01", "2024-01-03", "2024-01-05",
		"2024-01-08", "2024-01-10", "2024-01-12",
	}, got)
}

func TestExpandWeeklyUnsortedDays(t *testing.T) {
	rule := Rule{Type: domain.RecurrenceWeekly, DaysOfWeek: []int{5, 1}}
	got, err := Expand(rule, "2024-01-01", nil, "2024-01-01", "2024-01-07")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-05"}, got)
}

func TestExpandNoneProjectsNothing(t *testing.T) {
	got, err := Expand(Rule{Type: domain.RecurrenceNone}, "2024-01-01", nil, "2024-01-01", "2024-12-31")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExpandEmptyWeeklyProjectsNothing(t *testing.T) {
	// Legacy rows may hold an empty weekday set; the fixed policy is
	// that such a rule never generates occurrences.
	got, err := Expand(Rule{Type: domain.RecurrenceWeekly}, "2024-01-01", nil, "2024-01-01", "2024-12-31")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOccurs(t *testing.T) {
	rule := Rule{Type: domain.RecurrenceWeekly, DaysOfWeek: []int{2}}
	ok, err := Occurs(rule, "2024-01-01", nil, "2024-01-02")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = Occurs(rule, "2024-01-01", nil, "2024-01-03")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{"none", Rule{Type: domain.RecurrenceNone}, false},
		{"daily", Rule{Type: domain.RecurrenceDaily, TimesPerDay: 3}, false},
		{"daily unset times defaults", Rule{Type: domain.RecurrenceDaily}, false},
		{"daily negative times", Rule{Type: domain.RecurrenceDaily, TimesPerDay: -1}, true},
		{"weekly", Rule{Type: domain.RecurrenceWeekly, DaysOfWeek: []int{1, 3, 5}}, false},
		{"weekly empty days", Rule{Type: domain.RecurrenceWeekly}, true},
		{"weekly out of range", Rule{Type: domain.RecurrenceWeekly, DaysOfWeek: []int{0}}, true},
		{"weekly duplicate", Rule{Type: domain.RecurrenceWeekly, DaysOfWeek: []int{2, 2}}, true},
		{"unknown type", Rule{Type: "monthly"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInstances(t *testing.T) {
	assert.Equal(t, 1, Rule{Type: domain.RecurrenceDaily}.Instances())
	assert.Equal(t, 3, Rule{Type: domain.RecurrenceDaily, TimesPerDay: 3}.Instances())
	assert.Equal(t, 1, Rule{Type: domain.RecurrenceWeekly, DaysOfWeek: []int{1}}.Instances())
}

func TestPeriodStart(t *testing.T) {
	// 2024-01-10 is a Wednesday; its week starts Monday 2024-01-08.
	ps, err := PeriodStart("2024-01-10")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-08", ps)

	// Sunday belongs to the week that started the previous Monday.
	ps, err = PeriodStart("2024-01-14")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-08", ps)

	// Monday is its own period start.
	ps, err = PeriodStart("2024-01-08")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-08", ps)
}

func TestPlannedForPeriod(t *testing.T) {
	daily := Rule{Type: domain.RecurrenceDaily, TimesPerDay: 2}
	n, err := PlannedForPeriod(daily, "2024-01-01", nil, "2024-01-08")
	require.NoError(t, err)
	assert.Equal(t, 14, n)

	weekly := Rule{Type: domain.RecurrenceWeekly, DaysOfWeek: []int{1, 3, 5}}
	n, err = PlannedForPeriod(weekly, "2024-01-01", nil, "2024-01-08")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Series ending mid-week reduces the plan.
	n, err = PlannedForPeriod(weekly, "2024-01-01", strptr("2024-01-09"), "2024-01-08")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
