package recurrence

import (
	"fmt"
	"sort"
	"time"

	"cadence/internal/domain"
)

// Rule is the canonical recurrence shape attached to a series.
// Weekdays are ISO numbered, Monday=1 through Sunday=7.
type Rule struct {
	Type        string
	TimesPerDay int
	DaysOfWeek  []int
}

// FromSeries builds the canonical rule from a stored series row.
func FromSeries(s domain.TaskSeries) Rule {
	return Rule{
		Type:        s.RecurrenceType,
		TimesPerDay: s.TimesPerDay,
		DaysOfWeek:  s.DaysOfWeek,
	}
}

// Validate rejects malformed rules. An empty weekday set on a weekly
// rule is rejected here on every write path; the expander treats a
// legacy empty set as projecting nothing, so both paths agree that
// such a rule never generates occurrences.
func (r Rule) Validate() error {
	switch r.Type {
	case domain.RecurrenceNone:
		return nil
	case domain.RecurrenceDaily:
		// Zero means unset and defaults to one instance per day.
		if r.TimesPerDay < 0 {
			return fmt.Errorf("times_per_day must not be negative")
		}
		return nil
	case domain.RecurrenceWeekly:
		if len(r.DaysOfWeek) == 0 {
			return fmt.Errorf("weekly rule requires at least one weekday")
		}
		seen := map[int]bool{}
		for _, d := range r.DaysOfWeek {
			if d < 1 || d > 7 {
				return fmt.Errorf("weekday %d out of range 1..7", d)
			}
			if seen[d] {
				return fmt.Errorf("weekday %d repeated", d)
			}
			seen[d] = true
		}
		return nil
	default:
		return fmt.Errorf("unknown recurrence type %q", r.Type)
	}
}

// Instances returns how many independently completable instances each
// projected date yields.
func (r Rule) Instances() int {
	if r.Type == domain.RecurrenceDaily && r.TimesPerDay > 1 {
		return r.TimesPerDay
	}
	return 1
}

// NormalizedDays returns the weekday set sorted ascending.
func (r Rule) NormalizedDays() []int {
	out := append([]int(nil), r.DaysOfWeek...)
	sort.Ints(out)
	return out
}

// DateLayout is the storage form of user-local calendar dates. Dates
// carry no zone; all conversions pin to UTC midnight.
const DateLayout = "2006-01-02"

func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Weekday returns the ISO weekday (Mon=1..Sun=7) for a date.
func Weekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
