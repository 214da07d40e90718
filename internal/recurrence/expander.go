package recurrence

import (
	"fmt"

	"github.com/teambition/rrule-go"

	"cadence/internal/domain"
)

var rruleWeekdays = map[int]rrule.Weekday{
	1: rrule.MO,
	2: rrule.TU,
	3: rrule.WE,
	4: rrule.TH,
	5: rrule.FR,
	6: rrule.SA,
	7: rrule.SU,
}

// Expand projects a rule onto a date range and returns the default
// occurrence dates, ascending. The projection is the intersection of
// [seriesStart, seriesEnd or open) with [rangeStart, rangeEnd], both
// ends inclusive. Overrides and skips are applied by the caller; this
// is the raw generation only.
func Expand(rule Rule, seriesStart string, seriesEnd *string, rangeStart, rangeEnd string) ([]string, error) {
	if rule.Type == domain.RecurrenceNone {
		return nil, nil
	}
	if rule.Type == domain.RecurrenceWeekly && len(rule.DaysOfWeek) == 0 {
		return nil, nil
	}
	start, err := ParseDate(seriesStart)
	if err != nil {
		return nil, err
	}
	lo, err := ParseDate(rangeStart)
	if err != nil {
		return nil, err
	}
	hi, err := ParseDate(rangeEnd)
	if err != nil {
		return nil, err
	}
	if start.After(lo) {
		lo = start
	}
	if seriesEnd != nil {
		end, err := ParseDate(*seriesEnd)
		if err != nil {
			return nil, err
		}
		if end.Before(hi) {
			hi = end
		}
	}
	if lo.After(hi) {
		return nil, nil
	}

	opt := rrule.ROption{Dtstart: start}
	switch rule.Type {
	case domain.RecurrenceDaily:
		opt.Freq = rrule.DAILY
	case domain.RecurrenceWeekly:
		opt.Freq = rrule.WEEKLY
		for _, d := range rule.NormalizedDays() {
			opt.Byweekday = append(opt.Byweekday, rruleWeekdays[d])
		}
	default:
		return nil, fmt.Errorf("unknown recurrence type %q", rule.Type)
	}
	rr, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("build rrule: %w", err)
	}

	var dates []string
	for _, t := range rr.Between(lo, hi, true) {
		dates = append(dates, FormatDate(t))
	}
	return dates, nil
}

// Occurs reports whether the rule projects an occurrence on the single
// given date. Same semantics as Expand over a one-day range.
func Occurs(rule Rule, seriesStart string, seriesEnd *string, date string) (bool, error) {
	dates, err := Expand(rule, seriesStart, seriesEnd, date, date)
	if err != nil {
		return false, err
	}
	return len(dates) > 0, nil
}

// PeriodStart returns the Monday of the week containing the date.
// Weekly period counters key on this.
func PeriodStart(date string) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return FormatDate(t.AddDate(0, 0, -(Weekday(t) - 1))), nil
}

// PlannedForPeriod computes the planned completion count for the
// weekly reporting window starting at periodStart, from the rule as it
// stands now. Counters snapshot this at lazy creation time.
func PlannedForPeriod(rule Rule, seriesStart string, seriesEnd *string, periodStart string) (int, error) {
	ps, err := ParseDate(periodStart)
	if err != nil {
		return 0, err
	}
	periodEnd := FormatDate(ps.AddDate(0, 0, 6))
	dates, err := Expand(rule, seriesStart, seriesEnd, periodStart, periodEnd)
	if err != nil {
		return 0, err
	}
	return len(dates) * rule.Instances(), nil
}
