package engine

import (
	"context"
	"sort"
	"strconv"

	"cadence/internal/domain"
	"cadence/internal/recurrence"
)

// OccurrencesForRange composes the agenda for [start, end]: rule
// projections minus skips, override fields layered on top, detached
// occurrences and independent tasks appended, goal lineage attached.
// The whole range is built from five batched reads; per-occurrence
// queries would make a month view O(series × days).
func (e Engine) OccurrencesForRange(ctx context.Context, userID, start, end string) ([]domain.AgendaItem, error) {
	if _, err := recurrence.ParseDate(start); err != nil {
		return nil, ValidationError{Field: "start", Reason: err.Error()}
	}
	if _, err := recurrence.ParseDate(end); err != nil {
		return nil, ValidationError{Field: "end", Reason: err.Error()}
	}
	if start > end {
		return nil, ValidationError{Field: "end", Reason: "end date before start date"}
	}
	if e.cache != nil {
		if items, ok := e.cache.get(userID, start, end); ok {
			return items, nil
		}
	}

	series, err := e.Repo.ListActiveSeries(ctx, userID)
	if err != nil {
		return nil, err
	}
	overrides, err := e.Repo.ListOverridesInRange(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	completions, err := e.Repo.ListCompletionsInRange(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	tasks, err := e.Repo.ListTasksInRange(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}

	ovByKey := map[string]domain.OccurrenceOverride{}
	for _, o := range overrides {
		ovByKey[o.SeriesID+"|"+o.Date] = o
	}
	done := map[string]bool{}
	for _, c := range completions {
		done[completionKey(c.SeriesID, c.Date, c.Instance)] = true
	}

	goalIDs := map[string]bool{}
	for _, s := range series {
		if s.GoalID != nil {
			goalIDs[*s.GoalID] = true
		}
	}
	for _, t := range tasks {
		if t.GoalID != nil {
			goalIDs[*t.GoalID] = true
		}
	}
	ids := make([]string, 0, len(goalIDs))
	for id := range goalIDs {
		ids = append(ids, id)
	}
	goals, err := e.Repo.GoalsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	var items []domain.AgendaItem
	for _, s := range series {
		s := s
		rule := recurrence.FromSeries(s)
		dates, err := recurrence.Expand(rule, s.StartDate, s.EndDate, start, end)
		if err != nil {
			return nil, err
		}
		projected := map[string]bool{}
		for _, date := range dates {
			projected[date] = true
			o, hasOverride := ovByKey[s.ID+"|"+date]
			if hasOverride && o.Skip {
				continue
			}
			if hasOverride && o.Detached {
				items = append(items, e.overrideItem(s, o, done, goals))
				continue
			}
			for inst := 1; inst <= rule.Instances(); inst++ {
				item := domain.AgendaItem{
					SeriesID:  &s.ID,
					Date:      date,
					Instance:  inst,
					Title:     s.Title,
					TimeStart: s.TimeStart,
					TimeEnd:   s.TimeEnd,
					Completed: done[completionKey(s.ID, date, inst)],
				}
				if hasOverride {
					if o.Title != nil {
						item.Title = *o.Title
					}
					if o.TimeStart != nil {
						item.TimeStart = o.TimeStart
					}
					if o.TimeEnd != nil {
						item.TimeEnd = o.TimeEnd
					}
				}
				attachGoal(&item, s.GoalID, goals)
				items = append(items, item)
			}
		}
		// Detached occurrences render even where the rule projects
		// nothing; a moved occurrence outlives its series bounds.
		for _, o := range overrides {
			if o.SeriesID != s.ID || !o.Detached || o.Skip || projected[o.Date] {
				continue
			}
			items = append(items, e.overrideItem(s, o, done, goals))
		}
	}

	for _, t := range tasks {
		t := t
		item := domain.AgendaItem{
			TaskID:    &t.ID,
			Date:      t.Date,
			Instance:  1,
			Title:     t.Title,
			TimeStart: t.TimeStart,
			TimeEnd:   t.TimeEnd,
			Completed: t.Completed,
		}
		attachGoal(&item, t.GoalID, goals)
		items = append(items, item)
	}

	sortAgenda(items)
	if e.cache != nil {
		e.cache.put(userID, start, end, items)
	}
	return items, nil
}

func (e Engine) overrideItem(s domain.TaskSeries, o domain.OccurrenceOverride, done map[string]bool, goals map[string]domain.Goal) domain.AgendaItem {
	item := domain.AgendaItem{
		SeriesID:  &o.SeriesID,
		Date:      o.Date,
		Instance:  1,
		Title:     s.Title,
		TimeStart: s.TimeStart,
		TimeEnd:   s.TimeEnd,
		Completed: done[completionKey(o.SeriesID, o.Date, 1)],
		Detached:  true,
	}
	if o.Title != nil {
		item.Title = *o.Title
	}
	if o.TimeStart != nil {
		item.TimeStart = o.TimeStart
	}
	if o.TimeEnd != nil {
		item.TimeEnd = o.TimeEnd
	}
	attachGoal(&item, s.GoalID, goals)
	return item
}

func attachGoal(item *domain.AgendaItem, goalID *string, goals map[string]domain.Goal) {
	if goalID == nil {
		return
	}
	g, ok := goals[*goalID]
	if !ok {
		return
	}
	item.GoalID = goalID
	item.GoalTitle = g.Title
	item.GoalFocus = g.Focused
}

func completionKey(seriesID, date string, instance int) string {
	return seriesID + "|" + date + "|" + strconv.Itoa(instance)
}

// sortAgenda orders a day: timed occurrences ascending by start time,
// unscheduled ones last, title breaking ties.
func sortAgenda(items []domain.AgendaItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		switch {
		case a.TimeStart != nil && b.TimeStart == nil:
			return true
		case a.TimeStart == nil && b.TimeStart != nil:
			return false
		case a.TimeStart != nil && b.TimeStart != nil && *a.TimeStart != *b.TimeStart:
			return *a.TimeStart < *b.TimeStart
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.Instance < b.Instance
	})
}
