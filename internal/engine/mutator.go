package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"cadence/internal/domain"
	"cadence/internal/events"
	"cadence/internal/recurrence"
	"cadence/internal/repo"
)

// ownedSeries resolves a live series belonging to the user. Foreign
// and soft-deleted rows surface as not found; ownership leaks nothing.
func (e Engine) ownedSeries(ctx context.Context, userID, id string) (domain.TaskSeries, error) {
	s, err := e.Repo.GetSeries(ctx, id)
	if err != nil {
		return s, err
	}
	if s.UserID != userID || s.DeletedAt != nil {
		return domain.TaskSeries{}, repo.ErrNotFound
	}
	return s, nil
}

func (e Engine) ownedTask(ctx context.Context, userID, id string) (domain.IndependentTask, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, err
	}
	if t.UserID != userID || t.DeletedAt != nil {
		return domain.IndependentTask{}, repo.ErrNotFound
	}
	return t, nil
}

// SeriesCreateOptions are parameters for creating a series.
type SeriesCreateOptions struct {
	ID             string
	UserID         string
	Title          string
	RecurrenceType string
	TimesPerDay    int
	DaysOfWeek     []int
	TimeStart      *string
	TimeEnd        *string
	StartDate      string
	EndDate        *string
	GoalID         *string
	ActorID        string
}

func (e Engine) CreateSeries(ctx context.Context, opts SeriesCreateOptions) (domain.TaskSeries, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.TaskSeries{}, ValidationError{Field: "title", Reason: "title is required"}
	}
	if opts.UserID == "" {
		return domain.TaskSeries{}, ValidationError{Field: "user_id", Reason: "user is required"}
	}
	start, err := recurrence.ParseDate(opts.StartDate)
	if err != nil {
		return domain.TaskSeries{}, ValidationError{Field: "start_date", Reason: err.Error()}
	}
	if opts.EndDate != nil {
		end, err := recurrence.ParseDate(*opts.EndDate)
		if err != nil {
			return domain.TaskSeries{}, ValidationError{Field: "end_date", Reason: err.Error()}
		}
		if end.Before(start) {
			return domain.TaskSeries{}, ValidationError{Field: "end_date", Reason: "end date before start date"}
		}
	}
	if opts.RecurrenceType == "" {
		opts.RecurrenceType = domain.RecurrenceNone
	}
	rule := recurrence.Rule{Type: opts.RecurrenceType, TimesPerDay: opts.TimesPerDay, DaysOfWeek: opts.DaysOfWeek}
	if err := rule.Validate(); err != nil {
		return domain.TaskSeries{}, ValidationError{Field: "recurrence", Reason: err.Error()}
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.nowRFC()
	s := domain.TaskSeries{
		ID:             id,
		UserID:         opts.UserID,
		Title:          opts.Title,
		RecurrenceType: opts.RecurrenceType,
		TimesPerDay:    opts.TimesPerDay,
		DaysOfWeek:     rule.NormalizedDays(),
		TimeStart:      opts.TimeStart,
		TimeEnd:        opts.TimeEnd,
		StartDate:      opts.StartDate,
		EndDate:        opts.EndDate,
		GoalID:         opts.GoalID,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskSeries{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureUser(ctx, tx, s.UserID, now); err != nil {
		return domain.TaskSeries{}, err
	}
	if err := e.Repo.InsertSeries(ctx, tx, s); err != nil {
		return domain.TaskSeries{}, err
	}
	if err := e.Events.Append(ctx, tx, "series.created", s.UserID, "series", s.ID, opts.ActorID, events.EventPayload{"title": s.Title, "recurrence_type": s.RecurrenceType}); err != nil {
		return domain.TaskSeries{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskSeries{}, err
	}
	e.invalidate(s.UserID)
	return s, nil
}

func (e Engine) UpdateSeries(ctx context.Context, userID, id string, u repo.SeriesUpdate, actorID string) (domain.TaskSeries, error) {
	if _, err := e.ownedSeries(ctx, userID, id); err != nil {
		return domain.TaskSeries{}, err
	}
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return domain.TaskSeries{}, ValidationError{Field: "title", Reason: "title is required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskSeries{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateSeriesFields(ctx, tx, id, u, e.nowRFC()); err != nil {
		return domain.TaskSeries{}, err
	}
	if err := e.Events.Append(ctx, tx, "series.updated", userID, "series", id, actorID, events.EventPayload{}); err != nil {
		return domain.TaskSeries{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskSeries{}, err
	}
	e.invalidate(userID)
	return e.Repo.GetSeries(ctx, id)
}

// TaskCreateOptions are parameters for creating an independent task.
type TaskCreateOptions struct {
	ID        string
	UserID    string
	Title     string
	Date      string
	TimeStart *string
	TimeEnd   *string
	GoalID    *string
	ActorID   string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.IndependentTask, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.IndependentTask{}, ValidationError{Field: "title", Reason: "title is required"}
	}
	if _, err := recurrence.ParseDate(opts.Date); err != nil {
		return domain.IndependentTask{}, ValidationError{Field: "date", Reason: err.Error()}
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.nowRFC()
	t := domain.IndependentTask{
		ID:        id,
		UserID:    opts.UserID,
		Title:     opts.Title,
		Date:      opts.Date,
		TimeStart: opts.TimeStart,
		TimeEnd:   opts.TimeEnd,
		GoalID:    opts.GoalID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.IndependentTask{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureUser(ctx, tx, t.UserID, now); err != nil {
		return domain.IndependentTask{}, err
	}
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.IndependentTask{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", t.UserID, "task", t.ID, opts.ActorID, events.EventPayload{"title": t.Title, "date": t.Date}); err != nil {
		return domain.IndependentTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.IndependentTask{}, err
	}
	e.invalidate(t.UserID)
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, userID, taskID, actorID string) error {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.UserID != userID {
		return repo.ErrNotFound
	}
	if t.DeletedAt != nil {
		return nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	ts := e.nowRFC()
	if err := e.Repo.SoftDeleteTask(ctx, tx, taskID, ts); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", userID, "task", taskID, actorID, events.EventPayload{}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.invalidate(userID)
	return nil
}

// ConvertToRecurring promotes an independent task into a new series
// whose projection starts at the task's date. A completed task carries
// its completion into the first occurrence when the rule lands there.
func (e Engine) ConvertToRecurring(ctx context.Context, userID, taskID string, rule recurrence.Rule, actorID string) (domain.TaskSeries, error) {
	t, err := e.ownedTask(ctx, userID, taskID)
	if err != nil {
		return domain.TaskSeries{}, err
	}
	if err := rule.Validate(); err != nil {
		return domain.TaskSeries{}, ValidationError{Field: "recurrence", Reason: err.Error()}
	}
	if rule.Type == domain.RecurrenceNone {
		return domain.TaskSeries{}, ValidationError{Field: "recurrence", Reason: "a recurrence rule is required"}
	}
	now := e.nowRFC()
	s := domain.TaskSeries{
		ID:             uuid.New().String(),
		UserID:         userID,
		Title:          t.Title,
		RecurrenceType: rule.Type,
		TimesPerDay:    rule.TimesPerDay,
		DaysOfWeek:     rule.NormalizedDays(),
		TimeStart:      t.TimeStart,
		TimeEnd:        t.TimeEnd,
		StartDate:      t.Date,
		GoalID:         t.GoalID,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskSeries{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertSeries(ctx, tx, s); err != nil {
		return domain.TaskSeries{}, err
	}
	if err := e.Repo.LinkTaskToSeries(ctx, tx, t.ID, s.ID, now); err != nil {
		return domain.TaskSeries{}, err
	}
	// The origin date becomes the first detached occurrence, so it
	// stays visible even when the rule does not project it.
	origin := domain.OccurrenceOverride{
		SeriesID:  s.ID,
		Date:      t.Date,
		Detached:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.Repo.UpsertOverride(ctx, tx, origin); err != nil {
		return domain.TaskSeries{}, err
	}
	if t.Completed {
		periodStart, err := recurrence.PeriodStart(t.Date)
		if err != nil {
			return domain.TaskSeries{}, err
		}
		planned, err := recurrence.PlannedForPeriod(rule, s.StartDate, s.EndDate, periodStart)
		if err != nil {
			return domain.TaskSeries{}, err
		}
		if err := e.Repo.EnsureCounter(ctx, tx, s.ID, periodStart, planned); err != nil {
			return domain.TaskSeries{}, err
		}
		rec := domain.CompletionRecord{SeriesID: s.ID, Date: t.Date, Instance: 1, CompletedAt: now}
		if err := e.Repo.InsertCompletion(ctx, tx, rec); err != nil {
			return domain.TaskSeries{}, err
		}
		if err := e.Repo.AdjustCounter(ctx, tx, s.ID, periodStart, 1); err != nil {
			return domain.TaskSeries{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "task.converted_recurring", userID, "series", s.ID, actorID, events.EventPayload{"task_id": t.ID, "recurrence_type": rule.Type}); err != nil {
		return domain.TaskSeries{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskSeries{}, err
	}
	e.invalidate(userID)
	return s, nil
}

// ConvertToIndependent collapses a series into one standalone task at
// keepDate. The series is ended the day before keepDate so earlier
// occurrences and their history survive; keepDate itself is
// materialized as the task, carrying any override fields and the
// completion state of instance 1. A keepDate on or before the start
// date means the series never produced a kept occurrence: it is
// deleted outright and no task is returned.
func (e Engine) ConvertToIndependent(ctx context.Context, userID, seriesID, keepDate, actorID string) (*domain.IndependentTask, error) {
	s, err := e.ownedSeries(ctx, userID, seriesID)
	if err != nil {
		return nil, err
	}
	keep, err := recurrence.ParseDate(keepDate)
	if err != nil {
		return nil, ValidationError{Field: "keep_date", Reason: err.Error()}
	}
	now := e.nowRFC()
	if keepDate <= s.StartDate {
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback()
		if err := e.Repo.SoftDeleteSeries(ctx, tx, seriesID, now); err != nil {
			return nil, err
		}
		if err := e.Repo.SoftDeleteAllOverrides(ctx, tx, seriesID, now); err != nil {
			return nil, err
		}
		if err := e.Events.Append(ctx, tx, "series.converted_independent", userID, "series", seriesID, actorID, events.EventPayload{"series_id": seriesID, "keep_date": keepDate, "kept": false}); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		e.invalidate(userID)
		return nil, nil
	}
	rule := recurrence.FromSeries(s)
	if err := e.ensureCompletable(ctx, s, rule, keepDate); err != nil {
		return nil, err
	}
	title := s.Title
	timeStart, timeEnd := s.TimeStart, s.TimeEnd
	o, err := e.Repo.GetOverride(ctx, seriesID, keepDate)
	if err == nil {
		if o.Title != nil {
			title = *o.Title
		}
		if o.TimeStart != nil {
			timeStart = o.TimeStart
		}
		if o.TimeEnd != nil {
			timeEnd = o.TimeEnd
		}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	_, err = e.Repo.GetCompletion(ctx, seriesID, keepDate, 1)
	completed := err == nil
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	t := domain.IndependentTask{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		Date:      keepDate,
		TimeStart: timeStart,
		TimeEnd:   timeEnd,
		Completed: completed,
		SeriesID:  &seriesID,
		GoalID:    s.GoalID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return nil, err
	}
	// Clamp, never extend: a detached keepDate past the current end
	// must not reopen the projection window.
	end := recurrence.FormatDate(keep.AddDate(0, 0, -1))
	if s.EndDate == nil || end < *s.EndDate {
		if err := e.Repo.SetSeriesEndDate(ctx, tx, seriesID, &end, now); err != nil {
			return nil, err
		}
	}
	// Exception rows from keepDate onward are retired: the keepDate
	// row is absorbed into the task, later ones refer to dates the
	// series no longer projects.
	if err := e.Repo.SoftDeleteOverridesFrom(ctx, tx, seriesID, keepDate, now); err != nil {
		return nil, err
	}
	if err := e.Events.Append(ctx, tx, "series.converted_independent", userID, "task", t.ID, actorID, events.EventPayload{"series_id": seriesID, "keep_date": keepDate, "kept": true}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	e.invalidate(userID)
	return &t, nil
}

// SplitOptions carries optional field and rule changes applied to the
// new series produced by a split.
type SplitOptions struct {
	Title     *string
	TimeStart **string
	TimeEnd   **string
	Rule      *recurrence.Rule
}

// SplitSeries ends the series the day before splitDate and creates a
// successor starting at splitDate. Exception rows and completion
// records dated at or after the split follow the successor so the two
// projections stay disjoint.
func (e Engine) SplitSeries(ctx context.Context, userID, seriesID, splitDate string, opts SplitOptions, actorID string) (domain.TaskSeries, error) {
	s, err := e.ownedSeries(ctx, userID, seriesID)
	if err != nil {
		return domain.TaskSeries{}, err
	}
	split, err := recurrence.ParseDate(splitDate)
	if err != nil {
		return domain.TaskSeries{}, ValidationError{Field: "split_date", Reason: err.Error()}
	}
	start, err := recurrence.ParseDate(s.StartDate)
	if err != nil {
		return domain.TaskSeries{}, err
	}
	if !split.After(start) {
		return domain.TaskSeries{}, ValidationError{Field: "split_date", Reason: "split date must be after series start"}
	}
	if s.EndDate != nil && *s.EndDate < splitDate {
		return domain.TaskSeries{}, ValidationError{Field: "split_date", Reason: "split date beyond series end"}
	}
	rule := recurrence.FromSeries(s)
	if opts.Rule != nil {
		rule = *opts.Rule
		if err := rule.Validate(); err != nil {
			return domain.TaskSeries{}, ValidationError{Field: "recurrence", Reason: err.Error()}
		}
	}
	now := e.nowRFC()
	succ := domain.TaskSeries{
		ID:             uuid.New().String(),
		UserID:         userID,
		Title:          s.Title,
		RecurrenceType: rule.Type,
		TimesPerDay:    rule.TimesPerDay,
		DaysOfWeek:     rule.NormalizedDays(),
		TimeStart:      s.TimeStart,
		TimeEnd:        s.TimeEnd,
		StartDate:      splitDate,
		EndDate:        s.EndDate,
		GoalID:         s.GoalID,
		Active:         s.Active,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if opts.Title != nil {
		succ.Title = *opts.Title
	}
	if opts.TimeStart != nil {
		succ.TimeStart = *opts.TimeStart
	}
	if opts.TimeEnd != nil {
		succ.TimeEnd = *opts.TimeEnd
	}
	newEnd := recurrence.FormatDate(split.AddDate(0, 0, -1))

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskSeries{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetSeriesEndDate(ctx, tx, seriesID, &newEnd, now); err != nil {
		return domain.TaskSeries{}, err
	}
	if err := e.Repo.InsertSeries(ctx, tx, succ); err != nil {
		return domain.TaskSeries{}, err
	}
	if err := e.Repo.ReassignOverridesFrom(ctx, tx, seriesID, succ.ID, splitDate, now); err != nil {
		return domain.TaskSeries{}, err
	}
	if err := e.Repo.ReassignCompletionsFrom(ctx, tx, seriesID, succ.ID, splitDate); err != nil {
		return domain.TaskSeries{}, err
	}
	if err := e.Events.Append(ctx, tx, "series.split", userID, "series", seriesID, actorID, events.EventPayload{"split_date": splitDate, "successor_id": succ.ID}); err != nil {
		return domain.TaskSeries{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskSeries{}, err
	}
	e.invalidate(userID)
	return succ, nil
}

// DeleteOccurrence removes a single occurrence from its date. It is a
// skip under the hood, so deleting the same occurrence twice is a
// retried no-op.
func (e Engine) DeleteOccurrence(ctx context.Context, userID, seriesID, date, actorID string) error {
	return e.MarkSkip(ctx, userID, seriesID, date, actorID)
}

// DeleteFutureOccurrences clamps the series to end the day before
// fromDate and retires exception rows in the removed range. When the
// clamp empties the projection entirely, the whole series is deleted.
func (e Engine) DeleteFutureOccurrences(ctx context.Context, userID, seriesID, fromDate, actorID string) error {
	s, err := e.ownedSeries(ctx, userID, seriesID)
	if err != nil {
		return err
	}
	from, err := recurrence.ParseDate(fromDate)
	if err != nil {
		return ValidationError{Field: "from", Reason: err.Error()}
	}
	start, err := recurrence.ParseDate(s.StartDate)
	if err != nil {
		return err
	}
	if !from.After(start) {
		return e.DeleteEntireSeries(ctx, userID, seriesID, actorID)
	}
	newEnd := recurrence.FormatDate(from.AddDate(0, 0, -1))
	now := e.nowRFC()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetSeriesEndDate(ctx, tx, seriesID, &newEnd, now); err != nil {
		return err
	}
	if err := e.Repo.SoftDeleteOverridesFrom(ctx, tx, seriesID, fromDate, now); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "series.future_deleted", userID, "series", seriesID, actorID, events.EventPayload{"from": fromDate}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.invalidate(userID)
	return nil
}

// DeleteEntireSeries soft-deletes the series and all its exception
// rows. Deleting an already deleted series is a retry, not an error.
func (e Engine) DeleteEntireSeries(ctx context.Context, userID, seriesID, actorID string) error {
	s, err := e.Repo.GetSeries(ctx, seriesID)
	if err != nil {
		return err
	}
	if s.UserID != userID {
		return repo.ErrNotFound
	}
	if s.DeletedAt != nil {
		return nil
	}
	now := e.nowRFC()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SoftDeleteSeries(ctx, tx, seriesID, now); err != nil {
		return err
	}
	if err := e.Repo.SoftDeleteAllOverrides(ctx, tx, seriesID, now); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "series.deleted", userID, "series", seriesID, actorID, events.EventPayload{}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.invalidate(userID)
	return nil
}
