package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cadence/internal/domain"
	"cadence/internal/events"
	"cadence/internal/recurrence"
	"cadence/internal/repo"
)

// inflightSet coalesces concurrent toggles of the same occurrence.
// Rapid double-clicks from a view otherwise race the read-check-write
// and drift the period counter.
type inflightSet struct {
	mu sync.Mutex
	m  map[string]bool
}

func newInflightSet() *inflightSet {
	return &inflightSet{m: map[string]bool{}}
}

func (s *inflightSet) begin(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m[key] {
		return false
	}
	s.m[key] = true
	return true
}

func (s *inflightSet) end(key string) {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}

// CompletionRef names one completable occurrence: either an instance
// of a series on a date, or an independent task.
type CompletionRef struct {
	SeriesID string
	TaskID   string
	Date     string
	Instance int
}

// SetCompletion drives an occurrence to the desired completion state.
// It is a desired-state write, not a delta: setting an already
// completed instance to completed is a no-op, and the period counter
// only moves when a completion row is actually created or removed.
func (e Engine) SetCompletion(ctx context.Context, userID string, ref CompletionRef, desired bool, actorID string) error {
	if (ref.SeriesID == "") == (ref.TaskID == "") {
		return ValidationError{Reason: "exactly one of series_id and task_id must be set"}
	}
	if ref.TaskID != "" {
		return e.setTaskCompletion(ctx, userID, ref.TaskID, desired, actorID)
	}
	if _, err := recurrence.ParseDate(ref.Date); err != nil {
		return ValidationError{Field: "date", Reason: err.Error()}
	}
	if ref.Instance == 0 {
		ref.Instance = 1
	}

	key := fmt.Sprintf("s|%s|%s|%d", ref.SeriesID, ref.Date, ref.Instance)
	if !e.inflight.begin(key) {
		// A toggle for this occurrence is already being applied;
		// coalesce rather than racing it.
		return nil
	}
	defer e.inflight.end(key)

	s, err := e.ownedSeries(ctx, userID, ref.SeriesID)
	if err != nil {
		return err
	}
	rule := recurrence.FromSeries(s)
	if ref.Instance < 1 || ref.Instance > rule.Instances() {
		return ValidationError{Field: "instance", Reason: fmt.Sprintf("instance %d out of range 1..%d", ref.Instance, rule.Instances())}
	}
	if err := e.ensureCompletable(ctx, s, rule, ref.Date); err != nil {
		return err
	}
	periodStart, err := recurrence.PeriodStart(ref.Date)
	if err != nil {
		return err
	}
	planned, err := recurrence.PlannedForPeriod(rule, s.StartDate, s.EndDate, periodStart)
	if err != nil {
		return err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureCounter(ctx, tx, s.ID, periodStart, planned); err != nil {
		return err
	}
	_, err = e.Repo.GetCompletionTx(ctx, tx, s.ID, ref.Date, ref.Instance)
	completed := err == nil
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	if completed == desired {
		return nil
	}
	if desired {
		rec := domain.CompletionRecord{SeriesID: s.ID, Date: ref.Date, Instance: ref.Instance, CompletedAt: e.nowRFC()}
		if err := e.Repo.InsertCompletion(ctx, tx, rec); err != nil {
			return err
		}
		if err := e.Repo.AdjustCounter(ctx, tx, s.ID, periodStart, 1); err != nil {
			return err
		}
	} else {
		removed, err := e.Repo.DeleteCompletion(ctx, tx, s.ID, ref.Date, ref.Instance)
		if err != nil {
			return err
		}
		if removed {
			if err := e.Repo.AdjustCounter(ctx, tx, s.ID, periodStart, -1); err != nil {
				return err
			}
		}
	}
	if err := e.Events.Append(ctx, tx, "completion.set", userID, "occurrence", s.ID+"/"+ref.Date, actorID, events.EventPayload{
		"date": ref.Date, "instance": ref.Instance, "completed": desired,
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.invalidate(userID)
	return nil
}

// ensureCompletable rejects toggles on dates where no occurrence
// exists: outside the projection, or removed by a skip.
func (e Engine) ensureCompletable(ctx context.Context, s domain.TaskSeries, rule recurrence.Rule, date string) error {
	o, err := e.Repo.GetOverride(ctx, s.ID, date)
	if err == nil {
		if o.Skip {
			return ValidationError{Field: "date", Reason: "occurrence removed from this date"}
		}
		if o.Detached {
			return nil
		}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	occurs, err := recurrence.Occurs(rule, s.StartDate, s.EndDate, date)
	if err != nil {
		return err
	}
	if !occurs {
		return ValidationError{Field: "date", Reason: "series has no occurrence on this date"}
	}
	return nil
}

// setTaskCompletion flips the standalone task flag. Independent tasks
// feed no period counter.
func (e Engine) setTaskCompletion(ctx context.Context, userID, taskID string, desired bool, actorID string) error {
	key := "t|" + taskID
	if !e.inflight.begin(key) {
		return nil
	}
	defer e.inflight.end(key)

	t, err := e.ownedTask(ctx, userID, taskID)
	if err != nil {
		return err
	}
	if t.Completed == desired {
		return nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetTaskCompleted(ctx, tx, t.ID, desired, e.nowRFC()); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.completion.set", userID, "task", t.ID, actorID, events.EventPayload{"completed": desired}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.invalidate(userID)
	return nil
}
