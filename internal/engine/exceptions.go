package engine

import (
	"context"
	"errors"

	"cadence/internal/domain"
	"cadence/internal/events"
	"cadence/internal/recurrence"
	"cadence/internal/repo"
)

// OverrideChange carries optional per-occurrence field edits. A nil
// field keeps the prior value; for the nullable time fields, a
// non-nil outer pointer to nil clears the override back to the series
// default.
type OverrideChange struct {
	Title     *string
	TimeStart **string
	TimeEnd   **string
}

// UpsertOverride materializes or merges the exception row for one
// occurrence. Unspecified fields keep whatever was stored before.
func (e Engine) UpsertOverride(ctx context.Context, userID, seriesID, date string, ch OverrideChange, actorID string) (domain.OccurrenceOverride, error) {
	s, err := e.ownedSeries(ctx, userID, seriesID)
	if err != nil {
		return domain.OccurrenceOverride{}, err
	}
	if _, err := recurrence.ParseDate(date); err != nil {
		return domain.OccurrenceOverride{}, ValidationError{Field: "date", Reason: err.Error()}
	}
	existing, err := e.Repo.GetOverride(ctx, seriesID, date)
	exists := err == nil
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return domain.OccurrenceOverride{}, err
	}
	if !exists || !existing.Detached {
		// Field overrides attach to a projected occurrence; only
		// detached rows live outside the rule.
		occurs, err := recurrence.Occurs(recurrence.FromSeries(s), s.StartDate, s.EndDate, date)
		if err != nil {
			return domain.OccurrenceOverride{}, err
		}
		if !occurs {
			return domain.OccurrenceOverride{}, ValidationError{Field: "date", Reason: "series has no occurrence on this date"}
		}
	}
	now := e.nowRFC()
	o := existing
	if !exists {
		o = domain.OccurrenceOverride{SeriesID: seriesID, Date: date, CreatedAt: now}
	}
	applyChange(&o, ch)
	o.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.OccurrenceOverride{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertOverride(ctx, tx, o); err != nil {
		return domain.OccurrenceOverride{}, err
	}
	if err := e.Events.Append(ctx, tx, "occurrence.overridden", userID, "occurrence", seriesID+"/"+date, actorID, events.EventPayload{"date": date}); err != nil {
		return domain.OccurrenceOverride{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.OccurrenceOverride{}, err
	}
	e.invalidate(userID)
	return o, nil
}

// MarkSkip flags one occurrence as removed from its date. Other
// override fields on the row are preserved, and re-skipping an
// already skipped occurrence is a no-op.
func (e Engine) MarkSkip(ctx context.Context, userID, seriesID, date, actorID string) error {
	if _, err := e.ownedSeries(ctx, userID, seriesID); err != nil {
		return err
	}
	if _, err := recurrence.ParseDate(date); err != nil {
		return ValidationError{Field: "date", Reason: err.Error()}
	}
	existing, err := e.Repo.GetOverride(ctx, seriesID, date)
	exists := err == nil
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	if exists && existing.Skip {
		return nil
	}
	now := e.nowRFC()
	o := existing
	if !exists {
		o = domain.OccurrenceOverride{SeriesID: seriesID, Date: date, CreatedAt: now}
	}
	o.Skip = true
	o.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertOverride(ctx, tx, o); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "occurrence.skipped", userID, "occurrence", seriesID+"/"+date, actorID, events.EventPayload{"date": date}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.invalidate(userID)
	return nil
}

// Move relocates one occurrence from one date to another as two
// sequenced idempotent writes: the target is detached first, then the
// source is skipped. There is deliberately no transaction across the
// pair; a retry of the whole move after a partial failure converges
// because both writes are upserts toward the same final rows.
func (e Engine) Move(ctx context.Context, userID, seriesID, from, to string, ch OverrideChange, actorID string) error {
	s, err := e.ownedSeries(ctx, userID, seriesID)
	if err != nil {
		return err
	}
	if _, err := recurrence.ParseDate(from); err != nil {
		return ValidationError{Field: "from", Reason: err.Error()}
	}
	if _, err := recurrence.ParseDate(to); err != nil {
		return ValidationError{Field: "to", Reason: err.Error()}
	}
	if from == to {
		return ValidationError{Field: "to", Reason: "target date equals source date"}
	}

	source, err := e.Repo.GetOverride(ctx, seriesID, from)
	sourceExists := err == nil
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	movable := sourceExists && source.Detached && !source.Skip
	if !movable {
		occurs, err := recurrence.Occurs(recurrence.FromSeries(s), s.StartDate, s.EndDate, from)
		if err != nil {
			return err
		}
		// A skipped source is still movable so a wholesale retry of a
		// partially applied move can finish the job.
		movable = occurs
	}
	if !movable {
		return ValidationError{Field: "from", Reason: "series has no occurrence on this date"}
	}

	target, err := e.Repo.GetOverride(ctx, seriesID, to)
	targetExists := err == nil
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}

	now := e.nowRFC()
	desired := domain.OccurrenceOverride{SeriesID: seriesID, Date: to, CreatedAt: now}
	if targetExists {
		desired = target
	}
	// Field precedence: explicit changes, then fields carried from the
	// source occurrence, then whatever the target row already held.
	if sourceExists {
		if source.Title != nil {
			desired.Title = source.Title
		}
		if source.TimeStart != nil {
			desired.TimeStart = source.TimeStart
		}
		if source.TimeEnd != nil {
			desired.TimeEnd = source.TimeEnd
		}
	}
	applyChange(&desired, ch)
	desired.Detached = true
	desired.Skip = false
	desired.MovedFrom = &from
	desired.UpdatedAt = now

	// The target is occupied unless the detached row there came from
	// this very move; provenance is what lets a wholesale retry of a
	// partially applied move converge instead of conflicting.
	if targetExists && target.Detached && !target.Skip {
		if target.MovedFrom == nil || *target.MovedFrom != from {
			return MoveConflictError{SeriesID: seriesID, Date: to}
		}
	}

	// Write 1: detach the target.
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertOverride(ctx, tx, desired); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "occurrence.moved_in", userID, "occurrence", seriesID+"/"+to, actorID, events.EventPayload{"from": from, "to": to}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	// Write 2: skip the source.
	src := source
	if !sourceExists {
		src = domain.OccurrenceOverride{SeriesID: seriesID, Date: from, CreatedAt: now}
	}
	src.Skip = true
	src.UpdatedAt = now
	tx2, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx2.Rollback()
	if err := e.Repo.UpsertOverride(ctx, tx2, src); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx2, "occurrence.moved_out", userID, "occurrence", seriesID+"/"+from, actorID, events.EventPayload{"from": from, "to": to}); err != nil {
		return err
	}
	if err := tx2.Commit(); err != nil {
		return err
	}
	e.invalidate(userID)
	return nil
}

func applyChange(o *domain.OccurrenceOverride, ch OverrideChange) {
	if ch.Title != nil {
		if *ch.Title == "" {
			o.Title = nil
		} else {
			o.Title = ch.Title
		}
	}
	if ch.TimeStart != nil {
		o.TimeStart = *ch.TimeStart
	}
	if ch.TimeEnd != nil {
		o.TimeEnd = *ch.TimeEnd
	}
}
