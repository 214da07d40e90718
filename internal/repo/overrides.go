package repo

import (
	"context"
	"database/sql"

	"cadence/internal/domain"
)

const overrideColumns = `series_id,date,title,time_start,time_end,detached,skip,moved_from,deleted_at,created_at,updated_at`

func scanOverrideRow(scan func(dest ...any) error) (domain.OccurrenceOverride, error) {
	var o domain.OccurrenceOverride
	var title, timeStart, timeEnd, movedFrom, deletedAt sql.NullString
	var detached, skip int
	err := scan(&o.SeriesID, &o.Date, &title, &timeStart, &timeEnd, &detached, &skip,
		&movedFrom, &deletedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}
	if movedFrom.Valid {
		o.MovedFrom = &movedFrom.String
	}
	if title.Valid {
		o.Title = &title.String
	}
	if timeStart.Valid {
		o.TimeStart = &timeStart.String
	}
	if timeEnd.Valid {
		o.TimeEnd = &timeEnd.String
	}
	if deletedAt.Valid {
		o.DeletedAt = &deletedAt.String
	}
	o.Detached = detached != 0
	o.Skip = skip != 0
	return o, nil
}

// GetOverride returns the live override for (series, date), or
// ErrNotFound when none is materialized.
func (r Repo) GetOverride(ctx context.Context, seriesID, date string) (domain.OccurrenceOverride, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+overrideColumns+` FROM occurrence_overrides
WHERE series_id=? AND date=? AND deleted_at IS NULL`, seriesID, date)
	o, err := scanOverrideRow(row.Scan)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

// UpsertOverride writes the full override row. The merge of new fields
// over prior values happens in the engine; a write here replaces the
// row, resurrecting a soft-deleted one. The primary key keeps the
// one-row-per-(series,date) invariant.
func (r Repo) UpsertOverride(ctx context.Context, tx *sql.Tx, o domain.OccurrenceOverride) error {
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	_, err := exec(ctx, `INSERT INTO occurrence_overrides(`+overrideColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(series_id, date) DO UPDATE SET
  title=excluded.title, time_start=excluded.time_start, time_end=excluded.time_end,
  detached=excluded.detached, skip=excluded.skip, moved_from=excluded.moved_from,
  deleted_at=NULL, updated_at=excluded.updated_at`,
		o.SeriesID, o.Date, nullableStringPtr(o.Title), nullableStringPtr(o.TimeStart),
		nullableStringPtr(o.TimeEnd), boolToInt(o.Detached), boolToInt(o.Skip),
		nullableStringPtr(o.MovedFrom), nullableStringPtr(o.DeletedAt), o.CreatedAt, o.UpdatedAt)
	return err
}

// ListOverridesInRange batch-loads every live override touching the
// range across all of a user's live series.
func (r Repo) ListOverridesInRange(ctx context.Context, userID, start, end string) ([]domain.OccurrenceOverride, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT o.series_id,o.date,o.title,o.time_start,o.time_end,o.detached,o.skip,o.moved_from,o.deleted_at,o.created_at,o.updated_at
FROM occurrence_overrides o
JOIN task_series s ON s.id=o.series_id
WHERE s.user_id=? AND s.deleted_at IS NULL AND o.deleted_at IS NULL AND o.date>=? AND o.date<=?
ORDER BY o.date ASC, o.series_id ASC`, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.OccurrenceOverride
	for rows.Next() {
		o, err := scanOverrideRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r Repo) ListOverridesForSeries(ctx context.Context, seriesID string) ([]domain.OccurrenceOverride, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+overrideColumns+` FROM occurrence_overrides
WHERE series_id=? AND deleted_at IS NULL ORDER BY date ASC`, seriesID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.OccurrenceOverride
	for rows.Next() {
		o, err := scanOverrideRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// SoftDeleteOverridesFrom removes (softly) every exception row at or
// after fromDate. Used by delete-future and convert-to-independent.
func (r Repo) SoftDeleteOverridesFrom(ctx context.Context, tx *sql.Tx, seriesID, fromDate, ts string) error {
	_, err := tx.ExecContext(ctx, `UPDATE occurrence_overrides SET deleted_at=?, updated_at=?
WHERE series_id=? AND date>=? AND deleted_at IS NULL`, ts, ts, seriesID, fromDate)
	return err
}

func (r Repo) SoftDeleteAllOverrides(ctx context.Context, tx *sql.Tx, seriesID, ts string) error {
	_, err := tx.ExecContext(ctx, `UPDATE occurrence_overrides SET deleted_at=?, updated_at=?
WHERE series_id=? AND deleted_at IS NULL`, ts, ts, seriesID)
	return err
}

// ReassignOverridesFrom moves exception rows at or after fromDate to
// another series. splitSeries uses this so dates past the split are
// attributed only to the new series.
func (r Repo) ReassignOverridesFrom(ctx context.Context, tx *sql.Tx, fromSeriesID, toSeriesID, fromDate, ts string) error {
	_, err := tx.ExecContext(ctx, `UPDATE occurrence_overrides SET series_id=?, updated_at=?
WHERE series_id=? AND date>=? AND deleted_at IS NULL`, toSeriesID, ts, fromSeriesID, fromDate)
	return err
}
