package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"cadence/internal/domain"
)

const seriesColumns = `id,user_id,title,recurrence_type,times_per_day,days_of_week,time_start,time_end,start_date,end_date,goal_id,active,deleted_at,created_at,updated_at`

func marshalDays(days []int) any {
	if len(days) == 0 {
		return nil
	}
	b, _ := json.Marshal(days)
	return string(b)
}

func scanSeriesRow(scan func(dest ...any) error) (domain.TaskSeries, error) {
	var s domain.TaskSeries
	var days, timeStart, timeEnd, endDate, goalID, deletedAt sql.NullString
	var active int
	err := scan(&s.ID, &s.UserID, &s.Title, &s.RecurrenceType, &s.TimesPerDay, &days,
		&timeStart, &timeEnd, &s.StartDate, &endDate, &goalID, &active, &deletedAt,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return s, err
	}
	if days.Valid && days.String != "" {
		if err := json.Unmarshal([]byte(days.String), &s.DaysOfWeek); err != nil {
			return s, fmt.Errorf("days_of_week for series %s: %w", s.ID, err)
		}
	}
	if timeStart.Valid {
		s.TimeStart = &timeStart.String
	}
	if timeEnd.Valid {
		s.TimeEnd = &timeEnd.String
	}
	if endDate.Valid {
		s.EndDate = &endDate.String
	}
	if goalID.Valid {
		s.GoalID = &goalID.String
	}
	if deletedAt.Valid {
		s.DeletedAt = &deletedAt.String
	}
	s.Active = active != 0
	return s, nil
}

func (r Repo) InsertSeries(ctx context.Context, tx *sql.Tx, s domain.TaskSeries) error {
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	_, err := exec(ctx, `INSERT INTO task_series(`+seriesColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.UserID, s.Title, s.RecurrenceType, s.TimesPerDay, marshalDays(s.DaysOfWeek),
		nullableStringPtr(s.TimeStart), nullableStringPtr(s.TimeEnd), s.StartDate,
		nullableStringPtr(s.EndDate), nullableStringPtr(s.GoalID), boolToInt(s.Active),
		nullableStringPtr(s.DeletedAt), s.CreatedAt, s.UpdatedAt)
	return err
}

// GetSeries returns the row regardless of soft-delete state; callers
// decide whether a deleted or foreign row is visible.
func (r Repo) GetSeries(ctx context.Context, id string) (domain.TaskSeries, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+seriesColumns+` FROM task_series WHERE id=?`, id)
	s, err := scanSeriesRow(row.Scan)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) GetSeriesTx(ctx context.Context, tx *sql.Tx, id string) (domain.TaskSeries, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+seriesColumns+` FROM task_series WHERE id=?`, id)
	s, err := scanSeriesRow(row.Scan)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

// ListActiveSeries returns all live series for a user in one read.
func (r Repo) ListActiveSeries(ctx context.Context, userID string) ([]domain.TaskSeries, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+seriesColumns+` FROM task_series
WHERE user_id=? AND active=1 AND deleted_at IS NULL ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskSeries
	for rows.Next() {
		s, err := scanSeriesRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) ListSeries(ctx context.Context, userID string) ([]domain.TaskSeries, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+seriesColumns+` FROM task_series
WHERE user_id=? AND deleted_at IS NULL ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskSeries
	for rows.Next() {
		s, err := scanSeriesRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// SeriesUpdate carries optional field changes; nil means unchanged.
type SeriesUpdate struct {
	Title     *string
	TimeStart **string
	TimeEnd   **string
	GoalID    **string
	Active    *bool
}

func (r Repo) UpdateSeriesFields(ctx context.Context, tx *sql.Tx, id string, u SeriesUpdate, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	if u.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *u.Title)
	}
	if u.TimeStart != nil {
		fields = append(fields, "time_start=?")
		args = append(args, nullableStringPtr(*u.TimeStart))
	}
	if u.TimeEnd != nil {
		fields = append(fields, "time_end=?")
		args = append(args, nullableStringPtr(*u.TimeEnd))
	}
	if u.GoalID != nil {
		fields = append(fields, "goal_id=?")
		args = append(args, nullableStringPtr(*u.GoalID))
	}
	if u.Active != nil {
		fields = append(fields, "active=?")
		args = append(args, boolToInt(*u.Active))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id)
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	res, err := exec(ctx, fmt.Sprintf(`UPDATE task_series SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetSeriesEndDate(ctx context.Context, tx *sql.Tx, id string, endDate *string, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE task_series SET end_date=?, updated_at=? WHERE id=?`,
		nullableStringPtr(endDate), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SoftDeleteSeries(ctx context.Context, tx *sql.Tx, id, ts string) error {
	res, err := tx.ExecContext(ctx, `UPDATE task_series SET deleted_at=?, active=0, updated_at=? WHERE id=? AND deleted_at IS NULL`, ts, ts, id)
	if err != nil {
		return err
	}
	// Re-deleting an already deleted series is a retry, not an error.
	_ = res
	return nil
}
