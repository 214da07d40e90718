package repo

import (
	"context"
	"database/sql"

	"cadence/internal/domain"
)

const taskColumns = `id,user_id,title,date,time_start,time_end,completed,series_id,goal_id,deleted_at,created_at,updated_at`

func scanTaskRow(scan func(dest ...any) error) (domain.IndependentTask, error) {
	var t domain.IndependentTask
	var timeStart, timeEnd, seriesID, goalID, deletedAt sql.NullString
	var completed int
	err := scan(&t.ID, &t.UserID, &t.Title, &t.Date, &timeStart, &timeEnd, &completed,
		&seriesID, &goalID, &deletedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if timeStart.Valid {
		t.TimeStart = &timeStart.String
	}
	if timeEnd.Valid {
		t.TimeEnd = &timeEnd.String
	}
	if seriesID.Valid {
		t.SeriesID = &seriesID.String
	}
	if goalID.Valid {
		t.GoalID = &goalID.String
	}
	if deletedAt.Valid {
		t.DeletedAt = &deletedAt.String
	}
	t.Completed = completed != 0
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.IndependentTask) error {
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	_, err := exec(ctx, `INSERT INTO independent_tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.UserID, t.Title, t.Date, nullableStringPtr(t.TimeStart), nullableStringPtr(t.TimeEnd),
		boolToInt(t.Completed), nullableStringPtr(t.SeriesID), nullableStringPtr(t.GoalID),
		nullableStringPtr(t.DeletedAt), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.IndependentTask, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM independent_tasks WHERE id=?`, id)
	t, err := scanTaskRow(row.Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

// ListTasksInRange batch-loads the live standalone tasks for the range.
func (r Repo) ListTasksInRange(ctx context.Context, userID, start, end string) ([]domain.IndependentTask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM independent_tasks
WHERE user_id=? AND deleted_at IS NULL AND date>=? AND date<=? ORDER BY date ASC, id ASC`, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.IndependentTask
	for rows.Next() {
		t, err := scanTaskRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) ListTasks(ctx context.Context, userID string) ([]domain.IndependentTask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM independent_tasks
WHERE user_id=? AND deleted_at IS NULL ORDER BY date DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.IndependentTask
	for rows.Next() {
		t, err := scanTaskRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) SetTaskCompleted(ctx context.Context, tx *sql.Tx, id string, completed bool, updatedAt string) error {
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	res, err := exec(ctx, `UPDATE independent_tasks SET completed=?, updated_at=? WHERE id=? AND deleted_at IS NULL`,
		boolToInt(completed), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SoftDeleteTask(ctx context.Context, tx *sql.Tx, id, ts string) error {
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	_, err := exec(ctx, `UPDATE independent_tasks SET deleted_at=?, updated_at=? WHERE id=? AND deleted_at IS NULL`, ts, ts, id)
	return err
}

// LinkTaskToSeries records the series a task was converted into and
// retires the standalone row; the detached override at the task's date
// takes over from there.
func (r Repo) LinkTaskToSeries(ctx context.Context, tx *sql.Tx, taskID, seriesID, ts string) error {
	res, err := tx.ExecContext(ctx, `UPDATE independent_tasks SET series_id=?, deleted_at=?, updated_at=? WHERE id=?`,
		seriesID, ts, ts, taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
