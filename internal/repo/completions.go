package repo

import (
	"context"
	"database/sql"

	"cadence/internal/domain"
)

func (r Repo) GetCompletion(ctx context.Context, seriesID, date string, instance int) (domain.CompletionRecord, error) {
	var c domain.CompletionRecord
	err := r.DB.QueryRowContext(ctx, `SELECT series_id,date,instance,completed_at FROM completions
WHERE series_id=? AND date=? AND instance=?`, seriesID, date, instance).
		Scan(&c.SeriesID, &c.Date, &c.Instance, &c.CompletedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) GetCompletionTx(ctx context.Context, tx *sql.Tx, seriesID, date string, instance int) (domain.CompletionRecord, error) {
	var c domain.CompletionRecord
	err := tx.QueryRowContext(ctx, `SELECT series_id,date,instance,completed_at FROM completions
WHERE series_id=? AND date=? AND instance=?`, seriesID, date, instance).
		Scan(&c.SeriesID, &c.Date, &c.Instance, &c.CompletedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

// InsertCompletion is idempotent; re-inserting an existing record is a
// retried write, not a conflict.
func (r Repo) InsertCompletion(ctx context.Context, tx *sql.Tx, c domain.CompletionRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO completions(series_id,date,instance,completed_at) VALUES (?,?,?,?)`,
		c.SeriesID, c.Date, c.Instance, c.CompletedAt)
	return err
}

// DeleteCompletion reports whether a record was actually removed so
// the caller can skip the counter decrement on a no-op.
func (r Repo) DeleteCompletion(ctx context.Context, tx *sql.Tx, seriesID, date string, instance int) (bool, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM completions WHERE series_id=? AND date=? AND instance=?`,
		seriesID, date, instance)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListCompletionsInRange batch-loads completion records across all of
// a user's series for the range.
func (r Repo) ListCompletionsInRange(ctx context.Context, userID, start, end string) ([]domain.CompletionRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT c.series_id,c.date,c.instance,c.completed_at
FROM completions c
JOIN task_series s ON s.id=c.series_id
WHERE s.user_id=? AND c.date>=? AND c.date<=?
ORDER BY c.date ASC, c.series_id ASC, c.instance ASC`, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CompletionRecord
	for rows.Next() {
		var c domain.CompletionRecord
		if err := rows.Scan(&c.SeriesID, &c.Date, &c.Instance, &c.CompletedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ReassignCompletionsFrom follows exception rows across a series split.
func (r Repo) ReassignCompletionsFrom(ctx context.Context, tx *sql.Tx, fromSeriesID, toSeriesID, fromDate string) error {
	_, err := tx.ExecContext(ctx, `UPDATE completions SET series_id=? WHERE series_id=? AND date>=?`,
		toSeriesID, fromSeriesID, fromDate)
	return err
}
