package repo

import (
	"context"
	"database/sql"

	"cadence/internal/domain"
)

func (r Repo) GetCounter(ctx context.Context, seriesID, periodStart string) (domain.PeriodCounter, error) {
	var c domain.PeriodCounter
	err := r.DB.QueryRowContext(ctx, `SELECT series_id,period_start,planned_count,actual_count
FROM period_counters WHERE series_id=? AND period_start=?`, seriesID, periodStart).
		Scan(&c.SeriesID, &c.PeriodStart, &c.PlannedCount, &c.ActualCount)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

// EnsureCounter lazily creates the counter for a period the first time
// it is observed. The planned count is snapshotted then and not
// recomputed on later rule edits.
func (r Repo) EnsureCounter(ctx context.Context, tx *sql.Tx, seriesID, periodStart string, planned int) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO period_counters(series_id,period_start,planned_count,actual_count)
VALUES (?,?,?,0)`, seriesID, periodStart, planned)
	return err
}

// AdjustCounter applies a bounded delta; the actual count never drops
// below zero regardless of retries or stray decrements.
func (r Repo) AdjustCounter(ctx context.Context, tx *sql.Tx, seriesID, periodStart string, delta int) error {
	_, err := tx.ExecContext(ctx, `UPDATE period_counters
SET actual_count = CASE WHEN actual_count + ? < 0 THEN 0 ELSE actual_count + ? END
WHERE series_id=? AND period_start=?`, delta, delta, seriesID, periodStart)
	return err
}

func (r Repo) ListCounters(ctx context.Context, seriesID, from, to string) ([]domain.PeriodCounter, error) {
	clause := `WHERE series_id=?`
	args := []any{seriesID}
	if from != "" {
		clause += ` AND period_start>=?`
		args = append(args, from)
	}
	if to != "" {
		clause += ` AND period_start<=?`
		args = append(args, to)
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT series_id,period_start,planned_count,actual_count
FROM period_counters `+clause+` ORDER BY period_start ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PeriodCounter
	for rows.Next() {
		var c domain.PeriodCounter
		if err := rows.Scan(&c.SeriesID, &c.PeriodStart, &c.PlannedCount, &c.ActualCount); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
