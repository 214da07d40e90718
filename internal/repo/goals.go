package repo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"cadence/internal/domain"
)

// Goals are a read-only lineage join for the aggregator; only the
// minimal upsert/list surface needed to populate that join lives here.

func (r Repo) UpsertGoal(ctx context.Context, g domain.Goal) (domain.Goal, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Goal{}, err
	}
	defer tx.Rollback()
	out, err := r.UpsertGoalTx(ctx, tx, g)
	if err != nil {
		return domain.Goal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Goal{}, err
	}
	return out, nil
}

func (r Repo) UpsertGoalTx(ctx context.Context, tx *sql.Tx, g domain.Goal) (domain.Goal, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	if g.CreatedAt == "" {
		g.CreatedAt = now
	}
	g.UpdatedAt = now
	if err := r.EnsureUser(ctx, tx, g.UserID, now); err != nil {
		return domain.Goal{}, err
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO goals(id,user_id,title,focused,vision_id,created_at,updated_at)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET title=excluded.title, focused=excluded.focused, vision_id=excluded.vision_id, updated_at=excluded.updated_at`,
		g.ID, g.UserID, g.Title, boolToInt(g.Focused), nullableStringPtr(g.VisionID), g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return domain.Goal{}, err
	}
	return r.GetGoalTx(ctx, tx, g.ID)
}

func (r Repo) GetGoal(ctx context.Context, id string) (domain.Goal, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,user_id,title,focused,vision_id,created_at,updated_at FROM goals WHERE id=?`, id)
	return scanGoal(row.Scan)
}

func (r Repo) GetGoalTx(ctx context.Context, tx *sql.Tx, id string) (domain.Goal, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,user_id,title,focused,vision_id,created_at,updated_at FROM goals WHERE id=?`, id)
	return scanGoal(row.Scan)
}

func scanGoal(scan func(dest ...any) error) (domain.Goal, error) {
	var g domain.Goal
	var visionID sql.NullString
	var focused int
	err := scan(&g.ID, &g.UserID, &g.Title, &focused, &visionID, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	if err != nil {
		return g, err
	}
	if visionID.Valid {
		g.VisionID = &visionID.String
	}
	g.Focused = focused != 0
	return g, nil
}

func (r Repo) ListGoals(ctx context.Context, userID string) ([]domain.Goal, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,user_id,title,focused,vision_id,created_at,updated_at
FROM goals WHERE user_id=? ORDER BY title ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Goal
	for rows.Next() {
		g, err := scanGoal(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

// GoalsByIDs batch-loads the goals referenced by a set of series in
// one read, keyed by id.
func (r Repo) GoalsByIDs(ctx context.Context, ids []string) (map[string]domain.Goal, error) {
	res := map[string]domain.Goal{}
	if len(ids) == 0 {
		return res, nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,user_id,title,focused,vision_id,created_at,updated_at
FROM goals WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		g, err := scanGoal(rows.Scan)
		if err != nil {
			return nil, err
		}
		res[g.ID] = g
	}
	return res, rows.Err()
}

func (r Repo) DeleteGoal(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM goals WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
