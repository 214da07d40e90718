package repo

import (
	"context"
	"database/sql"
	"errors"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// EnsureUser inserts the user row if missing. User ids are opaque and
// come from the identity provider.
func (r Repo) EnsureUser(ctx context.Context, tx *sql.Tx, userID, now string) error {
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return r.DB.ExecContext(ctx, query, args...)
	}
	_, err := exec(`INSERT OR IGNORE INTO users(id, created_at) VALUES (?,?)`, userID, now)
	return err
}

func (r Repo) UserExists(ctx context.Context, userID string) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id=? LIMIT 1`, userID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
