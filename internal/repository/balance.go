package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// applyBalance runs a single-row balance UPDATE whose new value is captured with
// LAST_INSERT_ID(expr), so the post-update balance comes back without a second read.
func applyBalance(ctx context.Context, exec sqlx.ExecerContext, query string, args ...any) (int, error) {
	res, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return 0, ErrNotFound
	}
	balance, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return int(balance), nil
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
