package repository

import (
	"context"
	"database/sql"
)

// Runner wraps a *sql.DB so services can run multi-statement units of
// work without depending on the database handle directly.
type Runner struct{ DB *sql.DB }

func NewRunner(db *sql.DB) *Runner { return &Runner{DB: db} }

// WithTx runs fn inside a transaction, rolling back when fn returns an
// error and committing otherwise.
func (r *Runner) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
