package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/livingwales/vproducts/internal/recipe"
)

// StartRun records a run as it begins.
func (db *DB) StartRun(ctx context.Context, r recipe.Run) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO runs (run_id, product, recipe, status, started)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Product, r.Recipe, r.Status, r.Started.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.ID, err)
	}
	return nil
}

// FinishRun records the outcome of a run started with StartRun.
func (db *DB) FinishRun(ctx context.Context, r recipe.Run) error {
	res, err := db.ExecContext(ctx, `
		UPDATE runs SET status = ?, finished = ?, error = ? WHERE run_id = ?`,
		r.Status, r.Finished.UnixNano(), nullString(r.Error), r.ID)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", r.ID, ErrNotFound)
	}
	return nil
}

// Run returns the run with the given id.
func (db *DB) Run(ctx context.Context, id string) (recipe.Run, error) {
	row := db.QueryRowContext(ctx, `
		SELECT run_id, product, recipe, status, started, finished, error
		FROM runs WHERE run_id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return recipe.Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return r, err
}

// Runs returns the most recent runs, newest first. limit <= 0 means 50.
func (db *DB) Runs(ctx context.Context, limit int) ([]recipe.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, product, recipe, status, started, finished, error
		FROM runs ORDER BY started DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []recipe.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (recipe.Run, error) {
	var (
		r        recipe.Run
		started  int64
		finished sql.NullInt64
		errText  sql.NullString
	)
	if err := s.Scan(&r.ID, &r.Product, &r.Recipe, &r.Status, &started, &finished, &errText); err != nil {
		return recipe.Run{}, err
	}
	r.Started = time.Unix(0, started).UTC()
	if finished.Valid {
		r.Finished = time.Unix(0, finished.Int64).UTC()
	}
	r.Error = errText.String
	return r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ recipe.RunStore = (*DB)(nil)
var _ recipe.Sink = (*DB)(nil)
