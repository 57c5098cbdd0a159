package db

import (
	"context"
	"fmt"

	"github.com/livingwales/vproducts/internal/crop"
)

// RecordCropDecisions stores parcel decisions, replacing earlier decisions
// for the same parcel and year.
func (db *DB) RecordCropDecisions(ctx context.Context, decisions []crop.Decision) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO crop_decisions (parcel, year, crop_type, step)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare crop decision insert: %w", err)
	}
	defer stmt.Close()
	for _, d := range decisions {
		if _, err := stmt.ExecContext(ctx, d.Parcel, d.Year, string(d.Type), d.Step); err != nil {
			return fmt.Errorf("failed to insert decision for parcel %s: %w", d.Parcel, err)
		}
	}
	return tx.Commit()
}

// CropDecisions returns the stored decisions of a season year ordered by
// parcel. year 0 returns every year.
func (db *DB) CropDecisions(ctx context.Context, year int) ([]crop.Decision, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT parcel, year, crop_type, step FROM crop_decisions
		WHERE ? = 0 OR year = ?
		ORDER BY year, parcel`, year, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query crop decisions: %w", err)
	}
	defer rows.Close()

	var out []crop.Decision
	for rows.Next() {
		var (
			d   crop.Decision
			typ string
		)
		if err := rows.Scan(&d.Parcel, &d.Year, &typ, &d.Step); err != nil {
			return nil, err
		}
		d.Type = crop.Type(typ)
		out = append(out, d)
	}
	return out, rows.Err()
}
