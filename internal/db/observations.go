package db

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"time"

	"github.com/livingwales/vproducts/internal/cube"
)

// ProductSummary describes the observations held for one product.
type ProductSummary struct {
	Product      string    `json:"product"`
	Observations int       `json:"observations"`
	First        time.Time `json:"first"`
	Last         time.Time `json:"last"`
	Bands        []string  `json:"bands"`
}

// PutDataset stores every time slice of ds as an observation of product.
func (db *DB) PutDataset(ctx context.Context, product string, ds *cube.Dataset) error {
	if product == "" {
		return fmt.Errorf("product name is required")
	}
	bands := ds.Bands()
	if len(bands) == 0 {
		return fmt.Errorf("dataset for %s has no bands", product)
	}
	grid, err := json.Marshal(ds.Grid)
	if err != nil {
		return fmt.Errorf("failed to encode grid: %w", err)
	}
	names, err := json.Marshal(bands)
	if err != nil {
		return fmt.Errorf("failed to encode bands: %w", err)
	}
	ext := ds.Grid.Extent()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO observations (product, acquired, crs, min_x, min_y, max_x, max_y, grid, bands, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare observation insert: %w", err)
	}
	defer stmt.Close()

	for i, t := range ds.Times {
		slice := make(map[string][]float32, len(bands))
		for _, b := range bands {
			s, err := ds.Band(b)
			if err != nil {
				return err
			}
			slice[b] = s.Slices[i]
		}
		blob, err := encodeSlice(slice)
		if err != nil {
			return fmt.Errorf("failed to encode %s at %s: %w", product, t.Format(cube.DateLayout), err)
		}
		if _, err := stmt.ExecContext(ctx, product, unixTime(t), ds.CRS, ext.MinX, ext.MinY, ext.MaxX, ext.MaxY, string(grid), string(names), blob); err != nil {
			return fmt.Errorf("failed to insert %s observation: %w", product, err)
		}
	}
	return tx.Commit()
}

// Timeless observations, such as the single slice of a reducing
// transformation, are stored at 0 and match every period.
func unixTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// Load implements cube.Source. Observations are selected by product, day and
// extent, clipped, and must share a grid after clipping. Timeless
// observations are returned whatever the period.
func (db *DB) Load(ctx context.Context, q cube.Query) (*cube.Dataset, error) {
	query := `SELECT acquired, grid, bands, data FROM observations WHERE product = ?`
	args := []interface{}{q.Product}
	if !q.Time.IsZero() {
		from := q.Time.From.UTC().Truncate(24 * time.Hour)
		to := q.Time.To.UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1)
		query += ` AND (acquired = 0 OR (acquired >= ? AND acquired < ?))`
		args = append(args, from.Unix(), to.Unix())
	}
	if e := q.Extent; e != nil {
		query += ` AND (? = '' OR crs = ?) AND max_x >= ? AND min_x <= ? AND max_y >= ? AND min_y <= ?`
		args = append(args, e.CRS, e.CRS, e.MinX, e.MaxX, e.MinY, e.MaxY)
	}
	query += ` ORDER BY acquired, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Product, err)
	}
	defer rows.Close()

	var (
		out   *cube.Dataset
		bands []string
		data  = map[string]*cube.Stack{}
	)
	for rows.Next() {
		var (
			acquired          int64
			gridJSON, namesJS string
			blob              []byte
		)
		if err := rows.Scan(&acquired, &gridJSON, &namesJS, &blob); err != nil {
			return nil, err
		}
		var g cube.Grid
		if err := json.Unmarshal([]byte(gridJSON), &g); err != nil {
			return nil, fmt.Errorf("failed to decode grid: %w", err)
		}
		slice, err := decodeSlice(blob)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s observation: %w", q.Product, err)
		}
		t := fromUnixTime(acquired)

		ds := cube.NewDataset(g, []time.Time{t})
		want := q.Measurements
		if len(want) == 0 {
			if err := json.Unmarshal([]byte(namesJS), &want); err != nil {
				return nil, fmt.Errorf("failed to decode bands: %w", err)
			}
		}
		for _, b := range want {
			v, ok := slice[b]
			if !ok {
				return nil, fmt.Errorf("product %q at %s: band %q: %w", q.Product, t.Format(cube.DateLayout), b, cube.ErrMissingBand)
			}
			s := cube.NewStack(g)
			if err := s.Append(t, v); err != nil {
				return nil, err
			}
			if err := ds.SetBand(b, s); err != nil {
				return nil, err
			}
		}
		if q.Extent != nil {
			if ds, err = ds.Clip(*q.Extent); err != nil {
				return nil, err
			}
			if ds.Grid.Len() == 0 {
				continue
			}
		}

		if out == nil {
			out = cube.NewDataset(ds.Grid, nil)
			bands = want
			for _, b := range bands {
				data[b] = cube.NewStack(ds.Grid)
			}
		} else if !out.Grid.Equal(ds.Grid) {
			return nil, fmt.Errorf("product %q at %s: %w", q.Product, t.Format(cube.DateLayout), cube.ErrGridMismatch)
		}
		out.Times = append(out.Times, t)
		for _, b := range bands {
			s, err := ds.Band(b)
			if err != nil {
				return nil, fmt.Errorf("product %q at %s: %w", q.Product, t.Format(cube.DateLayout), err)
			}
			if err := data[b].Append(t, s.Slices[0]); err != nil {
				return nil, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("product %q in %s: %w", q.Product, q.Time, cube.ErrNoData)
	}
	for _, b := range bands {
		if err := out.SetBand(b, data[b]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Products summarises the stored products, sorted by name.
func (db *DB) Products(ctx context.Context) ([]ProductSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT product, COUNT(*), MIN(acquired), MAX(acquired),
		       (SELECT bands FROM observations o2 WHERE o2.product = o.product ORDER BY id DESC LIMIT 1)
		FROM observations o
		GROUP BY product
		ORDER BY product`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var out []ProductSummary
	for rows.Next() {
		var (
			p           ProductSummary
			first, last int64
			names       string
		)
		if err := rows.Scan(&p.Product, &p.Observations, &first, &last, &names); err != nil {
			return nil, err
		}
		p.First = fromUnixTime(first)
		p.Last = fromUnixTime(last)
		if err := json.Unmarshal([]byte(names), &p.Bands); err != nil {
			return nil, fmt.Errorf("failed to decode bands of %s: %w", p.Product, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteProduct removes every observation of product and returns the number
// removed.
func (db *DB) DeleteProduct(ctx context.Context, product string) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM observations WHERE product = ?`, product)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", product, err)
	}
	return res.RowsAffected()
}

func encodeSlice(slice map[string][]float32) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(slice); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSlice(blob []byte) (map[string][]float32, error) {
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	var slice map[string][]float32
	if err := gob.NewDecoder(gz).Decode(&slice); err != nil {
		return nil, err
	}
	return slice, nil
}

var _ cube.Source = (*DB)(nil)
