// Package postgres stores listings in PostgreSQL through lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"airbnb_insights/internal/domain"
)

const (
	colsPerRow = 10
	// Postgres caps bind parameters at 65535 per statement.
	maxRowsPerStatement = 1000
)

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Name() string { return "postgres" }

func (r *Repo) UpsertListings(ctx context.Context, runID string, rs []domain.SourcedListing) error {
	for start := 0; start < len(rs); start += maxRowsPerStatement {
		end := start + maxRowsPerStatement
		if end > len(rs) {
			end = len(rs)
		}
		if err := r.insertBatch(ctx, runID, rs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) insertBatch(ctx context.Context, runID string, batch []domain.SourcedListing) error {
	if len(batch) == 0 {
		return nil
	}
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]any, 0, len(batch)*colsPerRow)

	for idx, l := range batch {
		base := idx * colsPerRow
		ph := make([]string, colsPerRow)
		for i := range ph {
			ph[i] = fmt.Sprintf("$%d", base+i+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")
		valueArgs = append(valueArgs,
			l.Source, l.Row, runID,
			l.Country, l.PropertyType, l.RoomType,
			l.Price, l.Availability365, l.HostName, l.Name)
	}

	query := fmt.Sprintf(upsertListingsSQL, strings.Join(valueStrings, ","))
	if _, err := r.db.ExecContext(ctx, query, valueArgs...); err != nil {
		return fmt.Errorf("postgres: upsert %d listings: %w", len(batch), err)
	}
	return nil
}

func (r *Repo) PruneListings(ctx context.Context, source, keepRunID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM listings WHERE source = $1 AND run_id <> $2`, source, keepRunID)
	if err != nil {
		return 0, fmt.Errorf("postgres: prune %s: %w", source, err)
	}
	return res.RowsAffected()
}

func (r *Repo) LogReject(ctx context.Context, runID string, row int, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO import_rejects (run_id, row_no, reason)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id, row_no) DO UPDATE
		SET reason = EXCLUDED.reason, seen_at = NOW()
	`, runID, row, reason)
	if err != nil {
		return fmt.Errorf("postgres: log reject: %w", err)
	}
	return nil
}

// LoadListings reads every stored listing ordered by its source position.
func (r *Repo) LoadListings(ctx context.Context) ([]domain.ListingRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT country, property_type, room_type, price, availability_365, host_name, name
		FROM listings
		ORDER BY source, row_no
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch all: %w", err)
	}
	defer rows.Close()

	var listings []domain.ListingRecord
	for rows.Next() {
		var l domain.ListingRecord
		if err := rows.Scan(
			&l.Country, &l.PropertyType, &l.RoomType, &l.Price,
			&l.Availability365, &l.HostName, &l.Name,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

const upsertListingsSQL = `
	INSERT INTO listings
		(source, row_no, run_id, country, property_type, room_type, price, availability_365, host_name, name)
	VALUES %s
	ON CONFLICT (source, row_no) DO UPDATE SET
		run_id           = EXCLUDED.run_id,
		country          = EXCLUDED.country,
		property_type    = EXCLUDED.property_type,
		room_type        = EXCLUDED.room_type,
		price            = EXCLUDED.price,
		availability_365 = EXCLUDED.availability_365,
		host_name        = EXCLUDED.host_name,
		name             = EXCLUDED.name,
		updated_at       = NOW()
`
