package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"airbnb_insights/internal/domain"
)

// maxRowsPerStatement keeps multi-row inserts under the 65535 placeholder cap.
const maxRowsPerStatement = 1000

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Name() string { return "mysql" }

func (r *Repo) UpsertListings(ctx context.Context, runID string, rs []domain.SourcedListing) error {
	for start := 0; start < len(rs); start += maxRowsPerStatement {
		end := start + maxRowsPerStatement
		if end > len(rs) {
			end = len(rs)
		}
		if err := r.upsertChunk(ctx, runID, rs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) upsertChunk(ctx context.Context, runID string, rs []domain.SourcedListing) error {
	if len(rs) == 0 {
		return nil
	}
	values := make([]string, 0, len(rs))
	args := make([]any, 0, len(rs)*10)
	for _, l := range rs {
		values = append(values, listingPlaceholders)
		args = append(args,
			l.Source,
			l.Row,
			runID,
			l.Country,
			l.PropertyType,
			l.RoomType,
			l.Price,
			l.Availability365,
			l.HostName,
			l.Name,
		)
	}
	sqlStr := insertListingsPrefix + strings.Join(values, ",") + insertListingsOnDup
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("mysql: upsert %d listings: %w", len(rs), err)
	}
	return nil
}

func (r *Repo) PruneListings(ctx context.Context, source, keepRunID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, pruneListingsSQL, source, keepRunID)
	if err != nil {
		return 0, fmt.Errorf("mysql: prune %s: %w", source, err)
	}
	return res.RowsAffected()
}

func (r *Repo) LogReject(ctx context.Context, runID string, row int, reason string) error {
	_, err := r.db.ExecContext(ctx, insertRejectSQL, runID, row, reason)
	return err
}

func (r *Repo) LoadListings(ctx context.Context) ([]domain.ListingRecord, error) {
	rows, err := r.db.QueryContext(ctx, loadListingsSQL)
	if err != nil {
		return nil, fmt.Errorf("mysql: load listings: %w", err)
	}
	defer rows.Close()

	var out []domain.ListingRecord
	for rows.Next() {
		var l domain.ListingRecord
		if err := rows.Scan(
			&l.Country,
			&l.PropertyType,
			&l.RoomType,
			&l.Price,
			&l.Availability365,
			&l.HostName,
			&l.Name,
		); err != nil {
			return nil, fmt.Errorf("mysql: scan listing: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
