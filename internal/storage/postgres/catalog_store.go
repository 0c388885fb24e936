package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/sgs-catalog/internal/catalog"
)

// DefaultCatalogTable holds one row per active series.
const DefaultCatalogTable = "sgs_catalog"

// CatalogStore writes catalog records into Postgres, keyed by series_id.
type CatalogStore struct {
	pool  Pool
	table string
}

// NewCatalogStore builds a store on pool.
func NewCatalogStore(pool Pool, table string) (*CatalogStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := checkTable(table, DefaultCatalogTable)
	if err != nil {
		return nil, err
	}
	return &CatalogStore{pool: pool, table: table}, nil
}

// Close releases the pool.
func (s *CatalogStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Location names the table for receipts and logs.
func (s *CatalogStore) Location() string {
	return "postgres://" + s.table
}

// UpsertCatalog writes every record of cat in one transaction. Rows for
// series absent from cat are left untouched.
func (s *CatalogStore) UpsertCatalog(ctx context.Context, cat catalog.Catalog) error {
	if len(cat.Records) == 0 {
		return nil
	}
	const chunk = 1000
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		for start := 0; start < len(cat.Records); start += chunk {
			end := min(start+chunk, len(cat.Records))
			query, args, err := s.upsert(cat, cat.Records[start:end])
			if err != nil {
				return fmt.Errorf("build catalog upsert: %w", err)
			}
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("upsert catalog rows: %w", err)
			}
		}
		return nil
	})
}

func (s *CatalogStore) upsert(cat catalog.Catalog, records []catalog.Record) (string, []any, error) {
	insert := psql.
		Insert(s.table).
		Columns(
			"series_id",
			"generated_code",
			"name",
			"periodicity",
			"unit",
			"source",
			"description",
			"last_update",
			"api_url",
			"run_id",
			"generated_at",
		)
	for _, r := range records {
		insert = insert.Values(
			int64(r.SeriesID),
			r.GeneratedCode,
			r.Name,
			r.Periodicity,
			r.Unit,
			r.Source,
			r.Description,
			r.LastUpdate,
			r.APIURL,
			cat.RunID,
			cat.GeneratedAt,
		)
	}
	return insert.
		Suffix("ON CONFLICT (series_id) DO UPDATE SET " +
			"generated_code = EXCLUDED.generated_code, " +
			"name = EXCLUDED.name, " +
			"periodicity = EXCLUDED.periodicity, " +
			"unit = EXCLUDED.unit, " +
			"source = EXCLUDED.source, " +
			"description = EXCLUDED.description, " +
			"last_update = EXCLUDED.last_update, " +
			"api_url = EXCLUDED.api_url, " +
			"run_id = EXCLUDED.run_id, " +
			"generated_at = EXCLUDED.generated_at").
		ToSql()
}
