package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sgs-catalog/internal/catalog"
)

func TestCatalogStore_UpsertCatalog(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCatalogStore(mock, "")
	require.NoError(t, err)
	require.Equal(t, "postgres://sgs_catalog", store.Location())

	generated := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	name := "Selic"
	rec := catalog.Record{
		SeriesID:      11,
		GeneratedCode: "PX_BCB_11",
		Name:          &name,
		LastUpdate:    "2026-10-17",
		APIURL:        "https://api.bcb.gov.br/dados/serie/bcdata.sgs.11/dados?formato=json",
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO sgs_catalog .* ON CONFLICT \\(series_id\\) DO UPDATE").
		WithArgs(
			int64(11),
			"PX_BCB_11",
			&name,
			(*string)(nil),
			(*string)(nil),
			(*string)(nil),
			(*string)(nil),
			"2026-10-17",
			rec.APIURL,
			"run-1",
			generated,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = store.UpsertCatalog(context.Background(), catalog.Catalog{
		RunID:       "run-1",
		GeneratedAt: generated,
		Records:     []catalog.Record{rec},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogStore_EmptyCatalogIsNoop(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCatalogStore(mock, "catalog")
	require.NoError(t, err)
	require.NoError(t, store.UpsertCatalog(context.Background(), catalog.Catalog{}))
	require.NoError(t, mock.ExpectationsWereMet())
}
