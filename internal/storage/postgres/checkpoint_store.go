package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/sgs-catalog/internal/catalog"
	"github.com/JakeFAU/sgs-catalog/internal/checkpoint"
)

// DefaultCheckpointTable holds one row per probed series id.
const DefaultCheckpointTable = "sgs_checkpoint"

// upsertChunk keeps each statement well under the 65535 parameter limit.
const upsertChunk = 5000

// CheckpointStore is a checkpoint.Backend over a Postgres table:
//
//	series_id bigint primary key, classification text not null,
//	batch_seq bigint not null, updated_at timestamptz not null,
//	archived_at timestamptz
type CheckpointStore struct {
	pool    Pool
	table   string
	archive bool
}

var _ checkpoint.Backend = (*CheckpointStore)(nil)

// NewCheckpointStore builds a backend on pool. When archive is true, Remove
// stamps rows with archived_at instead of deleting them.
func NewCheckpointStore(pool Pool, table string, archive bool) (*CheckpointStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := checkTable(table, DefaultCheckpointTable)
	if err != nil {
		return nil, err
	}
	return &CheckpointStore{pool: pool, table: table, archive: archive}, nil
}

// Close releases the pool.
func (s *CheckpointStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Load reads every live row.
func (s *CheckpointStore) Load(ctx context.Context) (checkpoint.State, bool, error) {
	query, args, err := psql.
		Select("series_id", "classification", "batch_seq", "updated_at").
		From(s.table).
		Where(sq.Eq{"archived_at": nil}).
		OrderBy("series_id").
		ToSql()
	if err != nil {
		return checkpoint.State{}, false, fmt.Errorf("build checkpoint query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return checkpoint.State{}, false, fmt.Errorf("query checkpoint: %w", err)
	}
	defer rows.Close()

	state := checkpoint.State{
		Version:    checkpoint.CurrentVersion,
		Discovered: make(map[int]catalog.Classification),
	}
	for rows.Next() {
		var (
			id        int64
			raw       string
			seq       int64
			updatedAt time.Time
		)
		if err := rows.Scan(&id, &raw, &seq, &updatedAt); err != nil {
			return checkpoint.State{}, false, fmt.Errorf("scan checkpoint row: %w", err)
		}
		class, err := catalog.ParseClassification(raw)
		if err != nil {
			return checkpoint.State{}, false, fmt.Errorf("series %d: %w", id, err)
		}
		state.Discovered[int(id)] = class
		if seq > state.Sequence {
			state.Sequence = seq
		}
		if updatedAt.After(state.UpdatedAt) {
			state.UpdatedAt = updatedAt
		}
	}
	if err := rows.Err(); err != nil {
		return checkpoint.State{}, false, fmt.Errorf("iterate checkpoint rows: %w", err)
	}
	return state, len(state.Discovered) > 0, nil
}

// Save upserts the changed rows in one transaction.
func (s *CheckpointStore) Save(ctx context.Context, snap checkpoint.Snapshot) error {
	if len(snap.Delta) == 0 {
		return nil
	}
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		for start := 0; start < len(snap.Delta); start += upsertChunk {
			end := min(start+upsertChunk, len(snap.Delta))
			query, args, err := s.upsert(snap, snap.Delta[start:end])
			if err != nil {
				return fmt.Errorf("build checkpoint upsert: %w", err)
			}
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("upsert checkpoint rows: %w", err)
			}
		}
		return nil
	})
}

func (s *CheckpointStore) upsert(snap checkpoint.Snapshot, delta []catalog.Candidate) (string, []any, error) {
	insert := psql.
		Insert(s.table).
		Columns("series_id", "classification", "batch_seq", "updated_at")
	for _, c := range delta {
		insert = insert.Values(int64(c.ID), string(c.Class), snap.State.Sequence, snap.State.UpdatedAt)
	}
	return insert.
		Suffix("ON CONFLICT (series_id) DO UPDATE SET " +
			"classification = EXCLUDED.classification, " +
			"batch_seq = EXCLUDED.batch_seq, " +
			"updated_at = EXCLUDED.updated_at, " +
			"archived_at = NULL").
		ToSql()
}

// Remove deletes or archives every live row.
func (s *CheckpointStore) Remove(ctx context.Context) error {
	var (
		query string
		args  []any
		err   error
	)
	if s.archive {
		query, args, err = psql.
			Update(s.table).
			Set("archived_at", sq.Expr("now()")).
			Where(sq.Eq{"archived_at": nil}).
			ToSql()
	} else {
		query, args, err = psql.
			Delete(s.table).
			Where(sq.Eq{"archived_at": nil}).
			ToSql()
	}
	if err != nil {
		return fmt.Errorf("build checkpoint removal: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("remove checkpoint rows: %w", err)
	}
	return nil
}
