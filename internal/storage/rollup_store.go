package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"chainstore.io/node/internal/mutation"
)

const rollupRecordColumns = `start_block, end_block, raw_size, compressed_size, mutation_count,
	blob_id, blob_cost, evm_tx, evm_cost, wall_time, processed_seconds`

func scanRollupRecord(row pgx.Row) (*mutation.RollupRecord, error) {
	var r mutation.RollupRecord
	err := row.Scan(&r.StartBlock, &r.EndBlock, &r.RawSize, &r.CompressedSize, &r.MutationCount,
		&r.BlobID, &r.BlobCost, &r.EvmTx, &r.EvmCost, &r.WallTimeUnix, &r.ProcessedSeconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetLastRollupRecord returns the most recently appended rollup record,
// or nil if none exists yet.
func (s *Store) GetLastRollupRecord(ctx context.Context) (*mutation.RollupRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+rollupRecordColumns+` FROM rollup_store ORDER BY end_block DESC LIMIT 1`)
	r, err := scanRollupRecord(row)
	if err != nil {
		return nil, fmt.Errorf("get last rollup record: %w", err)
	}
	return r, nil
}

// GetRollupRecord returns the rollup record whose start_block equals start.
func (s *Store) GetRollupRecord(ctx context.Context, start uint64) (*mutation.RollupRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+rollupRecordColumns+` FROM rollup_store WHERE start_block = $1`, start)
	r, err := scanRollupRecord(row)
	if err != nil {
		return nil, fmt.Errorf("get rollup record: %w", err)
	}
	return r, nil
}

// GetNextRollupRecord returns the rollup record immediately following the
// one starting at afterStart — the record with the smallest start_block
// strictly greater than afterStart. Ranges are contiguous, so this is the
// record whose start_block equals the prior record's end_block.
func (s *Store) GetNextRollupRecord(ctx context.Context, afterStart uint64) (*mutation.RollupRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+rollupRecordColumns+` FROM rollup_store
		WHERE start_block > $1 ORDER BY start_block ASC LIMIT 1`, afterStart)
	r, err := scanRollupRecord(row)
	if err != nil {
		return nil, fmt.Errorf("get next rollup record: %w", err)
	}
	return r, nil
}

// AddRollupRecord appends a new rollup record.
func (s *Store) AddRollupRecord(ctx context.Context, r mutation.RollupRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rollup_store (`+rollupRecordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.StartBlock, r.EndBlock, r.RawSize, r.CompressedSize, r.MutationCount,
		r.BlobID, r.BlobCost, r.EvmTx, r.EvmCost, r.WallTimeUnix, r.ProcessedSeconds)
	if err != nil {
		return fmt.Errorf("add rollup record: %w", err)
	}
	return nil
}

// GetLastGcRecord returns the most recently appended GC record, or nil if
// none exists yet.
func (s *Store) GetLastGcRecord(ctx context.Context) (*mutation.GcRecord, error) {
	var r mutation.GcRecord
	err := s.pool.QueryRow(ctx, `
		SELECT start_block, end_block, data_size, wall_time, processed_seconds
		FROM gc_store ORDER BY end_block DESC LIMIT 1`).
		Scan(&r.StartBlock, &r.EndBlock, &r.DataSize, &r.WallTimeUnix, &r.ProcessedSeconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last gc record: %w", err)
	}
	return &r, nil
}

// HasEnoughRoundLeft reports whether at least minOffset rollup rounds
// exist strictly later than lastGcStart.
func (s *Store) HasEnoughRoundLeft(ctx context.Context, lastGcStart uint64, minOffset uint64) (bool, error) {
	var count uint64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM rollup_store WHERE start_block > $1`, lastGcStart).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count rollup rounds: %w", err)
	}
	return count >= minOffset, nil
}

// AddGcRecord appends a new GC record.
func (s *Store) AddGcRecord(ctx context.Context, r mutation.GcRecord) error {
	if r.WallTimeUnix == 0 {
		r.WallTimeUnix = time.Now().Unix()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO gc_store (start_block, end_block, data_size, wall_time, processed_seconds)
		VALUES ($1, $2, $3, $4, $5)`,
		r.StartBlock, r.EndBlock, r.DataSize, r.WallTimeUnix, r.ProcessedSeconds)
	if err != nil {
		return fmt.Errorf("add gc record: %w", err)
	}
	return nil
}
