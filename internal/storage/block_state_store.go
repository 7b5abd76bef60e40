package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"chainstore.io/node/internal/mutation"
)

// RecoverBlockState returns the persisted (block, order) watermark, or
// nil if none has ever been saved.
func (s *Store) RecoverBlockState(ctx context.Context) (*mutation.BlockState, error) {
	var bs mutation.BlockState
	err := s.pool.QueryRow(ctx, `SELECT block, "order" FROM block_state WHERE id = 1`).Scan(&bs.Block, &bs.Order)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recover block state: %w", err)
	}
	return &bs, nil
}

// SaveBlockState persists the new high-water mark, overwriting any
// previous value.
func (s *Store) SaveBlockState(ctx context.Context, bs mutation.BlockState) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO block_state (id, block, "order") VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET block = EXCLUDED.block, "order" = EXCLUDED."order"`,
		bs.Block, bs.Order)
	if err != nil {
		return fmt.Errorf("save block state: %w", err)
	}
	return nil
}
