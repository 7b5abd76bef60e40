package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"chainstore.io/node/internal/mutation"
)

// GetAllEventDB returns every registered event-database descriptor, used
// by the indexer's cold-start recovery to (re)spawn a listener per
// database.
func (s *Store) GetAllEventDB(ctx context.Context) ([]mutation.EventDatabaseDescriptor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT db_address, evm_node_url, abi, contract_addr, event_names, start_block FROM db`)
	if err != nil {
		return nil, fmt.Errorf("query event dbs: %w", err)
	}
	defer rows.Close()

	var out []mutation.EventDatabaseDescriptor
	for rows.Next() {
		var d mutation.EventDatabaseDescriptor
		var eventNamesJSON []byte
		if err := rows.Scan(&d.DBAddress, &d.EvmNodeURL, &d.ABI, &d.ContractAddr, &eventNamesJSON, &d.StartBlock); err != nil {
			return nil, fmt.Errorf("scan event db row: %w", err)
		}
		if err := json.Unmarshal(eventNamesJSON, &d.EventNames); err != nil {
			return nil, fmt.Errorf("unmarshal event names: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SaveEventDB persists a new or updated event-database descriptor.
func (s *Store) SaveEventDB(ctx context.Context, d mutation.EventDatabaseDescriptor) error {
	eventNames, err := json.Marshal(d.EventNames)
	if err != nil {
		return fmt.Errorf("marshal event names: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO db (db_address, evm_node_url, abi, contract_addr, event_names, start_block)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (db_address) DO UPDATE SET
			evm_node_url = EXCLUDED.evm_node_url,
			abi = EXCLUDED.abi,
			contract_addr = EXCLUDED.contract_addr,
			event_names = EXCLUDED.event_names`,
		d.DBAddress, d.EvmNodeURL, d.ABI, d.ContractAddr, eventNames, d.StartBlock)
	if err != nil {
		return fmt.Errorf("save event db: %w", err)
	}
	return nil
}

// GetCollectionsOfDatabase lists the collection names registered for db.
func (s *Store) GetCollectionsOfDatabase(ctx context.Context, db string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM collection WHERE db_address = $1`, db)
	if err != nil {
		return nil, fmt.Errorf("query collections: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan collection row: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
