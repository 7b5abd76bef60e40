package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"chainstore.io/node/internal/mutation"
)

// ApplyMutation persists m idempotently and routes its action into the
// document store. Idempotence is enforced by the tx_store's
// (signer, nonce) primary key: a replayed mutation's insert is a no-op.
func (s *Store) ApplyMutation(ctx context.Context, m mutation.Mutation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	docIDs, err := json.Marshal(m.Header.DocIDsMap)
	if err != nil {
		return fmt.Errorf("marshal doc ids: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO tx_store (signer, nonce, block, "order")
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (signer, nonce) DO NOTHING`,
		m.Signer, m.Nonce, m.Header.Block, m.Header.Order,
	)
	if err != nil {
		return fmt.Errorf("insert tx_store: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already applied under this (signer, nonce); idempotent no-op.
		return tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO block_store (block, "order", network_id, signer, nonce, action, payload, signature, body, doc_ids_map)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (block, "order") DO NOTHING`,
		m.Header.Block, m.Header.Order, m.Header.NetworkID, m.Signer, m.Nonce,
		int16(m.Action), m.Payload, m.Signature, []byte(m.Body), docIDs,
	); err != nil {
		return fmt.Errorf("insert block_store: %w", err)
	}

	if err := applyDocumentAction(ctx, tx, m); err != nil {
		return fmt.Errorf("apply document action: %w", err)
	}

	return tx.Commit(ctx)
}

// applyDocumentAction routes a verified mutation's action into the
// document/collection/database tables. Unknown or database-scoped
// actions with no document side effect are no-ops here.
func applyDocumentAction(ctx context.Context, tx pgx.Tx, m mutation.Mutation) error {
	switch m.Action {
	case mutation.ActionCreateDatabase:
		var body mutation.CreateDatabaseBody
		if err := json.Unmarshal(m.Body, &body); err != nil {
			return fmt.Errorf("decode create_database body: %w", err)
		}
		eventNames, err := json.Marshal(body.EventNames)
		if err != nil {
			return err
		}
		dbAddr := m.Signer
		_, err = tx.Exec(ctx, `
			INSERT INTO db (db_address, evm_node_url, abi, contract_addr, event_names, start_block)
			VALUES ($1, $2, $3, $4, $5, 0)
			ON CONFLICT (db_address) DO NOTHING`,
			dbAddr, body.EvmNodeURL, body.ABI, body.ContractAddr, eventNames,
		)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO db_owner (db_address, owner) VALUES ($1, $2)
			ON CONFLICT (db_address) DO NOTHING`, dbAddr, m.Signer)
		return err

	case mutation.ActionCreateCollection:
		var body mutation.CreateCollectionBody
		if err := json.Unmarshal(m.Body, &body); err != nil {
			return fmt.Errorf("decode create_collection body: %w", err)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO collection (db_address, name) VALUES ($1, $2)
			ON CONFLICT (db_address, name) DO NOTHING`, body.DB, body.Name)
		return err

	case mutation.ActionAddDocument:
		var body mutation.AddDocumentBody
		if err := json.Unmarshal(m.Body, &body); err != nil {
			return fmt.Errorf("decode add_document body: %w", err)
		}
		for i, doc := range body.Documents {
			var docID uint64
			if len(m.Header.DocIDsMap) > 0 && len(m.Header.DocIDsMap[0]) > i {
				docID = m.Header.DocIDsMap[0][i]
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO doc (db_address, collection, doc_id, body)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (db_address, collection, doc_id) DO NOTHING`,
				body.DB, body.Collection, docID, []byte(doc),
			); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO doc_owner (db_address, collection, doc_id, owner)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (db_address, collection, doc_id) DO NOTHING`,
				body.DB, body.Collection, docID, m.Signer,
			); err != nil {
				return err
			}
		}
		return nil

	case mutation.ActionUpdateDocument:
		var body mutation.UpdateDocumentBody
		if err := json.Unmarshal(m.Body, &body); err != nil {
			return fmt.Errorf("decode update_document body: %w", err)
		}
		_, err := tx.Exec(ctx, `
			UPDATE doc SET body = $4 WHERE db_address = $1 AND collection = $2 AND doc_id = $3`,
			body.DB, body.Collection, body.DocID, []byte(body.Document))
		return err

	case mutation.ActionDeleteDocument:
		var body mutation.DeleteDocumentBody
		if err := json.Unmarshal(m.Body, &body); err != nil {
			return fmt.Errorf("decode delete_document body: %w", err)
		}
		_, err := tx.Exec(ctx, `
			UPDATE doc SET deleted = TRUE WHERE db_address = $1 AND collection = $2 AND doc_id = $3`,
			body.DB, body.Collection, body.DocID)
		return err

	default:
		return nil
	}
}

// FlushState is a no-op: every write above is already committed via its
// own transaction, so there is no buffered state to flush.
func (s *Store) FlushState(ctx context.Context) error {
	return nil
}

// GetCurrentBlock returns the highest block present in the mutation log.
func (s *Store) GetCurrentBlock(ctx context.Context) (uint64, error) {
	var block uint64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(block), 0) FROM block_store`).Scan(&block)
	if err != nil {
		return 0, fmt.Errorf("query current block: %w", err)
	}
	return block, nil
}

// GetRangeMutations returns all mutations with block in [start, end),
// ordered by (block, order) ascending.
func (s *Store) GetRangeMutations(ctx context.Context, start, end uint64) ([]mutation.Mutation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT block, "order", network_id, signer, nonce, action, payload, signature, body, doc_ids_map
		FROM block_store
		WHERE block >= $1 AND block < $2
		ORDER BY block ASC, "order" ASC`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query range mutations: %w", err)
	}
	defer rows.Close()

	var out []mutation.Mutation
	for rows.Next() {
		var (
			m          mutation.Mutation
			action     int16
			docIDsJSON []byte
		)
		if err := rows.Scan(&m.Header.Block, &m.Header.Order, &m.Header.NetworkID,
			&m.Signer, &m.Nonce, &action, &m.Payload, &m.Signature, &m.Body, &docIDsJSON); err != nil {
			return nil, fmt.Errorf("scan mutation row: %w", err)
		}
		m.Action = mutation.ActionKind(action)
		if len(docIDsJSON) > 0 {
			if err := json.Unmarshal(docIDsJSON, &m.Header.DocIDsMap); err != nil {
				return nil, fmt.Errorf("unmarshal doc ids: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GCRangeMutation deletes all mutation log entries with block in
// [start, end).
func (s *Store) GCRangeMutation(ctx context.Context, start, end uint64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM block_store WHERE block >= $1 AND block < $2`, start, end)
	if err != nil {
		return fmt.Errorf("gc range mutation: %w", err)
	}
	return nil
}
