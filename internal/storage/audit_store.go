package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// RecordAction appends an audit_log entry for an admin-signed operation.
func (s *Store) RecordAction(ctx context.Context, id, action, actor string, details map[string]any) error {
	body, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_log (id, action, actor, details)
		VALUES ($1, $2, $3, $4)`,
		id, action, actor, body)
	if err != nil {
		return fmt.Errorf("record audit action: %w", err)
	}
	return nil
}
