package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// QueryDocs returns the non-deleted documents of db/collection whose body
// matches a simple containment query (queryStr is a JSON object tested
// with the jsonb `@>` operator), plus the total match count.
func (s *Store) QueryDocs(ctx context.Context, db, collection, queryStr string) ([]json.RawMessage, int, error) {
	filter := []byte("{}")
	if queryStr != "" {
		filter = []byte(queryStr)
		var probe map[string]any
		if err := json.Unmarshal(filter, &probe); err != nil {
			return nil, 0, fmt.Errorf("decode query: %w", err)
		}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT body FROM doc
		WHERE db_address = $1 AND collection = $2 AND deleted = FALSE AND body @> $3::jsonb
		ORDER BY doc_id ASC`, db, collection, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("query docs: %w", err)
	}
	defer rows.Close()

	var docs []json.RawMessage
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, 0, fmt.Errorf("scan doc row: %w", err)
		}
		docs = append(docs, json.RawMessage(body))
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return docs, len(docs), nil
}
