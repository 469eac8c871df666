package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetDocument returns one document, or nil if not found.
func (db *DB) GetDocument(ctx context.Context, collection, id string) (*Document, error) {
	var doc Document
	err := db.pool.QueryRow(ctx, `
		SELECT collection, id, data, updated_at
		FROM documents WHERE collection = $1 AND id = $2
	`, collection, id).Scan(&doc.Collection, &doc.ID, &doc.Data, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}
	return &doc, nil
}

// SetDocument inserts or replaces a document.
func (db *DB) SetDocument(ctx context.Context, collection, id string, data json.RawMessage) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO documents (collection, id, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (collection, id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, collection, id, data)
	if err != nil {
		return fmt.Errorf("failed to set document %s/%s: %w", collection, id, err)
	}
	return nil
}

// DeleteDocument removes a document. Deleting a missing document is not an
// error.
func (db *DB) DeleteDocument(ctx context.Context, collection, id string) error {
	_, err := db.pool.Exec(ctx, `
		DELETE FROM documents WHERE collection = $1 AND id = $2
	`, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err)
	}
	return nil
}

// QueryByField returns the documents in a collection whose data has the
// given top-level field equal to value, oldest update first.
func (db *DB) QueryByField(ctx context.Context, collection, field, value string) ([]Document, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT collection, id, data, updated_at
		FROM documents
		WHERE collection = $1 AND data ->> $2 = $3
		ORDER BY updated_at
	`, collection, field, value)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s by %s: %w", collection, field, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.Collection, &doc.ID, &doc.Data, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
