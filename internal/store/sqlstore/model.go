// Package sqlstore is a GORM-backed store.Store implementation shared by the
// sqlite and postgres drivers. Every collection (users, temp_tokens) lands in
// a single documents table, keyed by (collection, id), with the document body
// JSON-encoded into a text column. This keeps the schema collection-agnostic:
// adding a new collection never needs a migration.
package sqlstore

import (
	"encoding/json"
	"fmt"

	"github.com/coldforge/schnorrauth/internal/store"
)

// documentRow is the GORM model backing every collection.
type documentRow struct {
	Collection string `gorm:"primaryKey;column:collection"`
	ID         string `gorm:"primaryKey;column:id"`
	Data       string `gorm:"column:data"`
}

func (documentRow) TableName() string { return "documents" }

func encodeDocument(doc store.Document) (string, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("sqlstore: encode document: %w", err)
	}
	return string(b), nil
}

func decodeDocument(data string) (store.Document, error) {
	var doc store.Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("sqlstore: decode document: %w", err)
	}
	return doc, nil
}
