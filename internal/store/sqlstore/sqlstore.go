package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coldforge/schnorrauth/internal/store"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store is a GORM-backed store.Store. It is safe for concurrent use; GORM
// pools connections and the documents table's composite primary key gives us
// row-level exclusivity for Insert.
type Store struct {
	db     *gorm.DB
	driver string
}

// New opens a sqlstore.Store for the given driver ("sqlite" or "postgres")
// and DSN. Postgres schemas are brought up to date with golang-migrate
// against the embedded migration files; sqlite has no cgo-free golang-migrate
// driver in our dependency set, so it is brought up with GORM's AutoMigrate
// instead — both converge on the same documents table.
func New(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		if err := migratePostgres(dsn); err != nil {
			return nil, fmt.Errorf("sqlstore: migrate postgres: %w", err)
		}
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("sqlstore: unknown driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}

	if driver == "sqlite" {
		if err := db.AutoMigrate(&documentRow{}); err != nil {
			return nil, fmt.Errorf("sqlstore: auto-migrate sqlite: %w", err)
		}
	}

	return &Store{db: db, driver: driver}, nil
}

func (s *Store) Insert(ctx context.Context, collection, id string, doc store.Document) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	row := documentRow{Collection: collection, ID: id, Data: data}
	result := s.db.WithContext(ctx).Create(&row)
	if result.Error != nil {
		if isUniqueConstraintError(result.Error) {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("sqlstore: insert %s/%s: %w", collection, id, result.Error)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, collection, id string) (store.Document, error) {
	var row documentRow
	result := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, &store.NotFoundError{Collection: collection, ID: id}
		}
		return nil, fmt.Errorf("sqlstore: find %s/%s: %w", collection, id, result.Error)
	}
	return decodeDocument(row.Data)
}

func (s *Store) UpdateField(ctx context.Context, collection, id, field string, value any) error {
	return s.mutate(ctx, collection, id, func(doc store.Document) error {
		doc[field] = value
		return nil
	})
}

func (s *Store) UpdateArrayElementByMatch(ctx context.Context, collection, id, arrayField, matchField string, matchValue any, updates map[string]any) error {
	return s.mutate(ctx, collection, id, func(doc store.Document) error {
		rawArr, _ := doc[arrayField].([]any)
		for _, rawElem := range rawArr {
			elem, ok := rawElem.(map[string]any)
			if !ok {
				continue
			}
			if elem[matchField] == matchValue {
				for k, v := range updates {
					elem[k] = v
				}
				return nil
			}
		}
		return &store.NotFoundError{Collection: collection, ID: id + "/" + arrayField}
	})
}

func (s *Store) PushToArray(ctx context.Context, collection, id, arrayField string, element any) error {
	return s.mutate(ctx, collection, id, func(doc store.Document) error {
		arr, _ := doc[arrayField].([]any)
		doc[arrayField] = append(arr, element)
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	result := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&documentRow{})
	if result.Error != nil {
		return fmt.Errorf("sqlstore: delete %s/%s: %w", collection, id, result.Error)
	}
	if result.RowsAffected == 0 {
		return &store.NotFoundError{Collection: collection, ID: id}
	}
	return nil
}

func (s *Store) List(ctx context.Context, collection string) ([]store.Document, error) {
	var rows []documentRow
	result := s.db.WithContext(ctx).Where("collection = ?", collection).Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("sqlstore: list %s: %w", collection, result.Error)
	}

	docs := make([]store.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := decodeDocument(row.Data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// mutate runs a read-modify-write cycle inside a transaction, so a push and a
// field update racing on the same document never clobber each other.
func (s *Store) mutate(ctx context.Context, collection, id string, fn func(store.Document) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if s.driver == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var row documentRow
		result := q.Where("collection = ? AND id = ?", collection, id).
			First(&row)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return &store.NotFoundError{Collection: collection, ID: id}
			}
			return fmt.Errorf("sqlstore: lock %s/%s: %w", collection, id, result.Error)
		}

		doc, err := decodeDocument(row.Data)
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}

		data, err := encodeDocument(doc)
		if err != nil {
			return err
		}
		return tx.Model(&documentRow{}).
			Where("collection = ? AND id = ?", collection, id).
			Update("data", data).Error
	})
}

func isUniqueConstraintError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || // sqlite
		strings.Contains(msg, "duplicate key") || // postgres
		strings.Contains(msg, "23505") // postgres unique_violation code
}
