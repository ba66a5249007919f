package datamanager

import (
	"context"

	"fetchplan-registry/internal/metadata"
)

// Record is one stored row keyed by column name.
type Record map[string]any

// Store is a backing persistence unit owning a set of entities.
type Store interface {
	// Name is the store name entities refer to.
	Name() string
	// Load returns the rows with the given IDs. Missing IDs are skipped.
	Load(ctx context.Context, cls *metadata.MetaClass, ids []any, columns []string) ([]Record, error)
	// LoadAll returns up to limit rows ordered by ID; limit <= 0 means no limit.
	LoadAll(ctx context.Context, cls *metadata.MetaClass, columns []string, limit int) ([]Record, error)
	// Save inserts records without an ID and updates the given columns of
	// records with one. It returns the ID of every record in order.
	Save(ctx context.Context, cls *metadata.MetaClass, records []Record) ([]any, error)
}
