package store

import (
	"context"
	"time"

	"github.com/askdb/askdb/internal/schema"
)

// StoredDocument is a schema document plus the embedding derived from its
// text. The two always travel together: a rebuild replaces both or neither.
type StoredDocument struct {
	RowID        string          `json:"row_id"`
	Doc          schema.Document `json:"doc"`
	Embedding    []float32       `json:"embedding"`
	ModelVersion string          `json:"model_version"`
	Position     int             `json:"position"`
}

// Stats summarizes the stored description corpus
type Stats struct {
	TotalDocuments int            `json:"total_documents"`
	ByType         map[string]int `json:"by_type"`
	ModelVersion   string         `json:"model_version"`
	LastRebuilt    time.Time      `json:"last_rebuilt"`
}

// Store is the description store: a flat, addressable collection of schema
// documents with their embeddings. No query-time filtering lives here.
type Store interface {
	// GetAll returns every stored document in insertion order. The returned
	// slice is a point-in-time snapshot; callers must not mutate it.
	GetAll(ctx context.Context) ([]StoredDocument, error)

	// ReplaceAll swaps the whole corpus in one transaction. Concurrent
	// readers observe either the previous corpus or the new one.
	ReplaceAll(ctx context.Context, docs []StoredDocument) error

	// Stats reports corpus counts and rebuild metadata
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}
