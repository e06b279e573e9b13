// Package index defines the vector index contract consumed by the memory
// stores, along with the item and metadata types persisted in it.
//
// Implementations (chromem, SQLite, PostgreSQL) store (id, embedding,
// content, metadata) tuples and support similarity queries filtered by
// owner, metadata updates, and deletion by id.
package index

import (
	"context"
	"errors"
)

// ErrNotFound indicates that a requested item does not exist in the index.
var ErrNotFound = errors.New("index: item not found")

// Metadata is the structured metadata persisted next to every item.
//
// Fields are explicit rather than a free-form map so that every backend
// round-trips the same shape and callers never probe for keys at runtime.
type Metadata struct {
	// OwnerID identifies the user this item belongs to.
	OwnerID string `json:"owner_id"`

	// MemoryType is the tier label (longterm, shortterm, history, profile).
	MemoryType string `json:"memory_type"`

	// Tags are free-form labels. Informational only, not filtered on.
	Tags []string `json:"tags,omitempty"`

	// Importance is the eviction weight in [0,1].
	Importance float64 `json:"importance"`

	// CreatedAt is the creation time in epoch seconds. Set once.
	CreatedAt int64 `json:"created_at"`

	// LastAccess is the last retrieval time in epoch seconds.
	LastAccess int64 `json:"last_access"`

	// Mood is the emotion label recorded by the legacy store (empty for
	// tiered records).
	Mood string `json:"mood,omitempty"`
}

// Item is a single stored entry: content, its embedding, and metadata.
type Item struct {
	// ID is the unique identifier of the item.
	ID string

	// Content is the text payload, stored verbatim.
	Content string

	// Embedding is the vector representation of Content.
	Embedding []float32

	// Meta is the structured metadata for the item.
	Meta Metadata
}

// Hit is a similarity query result.
type Hit struct {
	Item

	// Distance is the cosine distance to the query embedding
	// (0 = identical, 1 - cosine similarity).
	Distance float64
}

// Index is the interface every vector index backend implements.
type Index interface {
	// Add stores an item. The embedding must already be set; backends never
	// embed on their own.
	Add(ctx context.Context, item *Item) error

	// Query returns up to limit items nearest to the embedding, sorted by
	// ascending distance. If ownerID is non-empty, only that owner's items
	// are considered. An empty index yields an empty result, not an error.
	Query(ctx context.Context, embedding []float32, ownerID string, limit int) ([]Hit, error)

	// List returns every item for the owner, in a stable backend-defined
	// order. An empty ownerID lists the whole collection.
	List(ctx context.Context, ownerID string) ([]*Item, error)

	// UpdateMetadata replaces the metadata of the item with the given id.
	// Returns ErrNotFound if the item does not exist.
	UpdateMetadata(ctx context.Context, id string, meta Metadata) error

	// Delete removes the given ids and reports how many items were removed.
	// Unknown ids are skipped, not errors.
	Delete(ctx context.Context, ids ...string) (int, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
