// Package chromem provides a chromem-go implementation of the vector index.
//
// chromem-go is a pure Go, embedded vector database. It keeps everything in
// process memory, which makes this backend the default for local use and
// tests. chromem cannot enumerate documents or update them in place, so the
// client keeps a catalog of stored items beside the collection and expresses
// metadata updates as delete + re-add with the retained embedding.
package chromem

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/memkeep/memkeep-go/pkg/index"
)

// Client implements index.Index on top of a chromem-go collection.
type Client struct {
	db  *chromem.DB
	col *chromem.Collection

	// mu guards catalog.
	mu sync.RWMutex

	// catalog mirrors every stored item so List and UpdateMetadata work
	// without chromem enumeration support.
	catalog map[string]*index.Item
}

// Config contains configuration for the chromem index.
type Config struct {
	// CollectionName is the name of the chromem collection.
	CollectionName string
}

// NewClient creates a new in-memory chromem index.
func NewClient(cfg *Config) (*Client, error) {
	name := cfg.CollectionName
	if name == "" {
		name = "memories"
	}

	db := chromem.NewDB()

	// Embeddings are always supplied by the caller, so the collection's
	// embedding func is never invoked.
	col, err := db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("NewChromemClient: %w", err)
	}

	return &Client{
		db:      db,
		col:     col,
		catalog: make(map[string]*index.Item),
	}, nil
}

// Add stores an item in the collection and the catalog.
func (c *Client) Add(ctx context.Context, item *index.Item) error {
	doc := chromem.Document{
		ID:        item.ID,
		Content:   item.Content,
		Embedding: item.Embedding,
		Metadata: map[string]string{
			"owner_id":    item.Meta.OwnerID,
			"memory_type": item.Meta.MemoryType,
		},
	}

	if err := c.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("chromem add: %w", err)
	}

	stored := *item
	stored.Embedding = append([]float32(nil), item.Embedding...)
	stored.Meta.Tags = append([]string(nil), item.Meta.Tags...)

	c.mu.Lock()
	c.catalog[item.ID] = &stored
	c.mu.Unlock()

	return nil
}

// Query performs a similarity search filtered by owner.
func (c *Client) Query(ctx context.Context, embedding []float32, ownerID string, limit int) ([]index.Hit, error) {
	if limit <= 0 {
		return nil, nil
	}
	if n := c.col.Count(); n < limit {
		limit = n
	}
	if limit == 0 {
		return nil, nil
	}

	var where map[string]string
	if ownerID != "" {
		where = map[string]string{"owner_id": ownerID}
	}

	// chromem rejects nResults larger than the filtered document count, so
	// retry with smaller limits until the query fits.
	var results []chromem.Result
	for n := limit; n >= 1; n-- {
		var err error
		results, err = c.col.QueryEmbedding(ctx, embedding, n, where, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if n == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	hits := make([]index.Hit, 0, len(results))
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, res := range results {
		item, ok := c.catalog[res.ID]
		if !ok {
			continue
		}
		hits = append(hits, index.Hit{
			Item:     *item,
			Distance: 1 - float64(res.Similarity),
		})
	}
	return hits, nil
}

// List returns the owner's items sorted by creation time, then id.
func (c *Client) List(ctx context.Context, ownerID string) ([]*index.Item, error) {
	c.mu.RLock()
	items := make([]*index.Item, 0, len(c.catalog))
	for _, item := range c.catalog {
		if ownerID != "" && item.Meta.OwnerID != ownerID {
			continue
		}
		items = append(items, item)
	}
	c.mu.RUnlock()

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Meta.CreatedAt != items[j].Meta.CreatedAt {
			return items[i].Meta.CreatedAt < items[j].Meta.CreatedAt
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// UpdateMetadata replaces an item's metadata.
//
// chromem has no in-place update, so the document is deleted and re-added
// with the embedding retained in the catalog.
func (c *Client) UpdateMetadata(ctx context.Context, id string, meta index.Metadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.catalog[id]
	if !ok {
		return index.ErrNotFound
	}

	if err := c.col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("chromem update: delete: %w", err)
	}

	doc := chromem.Document{
		ID:        id,
		Content:   item.Content,
		Embedding: item.Embedding,
		Metadata: map[string]string{
			"owner_id":    meta.OwnerID,
			"memory_type": meta.MemoryType,
		},
	}
	if err := c.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("chromem update: re-add: %w", err)
	}

	item.Meta = meta
	return nil
}

// Delete removes the given ids, skipping unknown ones.
func (c *Client) Delete(ctx context.Context, ids ...string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deleted := 0
	for _, id := range ids {
		if _, ok := c.catalog[id]; !ok {
			continue
		}
		if err := c.col.Delete(ctx, nil, nil, id); err != nil {
			return deleted, fmt.Errorf("chromem delete: %w", err)
		}
		delete(c.catalog, id)
		deleted++
	}
	return deleted, nil
}

// Ping reports reachability. The collection lives in process memory, so the
// probe only verifies the collection handle exists.
func (c *Client) Ping(ctx context.Context) error {
	if c.col == nil {
		return fmt.Errorf("chromem ping: collection not initialized")
	}
	return nil
}

// Close releases resources. chromem keeps everything in memory.
func (c *Client) Close() error {
	return nil
}

// isInsufficientDocsError reports whether the query failed because nResults
// exceeded the number of (filtered) documents.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
