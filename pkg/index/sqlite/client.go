// Package sqlite provides a SQLite implementation of the vector index.
//
// SQLite is a lightweight, file-based database suitable for single-node
// deployments. Vectors are stored as JSON strings in TEXT fields and
// similarity is computed in process with cosine similarity, so queries scan
// the owner's rows rather than using a native vector index.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/memkeep/memkeep-go/pkg/index"
)

// Client implements index.Index using SQLite as the backend.
type Client struct {
	db             *sql.DB
	collectionName string
}

// Config contains configuration for the SQLite index.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// CollectionName is the table used to store items.
	CollectionName string
}

// NewClient creates a new SQLite index client.
func NewClient(cfg *Config) (*Client, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("NewSQLiteClient: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	name := cfg.CollectionName
	if name == "" {
		name = "memories"
	}

	client := &Client{db: db, collectionName: name}
	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			tags TEXT,
			importance REAL NOT NULL DEFAULT 0.3,
			mood TEXT,
			content TEXT NOT NULL,
			embedding TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			last_access INTEGER NOT NULL
		)
	`, c.collectionName)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_owner ON %s(owner_id)
	`, c.collectionName, c.collectionName)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}
	return nil
}

// Add inserts an item. The embedding is stored as a JSON string.
func (c *Client) Add(ctx context.Context, item *index.Item) error {
	embeddingJSON, err := json.Marshal(item.Embedding)
	if err != nil {
		return fmt.Errorf("Add: %w", err)
	}
	tagsJSON, err := json.Marshal(item.Meta.Tags)
	if err != nil {
		return fmt.Errorf("Add: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, owner_id, memory_type, tags, importance, mood, content, embedding, created_at, last_access)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.collectionName)

	_, err = c.db.ExecContext(ctx, query,
		item.ID,
		item.Meta.OwnerID,
		item.Meta.MemoryType,
		string(tagsJSON),
		item.Meta.Importance,
		item.Meta.Mood,
		item.Content,
		string(embeddingJSON),
		item.Meta.CreatedAt,
		item.Meta.LastAccess,
	)
	if err != nil {
		return fmt.Errorf("Add: %w", err)
	}
	return nil
}

// Query performs similarity search with in-process cosine calculation.
func (c *Client) Query(ctx context.Context, embedding []float32, ownerID string, limit int) ([]index.Hit, error) {
	if limit <= 0 {
		return nil, nil
	}

	whereClause, args := ownerWhere(ownerID)
	query := fmt.Sprintf(`
		SELECT id, owner_id, memory_type, tags, importance, mood, content, embedding, created_at, last_access
		FROM %s
		%s
		ORDER BY created_at, id
	`, c.collectionName, whereClause)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []index.Hit
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("Query: %w", err)
		}
		hits = append(hits, index.Hit{
			Item:     *item,
			Distance: 1 - cosineSimilarity(embedding, item.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// List returns items for the owner ordered by creation time, then id.
func (c *Client) List(ctx context.Context, ownerID string) ([]*index.Item, error) {
	whereClause, args := ownerWhere(ownerID)
	query := fmt.Sprintf(`
		SELECT id, owner_id, memory_type, tags, importance, mood, content, embedding, created_at, last_access
		FROM %s
		%s
		ORDER BY created_at, id
	`, c.collectionName, whereClause)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*index.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return items, nil
}

// UpdateMetadata replaces the metadata columns of an item.
func (c *Client) UpdateMetadata(ctx context.Context, id string, meta index.Metadata) error {
	tagsJSON, err := json.Marshal(meta.Tags)
	if err != nil {
		return fmt.Errorf("UpdateMetadata: %w", err)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET owner_id = ?, memory_type = ?, tags = ?, importance = ?, mood = ?, created_at = ?, last_access = ?
		WHERE id = ?
	`, c.collectionName)

	result, err := c.db.ExecContext(ctx, query,
		meta.OwnerID,
		meta.MemoryType,
		string(tagsJSON),
		meta.Importance,
		meta.Mood,
		meta.CreatedAt,
		meta.LastAccess,
		id,
	)
	if err != nil {
		return fmt.Errorf("UpdateMetadata: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateMetadata: %w", err)
	}
	if affected == 0 {
		return index.ErrNotFound
	}
	return nil
}

// Delete removes the given ids and reports how many rows were removed.
func (c *Client) Delete(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", c.collectionName, placeholders)

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("Delete: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("Delete: %w", err)
	}
	return int(affected), nil
}

// Ping verifies the database connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func ownerWhere(ownerID string) (string, []interface{}) {
	if ownerID == "" {
		return "", nil
	}
	return "WHERE owner_id = ?", []interface{}{ownerID}
}

// scanItem scans one row into an Item.
func scanItem(rows *sql.Rows) (*index.Item, error) {
	var item index.Item
	var tagsStr, embeddingStr string
	var mood sql.NullString

	err := rows.Scan(
		&item.ID,
		&item.Meta.OwnerID,
		&item.Meta.MemoryType,
		&tagsStr,
		&item.Meta.Importance,
		&mood,
		&item.Content,
		&embeddingStr,
		&item.Meta.CreatedAt,
		&item.Meta.LastAccess,
	)
	if err != nil {
		return nil, err
	}

	if mood.Valid {
		item.Meta.Mood = mood.String
	}
	if tagsStr != "" {
		if err := json.Unmarshal([]byte(tagsStr), &item.Meta.Tags); err != nil {
			return nil, fmt.Errorf("parse tags: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(embeddingStr), &item.Embedding); err != nil {
		return nil, fmt.Errorf("parse embedding: %w", err)
	}
	return &item, nil
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
