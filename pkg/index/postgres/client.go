// Package postgres provides a PostgreSQL + pgvector implementation of the
// vector index, for deployments where the store is shared between processes.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"

	"github.com/memkeep/memkeep-go/pkg/index"
)

// Client implements index.Index using PostgreSQL with the pgvector extension.
type Client struct {
	db             *sql.DB
	collectionName string
	dimensions     int
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host           string
	Port           int
	User           string
	Password       string
	DBName         string
	CollectionName string
	Dimensions     int
	SSLMode        string
}

// NewClient creates a new PostgreSQL index client.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	name := cfg.CollectionName
	if name == "" {
		name = "memories"
	}

	client := &Client{db: db, collectionName: name, dimensions: cfg.Dimensions}
	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) initTables(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("initTables: create extension: %w", err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			owner_id VARCHAR(255) NOT NULL,
			memory_type VARCHAR(32) NOT NULL,
			tags JSONB,
			importance DOUBLE PRECISION NOT NULL DEFAULT 0.3,
			mood VARCHAR(64),
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at BIGINT NOT NULL,
			last_access BIGINT NOT NULL
		)
	`, c.collectionName, c.dimensions)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: create table: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_owner ON %s(owner_id)
	`, c.collectionName, c.collectionName)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("initTables: create index: %w", err)
	}
	return nil
}

// Add inserts an item. The embedding uses pgvector's text format.
func (c *Client) Add(ctx context.Context, item *index.Item) error {
	tagsJSON, err := json.Marshal(item.Meta.Tags)
	if err != nil {
		return fmt.Errorf("Add: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, owner_id, memory_type, tags, importance, mood, content, embedding, created_at, last_access)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.collectionName)

	_, err = c.db.ExecContext(ctx, query,
		item.ID,
		item.Meta.OwnerID,
		item.Meta.MemoryType,
		string(tagsJSON),
		item.Meta.Importance,
		item.Meta.Mood,
		item.Content,
		vectorToString(item.Embedding),
		item.Meta.CreatedAt,
		item.Meta.LastAccess,
	)
	if err != nil {
		return fmt.Errorf("Add: %w", err)
	}
	return nil
}

// Query performs similarity search with pgvector's cosine distance operator.
func (c *Client) Query(ctx context.Context, embedding []float32, ownerID string, limit int) ([]index.Hit, error) {
	if limit <= 0 {
		return nil, nil
	}

	whereClause := ""
	args := []interface{}{vectorToString(embedding)}
	if ownerID != "" {
		whereClause = "WHERE owner_id = $2"
		args = append(args, ownerID)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, owner_id, memory_type, tags, importance, mood, content, embedding,
		       created_at, last_access, embedding <=> $1 AS distance
		FROM %s
		%s
		ORDER BY distance
		LIMIT $%d
	`, c.collectionName, whereClause, len(args))

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []index.Hit
	for rows.Next() {
		item, distance, err := scanItem(rows, true)
		if err != nil {
			return nil, fmt.Errorf("Query: %w", err)
		}
		hits = append(hits, index.Hit{Item: *item, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}
	return hits, nil
}

// List returns items for the owner ordered by creation time, then id.
func (c *Client) List(ctx context.Context, ownerID string) ([]*index.Item, error) {
	whereClause := ""
	var args []interface{}
	if ownerID != "" {
		whereClause = "WHERE owner_id = $1"
		args = append(args, ownerID)
	}

	query := fmt.Sprintf(`
		SELECT id, owner_id, memory_type, tags, importance, mood, content, embedding,
		       created_at, last_access
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
		item, _, err := scanItem(rows, false)
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
		SET owner_id = $1, memory_type = $2, tags = $3, importance = $4, mood = $5,
		    created_at = $6, last_access = $7
		WHERE id = $8
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

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)",
		c.collectionName, strings.Join(placeholders, ", "))

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

// vectorToString converts a vector to pgvector text format: "[0.1,0.2,...]".
func vectorToString(vector []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

// parseVectorString parses pgvector text format back into a vector.
func parseVectorString(s string) ([]float32, error) {
	s = strings.TrimPrefix(strings.TrimSuffix(strings.TrimSpace(s), "]"), "[")
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	vector := make([]float32, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector element %d: %w", i, err)
		}
		vector[i] = float32(v)
	}
	return vector, nil
}

// scanItem scans one row into an Item, optionally with a trailing distance.
func scanItem(rows *sql.Rows, hasDistance bool) (*index.Item, float64, error) {
	var item index.Item
	var tagsStr, embeddingStr string
	var mood sql.NullString
	var distance float64

	dest := []interface{}{
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
	}
	if hasDistance {
		dest = append(dest, &distance)
	}

	if err := rows.Scan(dest...); err != nil {
		return nil, 0, err
	}

	if mood.Valid {
		item.Meta.Mood = mood.String
	}
	if tagsStr != "" {
		if err := json.Unmarshal([]byte(tagsStr), &item.Meta.Tags); err != nil {
			return nil, 0, fmt.Errorf("parse tags: %w", err)
		}
	}

	embedding, err := parseVectorString(embeddingStr)
	if err != nil {
		return nil, 0, err
	}
	item.Embedding = embedding

	return &item, distance, nil
}
