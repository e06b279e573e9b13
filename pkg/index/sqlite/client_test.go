package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memkeep/memkeep-go/pkg/index"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(&Config{
		DBPath:         filepath.Join(t.TempDir(), "test.db"),
		CollectionName: "test_memories",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testItem(id, owner string, embedding []float32) *index.Item {
	return &index.Item{
		ID:        id,
		Content:   "content of " + id,
		Embedding: embedding,
		Meta: index.Metadata{
			OwnerID:    owner,
			MemoryType: "longterm",
			Tags:       []string{"tag1"},
			Importance: 0.5,
			CreatedAt:  1000,
			LastAccess: 1000,
		},
	}
}

func TestAddAndList(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Add(ctx, testItem("id1", "user_a", []float32{1, 0, 0})))
	require.NoError(t, client.Add(ctx, testItem("id2", "user_a", []float32{0, 1, 0})))
	require.NoError(t, client.Add(ctx, testItem("id3", "user_b", []float32{0, 0, 1})))

	items, err := client.List(ctx, "user_a")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "id1", items[0].ID)
	assert.Equal(t, "id2", items[1].ID)
	assert.Equal(t, []string{"tag1"}, items[0].Meta.Tags)
	assert.Equal(t, []float32{1, 0, 0}, items[0].Embedding)

	all, err := client.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3, "empty owner lists everything")
}

func TestQueryRanksByCosineDistance(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Add(ctx, testItem("exact", "user_a", []float32{1, 0, 0})))
	require.NoError(t, client.Add(ctx, testItem("close", "user_a", []float32{1, 1, 0})))
	require.NoError(t, client.Add(ctx, testItem("orthogonal", "user_a", []float32{0, 1, 0})))
	require.NoError(t, client.Add(ctx, testItem("other_owner", "user_b", []float32{1, 0, 0})))

	hits, err := client.Query(ctx, []float32{1, 0, 0}, "user_a", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "exact", hits[0].ID)
	assert.InDelta(t, 0, hits[0].Distance, 1e-6)
	assert.Equal(t, "close", hits[1].ID)
	assert.Less(t, hits[1].Distance, 1.0)

	hits, err = client.Query(ctx, []float32{1, 0, 0}, "user_a", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 3, "limit above row count returns everything")

	hits, err = client.Query(ctx, []float32{1, 0, 0}, "user_a", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestUpdateMetadata(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	item := testItem("id1", "user_a", []float32{1, 0, 0})
	require.NoError(t, client.Add(ctx, item))

	meta := item.Meta
	meta.LastAccess = 2000
	meta.Importance = 0.9
	require.NoError(t, client.UpdateMetadata(ctx, "id1", meta))

	items, err := client.List(ctx, "user_a")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(2000), items[0].Meta.LastAccess)
	assert.Equal(t, 0.9, items[0].Meta.Importance)

	err = client.UpdateMetadata(ctx, "missing", meta)
	assert.ErrorIs(t, err, index.ErrNotFound)
}

func TestDelete(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Add(ctx, testItem("id1", "user_a", []float32{1, 0, 0})))
	require.NoError(t, client.Add(ctx, testItem("id2", "user_a", []float32{0, 1, 0})))

	deleted, err := client.Delete(ctx, "id1", "missing")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted, "unknown ids are not counted")

	deleted, err = client.Delete(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	items, err := client.List(ctx, "user_a")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "id2", items[0].ID)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	client, err := NewClient(&Config{DBPath: dbPath, CollectionName: "test_memories"})
	require.NoError(t, err)
	require.NoError(t, client.Add(ctx, testItem("id1", "user_a", []float32{1, 0, 0})))
	require.NoError(t, client.Close())

	reopened, err := NewClient(&Config{DBPath: dbPath, CollectionName: "test_memories"})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	items, err := reopened.List(ctx, "user_a")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "id1", items[0].ID)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{1, 0}, []float32{1}), "mismatched lengths yield zero")
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 0}), "zero vectors yield zero")
}
