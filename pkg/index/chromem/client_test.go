package chromem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memkeep/memkeep-go/pkg/index"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(&Config{CollectionName: "test_memories"})
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
			Importance: 0.5,
			CreatedAt:  1000,
			LastAccess: 1000,
		},
	}
}

func TestAddAndList(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	a := testItem("id_a", "user_a", []float32{1, 0, 0})
	a.Meta.CreatedAt = 1000
	b := testItem("id_b", "user_a", []float32{0, 1, 0})
	b.Meta.CreatedAt = 2000
	other := testItem("id_c", "user_b", []float32{0, 0, 1})

	require.NoError(t, client.Add(ctx, a))
	require.NoError(t, client.Add(ctx, b))
	require.NoError(t, client.Add(ctx, other))

	items, err := client.List(ctx, "user_a")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "id_a", items[0].ID, "list order is creation time, then id")
	assert.Equal(t, "id_b", items[1].ID)

	all, err := client.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestQueryFiltersByOwner(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Add(ctx, testItem("mine", "user_a", []float32{1, 0, 0})))
	require.NoError(t, client.Add(ctx, testItem("theirs", "user_b", []float32{1, 0, 0})))

	hits, err := client.Query(ctx, []float32{1, 0, 0}, "user_a", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "mine", hits[0].ID)
	assert.InDelta(t, 0, hits[0].Distance, 1e-6)
}

func TestQueryLimitAboveDocumentCount(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	hits, err := client.Query(ctx, []float32{1, 0, 0}, "user_a", 5)
	require.NoError(t, err)
	assert.Empty(t, hits, "an empty collection yields no hits, not an error")

	require.NoError(t, client.Add(ctx, testItem("only", "user_a", []float32{1, 0, 0})))

	// The requested limit exceeds what the owner filter can supply.
	hits, err = client.Query(ctx, []float32{1, 0, 0}, "user_a", 15)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestUpdateMetadataKeepsEmbedding(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	item := testItem("id1", "user_a", []float32{1, 0, 0})
	require.NoError(t, client.Add(ctx, item))

	meta := item.Meta
	meta.LastAccess = 5000
	require.NoError(t, client.UpdateMetadata(ctx, "id1", meta))

	items, err := client.List(ctx, "user_a")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(5000), items[0].Meta.LastAccess)

	// The re-added document still answers similarity queries.
	hits, err := client.Query(ctx, []float32{1, 0, 0}, "user_a", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "id1", hits[0].ID)
	assert.Equal(t, int64(5000), hits[0].Meta.LastAccess)

	assert.ErrorIs(t, client.UpdateMetadata(ctx, "missing", meta), index.ErrNotFound)
}

func TestDelete(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Add(ctx, testItem("id1", "user_a", []float32{1, 0, 0})))
	require.NoError(t, client.Add(ctx, testItem("id2", "user_a", []float32{0, 1, 0})))

	deleted, err := client.Delete(ctx, "id1", "missing")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	items, err := client.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "id2", items[0].ID)
}

func TestPing(t *testing.T) {
	client := newTestClient(t)
	assert.NoError(t, client.Ping(context.Background()))
}
