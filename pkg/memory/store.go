package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/charmbracelet/log"

	"github.com/memkeep/memkeep-go/pkg/embedder"
	"github.com/memkeep/memkeep-go/pkg/index"
)

// Default configuration values.
const (
	// DefaultMaxItemsPerUser is the per-owner record cap.
	DefaultMaxItemsPerUser = 500

	// DefaultShortTermExpireSec is the shortterm record lifetime (30 min).
	DefaultShortTermExpireSec = 30 * 60

	// DefaultHistoryExpireSec is the history record lifetime (10 min).
	DefaultHistoryExpireSec = 10 * 60

	// DefaultRetrieveLimit is the result count when the caller passes a
	// non-positive limit.
	DefaultRetrieveLimit = 5
)

// Retrieval scoring weights and the recency window. A record untouched for a
// full day contributes zero recency.
const (
	weightSimilarity = 0.7
	weightRecency    = 0.2
	weightImportance = 0.1
	recencyWindowSec = 86400
)

// overfetchFactor is how many candidates are pulled from the index per
// requested result, to give the weighted re-ranking something to reorder.
const overfetchFactor = 3

// Config contains the tunable limits of the store. Zero values are replaced
// with the defaults above.
type Config struct {
	// MaxItemsPerUser caps how many records one owner may hold after a
	// pruning pass.
	MaxItemsPerUser int

	// ShortTermExpireSec is the age in seconds after which shortterm
	// records are pruned.
	ShortTermExpireSec int64

	// HistoryExpireSec is the age in seconds after which history records
	// are pruned.
	HistoryExpireSec int64
}

func (c Config) withDefaults() Config {
	if c.MaxItemsPerUser <= 0 {
		c.MaxItemsPerUser = DefaultMaxItemsPerUser
	}
	if c.ShortTermExpireSec <= 0 {
		c.ShortTermExpireSec = DefaultShortTermExpireSec
	}
	if c.HistoryExpireSec <= 0 {
		c.HistoryExpireSec = DefaultHistoryExpireSec
	}
	return c
}

// Store is the tiered per-user memory store.
//
// It owns the record lifecycle: records are created by Add, touched by
// Retrieve (last_access bump), and destroyed by the pruning pass that runs
// at the end of every Add, or by Clear/DeleteOne. It depends on an embedding
// provider and a vector index, both supplied at construction.
//
// All operations are serialized behind one exclusive lock held for the
// operation's full duration, so calls from different owners block each other.
// The store is safe for concurrent use from multiple goroutines.
//
// Example:
//
//	store, _ := memory.New(idx, emb, memory.Config{}, logger)
//	id, _ := store.Add(ctx, "user_001", "likes black tea",
//	    memory.WithMemoryType(memory.TypeLongTerm),
//	    memory.WithImportance(0.8),
//	)
//	records, _ := store.Retrieve(ctx, "user_001", "what tea?", 5)
type Store struct {
	index    index.Index
	embedder embedder.Provider
	cfg      Config
	logger   *log.Logger

	// node generates unique record ids.
	node *snowflake.Node

	// mu serializes every store operation.
	mu sync.Mutex

	// now returns the current time in epoch seconds. Overridden in tests.
	now func() int64
}

// New creates a new Store on top of the given index and embedder.
func New(idx index.Index, emb embedder.Provider, cfg Config, logger *log.Logger) (*Store, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, NewStoreError("New", err)
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Store{
		index:    idx,
		embedder: emb,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		node:     node,
		now:      func() int64 { return time.Now().Unix() },
	}, nil
}

// Add stores a new record for the owner and returns its id.
//
// The record id combines the owner with a snowflake token, so two adds with
// identical content never collide. Empty content is accepted; importance is
// clamped to [0,1]; an unknown memory type is stored as-is and treated as
// non-expiring by the pruning pass.
//
// After the write, the pruning pass runs for the owner: expired shortterm
// and history records are removed, then the lowest-importance records are
// evicted until the owner is back under the configured cap. The record
// created by this call is exempt from its own pass.
func (s *Store) Add(ctx context.Context, ownerID, content string, opts ...AddOption) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ownerID == "" {
		return "", NewStoreError("Add", ErrEmptyOwner)
	}

	options := applyAddOptions(opts)
	importance := clamp01(options.Importance)

	embedding, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return "", NewStoreError("Add", fmt.Errorf("%w: %v", ErrEmbeddingFailed, err))
	}

	now := s.now()
	id := ownerID + "_" + s.node.Generate().String()

	item := &index.Item{
		ID:        id,
		Content:   content,
		Embedding: embedding,
		Meta: index.Metadata{
			OwnerID:    ownerID,
			MemoryType: string(options.MemoryType),
			Tags:       options.Tags,
			Importance: importance,
			CreatedAt:  now,
			LastAccess: now,
		},
	}

	if err := s.index.Add(ctx, item); err != nil {
		return "", NewStoreError("Add", fmt.Errorf("%w: %v", ErrIndexOperation, err))
	}

	if err := s.pruneOwner(ctx, ownerID, id); err != nil {
		return "", NewStoreError("Add", err)
	}

	return id, nil
}

// Retrieve returns up to limit records relevant to the query, ranked by
// weighted score (similarity, recency of use, importance).
//
// The index is asked for three times the requested limit, and every
// candidate considered has its last_access bumped to now and persisted,
// whether or not it makes the final cut. A second retrieve therefore sees
// the bump. When no candidates exist the result is empty, not an error.
func (s *Store) Retrieve(ctx context.Context, ownerID, query string, limit int) ([]ScoredRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ownerID == "" {
		return nil, NewStoreError("Retrieve", ErrEmptyOwner)
	}
	if limit <= 0 {
		limit = DefaultRetrieveLimit
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, NewStoreError("Retrieve", fmt.Errorf("%w: %v", ErrEmbeddingFailed, err))
	}

	hits, err := s.index.Query(ctx, embedding, ownerID, limit*overfetchFactor)
	if err != nil {
		return nil, NewStoreError("Retrieve", fmt.Errorf("%w: %v", ErrIndexOperation, err))
	}
	if len(hits) == 0 {
		return nil, nil
	}

	now := s.now()
	records := make([]ScoredRecord, 0, len(hits))
	for _, hit := range hits {
		similarity := 1 - hit.Distance

		elapsed := float64(now - hit.Meta.LastAccess)
		recency := 1 - minFloat(1, elapsed/recencyWindowSec)

		score := weightSimilarity*similarity +
			weightRecency*recency +
			weightImportance*hit.Meta.Importance

		meta := hit.Meta
		meta.LastAccess = now
		if err := s.index.UpdateMetadata(ctx, hit.ID, meta); err != nil {
			return nil, NewStoreError("Retrieve", fmt.Errorf("%w: %v", ErrIndexOperation, err))
		}

		records = append(records, ScoredRecord{
			ID:      hit.ID,
			Content: hit.Content,
			Meta:    meta,
			Score:   score,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Score > records[j].Score
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Clear deletes every record owned by ownerID. Clearing an owner with no
// records is a no-op, not an error.
func (s *Store) Clear(ctx context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ownerID == "" {
		return NewStoreError("Clear", ErrEmptyOwner)
	}

	items, err := s.index.List(ctx, ownerID)
	if err != nil {
		return NewStoreError("Clear", fmt.Errorf("%w: %v", ErrIndexOperation, err))
	}
	if len(items) == 0 {
		return nil
	}

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	if _, err := s.index.Delete(ctx, ids...); err != nil {
		return NewStoreError("Clear", fmt.Errorf("%w: %v", ErrIndexOperation, err))
	}
	return nil
}

// DeleteOne removes a single record by id. Returns true if a record was
// deleted, false if no such record existed.
func (s *Store) DeleteOne(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted, err := s.index.Delete(ctx, id)
	if err != nil {
		return false, NewStoreError("DeleteOne", fmt.Errorf("%w: %v", ErrIndexOperation, err))
	}
	return deleted > 0, nil
}

// Ping probes the underlying index. Advisory only: a healthy probe does not
// guarantee the next real operation succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return s.index.Ping(ctx)
}

// pruneOwner runs the eviction pass for one owner. Caller holds s.mu.
//
// Rule 1: shortterm and history records past their expiry windows are
// deleted. Rule 2: if the survivors still exceed the cap, the lowest
// importance records are deleted until the cap is met. Ties are broken by
// the index's return order (stable). The record identified by exemptID, the
// one created by the Add that triggered this pass, is never marked.
func (s *Store) pruneOwner(ctx context.Context, ownerID, exemptID string) error {
	items, err := s.index.List(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexOperation, err)
	}
	if len(items) == 0 {
		return nil
	}

	now := s.now()
	var toDelete []string
	survivors := make([]*index.Item, 0, len(items))

	for _, item := range items {
		if item.ID == exemptID {
			survivors = append(survivors, item)
			continue
		}
		age := now - item.Meta.CreatedAt
		switch Type(item.Meta.MemoryType) {
		case TypeShortTerm:
			if age > s.cfg.ShortTermExpireSec {
				toDelete = append(toDelete, item.ID)
				continue
			}
		case TypeHistory:
			if age > s.cfg.HistoryExpireSec {
				toDelete = append(toDelete, item.ID)
				continue
			}
		}
		survivors = append(survivors, item)
	}

	if excess := len(survivors) - s.cfg.MaxItemsPerUser; excess > 0 {
		sort.SliceStable(survivors, func(i, j int) bool {
			return survivors[i].Meta.Importance < survivors[j].Meta.Importance
		})
		for _, item := range survivors {
			if excess == 0 {
				break
			}
			if item.ID == exemptID {
				continue
			}
			toDelete = append(toDelete, item.ID)
			excess--
		}
	}

	if len(toDelete) == 0 {
		return nil
	}

	deleted, err := s.index.Delete(ctx, toDelete...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexOperation, err)
	}
	s.logger.Debug("pruned memory records", "owner", ownerID, "deleted", deleted, "kept", len(items)-deleted)
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
