// Package legacy provides the single-tier predecessor of the tiered memory
// store. It is kept alive as the fallback target of the resilience wrapper.
//
// The contract is deliberately simpler than the tiered store's: records are
// scoped only by the collection the store was bound to, retrieval returns
// raw index hits without re-ranking or access-time bumps, and cleanup is an
// explicit call with a hand-rolled relevance rule set rather than an
// automatic pass on every add.
package legacy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/memkeep/memkeep-go/pkg/embedder"
	"github.com/memkeep/memkeep-go/pkg/index"
	"github.com/memkeep/memkeep-go/pkg/memory"
)

// maxAgeSec is the fixed record lifetime: 30 days.
const maxAgeSec = 30 * 24 * 60 * 60

// negativeMarkers are the fixed sentiment markers; a record containing
// either is discarded during cleanup.
var negativeMarkers = []string{"disappointed", "angry"}

// Store is the legacy single-tier memory store.
type Store struct {
	index    index.Index
	embedder embedder.Provider
	logger   *log.Logger

	// now returns the current time in epoch seconds. Overridden in tests.
	now func() int64
}

// New creates a legacy store bound to the given index collection.
func New(idx index.Index, emb embedder.Provider, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		index:    idx,
		embedder: emb,
		logger:   logger,
		now:      func() int64 { return time.Now().Unix() },
	}
}

// Add stores a record. Tier and importance options are accepted for
// interface compatibility but ignored; the legacy store has one tier.
func (s *Store) Add(ctx context.Context, ownerID, content string, opts ...memory.AddOption) (string, error) {
	embedding, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("legacy add: %w", err)
	}

	now := s.now()
	id := "memory_" + uuid.NewString()

	item := &index.Item{
		ID:        id,
		Content:   content,
		Embedding: embedding,
		Meta: index.Metadata{
			OwnerID:    ownerID,
			CreatedAt:  now,
			LastAccess: now,
		},
	}
	if err := s.index.Add(ctx, item); err != nil {
		return "", fmt.Errorf("legacy add: %w", err)
	}
	return id, nil
}

// RecordExchange stores one conversational exchange together with its mood
// label, the shape the original chat surface wrote.
func (s *Store) RecordExchange(ctx context.Context, userMsg, assistantMsg, mood string) (string, error) {
	content := fmt.Sprintf("User: %s\nAssistant: %s\nMood: %s", userMsg, assistantMsg, mood)

	embedding, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("legacy record exchange: %w", err)
	}

	now := s.now()
	id := "memory_" + uuid.NewString()

	item := &index.Item{
		ID:        id,
		Content:   content,
		Embedding: embedding,
		Meta: index.Metadata{
			CreatedAt:  now,
			LastAccess: now,
			Mood:       mood,
		},
	}
	if err := s.index.Add(ctx, item); err != nil {
		return "", fmt.Errorf("legacy record exchange: %w", err)
	}
	return id, nil
}

// Retrieve returns raw index hits for the query. The score is the plain
// cosine similarity; there is no re-ranking and no access-time bump, and the
// ownerID is ignored beyond the collection binding.
func (s *Store) Retrieve(ctx context.Context, ownerID, query string, limit int) ([]memory.ScoredRecord, error) {
	if limit <= 0 {
		limit = memory.DefaultRetrieveLimit
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("legacy retrieve: %w", err)
	}

	hits, err := s.index.Query(ctx, embedding, "", limit)
	if err != nil {
		return nil, fmt.Errorf("legacy retrieve: %w", err)
	}

	records := make([]memory.ScoredRecord, 0, len(hits))
	for _, hit := range hits {
		records = append(records, memory.ScoredRecord{
			ID:      hit.ID,
			Content: hit.Content,
			Meta:    hit.Meta,
			Score:   1 - hit.Distance,
		})
	}
	return records, nil
}

// Clear deletes every record in the bound collection. The ownerID is
// accepted for interface compatibility; the legacy store has no owner
// scoping beyond the collection itself.
func (s *Store) Clear(ctx context.Context, ownerID string) error {
	items, err := s.index.List(ctx, "")
	if err != nil {
		return fmt.Errorf("legacy clear: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	if _, err := s.index.Delete(ctx, ids...); err != nil {
		return fmt.Errorf("legacy clear: %w", err)
	}
	return nil
}

// DeleteOne removes a single record by id.
func (s *Store) DeleteOne(ctx context.Context, id string) (bool, error) {
	deleted, err := s.index.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("legacy delete: %w", err)
	}
	return deleted > 0, nil
}

// Cleanup discards records that are no longer relevant and returns how many
// were removed. A record is discarded when it is older than 30 days, when
// its content contains a negative-sentiment marker, or when both it and the
// call carry a mood label and the labels differ. Cleanup is explicit; it is
// not wired into Add.
func (s *Store) Cleanup(ctx context.Context, currentMood string) (int, error) {
	items, err := s.index.List(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("legacy cleanup: %w", err)
	}

	now := s.now()
	var toDelete []string
	for _, item := range items {
		if !s.relevant(item, currentMood, now) {
			toDelete = append(toDelete, item.ID)
		}
	}
	if len(toDelete) == 0 {
		return 0, nil
	}

	deleted, err := s.index.Delete(ctx, toDelete...)
	if err != nil {
		return deleted, fmt.Errorf("legacy cleanup: %w", err)
	}
	s.logger.Info("legacy cleanup removed records", "count", deleted)
	return deleted, nil
}

// relevant applies the legacy retention rules.
func (s *Store) relevant(item *index.Item, currentMood string, now int64) bool {
	if now-item.Meta.CreatedAt > maxAgeSec {
		return false
	}
	for _, marker := range negativeMarkers {
		if strings.Contains(item.Content, marker) {
			return false
		}
	}
	// The mood rule only applies when both sides carry a label; records
	// without one survive any mood.
	if currentMood != "" && item.Meta.Mood != "" && item.Meta.Mood != currentMood {
		return false
	}
	return true
}

// Ping probes the underlying index.
func (s *Store) Ping(ctx context.Context) error {
	return s.index.Ping(ctx)
}
