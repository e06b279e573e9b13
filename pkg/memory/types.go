// Package memory provides the tiered per-user memory store.
package memory

import "github.com/memkeep/memkeep-go/pkg/index"

// Type is the tier of a memory record. The tier decides whether a record
// expires by age during pruning.
type Type string

const (
	// TypeLongTerm is a durable record. Never time-expired.
	TypeLongTerm Type = "longterm"

	// TypeShortTerm expires after the configured short-term window.
	TypeShortTerm Type = "shortterm"

	// TypeHistory represents a recent conversation turn and expires after
	// the configured (very short) history window.
	TypeHistory Type = "history"

	// TypeProfile is a durable user-fact record. Never time-expired.
	TypeProfile Type = "profile"
)

// ScoredRecord is a retrieval result: a stored record together with its
// weighted relevance score.
type ScoredRecord struct {
	// ID is the record's unique identifier.
	ID string `json:"id"`

	// Content is the stored text, verbatim.
	Content string `json:"content"`

	// Meta is the record's metadata as persisted in the index. LastAccess
	// reflects the bump applied by the retrieval that returned it.
	Meta index.Metadata `json:"metadata"`

	// Score is the weighted relevance score
	// (0.7*similarity + 0.2*recency + 0.1*importance).
	Score float64 `json:"score"`
}
