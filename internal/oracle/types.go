package oracle

import (
	"github.com/memoirlabs/memoir/internal/journal"
)

// Candidate actions.
const (
	ActionCreate    = "create"
	ActionConfirm   = "confirm"
	ActionSupersede = "supersede"
)

// MemorySummary is the read-only view of a stored memory handed to the
// oracle. It carries enough to reason about duplication and contradiction
// without exposing lifecycle bookkeeping.
type MemorySummary struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	Category      string  `json:"category"`
	Content       string  `json:"content"`
	Confidence    float64 `json:"confidence"`
	Importance    int     `json:"importance"`
	MentionCount  int     `json:"mention_count"`
	UserConfirmed bool    `json:"user_confirmed"`
}

// ExtractionRequest asks the oracle to mine one journal entry for durable
// facts, given recent entries and the user's current active memories.
type ExtractionRequest struct {
	UserID         string
	Entry          journal.Entry
	RecentEntries  []journal.Entry
	ActiveMemories []MemorySummary
}

// Candidate is one proposed memory mutation returned by extraction.
type Candidate struct {
	Action          string  `json:"action"` // create, confirm, supersede
	Type            string  `json:"type"`
	Category        string  `json:"category"`
	Content         string  `json:"content"`
	Confidence      float64 `json:"confidence"`
	Importance      int     `json:"importance"`
	TargetID        string  `json:"target_id"` // existing memory for confirm/supersede
	ExplicitRequest bool    `json:"explicit_request"`
}

// ExtractionResult is the full extraction output for one entry.
// IsExplicitRequest is set when the entry itself asks to be remembered;
// such a result is expected to carry at least one candidate with full
// confidence and high importance, which the engine checks after parsing.
type ExtractionResult struct {
	Candidates        []Candidate
	IsExplicitRequest bool
	TokensUsed        int
}

// ConsolidationRequest asks the oracle to shrink an oversized active set
// down to at most Target records.
type ConsolidationRequest struct {
	UserID   string
	Memories []MemorySummary
	Target   int
}

// MergeGroup names two or more source memories to be replaced by a single
// merged record. Importance rates the merged record; when absent or out of
// range the engine falls back to the strongest source.
type MergeGroup struct {
	SourceIDs  []string `json:"source_ids"`
	Content    string   `json:"content"`
	Type       string   `json:"type"`
	Category   string   `json:"category"`
	Importance int      `json:"importance"`
}

// Plan partitions the active set: every input memory id appears in exactly
// one of Keep, a merge group, or Deactivate.
type Plan struct {
	Keep       []string     `json:"keep"`
	Merge      []MergeGroup `json:"merge"`
	Deactivate []string     `json:"deactivate"`
	TokensUsed int          `json:"-"`
}

// IdentityPlan returns a plan that keeps every memory untouched. Used when
// the active set is already at or under target — no oracle call needed.
func IdentityPlan(memories []MemorySummary) *Plan {
	keep := make([]string, len(memories))
	for i, m := range memories {
		keep[i] = m.ID
	}
	return &Plan{Keep: keep}
}
