package oracle

import (
	"fmt"
	"strings"
)

// maxCandidatesPerEntry caps how many candidates a single extraction may
// propose. Enforced again after parsing — the prompt alone is not trusted.
const maxCandidatesPerEntry = 5

// ExtractionPrompt generates the prompt for mining one journal entry for
// durable facts about the user.
func ExtractionPrompt(req ExtractionRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, `You are a memory extraction system for a personal journal. Analyze today's entry and extract durable facts about the user.

TODAY'S ENTRY (%s):
%s
`, req.Entry.MoodLabel, req.Entry.Detail)

	if len(req.RecentEntries) > 0 {
		b.WriteString("\nRECENT ENTRIES (most recent first):\n")
		for _, e := range req.RecentEntries {
			fmt.Fprintf(&b, "- %s\n", e.Detail)
		}
	}

	if len(req.ActiveMemories) > 0 {
		b.WriteString("\nKNOWN MEMORIES:\n")
		for _, m := range req.ActiveMemories {
			fmt.Fprintf(&b, "- [%s] (%s/%s) %s\n", m.ID, m.Type, m.Category, m.Content)
		}
	}

	fmt.Fprintf(&b, `
Memory types:
- fact: stable personal facts (e.g., "Works as a nurse at St. Mary's")
- preference: likes, dislikes, habits (e.g., "Prefers hiking over gym workouts")
- pattern: recurring behaviors (e.g., "Journals more during stressful weeks")
- relationship: people in the user's life (e.g., "Sam is their climbing partner")
- goal: things the user is working toward (e.g., "Training for a half marathon in May")
- emotion_trigger: reliable mood movers (e.g., "Mood improves after outdoor time")

Categories: work, health, hobby, family, personal, general

Actions:
- create: a new fact not covered by any known memory
- confirm: today's entry re-states a known memory (set target_id)
- supersede: today's entry contradicts or updates a known memory (set target_id; content is the replacement)

Rules:
- Only extract genuinely durable knowledge; skip one-off trivia
- At most %d candidates
- confidence in [0,1]; importance in 1-10
- Set is_explicit_request true ONLY when the entry explicitly asks to be remembered (e.g., "remember that..."); also set explicit_request on the candidate it produces, with confidence 1.0 and importance 7 or higher
- Return ONLY a JSON object, no other text

Return a JSON object:
{"is_explicit_request": false,
 "candidates": [{
  "action": "create|confirm|supersede",
  "type": "fact|preference|pattern|relationship|goal|emotion_trigger",
  "category": "work|health|hobby|family|personal|general",
  "content": "the fact, phrased in third person",
  "confidence": 0.8,
  "importance": 5,
  "target_id": "existing memory id or empty",
  "explicit_request": false
}]}

If nothing worth extracting, return: {"is_explicit_request": false, "candidates": []}`, maxCandidatesPerEntry)

	return b.String()
}

// ConsolidationPrompt generates the prompt asking for a plan that shrinks
// the active memory set to at most target records.
func ConsolidationPrompt(req ConsolidationRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, `You are a memory consolidation system. The user's active memory set has grown to %d records; reduce it to at most %d without losing signal.

ACTIVE MEMORIES:
`, len(req.Memories), req.Target)

	for _, m := range req.Memories {
		confirmed := ""
		if m.UserConfirmed {
			confirmed = " [user-confirmed]"
		}
		fmt.Fprintf(&b, "- [%s] (%s/%s, conf %.2f, imp %d, mentions %d)%s %s\n",
			m.ID, m.Type, m.Category, m.Confidence, m.Importance, m.MentionCount, confirmed, m.Content)
	}

	b.WriteString(`
Assign EVERY memory id above to exactly one of:
- keep: still distinct and valuable as-is
- merge: a group of 2+ overlapping memories replaced by one merged record (write the merged content)
- deactivate: stale or trivial, safe to retire

Rules:
- Every id appears exactly once across keep, merge groups, and deactivate
- Merge groups need at least 2 source ids and non-empty merged content
- Rate each merged record's importance in 1-10, reflecting its sources
- Prefer keeping user-confirmed and high-importance memories
- Return ONLY a JSON object, no other text

Return a JSON object:
{"keep": ["id", ...],
 "merge": [{"source_ids": ["id", "id"], "content": "merged fact", "type": "fact", "category": "general", "importance": 5}],
 "deactivate": ["id", ...]}`)

	return b.String()
}
