package engine

import (
	"fmt"
	"strings"

	"github.com/memoirlabs/memoir/internal/oracle"
	"github.com/memoirlabs/memoir/internal/store"
)

const maxContentChars = 2000

// ValidateCandidate checks an extraction candidate for obvious garbage and
// returns a sanitized copy. Confirm candidates only need a target; create
// and supersede candidates carry full record fields.
func ValidateCandidate(c oracle.Candidate) (oracle.Candidate, error) {
	switch c.Action {
	case oracle.ActionCreate, oracle.ActionConfirm, oracle.ActionSupersede:
	default:
		return c, fmt.Errorf("%w: action %q", ErrInvalidCandidate, c.Action)
	}

	if c.Action != oracle.ActionCreate && c.TargetID == "" {
		return c, fmt.Errorf("%w: %s without target_id", ErrInvalidCandidate, c.Action)
	}

	if c.Action == oracle.ActionConfirm {
		return c, nil
	}

	if !store.ValidTypes[store.MemoryType(c.Type)] {
		return c, fmt.Errorf("%w: type %q", ErrInvalidCandidate, c.Type)
	}
	if !store.ValidCategories[store.Category(c.Category)] {
		return c, fmt.Errorf("%w: category %q", ErrInvalidCandidate, c.Category)
	}

	c.Content = strings.TrimSpace(c.Content)
	if len(c.Content) < 3 {
		return c, fmt.Errorf("%w: content too short", ErrInvalidCandidate)
	}
	if len(c.Content) > maxContentChars {
		c.Content = truncateClean(c.Content, maxContentChars)
	}

	if c.Confidence < 0 || c.Confidence > 1 {
		return c, fmt.Errorf("%w: confidence %v out of [0,1]", ErrInvalidCandidate, c.Confidence)
	}
	if c.Importance < 1 || c.Importance > 10 {
		return c, fmt.Errorf("%w: importance %d out of [1,10]", ErrInvalidCandidate, c.Importance)
	}

	return c, nil
}

// ValidatePlan checks a consolidation plan against the snapshot it was
// planned over and returns an executable plan plus the list of violations.
//
// A valid plan is an exact partition: every snapshot id appears exactly once
// across keep, merge groups, and deactivate; merge groups have at least two
// sources and non-empty content. Invalid pieces are reported and repaired —
// duplicate and unknown ids are dropped, undersized merge groups dissolve
// into keeps, and unassigned ids default to keep. The engine executes the
// repaired plan rather than aborting the run.
func ValidatePlan(plan *oracle.Plan, snapshot []oracle.MemorySummary) (*oracle.Plan, []string) {
	known := make(map[string]bool, len(snapshot))
	for _, m := range snapshot {
		known[m.ID] = true
	}

	var violations []string
	claimed := make(map[string]bool, len(snapshot))

	claim := func(id, where string) bool {
		if !known[id] {
			violations = append(violations, fmt.Sprintf("%s references unknown id %s", where, id))
			return false
		}
		if claimed[id] {
			violations = append(violations, fmt.Sprintf("%s claims %s more than once", where, id))
			return false
		}
		claimed[id] = true
		return true
	}

	out := &oracle.Plan{}

	for _, id := range plan.Keep {
		if claim(id, "keep") {
			out.Keep = append(out.Keep, id)
		}
	}

	for i, g := range plan.Merge {
		where := fmt.Sprintf("merge group %d", i)
		var sources []string
		for _, id := range g.SourceIDs {
			if claim(id, where) {
				sources = append(sources, id)
			}
		}
		content := strings.TrimSpace(g.Content)
		if len(sources) >= 2 && content != "" {
			g.SourceIDs = sources
			g.Content = content
			out.Merge = append(out.Merge, g)
			continue
		}
		if content == "" {
			violations = append(violations, where+" has empty merged content")
		}
		if len(sources) < 2 {
			violations = append(violations, fmt.Sprintf("%s has %d usable sources, need 2", where, len(sources)))
		}
		// Dissolve the group: its sources stay as keeps.
		out.Keep = append(out.Keep, sources...)
	}

	for _, id := range plan.Deactivate {
		if claim(id, "deactivate") {
			out.Deactivate = append(out.Deactivate, id)
		}
	}

	for _, m := range snapshot {
		if !claimed[m.ID] {
			violations = append(violations, fmt.Sprintf("id %s not assigned by plan", m.ID))
			out.Keep = append(out.Keep, m.ID)
		}
	}

	return out, violations
}

// truncateClean truncates a string to maxLen, cutting at the last word
// boundary to avoid mid-word breaks.
func truncateClean(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncated := s[:maxLen]
	if idx := strings.LastIndexByte(truncated, ' '); idx > maxLen-200 {
		truncated = truncated[:idx]
	}
	return strings.TrimSpace(truncated)
}
