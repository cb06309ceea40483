package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/memoirlabs/memoir/internal/oracle"
	"github.com/memoirlabs/memoir/internal/store"
)

// consolidationState is the durable state carried across consolidation
// steps. The validated plan is frozen into the run after the plan step;
// execution works group by group, recording progress, so a resumed run
// never re-merges a group.
type consolidationState struct {
	Snapshot       []oracle.MemorySummary `json:"snapshot,omitempty"`
	Plan           *oracle.Plan           `json:"plan,omitempty"`
	Violations     []string               `json:"violations,omitempty"`
	ExecutedGroups []int                  `json:"executed_groups,omitempty"`
	DeactivateDone bool                   `json:"deactivate_done,omitempty"`
	Mutations      int                    `json:"mutations"`
	TokensUsed     int                    `json:"tokens_used"`
}

// ConsolidationSummary reports what one consolidation run did.
type ConsolidationSummary struct {
	RunID       string
	Before      int
	After       int
	Merged      int
	Deactivated int
	Violations  []string
}

// ConsolidateUser shrinks a user's active memory set toward the configured
// target. When the set is already at or under target, this is a no-op with
// no oracle call and no run record. Otherwise the run is durable: plan,
// execute, finalize, each persisted before the next runs.
func (e *Engine) ConsolidateUser(ctx context.Context, userID string) (*ConsolidationSummary, error) {
	ctx, span := e.tracer.Start(ctx, "engine.ConsolidateUser")
	defer span.End()

	memories, err := e.DB.GetActiveMemories(userID)
	if err != nil {
		return nil, err
	}
	if len(memories) <= e.consolidationTarget() {
		// At or under target the plan is the identity: keep everything,
		// touch nothing, ask the oracle nothing.
		plan := oracle.IdentityPlan(toSummaries(memories))
		log.Printf("consolidation: %s has %d active memories (target %d), keeping all %d",
			userID, len(memories), e.consolidationTarget(), len(plan.Keep))
		return &ConsolidationSummary{Before: len(memories), After: len(plan.Keep)}, nil
	}

	run, err := e.DB.FindRunningRun(userID, store.RunKindConsolidation)
	if err != nil {
		return nil, err
	}
	if run != nil {
		log.Printf("consolidation: resuming run %s at step %s", run.ID, run.Step)
	} else {
		run, err = e.DB.CreateRun(userID, "", store.RunKindConsolidation, stepPlan)
		if err != nil {
			return nil, err
		}
		e.Metrics.RunsStarted.WithLabelValues(store.RunKindConsolidation).Inc()
	}

	var st consolidationState
	if err := json.Unmarshal(run.State, &st); err != nil {
		return nil, fmt.Errorf("decode run state: %w", err)
	}

	step := run.Step
	advance := func(next string) error {
		if err := e.DB.AdvanceRun(run.ID, next, &st); err != nil {
			return err
		}
		step = next
		return nil
	}
	fail := func(cause error) (*ConsolidationSummary, error) {
		span.RecordError(cause)
		if ferr := e.DB.FailRun(run.ID, cause); ferr != nil {
			log.Printf("consolidation: marking run %s failed: %v", run.ID, ferr)
		}
		e.Metrics.RunsFailed.WithLabelValues(store.RunKindConsolidation).Inc()
		return nil, cause
	}

	for {
		switch step {
		case stepPlan:
			st.Snapshot = toSummaries(memories)

			var plan *oracle.Plan
			err := e.retryStep(ctx, run.ID, func() error {
				return e.callOracle(func() error {
					p, oerr := e.Oracle.PlanConsolidation(ctx, oracle.ConsolidationRequest{
						UserID:   userID,
						Memories: st.Snapshot,
						Target:   e.consolidationTarget(),
					})
					if oerr != nil {
						return oerr
					}
					plan = p
					return nil
				})
			})
			if err != nil {
				return fail(fmt.Errorf("plan consolidation: %w", err))
			}
			st.TokensUsed += plan.TokensUsed

			// Invalid plans are repaired and executed, not aborted: the
			// salvageable parts still shrink the set, and the violations
			// stay visible in the run record.
			normalized, violations := ValidatePlan(plan, st.Snapshot)
			if len(violations) > 0 {
				log.Printf("consolidation: WARNING plan for %s had %d violations: %v",
					userID, len(violations), violations)
			}
			st.Plan = normalized
			st.Violations = violations
			if err := advance(stepExecute); err != nil {
				return fail(err)
			}

		case stepExecute:
			executed := make(map[int]bool, len(st.ExecutedGroups))
			for _, i := range st.ExecutedGroups {
				executed[i] = true
			}
			for gi, g := range st.Plan.Merge {
				if executed[gi] {
					continue
				}
				merged, err := e.executeMerge(userID, g)
				if err != nil {
					return fail(fmt.Errorf("execute merge group %d: %w", gi, err))
				}
				st.Mutations += merged
				st.ExecutedGroups = append(st.ExecutedGroups, gi)
				if err := e.DB.AdvanceRun(run.ID, stepExecute, &st); err != nil {
					return fail(err)
				}
			}

			if !st.DeactivateDone {
				for _, id := range st.Plan.Deactivate {
					err := e.DB.DeactivateMemory(id)
					if errors.Is(err, store.ErrUnknownRecord) {
						log.Printf("consolidation: deactivate target %s vanished, skipping", id)
						continue
					}
					if err != nil {
						return fail(fmt.Errorf("deactivate %s: %w", id, err))
					}
					st.Mutations++
				}
				st.DeactivateDone = true
			}
			if err := advance(stepFinalize); err != nil {
				return fail(err)
			}

		case stepFinalize:
			if st.Mutations > 0 {
				e.Invalidator.Invalidate(userID)
				e.Metrics.CacheInvalidations.Inc()
			}
			if err := e.DB.CompleteRun(run.ID, &st); err != nil {
				return fail(err)
			}
			e.Metrics.RunsCompleted.WithLabelValues(store.RunKindConsolidation).Inc()

			after, err := e.DB.CountActiveMemories(userID)
			if err != nil {
				return nil, err
			}
			log.Printf("consolidation: %s shrunk %d → %d active memories (%d merges, %d deactivated)",
				userID, len(st.Snapshot), after, len(st.Plan.Merge), len(st.Plan.Deactivate))
			return &ConsolidationSummary{
				RunID:       run.ID,
				Before:      len(st.Snapshot),
				After:       after,
				Merged:      len(st.Plan.Merge),
				Deactivated: len(st.Plan.Deactivate),
				Violations:  st.Violations,
			}, nil

		default:
			return fail(fmt.Errorf("unknown consolidation step %q", step))
		}
	}
}

// executeMerge replaces a group's source records with one merged record.
// Sources that went inactive since planning are skipped; a group left with
// fewer than two live sources dissolves into keeps. Returns the number of
// records mutated.
func (e *Engine) executeMerge(userID string, g oracle.MergeGroup) (int, error) {
	var sources []*store.Memory
	for _, id := range g.SourceIDs {
		m, err := e.DB.GetMemoryByID(id)
		if err != nil {
			return 0, err
		}
		if m == nil || !m.IsActive || m.UserID != userID {
			log.Printf("consolidation: merge source %s no longer active, skipping", id)
			continue
		}
		sources = append(sources, m)
	}
	if len(sources) < 2 {
		log.Printf("consolidation: merge group reduced to %d live sources, keeping as-is", len(sources))
		return 0, nil
	}

	memType := store.MemoryType(g.Type)
	if !store.ValidTypes[memType] {
		memType = sources[0].Type
	}
	category := store.Category(g.Category)
	if !store.ValidCategories[category] {
		category = sources[0].Category
	}

	confidence := 0.0
	maxImportance := 1
	confirmed := false
	var sourceEntries []string
	for _, s := range sources {
		if s.Confidence > confidence {
			confidence = s.Confidence
		}
		if s.Importance > maxImportance {
			maxImportance = s.Importance
		}
		confirmed = confirmed || s.UserConfirmed
		sourceEntries = append(sourceEntries, s.SourceEntryIDs...)
	}

	// The plan rates the merged record itself; fall back to the strongest
	// source when the rating is missing or out of range.
	importance := g.Importance
	if importance < 1 || importance > 10 {
		importance = maxImportance
	}

	merged, err := e.DB.CreateMemory(store.CreateMemoryParams{
		UserID:         userID,
		Type:           memType,
		Category:       category,
		Content:        g.Content,
		SourceEntryIDs: sourceEntries,
		Confidence:     confidence,
		Importance:     importance,
		UserConfirmed:  confirmed,
	})
	if err != nil {
		return 0, err
	}

	mutated := 1
	for _, s := range sources {
		if err := e.DB.SupersedeMemory(s.ID, merged.ID); err != nil {
			return mutated, err
		}
		mutated++
	}
	return mutated, nil
}
