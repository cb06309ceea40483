package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/memoirlabs/memoir/internal/journal"
	"github.com/memoirlabs/memoir/internal/oracle"
	"github.com/memoirlabs/memoir/internal/store"
)

// extractionState is the durable state carried across extraction steps.
// Candidates are frozen into the run after the oracle call, so applying
// them never depends on re-asking the oracle.
type extractionState struct {
	Skipped    bool                   `json:"skipped,omitempty"`
	Recent     []journal.Entry        `json:"recent,omitempty"`
	Memories   []oracle.MemorySummary `json:"memories,omitempty"`
	Candidates []oracle.Candidate     `json:"candidates,omitempty"`
	Applied    []int                  `json:"applied,omitempty"`
	Mutations  int                    `json:"mutations"`
	Dropped    int                    `json:"dropped"`
	TokensUsed int                    `json:"tokens_used"`
}

// ExtractionSummary reports what one extraction run did.
type ExtractionSummary struct {
	RunID     string
	Skipped   bool
	Applied   int
	Dropped   int
	Mutations int
}

// ProcessEntry runs the extraction pipeline for a journal entry. Each step
// transition is persisted before the next step executes, so a crashed run
// resumes at its last recorded step. Re-triggering a completed entry is a
// no-op; re-triggering a failed one starts a fresh run.
func (e *Engine) ProcessEntry(ctx context.Context, entryID string) (*ExtractionSummary, error) {
	ctx, span := e.tracer.Start(ctx, "engine.ProcessEntry")
	defer span.End()

	entry, err := e.DB.Entry(entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntry, entryID)
	}

	run, err := e.DB.FindRunByEntry(entryID, store.RunKindExtraction)
	if err != nil {
		return nil, err
	}
	switch {
	case run != nil && run.Status == store.RunCompleted:
		log.Printf("extraction: entry %s already processed by run %s", entryID, run.ID)
		return summaryFromRun(run), nil
	case run != nil && run.Status == store.RunRunning:
		log.Printf("extraction: resuming run %s at step %s", run.ID, run.Step)
	default:
		run, err = e.DB.CreateRun(entry.UserID, entryID, store.RunKindExtraction, stepGatherContext)
		if err != nil {
			return nil, err
		}
		e.Metrics.RunsStarted.WithLabelValues(store.RunKindExtraction).Inc()
	}

	var st extractionState
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
	fail := func(cause error) (*ExtractionSummary, error) {
		span.RecordError(cause)
		if ferr := e.DB.FailRun(run.ID, cause); ferr != nil {
			log.Printf("extraction: marking run %s failed: %v", run.ID, ferr)
		}
		e.Metrics.RunsFailed.WithLabelValues(store.RunKindExtraction).Inc()
		return nil, cause
	}

	for {
		switch step {
		case stepGatherContext:
			if entry.TrimmedLen() < e.Lifecycle.MinEntryChars {
				log.Printf("extraction: skipping entry %s — too short (%d chars)", entryID, entry.TrimmedLen())
				st.Skipped = true
				if err := advance(stepFinalize); err != nil {
					return fail(err)
				}
				continue
			}
			if err := e.gatherContext(entry, &st); err != nil {
				return fail(err)
			}
			if err := advance(stepExtract); err != nil {
				return fail(err)
			}

		case stepExtract:
			var result *oracle.ExtractionResult
			err := e.retryStep(ctx, run.ID, func() error {
				return e.callOracle(func() error {
					r, oerr := e.Oracle.ExtractFacts(ctx, oracle.ExtractionRequest{
						UserID:         entry.UserID,
						Entry:          *entry,
						RecentEntries:  st.Recent,
						ActiveMemories: st.Memories,
					})
					if oerr != nil {
						return oerr
					}
					result = r
					return nil
				})
			})
			if err != nil {
				return fail(fmt.Errorf("extract candidates: %w", err))
			}
			st.Candidates = result.Candidates
			st.TokensUsed += result.TokensUsed
			if result.IsExplicitRequest && !meetsExplicitFloor(result.Candidates) {
				log.Printf("extraction: WARNING entry %s is an explicit remember request but no candidate carries confidence 1.0 and importance >= 7", entryID)
			}
			if err := advance(stepApply); err != nil {
				return fail(err)
			}

		case stepApply:
			applied := make(map[int]bool, len(st.Applied))
			for _, i := range st.Applied {
				applied[i] = true
			}
			for i, c := range st.Candidates {
				if applied[i] {
					continue
				}
				if err := e.applyCandidate(entry, c); err != nil {
					if !isDroppable(err) {
						return fail(fmt.Errorf("apply candidate %d: %w", i, err))
					}
					if c.ExplicitRequest {
						log.Printf("extraction: WARNING dropping explicitly requested memory for entry %s: %v", entryID, err)
					} else {
						log.Printf("extraction: dropping candidate %d for entry %s: %v", i, entryID, err)
					}
					st.Dropped++
					e.Metrics.CandidatesDropped.Inc()
				} else {
					st.Mutations++
					e.Metrics.CandidatesApplied.Inc()
				}
				// Record per-candidate progress so a resumed run never
				// re-applies a candidate that already landed.
				st.Applied = append(st.Applied, i)
				if err := e.DB.AdvanceRun(run.ID, stepApply, &st); err != nil {
					return fail(err)
				}
			}
			if err := advance(stepFinalize); err != nil {
				return fail(err)
			}

		case stepFinalize:
			if st.Mutations > 0 {
				e.Invalidator.Invalidate(entry.UserID)
				e.Metrics.CacheInvalidations.Inc()
			}
			if err := e.DB.CompleteRun(run.ID, &st); err != nil {
				return fail(err)
			}
			e.Metrics.RunsCompleted.WithLabelValues(store.RunKindExtraction).Inc()

			e.maybeConsolidate(ctx, entry.UserID)

			return &ExtractionSummary{
				RunID:     run.ID,
				Skipped:   st.Skipped,
				Applied:   len(st.Applied) - st.Dropped,
				Dropped:   st.Dropped,
				Mutations: st.Mutations,
			}, nil

		default:
			return fail(fmt.Errorf("unknown extraction step %q", step))
		}
	}
}

// gatherContext loads the oracle's inputs: recent entries (excluding the one
// being processed) and the user's active memory snapshot, both capped.
func (e *Engine) gatherContext(entry *journal.Entry, st *extractionState) error {
	recent, err := e.DB.Recent(entry.UserID, e.Lifecycle.MaxRecentEntries+1)
	if err != nil {
		return fmt.Errorf("gather recent entries: %w", err)
	}
	st.Recent = st.Recent[:0]
	for _, r := range recent {
		if r.ID == entry.ID {
			continue
		}
		if len(st.Recent) >= e.Lifecycle.MaxRecentEntries {
			break
		}
		st.Recent = append(st.Recent, r)
	}

	memories, err := e.DB.GetActiveMemories(entry.UserID)
	if err != nil {
		return fmt.Errorf("gather active memories: %w", err)
	}
	if len(memories) > e.Lifecycle.MaxContextMemories {
		memories = memories[:e.Lifecycle.MaxContextMemories]
	}
	st.Memories = toSummaries(memories)
	return nil
}

// applyCandidate performs one candidate's mutation. Validation and
// unknown-target errors are droppable; anything else aborts the run.
func (e *Engine) applyCandidate(entry *journal.Entry, c oracle.Candidate) error {
	c, err := ValidateCandidate(c)
	if err != nil {
		return err
	}

	switch c.Action {
	case oracle.ActionCreate:
		_, err := e.DB.CreateMemory(store.CreateMemoryParams{
			UserID:         entry.UserID,
			Type:           store.MemoryType(c.Type),
			Category:       store.Category(c.Category),
			Content:        c.Content,
			SourceEntryIDs: []string{entry.ID},
			Confidence:     c.Confidence,
			Importance:     c.Importance,
			UserConfirmed:  c.ExplicitRequest,
		})
		return err

	case oracle.ActionConfirm:
		target, err := e.DB.GetMemoryByID(c.TargetID)
		if err != nil {
			return err
		}
		if target == nil || target.UserID != entry.UserID {
			return fmt.Errorf("%w: confirm target %s", store.ErrUnknownRecord, c.TargetID)
		}
		if err := e.DB.ConfirmMemory(c.TargetID, c.ExplicitRequest); err != nil {
			return err
		}
		return e.DB.AddSourceEntry(c.TargetID, entry.ID)

	case oracle.ActionSupersede:
		old, err := e.DB.GetMemoryByID(c.TargetID)
		if err != nil {
			return err
		}
		if old == nil || old.UserID != entry.UserID {
			return fmt.Errorf("%w: supersede target %s", store.ErrUnknownRecord, c.TargetID)
		}
		// The replacement's sources are a superset of the lineage it replaces.
		repl, err := e.DB.CreateMemory(store.CreateMemoryParams{
			UserID:         entry.UserID,
			Type:           store.MemoryType(c.Type),
			Category:       store.Category(c.Category),
			Content:        c.Content,
			SourceEntryIDs: append(old.SourceEntryIDs, entry.ID),
			Confidence:     c.Confidence,
			Importance:     c.Importance,
			UserConfirmed:  c.ExplicitRequest,
		})
		if err != nil {
			return err
		}
		return e.DB.SupersedeMemory(old.ID, repl.ID)
	}
	return nil
}

// maybeConsolidate triggers consolidation when the active set has outgrown
// the threshold. Failures are logged, never propagated — consolidation gets
// another chance on the next trigger.
func (e *Engine) maybeConsolidate(ctx context.Context, userID string) {
	count, err := e.DB.CountActiveMemories(userID)
	if err != nil {
		log.Printf("extraction: count active memories for %s: %v", userID, err)
		return
	}
	if count <= e.consolidationThreshold() {
		return
	}
	if _, err := e.ConsolidateUser(ctx, userID); err != nil {
		log.Printf("extraction: consolidation for %s: %v", userID, err)
	}
}

// meetsExplicitFloor reports whether at least one candidate carries the
// certainty an explicit remember request demands.
func meetsExplicitFloor(candidates []oracle.Candidate) bool {
	for _, c := range candidates {
		if c.Confidence == 1.0 && c.Importance >= 7 {
			return true
		}
	}
	return false
}

func isDroppable(err error) bool {
	return errors.Is(err, ErrInvalidCandidate) ||
		errors.Is(err, store.ErrInvalidRecord) ||
		errors.Is(err, store.ErrUnknownRecord)
}

func toSummaries(memories []store.Memory) []oracle.MemorySummary {
	out := make([]oracle.MemorySummary, len(memories))
	for i, m := range memories {
		out[i] = oracle.MemorySummary{
			ID:            m.ID,
			Type:          string(m.Type),
			Category:      string(m.Category),
			Content:       m.Content,
			Confidence:    m.Confidence,
			Importance:    m.Importance,
			MentionCount:  m.MentionCount,
			UserConfirmed: m.UserConfirmed,
		}
	}
	return out
}

func summaryFromRun(run *store.PipelineRun) *ExtractionSummary {
	var st extractionState
	_ = json.Unmarshal(run.State, &st)
	return &ExtractionSummary{
		RunID:     run.ID,
		Skipped:   st.Skipped,
		Applied:   len(st.Applied) - st.Dropped,
		Dropped:   st.Dropped,
		Mutations: st.Mutations,
	}
}
