package engine

import (
	"context"
	"log"
	"time"

	"github.com/memoirlabs/memoir/internal/store"
)

func (e *Engine) decayPolicy() store.DecayPolicy {
	p := store.DefaultDecayPolicy()
	if e.Lifecycle.DecayWindowDays > 0 {
		p.Window = e.Lifecycle.DecayWindow()
	}
	if e.Lifecycle.DecayConfidenceFactor > 0 {
		p.ConfidenceFactor = e.Lifecycle.DecayConfidenceFactor
	}
	if e.Lifecycle.DecayImportanceStep > 0 {
		p.ImportanceStep = e.Lifecycle.DecayImportanceStep
	}
	if e.Lifecycle.DecayImportanceFloor > 0 {
		p.ImportanceFloor = e.Lifecycle.DecayImportanceFloor
	}
	if e.Lifecycle.DeactivateConfidenceBelow > 0 {
		p.ConfidenceCutoff = e.Lifecycle.DeactivateConfidenceBelow
	}
	if e.Lifecycle.DeactivateImportanceBelow > 0 {
		p.ImportanceCutoff = e.Lifecycle.DeactivateImportanceBelow
	}
	return p
}

// DecayUser runs the decay pass for one user as of now. Deactivations
// invalidate the user's cached context.
func (e *Engine) DecayUser(userID string, now time.Time) (int, error) {
	deactivated, err := e.DB.DecayMemories(userID, now, e.decayPolicy())
	if err != nil {
		return deactivated, err
	}
	if deactivated > 0 {
		e.Metrics.MemoriesDecayed.Add(float64(deactivated))
		e.Invalidator.Invalidate(userID)
		e.Metrics.CacheInvalidations.Inc()
		log.Printf("decay: deactivated %d memories for %s", deactivated, userID)
	}
	return deactivated, nil
}

// RunMaintenance performs one maintenance pass for a user: decay first,
// then consolidation if the surviving set is still over threshold.
func (e *Engine) RunMaintenance(ctx context.Context, userID string) error {
	ctx, span := e.tracer.Start(ctx, "engine.RunMaintenance")
	defer span.End()

	if _, err := e.DecayUser(userID, time.Now()); err != nil {
		span.RecordError(err)
		return err
	}

	count, err := e.DB.CountActiveMemories(userID)
	if err != nil {
		return err
	}
	if count > e.consolidationThreshold() {
		if _, err := e.ConsolidateUser(ctx, userID); err != nil {
			span.RecordError(err)
			return err
		}
	}
	return nil
}

// MaintainAll sweeps every user that holds active memories. Per-user
// failures are logged and the sweep continues.
func (e *Engine) MaintainAll(ctx context.Context) error {
	users, err := e.DB.UsersWithActiveMemories()
	if err != nil {
		return err
	}
	for _, u := range users {
		if err := e.RunMaintenance(ctx, u); err != nil {
			log.Printf("maintenance: user %s: %v", u, err)
		}
	}
	return nil
}
