package sched

import (
	"context"

	"github.com/memoirlabs/memoir/internal/engine"
)

// MaintenanceJob sweeps every user with active memories: decay first, then
// consolidation where the set is still over threshold.
type MaintenanceJob struct {
	Engine *engine.Engine
	Cron   string
}

func (j *MaintenanceJob) Name() string { return "maintenance" }

func (j *MaintenanceJob) Schedule() string {
	if j.Cron == "" {
		return "@hourly"
	}
	return j.Cron
}

func (j *MaintenanceJob) Run(ctx context.Context) error {
	return j.Engine.MaintainAll(ctx)
}
