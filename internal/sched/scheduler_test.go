package sched

import (
	"context"
	"testing"
)

type fakeJob struct {
	name     string
	schedule string
	runs     int
}

func (j *fakeJob) Name() string              { return j.name }
func (j *fakeJob) Schedule() string          { return j.schedule }
func (j *fakeJob) Run(context.Context) error { j.runs++; return nil }

func TestRegisterRejectsDuplicates(t *testing.T) {
	s := New()
	if err := s.Register(&fakeJob{name: "a", schedule: "@hourly"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Register(&fakeJob{name: "a", schedule: "@daily"}); err == nil {
		t.Error("expected error for duplicate name")
	}
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	s := New()
	if err := s.Register(&fakeJob{name: "bad", schedule: "not a schedule"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestStartAndStop(t *testing.T) {
	s := New()
	if err := s.Register(&fakeJob{name: "ok", schedule: "@hourly"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
}

func TestMaintenanceJobDefaults(t *testing.T) {
	j := &MaintenanceJob{}
	if j.Schedule() != "@hourly" {
		t.Errorf("schedule = %q, want @hourly", j.Schedule())
	}
	j.Cron = "0 3 * * *"
	if j.Schedule() != "0 3 * * *" {
		t.Errorf("schedule = %q", j.Schedule())
	}
}
