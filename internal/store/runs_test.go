package store

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestRunLifecycle(t *testing.T) {
	db := testDB(t)

	r, err := db.CreateRun("u1", "e1", RunKindExtraction, "gather_context")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if r.Status != RunRunning || r.Step != "gather_context" || r.Attempts != 0 {
		t.Errorf("unexpected initial run: %+v", r)
	}

	type stepState struct {
		Candidates []string `json:"candidates"`
	}
	if err := db.AdvanceRun(r.ID, "extract_candidates", stepState{Candidates: []string{"c1"}}); err != nil {
		t.Fatalf("AdvanceRun: %v", err)
	}

	got, err := db.GetRun(r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Step != "extract_candidates" || got.Status != RunRunning {
		t.Errorf("after advance: step=%s status=%s", got.Step, got.Status)
	}
	var st stepState
	if err := json.Unmarshal(got.State, &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if len(st.Candidates) != 1 || st.Candidates[0] != "c1" {
		t.Errorf("state = %+v", st)
	}

	if err := db.CompleteRun(r.ID, stepState{}); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}
	got, _ = db.GetRun(r.ID)
	if got.Status != RunCompleted || got.Error != "" {
		t.Errorf("after complete: %+v", got)
	}
}

func TestRunAttemptsResetOnAdvance(t *testing.T) {
	db := testDB(t)
	r, _ := db.CreateRun("u1", "", RunKindConsolidation, "plan")

	for i := 0; i < 2; i++ {
		if err := db.IncrementRunAttempts(r.ID); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := db.GetRun(r.ID)
	if got.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", got.Attempts)
	}

	if err := db.AdvanceRun(r.ID, "execute", map[string]any{}); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetRun(r.ID)
	if got.Attempts != 0 {
		t.Errorf("attempts after advance = %d, want 0", got.Attempts)
	}
}

func TestFailRun(t *testing.T) {
	db := testDB(t)
	r, _ := db.CreateRun("u1", "e1", RunKindExtraction, "extract_candidates")

	if err := db.FailRun(r.ID, errors.New("oracle unreachable")); err != nil {
		t.Fatalf("FailRun: %v", err)
	}
	got, _ := db.GetRun(r.ID)
	if got.Status != RunFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.Error != "oracle unreachable" {
		t.Errorf("error = %q", got.Error)
	}
}

func TestFindRunByEntry(t *testing.T) {
	db := testDB(t)

	none, err := db.FindRunByEntry("e1", RunKindExtraction)
	if err != nil {
		t.Fatal(err)
	}
	if none != nil {
		t.Fatal("expected nil for no runs")
	}

	first, _ := db.CreateRun("u1", "e1", RunKindExtraction, "gather_context")
	if err := db.CompleteRun(first.ID, map[string]any{}); err != nil {
		t.Fatal(err)
	}
	// Force a later created_at for the second run so ordering is deterministic.
	second, _ := db.CreateRun("u1", "e1", RunKindExtraction, "gather_context")
	if _, err := db.Exec(`UPDATE pipeline_runs SET created_at = created_at + 10 WHERE id = ?`, second.ID); err != nil {
		t.Fatal(err)
	}

	got, err := db.FindRunByEntry("e1", RunKindExtraction)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != second.ID {
		t.Errorf("got %+v, want most recent run %s", got, second.ID)
	}

	if other, _ := db.FindRunByEntry("e1", RunKindConsolidation); other != nil {
		t.Error("kind filter leaked")
	}
}
