package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/memoirlabs/memoir/internal/config"
	"github.com/memoirlabs/memoir/internal/engine"
	"github.com/memoirlabs/memoir/internal/oracle"
	"github.com/memoirlabs/memoir/internal/store"
)

func testServer(t *testing.T) (*Server, *store.DB, *oracle.MockOracle) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mock := &oracle.MockOracle{}
	cfg := config.Default().Lifecycle
	cfg.RetryDelaySecs = 0
	eng := engine.New(db, mock, cfg)
	return New(db, eng, "test"), db, mock
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

// waitForRun polls until the entry's extraction run reaches a terminal
// status. The create-entry handler kicks extraction off in a goroutine.
func waitForRun(t *testing.T, db *store.DB, entryID string) *store.PipelineRun {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		run, err := db.FindRunByEntry(entryID, store.RunKindExtraction)
		if err != nil {
			t.Fatal(err)
		}
		if run != nil && run.Status != store.RunRunning {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("extraction run did not finish")
	return nil
}

func TestHealth(t *testing.T) {
	s, _, _ := testServer(t)
	rec := doJSON(t, s, "GET", "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" || resp["db"] != true {
		t.Errorf("resp = %v", resp)
	}
}

func TestCreateEntryTriggersExtraction(t *testing.T) {
	s, db, mock := testServer(t)
	mock.ExtractResult = &oracle.ExtractionResult{Candidates: []oracle.Candidate{
		{Action: oracle.ActionCreate, Type: "fact", Category: "work",
			Content: "Started a new job", Confidence: 0.8, Importance: 7},
	}}

	rec := doJSON(t, s, "POST", "/api/entries",
		`{"user_id":"u1","detail":"First day at the new job, nervous but excited","mood_label":"excited"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		EntryID string `json:"entry_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.EntryID == "" {
		t.Fatal("missing entry_id")
	}

	run := waitForRun(t, db, resp.EntryID)
	if run.Status != store.RunCompleted {
		t.Errorf("run status = %s", run.Status)
	}
	active, _ := db.GetActiveMemories("u1")
	if len(active) != 1 {
		t.Errorf("active = %d, want 1", len(active))
	}
}

func TestCreateEntryValidation(t *testing.T) {
	s, _, _ := testServer(t)

	if rec := doJSON(t, s, "POST", "/api/entries", `{"detail":"no user"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing user_id: status = %d", rec.Code)
	}
	if rec := doJSON(t, s, "POST", "/api/entries", `not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad json: status = %d", rec.Code)
	}
}

func TestListMemories(t *testing.T) {
	s, db, _ := testServer(t)
	m, err := db.CreateMemory(store.CreateMemoryParams{
		UserID: "u1", Type: store.TypeFact, Category: store.CategoryWork,
		Content: "Works as a nurse", Confidence: 0.9, Importance: 7,
		SourceEntryIDs: []string{"e1"},
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, s, "GET", "/api/users/u1/memories", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Count    int `json:"count"`
		Memories []struct {
			ID      string `json:"id"`
			Content string `json:"content"`
		} `json:"memories"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || resp.Memories[0].ID != m.ID {
		t.Errorf("resp = %+v", resp)
	}

	rec = doJSON(t, s, "GET", "/api/users/nobody/memories", "")
	if rec.Code != http.StatusOK {
		t.Errorf("empty user: status = %d", rec.Code)
	}
}

func TestGetContext(t *testing.T) {
	s, db, _ := testServer(t)
	if _, err := db.CreateMemory(store.CreateMemoryParams{
		UserID: "u1", Type: store.TypePreference, Category: store.CategoryHobby,
		Content: "Prefers morning runs", Confidence: 0.8, Importance: 5,
	}); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, s, "GET", "/api/users/u1/context", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp["context"], "Prefers morning runs") {
		t.Errorf("context = %q", resp["context"])
	}
}

func TestConfirmMemory(t *testing.T) {
	s, db, _ := testServer(t)
	m, err := db.CreateMemory(store.CreateMemoryParams{
		UserID: "u1", Type: store.TypeFact, Category: store.CategoryGeneral,
		Content: "Lives in Portland", Confidence: 0.7, Importance: 5,
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, s, "POST", "/api/memories/"+m.ID+"/confirm", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	got, _ := db.GetMemoryByID(m.ID)
	if !got.UserConfirmed || got.MentionCount != 2 {
		t.Errorf("memory = %+v", got)
	}

	if rec := doJSON(t, s, "POST", "/api/memories/ghost/confirm", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown memory: status = %d", rec.Code)
	}
}

func TestConsolidateAccepted(t *testing.T) {
	s, _, _ := testServer(t)
	rec := doJSON(t, s, "POST", "/api/users/u1/consolidate", "")
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d", rec.Code)
	}
}
