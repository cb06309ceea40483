package store

import (
	"errors"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustCreate(t *testing.T, db *DB, p CreateMemoryParams) *Memory {
	t.Helper()
	if p.Type == "" {
		p.Type = TypeFact
	}
	if p.Category == "" {
		p.Category = CategoryGeneral
	}
	if p.Confidence == 0 {
		p.Confidence = 0.8
	}
	if p.Importance == 0 {
		p.Importance = 5
	}
	m, err := db.CreateMemory(p)
	if err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
	return m
}

func TestCreateMemoryValidation(t *testing.T) {
	db := testDB(t)

	tests := []struct {
		name   string
		params CreateMemoryParams
	}{
		{"short content", CreateMemoryParams{UserID: "u1", Type: TypeFact, Category: CategoryWork, Content: "ab", Confidence: 0.5, Importance: 5}},
		{"whitespace content", CreateMemoryParams{UserID: "u1", Type: TypeFact, Category: CategoryWork, Content: "  a  ", Confidence: 0.5, Importance: 5}},
		{"bad type", CreateMemoryParams{UserID: "u1", Type: "vibe", Category: CategoryWork, Content: "plays tennis", Confidence: 0.5, Importance: 5}},
		{"bad category", CreateMemoryParams{UserID: "u1", Type: TypeFact, Category: "sports", Content: "plays tennis", Confidence: 0.5, Importance: 5}},
		{"confidence high", CreateMemoryParams{UserID: "u1", Type: TypeFact, Category: CategoryWork, Content: "plays tennis", Confidence: 1.2, Importance: 5}},
		{"confidence low", CreateMemoryParams{UserID: "u1", Type: TypeFact, Category: CategoryWork, Content: "plays tennis", Confidence: -0.1, Importance: 5}},
		{"importance zero", CreateMemoryParams{UserID: "u1", Type: TypeFact, Category: CategoryWork, Content: "plays tennis", Confidence: 0.5, Importance: 0}},
		{"importance high", CreateMemoryParams{UserID: "u1", Type: TypeFact, Category: CategoryWork, Content: "plays tennis", Confidence: 0.5, Importance: 11}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.CreateMemory(tt.params)
			if !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("err = %v, want ErrInvalidRecord", err)
			}
		})
	}
}

func TestCreateAndGetMemory(t *testing.T) {
	db := testDB(t)

	m := mustCreate(t, db, CreateMemoryParams{
		UserID:         "u1",
		Type:           TypePreference,
		Category:       CategoryHobby,
		Content:        "Prefers morning runs along the river",
		SourceEntryIDs: []string{"e2", "e1", "e1"},
		Confidence:     0.9,
		Importance:     6,
	})

	got, err := db.GetMemoryByID(m.ID)
	if err != nil {
		t.Fatalf("GetMemoryByID: %v", err)
	}
	if got == nil {
		t.Fatal("expected memory")
	}
	if !got.IsActive || got.SupersededBy != "" {
		t.Errorf("new memory should be active with no successor")
	}
	if got.MentionCount != 1 {
		t.Errorf("mention_count = %d, want 1", got.MentionCount)
	}
	// Source ids deduplicated
	if len(got.SourceEntryIDs) != 2 {
		t.Errorf("source ids = %v, want [e1 e2]", got.SourceEntryIDs)
	}

	missing, err := db.GetMemoryByID("nope")
	if err != nil {
		t.Fatalf("GetMemoryByID missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown id")
	}
}

func TestConfirmMemory(t *testing.T) {
	db := testDB(t)
	m := mustCreate(t, db, CreateMemoryParams{UserID: "u1", Content: "works at a bakery"})

	if err := db.ConfirmMemory(m.ID, false); err != nil {
		t.Fatalf("ConfirmMemory: %v", err)
	}
	got, _ := db.GetMemoryByID(m.ID)
	if got.MentionCount != 2 {
		t.Errorf("mention_count = %d, want 2", got.MentionCount)
	}
	if got.UserConfirmed {
		t.Error("plain confirm must not set user_confirmed")
	}

	if err := db.ConfirmMemory(m.ID, true); err != nil {
		t.Fatalf("ConfirmMemory byUser: %v", err)
	}
	got, _ = db.GetMemoryByID(m.ID)
	if !got.UserConfirmed {
		t.Error("expected user_confirmed after byUser confirm")
	}

	if err := db.ConfirmMemory("nope", false); !errors.Is(err, ErrUnknownRecord) {
		t.Errorf("err = %v, want ErrUnknownRecord", err)
	}
}

func TestSupersedeMemory(t *testing.T) {
	db := testDB(t)
	old := mustCreate(t, db, CreateMemoryParams{UserID: "u1", Content: "lives in Austin"})
	repl := mustCreate(t, db, CreateMemoryParams{UserID: "u1", Content: "lives in Portland"})

	if err := db.SupersedeMemory(old.ID, repl.ID); err != nil {
		t.Fatalf("SupersedeMemory: %v", err)
	}

	got, _ := db.GetMemoryByID(old.ID)
	if got.IsActive {
		t.Error("superseded record must be inactive")
	}
	if got.SupersededBy != repl.ID {
		t.Errorf("superseded_by = %q, want %q", got.SupersededBy, repl.ID)
	}

	active, _ := db.GetActiveMemories("u1")
	if len(active) != 1 || active[0].ID != repl.ID {
		t.Errorf("active set = %v, want only replacement", active)
	}
}

func TestSupersedeRejectsCycles(t *testing.T) {
	db := testDB(t)
	a := mustCreate(t, db, CreateMemoryParams{UserID: "u1", Content: "record a"})
	b := mustCreate(t, db, CreateMemoryParams{UserID: "u1", Content: "record b"})
	c := mustCreate(t, db, CreateMemoryParams{UserID: "u1", Content: "record c"})

	if err := db.SupersedeMemory(a.ID, b.ID); err != nil {
		t.Fatalf("a→b: %v", err)
	}
	if err := db.SupersedeMemory(b.ID, c.ID); err != nil {
		t.Fatalf("b→c: %v", err)
	}

	// c → a would close the loop a→b→c→a
	if err := db.SupersedeMemory(c.ID, a.ID); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("cycle err = %v, want ErrInvalidRecord", err)
	}
	// Self-supersession
	if err := db.SupersedeMemory(a.ID, a.ID); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("self err = %v, want ErrInvalidRecord", err)
	}
}

func TestSupersedeUnknownOrCrossUser(t *testing.T) {
	db := testDB(t)
	mine := mustCreate(t, db, CreateMemoryParams{UserID: "u1", Content: "mine"})
	theirs := mustCreate(t, db, CreateMemoryParams{UserID: "u2", Content: "theirs"})

	if err := db.SupersedeMemory(mine.ID, "nope"); !errors.Is(err, ErrUnknownRecord) {
		t.Errorf("unknown new: %v", err)
	}
	if err := db.SupersedeMemory("nope", mine.ID); !errors.Is(err, ErrUnknownRecord) {
		t.Errorf("unknown old: %v", err)
	}
	if err := db.SupersedeMemory(mine.ID, theirs.ID); !errors.Is(err, ErrUnknownRecord) {
		t.Errorf("cross-user: %v", err)
	}
}

func TestSupersedeInheritsUserConfirmed(t *testing.T) {
	db := testDB(t)
	old := mustCreate(t, db, CreateMemoryParams{UserID: "u1", Content: "confirmed truth", UserConfirmed: true})
	repl := mustCreate(t, db, CreateMemoryParams{UserID: "u1", Content: "updated truth"})

	if err := db.SupersedeMemory(old.ID, repl.ID); err != nil {
		t.Fatalf("SupersedeMemory: %v", err)
	}

	got, _ := db.GetMemoryByID(repl.ID)
	if !got.UserConfirmed {
		t.Error("successor must inherit user_confirmed")
	}
}

func TestAddSourceEntry(t *testing.T) {
	db := testDB(t)
	m := mustCreate(t, db, CreateMemoryParams{UserID: "u1", Content: "repeated detail", SourceEntryIDs: []string{"e1"}})

	if err := db.AddSourceEntry(m.ID, "e2"); err != nil {
		t.Fatalf("AddSourceEntry: %v", err)
	}
	// Duplicate append is a no-op
	if err := db.AddSourceEntry(m.ID, "e1"); err != nil {
		t.Fatalf("AddSourceEntry dup: %v", err)
	}

	got, _ := db.GetMemoryByID(m.ID)
	if len(got.SourceEntryIDs) != 2 || got.SourceEntryIDs[0] != "e1" || got.SourceEntryIDs[1] != "e2" {
		t.Errorf("source ids = %v, want [e1 e2]", got.SourceEntryIDs)
	}

	if err := db.AddSourceEntry("nope", "e1"); !errors.Is(err, ErrUnknownRecord) {
		t.Errorf("err = %v, want ErrUnknownRecord", err)
	}
}

func TestDeactivateMemory(t *testing.T) {
	db := testDB(t)
	m := mustCreate(t, db, CreateMemoryParams{UserID: "u1", Content: "temporary detail"})

	if err := db.DeactivateMemory(m.ID); err != nil {
		t.Fatalf("DeactivateMemory: %v", err)
	}
	got, _ := db.GetMemoryByID(m.ID)
	if got.IsActive {
		t.Error("expected inactive")
	}
	if got.SupersededBy != "" {
		t.Error("deactivation must not set a successor")
	}

	if err := db.DeactivateMemory("nope"); !errors.Is(err, ErrUnknownRecord) {
		t.Errorf("err = %v, want ErrUnknownRecord", err)
	}
}

func TestDeactivateUserConfirmedIsNoop(t *testing.T) {
	db := testDB(t)
	m := mustCreate(t, db, CreateMemoryParams{UserID: "u1", Content: "verified by user", UserConfirmed: true})

	if err := db.DeactivateMemory(m.ID); err != nil {
		t.Fatalf("DeactivateMemory: %v", err)
	}
	got, _ := db.GetMemoryByID(m.ID)
	if !got.IsActive {
		t.Error("user-confirmed record must survive deactivation")
	}
}

func TestDecayMemories(t *testing.T) {
	db := testDB(t)
	policy := DefaultDecayPolicy()

	stale := mustCreate(t, db, CreateMemoryParams{UserID: "u1", Content: "stale detail", Confidence: 0.5, Importance: 3})
	fresh := mustCreate(t, db, CreateMemoryParams{UserID: "u1", Content: "fresh detail", Confidence: 0.5, Importance: 3})
	confirmed := mustCreate(t, db, CreateMemoryParams{UserID: "u1", Content: "pinned detail", Confidence: 0.5, Importance: 3, UserConfirmed: true})
	strong := mustCreate(t, db, CreateMemoryParams{UserID: "u1", Content: "strong detail", Confidence: 0.9, Importance: 8})

	now := time.Now()
	old := now.Add(-40 * 24 * time.Hour).UnixMilli()
	for _, id := range []string{stale.ID, confirmed.ID, strong.ID} {
		if _, err := db.Exec(`UPDATE memories SET last_confirmed_at = ? WHERE id = ?`, old, id); err != nil {
			t.Fatal(err)
		}
	}

	count, err := db.DecayMemories("u1", now, policy)
	if err != nil {
		t.Fatalf("DecayMemories: %v", err)
	}
	if count != 1 {
		t.Errorf("deactivated = %d, want 1", count)
	}

	got, _ := db.GetMemoryByID(stale.ID)
	if got.IsActive {
		t.Error("stale weak record should be deactivated")
	}
	if got.Confidence >= 0.4 {
		t.Errorf("confidence = %v, want < 0.4", got.Confidence)
	}
	if got.Importance != 2 {
		t.Errorf("importance = %d, want 2", got.Importance)
	}

	if got, _ := db.GetMemoryByID(fresh.ID); !got.IsActive || got.Confidence != 0.5 {
		t.Error("fresh record must be untouched")
	}
	if got, _ := db.GetMemoryByID(confirmed.ID); !got.IsActive {
		t.Error("user-confirmed record must never decay")
	}
	if got, _ := db.GetMemoryByID(strong.ID); !got.IsActive {
		t.Error("strong record decays but stays active")
	}
}

func TestDecayIdempotentForSameNow(t *testing.T) {
	db := testDB(t)
	policy := DefaultDecayPolicy()

	m := mustCreate(t, db, CreateMemoryParams{UserID: "u1", Content: "old detail", Confidence: 0.9, Importance: 8})
	now := time.Now()
	old := now.Add(-40 * 24 * time.Hour).UnixMilli()
	if _, err := db.Exec(`UPDATE memories SET last_confirmed_at = ? WHERE id = ?`, old, m.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := db.DecayMemories("u1", now, policy); err != nil {
		t.Fatal(err)
	}
	first, _ := db.GetMemoryByID(m.ID)

	if _, err := db.DecayMemories("u1", now, policy); err != nil {
		t.Fatal(err)
	}
	second, _ := db.GetMemoryByID(m.ID)

	if first.Confidence != second.Confidence || first.Importance != second.Importance {
		t.Errorf("second pass changed record: %v/%d vs %v/%d",
			first.Confidence, first.Importance, second.Confidence, second.Importance)
	}
}

func TestGetActiveMemoriesStableOrder(t *testing.T) {
	db := testDB(t)

	mustCreate(t, db, CreateMemoryParams{UserID: "u1", Content: "minor detail", Importance: 2})
	mustCreate(t, db, CreateMemoryParams{UserID: "u1", Content: "major detail", Importance: 9})
	mustCreate(t, db, CreateMemoryParams{UserID: "u1", Content: "medium detail", Importance: 5})
	mustCreate(t, db, CreateMemoryParams{UserID: "u2", Content: "other user detail", Importance: 9})

	active, err := db.GetActiveMemories("u1")
	if err != nil {
		t.Fatalf("GetActiveMemories: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("len = %d, want 3", len(active))
	}
	if active[0].Importance != 9 || active[1].Importance != 5 || active[2].Importance != 2 {
		t.Errorf("unexpected order: %d %d %d", active[0].Importance, active[1].Importance, active[2].Importance)
	}

	again, _ := db.GetActiveMemories("u1")
	for i := range active {
		if active[i].ID != again[i].ID {
			t.Fatalf("ordering not stable at %d", i)
		}
	}
}

func TestUsersWithActiveMemories(t *testing.T) {
	db := testDB(t)
	mustCreate(t, db, CreateMemoryParams{UserID: "u1", Content: "something real"})
	m := mustCreate(t, db, CreateMemoryParams{UserID: "u2", Content: "something gone"})
	if err := db.DeactivateMemory(m.ID); err != nil {
		t.Fatal(err)
	}

	users, err := db.UsersWithActiveMemories()
	if err != nil {
		t.Fatalf("UsersWithActiveMemories: %v", err)
	}
	if len(users) != 1 || users[0] != "u1" {
		t.Errorf("users = %v, want [u1]", users)
	}
}
