package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// MemoryType classifies what kind of durable knowledge a record holds.
type MemoryType string

const (
	TypeFact           MemoryType = "fact"
	TypePreference     MemoryType = "preference"
	TypePattern        MemoryType = "pattern"
	TypeRelationship   MemoryType = "relationship"
	TypeGoal           MemoryType = "goal"
	TypeEmotionTrigger MemoryType = "emotion_trigger"
)

// Category groups records by life area.
type Category string

const (
	CategoryWork     Category = "work"
	CategoryHealth   Category = "health"
	CategoryHobby    Category = "hobby"
	CategoryFamily   Category = "family"
	CategoryPersonal Category = "personal"
	CategoryGeneral  Category = "general"
)

// ValidTypes are the allowed memory types.
var ValidTypes = map[MemoryType]bool{
	TypeFact: true, TypePreference: true, TypePattern: true,
	TypeRelationship: true, TypeGoal: true, TypeEmotionTrigger: true,
}

// ValidCategories are the allowed categories.
var ValidCategories = map[Category]bool{
	CategoryWork: true, CategoryHealth: true, CategoryHobby: true,
	CategoryFamily: true, CategoryPersonal: true, CategoryGeneral: true,
}

// Memory is a single durable fact/preference/pattern record about a user.
// Once superseded, a record's content and flags are frozen; only the
// supersession pointer and active flag change.
type Memory struct {
	ID              string
	UserID          string
	Type            MemoryType
	Category        Category
	Content         string
	Confidence      float64
	Importance      int
	FirstObservedAt int64
	LastConfirmedAt int64
	LastDecayedAt   *int64
	MentionCount    int
	IsActive        bool
	SupersededBy    string // empty when the record is the head of its lineage
	UserConfirmed   bool
	SourceEntryIDs  []string
}

const memoryColumns = `id, user_id, memory_type, category, content, confidence, importance,
	first_observed_at, last_confirmed_at, last_decayed_at, mention_count,
	is_active, superseded_by, user_confirmed, source_entry_ids`

// CreateMemoryParams carries the fields needed to create a record.
type CreateMemoryParams struct {
	UserID         string
	Type           MemoryType
	Category       Category
	Content        string
	SourceEntryIDs []string
	Confidence     float64
	Importance     int
	UserConfirmed  bool
}

// CreateMemory inserts a new active memory record. Content must be at least
// 3 characters after trimming; confidence and importance must be in range.
func (db *DB) CreateMemory(p CreateMemoryParams) (*Memory, error) {
	p.Content = strings.TrimSpace(p.Content)
	if len(p.Content) < 3 {
		return nil, fmt.Errorf("%w: content too short", ErrInvalidRecord)
	}
	if !ValidTypes[p.Type] {
		return nil, fmt.Errorf("%w: type %q", ErrInvalidRecord, p.Type)
	}
	if !ValidCategories[p.Category] {
		return nil, fmt.Errorf("%w: category %q", ErrInvalidRecord, p.Category)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v out of [0,1]", ErrInvalidRecord, p.Confidence)
	}
	if p.Importance < 1 || p.Importance > 10 {
		return nil, fmt.Errorf("%w: importance %d out of [1,10]", ErrInvalidRecord, p.Importance)
	}

	sourceIDs := dedupeSorted(p.SourceEntryIDs)
	sourceJSON, err := json.Marshal(sourceIDs)
	if err != nil {
		return nil, fmt.Errorf("marshal source entry ids: %w", err)
	}

	now := time.Now().UnixMilli()
	m := &Memory{
		ID:              db.NewID(),
		UserID:          p.UserID,
		Type:            p.Type,
		Category:        p.Category,
		Content:         p.Content,
		Confidence:      p.Confidence,
		Importance:      p.Importance,
		FirstObservedAt: now,
		LastConfirmedAt: now,
		MentionCount:    1,
		IsActive:        true,
		UserConfirmed:   p.UserConfirmed,
		SourceEntryIDs:  sourceIDs,
	}

	_, err = db.Exec(`
		INSERT INTO memories (id, user_id, memory_type, category, content, confidence, importance,
			first_observed_at, last_confirmed_at, mention_count, is_active, user_confirmed, source_entry_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 1, ?, ?)
	`, m.ID, m.UserID, string(m.Type), string(m.Category), m.Content, m.Confidence, m.Importance,
		now, now, boolInt(m.UserConfirmed), string(sourceJSON))
	if err != nil {
		return nil, fmt.Errorf("create memory: %w", err)
	}

	return m, nil
}

// GetMemoryByID returns a record by id, or nil if not found.
func (db *DB) GetMemoryByID(id string) (*Memory, error) {
	row := db.QueryRow(`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory %s: %w", id, err)
	}
	return m, nil
}

// ConfirmMemory increments mention_count and refreshes last_confirmed_at.
// When byUser is true the record is additionally marked user-confirmed,
// which is sticky and shields the record from automated deactivation.
func (db *DB) ConfirmMemory(id string, byUser bool) error {
	now := time.Now().UnixMilli()
	var result sql.Result
	var err error
	if byUser {
		result, err = db.Exec(`
			UPDATE memories SET mention_count = mention_count + 1,
				last_confirmed_at = ?, user_confirmed = 1
			WHERE id = ?
		`, now, id)
	} else {
		result, err = db.Exec(`
			UPDATE memories SET mention_count = mention_count + 1,
				last_confirmed_at = ?
			WHERE id = ?
		`, now, id)
	}
	if err != nil {
		return fmt.Errorf("confirm memory %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRecord, id)
	}
	return nil
}

// SupersedeMemory points oldID at newID and retires the old record from the
// active set. Both records must exist and belong to the same user, and the
// resulting supersession chain must stay acyclic: following superseded_by
// pointers from any record terminates without revisiting a record.
func (db *DB) SupersedeMemory(oldID, newID string) error {
	if oldID == newID {
		return fmt.Errorf("%w: record cannot supersede itself", ErrInvalidRecord)
	}

	old, err := db.GetMemoryByID(oldID)
	if err != nil {
		return err
	}
	if old == nil {
		return fmt.Errorf("%w: %s", ErrUnknownRecord, oldID)
	}
	repl, err := db.GetMemoryByID(newID)
	if err != nil {
		return err
	}
	if repl == nil {
		return fmt.Errorf("%w: %s", ErrUnknownRecord, newID)
	}
	if old.UserID != repl.UserID {
		return fmt.Errorf("%w: %s and %s belong to different users", ErrUnknownRecord, oldID, newID)
	}

	// Walk the chain from the replacement; reaching oldID would close a cycle.
	cur := repl
	for cur.SupersededBy != "" {
		if cur.SupersededBy == oldID {
			return fmt.Errorf("%w: superseding %s by %s would create a cycle", ErrInvalidRecord, oldID, newID)
		}
		next, err := db.GetMemoryByID(cur.SupersededBy)
		if err != nil {
			return err
		}
		if next == nil {
			break
		}
		cur = next
	}

	// userConfirmed is monotonic along a lineage: the successor inherits it.
	if old.UserConfirmed && !repl.UserConfirmed {
		if _, err := db.Exec(`UPDATE memories SET user_confirmed = 1 WHERE id = ?`, newID); err != nil {
			return fmt.Errorf("inherit user_confirmed: %w", err)
		}
	}

	_, err = db.Exec(`
		UPDATE memories SET superseded_by = ?, is_active = 0 WHERE id = ?
	`, newID, oldID)
	if err != nil {
		return fmt.Errorf("supersede memory %s: %w", oldID, err)
	}
	return nil
}

// DeactivateMemory flips is_active off. User-confirmed records are immune:
// the call is a silent no-op for them, regardless of caller. This safety
// override lives here, at the store layer, rather than in callers.
func (db *DB) DeactivateMemory(id string) error {
	m, err := db.GetMemoryByID(id)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("%w: %s", ErrUnknownRecord, id)
	}
	if m.UserConfirmed {
		return nil
	}

	_, err = db.Exec(`UPDATE memories SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate memory %s: %w", id, err)
	}
	return nil
}

// AddSourceEntry appends an entry id to a record's source set. The set only
// ever grows; duplicates are ignored.
func (db *DB) AddSourceEntry(id, entryID string) error {
	m, err := db.GetMemoryByID(id)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("%w: %s", ErrUnknownRecord, id)
	}

	merged := dedupeSorted(append(m.SourceEntryIDs, entryID))
	if len(merged) == len(m.SourceEntryIDs) {
		return nil
	}
	sourceJSON, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal source entry ids: %w", err)
	}
	if _, err := db.Exec(`UPDATE memories SET source_entry_ids = ? WHERE id = ?`, string(sourceJSON), id); err != nil {
		return fmt.Errorf("add source entry to %s: %w", id, err)
	}
	return nil
}

// DecayPolicy tunes the decay pass.
type DecayPolicy struct {
	Window           time.Duration
	ConfidenceFactor float64
	ImportanceStep   int
	ImportanceFloor  int
	ConfidenceCutoff float64
	ImportanceCutoff int
}

// DefaultDecayPolicy mirrors the config defaults.
func DefaultDecayPolicy() DecayPolicy {
	return DecayPolicy{
		Window:           30 * 24 * time.Hour,
		ConfidenceFactor: 0.7,
		ImportanceStep:   1,
		ImportanceFloor:  1,
		ConfidenceCutoff: 0.4,
		ImportanceCutoff: 3,
	}
}

// DecayMemories lowers confidence and importance for every active,
// non-user-confirmed record whose last confirmation (or last decay) is older
// than the policy window, and deactivates records that fall below both
// cutoffs. Returns the number of records deactivated.
//
// The pass is a pure function of stored timestamps and now: last_decayed_at
// gates re-application, so re-running with the same now is a no-op.
func (db *DB) DecayMemories(userID string, now time.Time, p DecayPolicy) (int, error) {
	nowMs := now.UnixMilli()
	cutoff := nowMs - p.Window.Milliseconds()

	rows, err := db.Query(`
		SELECT id, confidence, importance FROM memories
		WHERE user_id = ? AND is_active = 1 AND user_confirmed = 0
		  AND last_confirmed_at < ?
		  AND (last_decayed_at IS NULL OR last_decayed_at < ?)
	`, userID, cutoff, cutoff)
	if err != nil {
		return 0, fmt.Errorf("query decayable memories: %w", err)
	}
	defer rows.Close()

	type target struct {
		id         string
		confidence float64
		importance int
	}
	var targets []target
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.id, &t.confidence, &t.importance); err != nil {
			return 0, fmt.Errorf("scan decay target: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	deactivated := 0
	for _, t := range targets {
		confidence := t.confidence * p.ConfidenceFactor
		importance := t.importance - p.ImportanceStep
		if importance < p.ImportanceFloor {
			importance = p.ImportanceFloor
		}

		active := 1
		if confidence < p.ConfidenceCutoff && importance < p.ImportanceCutoff {
			active = 0
			deactivated++
		}

		if _, err := db.Exec(`
			UPDATE memories SET confidence = ?, importance = ?, is_active = ?, last_decayed_at = ?
			WHERE id = ?
		`, confidence, importance, active, nowMs, t.id); err != nil {
			return deactivated, fmt.Errorf("apply decay to %s: %w", t.id, err)
		}
	}

	return deactivated, nil
}

// GetActiveMemories returns all active records for a user in a stable order:
// importance descending, then most recently confirmed, then id. The order
// matters only for prompt construction, not correctness.
func (db *DB) GetActiveMemories(userID string) ([]Memory, error) {
	rows, err := db.Query(`
		SELECT `+memoryColumns+` FROM memories
		WHERE user_id = ? AND is_active = 1
		ORDER BY importance DESC, last_confirmed_at DESC, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("get active memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// CountActiveMemories returns the number of active records for a user.
func (db *DB) CountActiveMemories(userID string) (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM memories WHERE user_id = ? AND is_active = 1`, userID).Scan(&count)
	return count, err
}

// UsersWithActiveMemories returns the distinct user ids that currently hold
// at least one active record. Used by the maintenance sweep.
func (db *DB) UsersWithActiveMemories() ([]string, error) {
	rows, err := db.Query(`SELECT DISTINCT user_id FROM memories WHERE is_active = 1 ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("users with active memories: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanMemories(rows *sql.Rows) ([]Memory, error) {
	var memories []Memory
	for rows.Next() {
		m, err := scanMemory(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		memories = append(memories, *m)
	}
	return memories, rows.Err()
}

func scanMemory(scan func(...any) error) (*Memory, error) {
	var m Memory
	var memType, category string
	var lastDecayed sql.NullInt64
	var supersededBy sql.NullString
	var isActive, userConfirmed int
	var sourceJSON string

	err := scan(&m.ID, &m.UserID, &memType, &category, &m.Content, &m.Confidence, &m.Importance,
		&m.FirstObservedAt, &m.LastConfirmedAt, &lastDecayed, &m.MentionCount,
		&isActive, &supersededBy, &userConfirmed, &sourceJSON)
	if err != nil {
		return nil, err
	}

	m.Type = MemoryType(memType)
	m.Category = Category(category)
	m.IsActive = isActive != 0
	m.UserConfirmed = userConfirmed != 0
	m.SupersededBy = supersededBy.String
	if lastDecayed.Valid {
		m.LastDecayedAt = &lastDecayed.Int64
	}
	if err := json.Unmarshal([]byte(sourceJSON), &m.SourceEntryIDs); err != nil {
		return nil, fmt.Errorf("decode source entry ids: %w", err)
	}
	return &m, nil
}

func dedupeSorted(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
