package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/memoirlabs/memoir/internal/journal"
)

// Compile-time check: the store is a usable journal entry source.
var _ journal.Source = (*DB)(nil)

// SaveEntry stores a journal entry. Assigns an id when the caller left it
// empty. Saving the same id twice is an error — entries are immutable.
func (db *DB) SaveEntry(e *journal.Entry) error {
	if e.ID == "" {
		e.ID = db.NewID()
	}
	if e.EntryDate == 0 {
		e.EntryDate = time.Now().UnixMilli()
	}

	_, err := db.Exec(`
		INSERT INTO entries (id, user_id, entry_date, detail, mood_label, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, e.EntryDate, e.Detail, e.MoodLabel, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save entry: %w", err)
	}
	return nil
}

// Entry returns the entry with the given id, or nil if unknown.
func (db *DB) Entry(id string) (*journal.Entry, error) {
	var e journal.Entry
	var mood sql.NullString
	err := db.QueryRow(`
		SELECT id, user_id, entry_date, detail, mood_label FROM entries WHERE id = ?
	`, id).Scan(&e.ID, &e.UserID, &e.EntryDate, &e.Detail, &mood)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %s: %w", id, err)
	}
	e.MoodLabel = mood.String
	return &e, nil
}

// Recent returns up to limit entries for a user, most recent first.
func (db *DB) Recent(userID string, limit int) ([]journal.Entry, error) {
	rows, err := db.Query(`
		SELECT id, user_id, entry_date, detail, mood_label FROM entries
		WHERE user_id = ? ORDER BY entry_date DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent entries: %w", err)
	}
	defer rows.Close()

	var entries []journal.Entry
	for rows.Next() {
		var e journal.Entry
		var mood sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.EntryDate, &e.Detail, &mood); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.MoodLabel = mood.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
