// Package journal defines the inbound journal entry model and the read-only
// boundary to the entry-storage collaborator. The lifecycle engine only ever
// reads entries; it never mutates them.
package journal

import "strings"

// Entry is a single journal entry as supplied by the entry-storage service.
// Only Detail and MoodLabel are consumed by the extraction pipeline.
type Entry struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	EntryDate int64  `json:"entry_date"` // unix millis
	Detail    string `json:"detail"`
	MoodLabel string `json:"mood_label,omitempty"`
}

// Source provides read-only access to journal entries.
type Source interface {
	// Entry returns the entry with the given id, or nil if unknown.
	Entry(id string) (*Entry, error)

	// Recent returns up to limit entries for a user, most recent first.
	Recent(userID string, limit int) ([]Entry, error)
}

// TrimmedLen returns the length of the entry detail after trimming
// whitespace. Entries below the extraction minimum are never sent to
// the oracle.
func (e *Entry) TrimmedLen() int {
	return len(strings.TrimSpace(e.Detail))
}
