package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/memoirlabs/memoir/internal/cache"
	"github.com/memoirlabs/memoir/internal/journal"
	"github.com/memoirlabs/memoir/internal/store"
)

// asyncTimeout bounds background pipeline work kicked off by a request.
const asyncTimeout = 5 * time.Minute

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"user_id"`
		Detail    string `json:"detail"`
		MoodLabel string `json:"mood_label"`
		EntryDate int64  `json:"entry_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Detail == "" {
		http.Error(w, `{"error":"user_id and detail required"}`, http.StatusBadRequest)
		return
	}

	entry := &journal.Entry{
		UserID:    req.UserID,
		Detail:    req.Detail,
		MoodLabel: req.MoodLabel,
		EntryDate: req.EntryDate,
	}
	if err := s.db.SaveEntry(entry); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	// Extraction runs in the background; the entry is durable either way and
	// a crashed run resumes from its last persisted step.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncTimeout)
		defer cancel()
		if _, err := s.engine.ProcessEntry(ctx, entry.ID); err != nil {
			log.Printf("server: extraction for entry %s: %v", entry.ID, err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"entry_id":   entry.ID,
		"entry_date": entry.EntryDate,
		"status":     "accepted",
	})
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	memories, err := s.db.GetActiveMemories(userID)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	type memoryView struct {
		ID              string   `json:"id"`
		Type            string   `json:"type"`
		Category        string   `json:"category"`
		Content         string   `json:"content"`
		Confidence      float64  `json:"confidence"`
		Importance      int      `json:"importance"`
		MentionCount    int      `json:"mention_count"`
		UserConfirmed   bool     `json:"user_confirmed"`
		FirstObservedAt int64    `json:"first_observed_at"`
		LastConfirmedAt int64    `json:"last_confirmed_at"`
		SourceEntryIDs  []string `json:"source_entry_ids"`
	}
	views := make([]memoryView, len(memories))
	for i, m := range memories {
		views[i] = memoryView{
			ID:              m.ID,
			Type:            string(m.Type),
			Category:        string(m.Category),
			Content:         m.Content,
			Confidence:      m.Confidence,
			Importance:      m.Importance,
			MentionCount:    m.MentionCount,
			UserConfirmed:   m.UserConfirmed,
			FirstObservedAt: m.FirstObservedAt,
			LastConfirmedAt: m.LastConfirmedAt,
			SourceEntryIDs:  m.SourceEntryIDs,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"user_id":  userID,
		"count":    len(views),
		"memories": views,
	})
}

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var rendered string
	var err error
	if s.context != nil {
		rendered, err = s.context.Context(userID)
	} else {
		var memories []store.Memory
		memories, err = s.db.GetActiveMemories(userID)
		if err == nil {
			rendered = cache.Render(memories)
		}
	}
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"user_id": userID,
		"context": rendered,
	})
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncTimeout)
		defer cancel()
		if _, err := s.engine.ConsolidateUser(ctx, userID); err != nil {
			log.Printf("server: consolidation for %s: %v", userID, err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

func (s *Server) handleConfirmMemory(w http.ResponseWriter, r *http.Request) {
	memoryID := chi.URLParam(r, "memoryID")

	err := s.db.ConfirmMemory(memoryID, true)
	if errors.Is(err, store.ErrUnknownRecord) {
		http.Error(w, `{"error":"unknown memory"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	if m, err := s.db.GetMemoryByID(memoryID); err == nil && m != nil {
		s.engine.Invalidator.Invalidate(m.UserID)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "confirmed"})
}
