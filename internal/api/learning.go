package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/glovelink/glove-core/internal/learning"
)

// handleListLearningRecords returns a user's per-gesture learning records,
// most practised first. Users see their own; admins see anyone's.
func (s *Server) handleListLearningRecords(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if !canAccessUser(claimsFromContext(r.Context()), userID) {
		writeForbidden(w, "cannot access another user's learning records")
		return
	}

	records, err := s.learning.ListForUser(r.Context(), userID)
	if err != nil {
		writeInternalError(w, "failed to list learning records")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

// handleGetLearningRecord returns the learning record for one (user, gesture)
// pair.
func (s *Server) handleGetLearningRecord(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	gesture := chi.URLParam(r, "gesture")
	if !canAccessUser(claimsFromContext(r.Context()), userID) {
		writeForbidden(w, "cannot access another user's learning records")
		return
	}

	record, err := s.learning.GetForPair(r.Context(), userID, gesture)
	if err != nil {
		if errors.Is(err, learning.ErrRecordNotFound) {
			writeNotFound(w, "no learning record for this gesture")
			return
		}
		writeInternalError(w, "failed to get learning record")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleGetLearningTotals returns a user's aggregate practice figures.
func (s *Server) handleGetLearningTotals(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if !canAccessUser(claimsFromContext(r.Context()), userID) {
		writeForbidden(w, "cannot access another user's learning records")
		return
	}

	totals, err := s.learning.TotalsForUser(r.Context(), userID)
	if err != nil {
		writeInternalError(w, "failed to get learning totals")
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

// handleLearningLeaderboard returns the top learning records across all
// users, or one user's when user_id is given. Admin only.
//
// Query parameters:
//   - by: ranking column, "practice" (default) or "confidence"
//   - limit: number of records (default 10)
//   - user_id: restrict the ranking to one user
func (s *Server) handleLearningLeaderboard(w http.ResponseWriter, r *http.Request) {
	s.writeTopRecords(w, r, r.URL.Query().Get("user_id"))
}

// handleUserLearningTop returns one user's best gestures. Users see their
// own; admins see anyone's. Same by/limit parameters as the leaderboard.
func (s *Server) handleUserLearningTop(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if !canAccessUser(claimsFromContext(r.Context()), userID) {
		writeForbidden(w, "cannot access another user's learning records")
		return
	}
	s.writeTopRecords(w, r, userID)
}

func (s *Server) writeTopRecords(w http.ResponseWriter, r *http.Request, userID string) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	var (
		records []*learning.Record
		err     error
	)
	switch by := r.URL.Query().Get("by"); by {
	case "", "practice":
		records, err = s.learning.TopByPracticeCount(r.Context(), userID, limit)
	case "confidence":
		records, err = s.learning.TopByAverageConfidence(r.Context(), userID, limit)
	default:
		writeBadRequest(w, "by must be 'practice' or 'confidence'")
		return
	}
	if err != nil {
		writeInternalError(w, "failed to rank learning records")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}
