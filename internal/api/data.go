package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/glovelink/glove-core/internal/auth"
	"github.com/glovelink/glove-core/internal/telemetry"
)

// handleListSensorEvents returns stored sensor events, newest first.
//
// Query parameters:
//   - device_id: filter by hardware identifier
//   - user_id: filter by owner at ingest time
//   - kind: filter by sensor kind (flex, strain, imu)
//   - since / until: RFC3339 time bounds
//   - limit / offset: paging
//
// Non-admin callers only see their own events regardless of user_id.
func (s *Server) handleListSensorEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := telemetry.EventFilter{
		DeviceID: q.Get("device_id"),
		UserID:   q.Get("user_id"),
		Kind:     telemetry.SensorKind(q.Get("kind")),
	}
	if filter.Kind != "" && !telemetry.IsValidKind(filter.Kind) {
		writeBadRequest(w, "invalid kind filter")
		return
	}

	var ok bool
	if filter.Since, ok = parseTimeParam(w, q.Get("since"), "since"); !ok {
		return
	}
	if filter.Until, ok = parseTimeParam(w, q.Get("until"), "until"); !ok {
		return
	}
	if filter.Limit, filter.Offset, ok = parsePaging(w, q.Get("limit"), q.Get("offset")); !ok {
		return
	}
	scopeToCaller(r, &filter.UserID)

	events, err := s.telemetry.ListSensorEvents(r.Context(), filter)
	if err != nil {
		writeInternalError(w, "failed to list sensor events")
		return
	}
	total, err := s.telemetry.CountSensorEvents(r.Context(), filter)
	if err != nil {
		writeInternalError(w, "failed to count sensor events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events), "total": total})
}

// handleListGestureResults returns stored gesture results, newest first.
// Same query parameters as sensor events, with gesture in place of kind.
func (s *Server) handleListGestureResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := telemetry.ResultFilter{
		DeviceID: q.Get("device_id"),
		UserID:   q.Get("user_id"),
		Gesture:  q.Get("gesture"),
	}

	var ok bool
	if filter.Since, ok = parseTimeParam(w, q.Get("since"), "since"); !ok {
		return
	}
	if filter.Until, ok = parseTimeParam(w, q.Get("until"), "until"); !ok {
		return
	}
	if filter.Limit, filter.Offset, ok = parsePaging(w, q.Get("limit"), q.Get("offset")); !ok {
		return
	}
	scopeToCaller(r, &filter.UserID)

	results, err := s.telemetry.ListGestureResults(r.Context(), filter)
	if err != nil {
		writeInternalError(w, "failed to list gesture results")
		return
	}
	total, err := s.telemetry.CountGestureResults(r.Context(), filter)
	if err != nil {
		writeInternalError(w, "failed to count gesture results")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results), "total": total})
}

// recentResultsLimit bounds the recent-gestures slice on the stats view.
const recentResultsLimit = 5

// handleDataStats returns dashboard figures for the caller: total stored
// sensor events and gesture results, events since midnight UTC, and the
// latest gesture results.
//
// Query parameters:
//   - user_id: scope to one user (admins only; others always see their own)
func (s *Server) handleDataStats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	scopeToCaller(r, &userID)
	ctx := r.Context()

	eventTotal, err := s.telemetry.CountSensorEvents(ctx, telemetry.EventFilter{UserID: userID})
	if err != nil {
		writeInternalError(w, "failed to count sensor events")
		return
	}
	resultTotal, err := s.telemetry.CountGestureResults(ctx, telemetry.ResultFilter{UserID: userID})
	if err != nil {
		writeInternalError(w, "failed to count gesture results")
		return
	}

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	eventsToday, err := s.telemetry.CountSensorEventsSince(ctx, userID, midnight)
	if err != nil {
		writeInternalError(w, "failed to count recent sensor events")
		return
	}

	recent, err := s.telemetry.RecentGestureResults(ctx, userID, recentResultsLimit)
	if err != nil {
		writeInternalError(w, "failed to list recent gesture results")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sensor_events":       eventTotal,
		"gesture_results":     resultTotal,
		"sensor_events_today": eventsToday,
		"recent_results":      recent,
	})
}

// handlePurgeSensorEvents deletes raw sensor events older than the given
// cutoff. Admin only. Gesture results and learning records are never
// touched by retention.
//
// Query parameters:
//   - before: RFC3339 cutoff (required)
func (s *Server) handlePurgeSensorEvents(w http.ResponseWriter, r *http.Request) {
	before := r.URL.Query().Get("before")
	if before == "" {
		writeBadRequest(w, "before query parameter is required")
		return
	}
	cutoff, err := time.Parse(time.RFC3339, before)
	if err != nil {
		writeBadRequest(w, "before must be an RFC3339 timestamp")
		return
	}

	deleted, err := s.telemetry.PurgeSensorEventsOlderThan(r.Context(), cutoff)
	if err != nil {
		writeInternalError(w, "failed to purge sensor events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

// scopeToCaller forces the user filter to the caller's own id for
// non-admin callers.
func scopeToCaller(r *http.Request, userID *string) {
	claims := claimsFromContext(r.Context())
	if claims != nil && claims.Role != auth.RoleAdmin {
		*userID = claims.Subject
	}
}

// parseTimeParam parses an optional RFC3339 query parameter. On failure it
// writes a 400 response and returns ok=false.
func parseTimeParam(w http.ResponseWriter, value, name string) (*time.Time, bool) {
	if value == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		writeBadRequest(w, name+" must be an RFC3339 timestamp")
		return nil, false
	}
	return &t, true
}

// parsePaging parses optional limit/offset query parameters. On failure it
// writes a 400 response and returns ok=false.
func parsePaging(w http.ResponseWriter, limitStr, offsetStr string) (limit, offset int, ok bool) {
	if limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return 0, 0, false
		}
		limit = n
	}
	if offsetStr != "" {
		n, err := strconv.Atoi(offsetStr)
		if err != nil || n < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}
