package api

import (
	"net/http"
	"strconv"

	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/journal"
)

// handleListEvents returns journaled lifecycle events, newest first.
//
// Query parameters: kind, topic, limit, offset.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "event journal is disabled")
		return
	}

	q := r.URL.Query()
	filter := journal.Filter{
		Kind:  q.Get("kind"),
		Topic: q.Get("topic"),
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing journal events", "error", err)
		writeInternalError(w, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// intParam parses an optional non-negative integer query parameter.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
