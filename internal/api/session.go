package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/pubsub"
)

// statusResponse is the body of GET /status and of accepted session commands.
type statusResponse struct {
	State         string                      `json:"state"`
	Pending       int                         `json:"pending"`
	Subscriptions []pubsub.SubscriptionStatus `json:"subscriptions"`
	Relays        int                         `json:"relay_clients"`
}

// subscribeRequest is the body of POST /subscriptions.
type subscribeRequest struct {
	Topics []string `json:"topics"`
}

func (s *Server) status() statusResponse {
	return statusResponse{
		State:         s.session.State().String(),
		Pending:       s.session.PendingCount(),
		Subscriptions: s.session.Subscriptions(),
		Relays:        s.hub.Len(),
	}
}

// handleStatus reports the connection state and every tracked topic.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

// handleConnect starts connecting with the configured broker settings.
// The outcome arrives later as an up or connect_failed event.
func (s *Server) handleConnect(w http.ResponseWriter, _ *http.Request) {
	if err := s.session.Connect(s.broker); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.status())
}

// handleDisconnect closes the current connection.
func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	if err := s.session.Disconnect(); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.status())
}

// handleListSubscriptions returns the subscription snapshot.
func (s *Server) handleListSubscriptions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"subscriptions": s.session.Subscriptions(),
	})
}

// handleSubscribe adds topics to the desired set.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			writeBadRequest(w, "request body is required")
			return
		}
		writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if len(req.Topics) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "topics must not be empty")
		return
	}

	if err := s.session.Subscribe(req.Topics...); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.status())
}

// handleUnsubscribe removes one topic. The topic is the remainder of the path;
// wildcards must be escaped ("#" as %23).
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	topic, err := url.PathUnescape(strings.TrimPrefix(chi.URLParam(r, "*"), "/"))
	if err != nil {
		writeBadRequest(w, "invalid topic escape")
		return
	}
	if topic == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "topic is required")
		return
	}

	if err := s.session.Unsubscribe(topic); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.status())
}
