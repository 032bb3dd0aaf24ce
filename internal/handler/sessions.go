package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tabslip/api/internal/service"
	"github.com/tabslip/api/internal/store"
)

// SessionHandler exposes the dining session surface: opening or
// reusing a table's session and reading its state.
type SessionHandler struct {
	sessions *service.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// --- Request / Response types ---

type openSessionRequest struct {
	TableNumber  int32  `json:"table_number"`
	CustomerName string `json:"customer_name"`
}

type sessionResponse struct {
	ID            uuid.UUID  `json:"id"`
	TableNumber   int32      `json:"table_number"`
	Status        string     `json:"status"`
	BillingStatus string     `json:"billing_status"`
	CustomerName  string     `json:"customer_name,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
}

func toSessionResponse(s store.Session) sessionResponse {
	resp := sessionResponse{
		ID:            s.ID,
		TableNumber:   s.TableNumber,
		Status:        string(s.Status),
		BillingStatus: string(s.BillingStatus),
		CreatedAt:     s.CreatedAt.Time,
	}
	if s.CustomerName.Valid {
		resp.CustomerName = s.CustomerName.String
	}
	if s.ClosedAt.Valid {
		t := s.ClosedAt.Time
		resp.ClosedAt = &t
	}
	return resp
}

// --- Handlers ---

// Open opens a session for the table, or returns the existing active
// one. Both outcomes are success; the status code distinguishes them.
func (h *SessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	session, created, err := h.sessions.OpenOrReuse(r.Context(), req.TableNumber, req.CustomerName)
	if err != nil {
		if errors.Is(err, service.ErrInvalidTableNumber) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "table number must be positive"})
			return
		}
		log.Printf("ERROR: failed to open session: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to open session"})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toSessionResponse(session))
}

// Get returns a single session by ID.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	session, err := h.sessions.Session(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
			return
		}
		log.Printf("ERROR: failed to get session %s: %v", sessionID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get session"})
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Orders lists the session's orders, newest last.
func (h *SessionHandler) Orders(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	orders, err := h.sessions.Orders(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
			return
		}
		log.Printf("ERROR: failed to list orders for session %s: %v", sessionID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list orders"})
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseSessionID extracts and validates the sessionId URL parameter,
// writing the error response itself on failure.
func parseSessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return uuid.Nil, false
	}
	return sessionID, true
}
