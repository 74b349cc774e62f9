// Package apiserver is the thin HTTP surface the bridge itself owns:
// enqueueing and inspecting outbox rows. The wider agents/tasks/bids/
// results CRUD surface is an external collaborator and is not
// implemented here; this package only exposes the narrow seam
// (internal/outbox.Enqueue) that collaborator would call.
package apiserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ainur-net/chain-bridge/internal/outbox"
	"github.com/ainur-net/chain-bridge/internal/store"
)

// Server serves the bridge's own HTTP surface: POST/GET /v1/outbox and
// GET /v1/outbox/:correlation_id.
type Server struct {
	outboxRepo *store.OutboxRepository
	logger     *log.Logger
}

// New builds a Server.
func New(outboxRepo *store.OutboxRepository, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[api] ", log.LstdFlags)
	}
	return &Server{outboxRepo: outboxRepo, logger: logger}
}

// Routes registers the bridge's handlers on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/outbox", s.handleOutboxCollection)
	mux.HandleFunc("/v1/outbox/", s.handleOutboxItem)
	mux.HandleFunc("/healthz", s.handleHealthz)
}

type enqueueRequest struct {
	Pallet  string          `json:"pallet"`
	Call    string          `json:"call"`
	Payload json.RawMessage `json:"payload"`
}

type enqueueResponse struct {
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"`
}

func (s *Server) handleOutboxCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleEnqueue(w, r)
	case http.MethodGet:
		s.handleList(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only GET and POST are allowed")
	}
}

// handleEnqueue implements POST /v1/outbox: body {pallet, call, payload},
// validated and enqueued as a pending outbox row.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body is not valid JSON")
		return
	}

	row, err := outbox.Enqueue(r.Context(), s.outboxRepo, req.Pallet, req.Call, req.Payload)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_PAYLOAD", err.Error())
		return
	}

	// "queued" is the caller-facing acknowledgment that the row was
	// durably enqueued, distinct from the row's internal lifecycle
	// status (which starts out "pending").
	s.writeJSON(w, http.StatusOK, enqueueResponse{
		CorrelationID: row.CorrelationID.String(),
		Status:        "queued",
	})
}

// handleList implements GET /v1/outbox: paged list filtered by status,
// limit 1-200 (default 50), offset >=0.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := store.OutboxStatus(q.Get("status"))
	switch status {
	case "", store.OutboxPending, store.OutboxFailed, store.OutboxFinalized, store.OutboxDead:
	default:
		s.writeError(w, http.StatusBadRequest, "INVALID_STATUS", "status must be one of pending, failed, finalized, dead")
		return
	}

	limit := 50
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			s.writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be an integer between 1 and 200")
			return
		}
		limit = n
	}

	offset := 0
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "INVALID_OFFSET", "offset must be a non-negative integer")
			return
		}
		offset = n
	}

	rows, err := s.outboxRepo.List(r.Context(), status, limit, offset)
	if err != nil {
		s.logger.Printf("list outbox rows: %v", err)
		s.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list outbox rows")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"rows": rows})
}

// handleOutboxItem implements GET /v1/outbox/:correlation_id.
func (s *Server) handleOutboxItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only GET is allowed")
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/v1/outbox/")
	if idStr == "" {
		s.writeError(w, http.StatusBadRequest, "MISSING_CORRELATION_ID", "correlation_id is required")
		return
	}

	correlationID, err := uuid.Parse(idStr)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_CORRELATION_ID", "correlation_id is not a valid uuid")
		return
	}

	row, err := s.outboxRepo.Get(r.Context(), correlationID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "OUTBOX_ROW_NOT_FOUND", "no outbox row with that correlation_id")
		return
	}
	if err != nil {
		s.logger.Printf("get outbox row %s: %v", correlationID, err)
		s.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to fetch outbox row")
		return
	}

	s.writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("error encoding response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
