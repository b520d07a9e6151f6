package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/kopihq/kopi/internal/gateway"
	"github.com/kopihq/kopi/internal/log"
)

// maxChatBodyBytes bounds the request body to keep oversized payloads out
// of the pipeline.
const maxChatBodyBytes = 64 << 10

// ChatHandler handles the conversational endpoint.
type ChatHandler struct {
	orch   *gateway.Orchestrator
	logger log.Logger
}

// NewChatHandler creates a chat handler backed by the orchestrator.
func NewChatHandler(orch *gateway.Orchestrator, logger log.Logger) *ChatHandler {
	return &ChatHandler{orch: orch, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/chat", h.handleChat)
}

// ChatRequest is the inbound chat payload.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}

	reply, err := h.orch.Chat(r.Context(), gateway.Request{
		Identity:  IdentityFromContext(r.Context()),
		Message:   req.Message,
		SessionID: req.SessionID,
	})
	if err != nil {
		h.writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *ChatHandler) writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	var rlErr *gateway.RateLimitError
	switch {
	case errors.As(err, &rlErr):
		w.Header().Set("Retry-After", strconv.Itoa(int(rlErr.RetryAfter.Seconds())+1))
		writeError(w, http.StatusTooManyRequests, "rate_limited", rlErr.Error())
	case errors.Is(err, gateway.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		h.logger.Error("chat turn failed",
			"error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, "internal_error", "chat turn failed")
	}
}
