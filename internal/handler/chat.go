package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agenticbook/docschat/internal/apperror"
	"github.com/agenticbook/docschat/internal/model"
	"github.com/agenticbook/docschat/internal/ratelimit"
	"github.com/agenticbook/docschat/internal/repository"
)

// Responder generates the assistant's answer for a chat message. The
// retrieval-augmented pipeline behind it is someone else's problem — this
// handler only authenticates, throttles and records.
type Responder interface {
	Respond(ctx context.Context, message string) (Reply, error)
}

// Reply is a Responder's answer plus the source documents it drew from.
type Reply struct {
	Response string   `json:"response"`
	Sources  []string `json:"sources"`
}

// ChatHandler serves the authenticated chat surface:
//
//	POST /api/chat                  → HandleChat     (RequireClient)
//	GET  /api/history/{sessionID}   → HandleHistory  (RequireClient)
type ChatHandler struct {
	responder Responder // nil when no responder backend is configured
	history   repository.ChatHistoryRepository
	limiter   ratelimit.Limiter
	logger    *slog.Logger
}

// NewChatHandler creates a ChatHandler. responder may be nil — the chat
// endpoint then reports an upstream failure instead of panicking.
func NewChatHandler(
	responder Responder,
	history repository.ChatHistoryRepository,
	limiter ratelimit.Limiter,
	logger *slog.Logger,
) *ChatHandler {
	return &ChatHandler{
		responder: responder,
		history:   history,
		limiter:   limiter,
		logger:    logger,
	}
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// HandleChat answers one chat message.
//
// HTTP: POST /api/chat
// Auth: RequireClient (bearer token or API key)
//
// Rate limiting is keyed on the session id when present so clients
// behind one NAT aren't throttled together; the history write afterwards
// is best-effort — its failure is logged and the response still goes out.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "invalid JSON body"})
		return
	}

	if req.Message == "" {
		writeError(w, apperror.ValidationFailed("message", "Message is required"))
		return
	}

	res, err := h.limiter.Allow(r.Context(), ratelimit.Identifier(r, req.SessionID))
	if err != nil {
		h.logger.Warn("rate limiter unavailable, admitting request", slog.String("error", err.Error()))
	} else if !res.Allowed {
		ratelimit.WriteRejection(w, res)
		return
	}

	if h.responder == nil {
		writeError(w, apperror.Upstream("responder unavailable"))
		return
	}

	reply, err := h.responder.Respond(r.Context(), req.Message)
	if err != nil {
		h.logger.Error("responder failed", slog.String("error", err.Error()))
		writeError(w, apperror.Upstream("response generation failed"))
		return
	}

	if req.SessionID != "" {
		if err := h.history.AddMessage(r.Context(), &model.ChatMessage{
			SessionID:   req.SessionID,
			UserMessage: req.Message,
			BotResponse: reply.Response,
		}); err != nil {
			// Best-effort: the user still gets their answer.
			h.logger.Warn("failed to save chat history",
				slog.String("sessionID", req.SessionID),
				slog.String("error", err.Error()),
			)
		}
	}

	writeJSON(w, http.StatusOK, reply)
}

// HandleHistory returns a session's past exchanges, oldest first.
//
// HTTP: GET /api/history/{sessionID}
// Auth: RequireClient
func (h *ChatHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, apperror.ValidationFailed("sessionID", "Session id is required"))
		return
	}

	msgs, err := h.history.ListBySession(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}
