package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/neurondb/NeuronQuery/api/internal/auth"
	"github.com/neurondb/NeuronQuery/api/internal/chat"
	"github.com/neurondb/NeuronQuery/api/internal/logging"
	"github.com/neurondb/NeuronQuery/api/internal/middleware"
	"github.com/neurondb/NeuronQuery/api/internal/security"
)

// ChatService answers questions and screens free text
type ChatService interface {
	Ask(ctx context.Context, q chat.Question) (*chat.Answer, error)
	Validate(text string, maxLength int) security.ValidationResult
}

// ChatHandlers serves the chat endpoints
type ChatHandlers struct {
	chat           ChatService
	logger         *logging.Logger
	allowedOrigins []string

	// limiter is charged once per websocket frame; nil disables it
	limiter    *middleware.RateLimiter
	events     *security.EventLog
	trustProxy bool
	pongWait   time.Duration
}

// NewChatHandlers creates chat handlers; allowedOrigins gates websocket upgrades
// and limiter meters the frames of an open socket
func NewChatHandlers(svc ChatService, allowedOrigins []string, limiter *middleware.RateLimiter, events *security.EventLog, trustProxy bool, logger *logging.Logger) *ChatHandlers {
	return &ChatHandlers{
		chat:           svc,
		logger:         logger,
		allowedOrigins: allowedOrigins,
		limiter:        limiter,
		events:         events,
		trustProxy:     trustProxy,
		pongWait:       wsPongWait,
	}
}

// ChatRequest is the body of POST /api/chat
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is a successful answer
type ChatResponse struct {
	Response string `json:"response"`
	RowCount int    `json:"row_count"`
	Status   string `json:"status"`
}

// Chat handles POST /api/chat
func (h *ChatHandlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteValidationError(w, err)
		return
	}

	answer, err := h.chat.Ask(r.Context(), question(r, req.Message))
	if err != nil {
		WriteChatError(w, err)
		return
	}

	WriteSuccess(w, ChatResponse{
		Response: answer.Response,
		RowCount: answer.RowCount,
		Status:   "success",
	}, http.StatusOK)
}

// question attributes a message to the caller's session, minting an anonymous one if needed
func question(r *http.Request, message string) chat.Question {
	q := chat.Question{Message: message, Origin: r}
	if userID, ok := auth.GetUserIDFromContext(r.Context()); ok {
		q.UserID = userID
	}
	if sessionID, ok := auth.GetSessionIDFromContext(r.Context()); ok && sessionID != "" {
		q.SessionID = sessionID
	} else {
		q.SessionID = uuid.NewString()
	}
	return q
}
