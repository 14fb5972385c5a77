package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/neurondb/NeuronQuery/api/internal/auth"
	"github.com/neurondb/NeuronQuery/api/internal/logging"
	"github.com/neurondb/NeuronQuery/api/internal/security"
	"github.com/neurondb/NeuronQuery/api/internal/utils"
)

// SecurityHandlers serves input validation and session issuance
type SecurityHandlers struct {
	scanner          *security.InputScanner
	tokens           *auth.TokenManager
	users            map[string]string
	events           *security.EventLog
	defaultMaxLength int
	logger           *logging.Logger
}

// NewSecurityHandlers creates security handlers; users maps user IDs to bcrypt hashes
func NewSecurityHandlers(scanner *security.InputScanner, tokens *auth.TokenManager, users map[string]string,
	events *security.EventLog, defaultMaxLength int, logger *logging.Logger) *SecurityHandlers {
	return &SecurityHandlers{
		scanner:          scanner,
		tokens:           tokens,
		users:            users,
		events:           events,
		defaultMaxLength: defaultMaxLength,
		logger:           logger,
	}
}

// ValidateRequest is the body of POST /api/security/validate
type ValidateRequest struct {
	Input     *string `json:"input"`
	MaxLength int     `json:"max_length"`
}

// Validate handles POST /api/security/validate
func (h *SecurityHandlers) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Input == nil {
		WriteError(w, http.StatusBadRequest, "Input field required", nil)
		return
	}

	maxLength := req.MaxLength
	if maxLength <= 0 {
		maxLength = h.defaultMaxLength
	}

	WriteSuccess(w, map[string]interface{}{
		"validation": h.scanner.Validate(*req.Input, maxLength),
		"status":     "success",
	}, http.StatusOK)
}

// SessionRequest is the body of POST /api/auth/session
type SessionRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

// CreateSession handles POST /api/auth/session
func (h *SecurityHandlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteValidationError(w, err)
		return
	}
	for _, err := range []error{
		utils.ValidateRequired("user_id", req.UserID),
		utils.ValidateRequired("password", req.Password),
	} {
		if err != nil {
			WriteValidationError(w, err)
			return
		}
	}

	if err := auth.Authenticate(h.users, req.UserID, req.Password); err != nil {
		h.events.Log(r, security.EventAuthFailure, map[string]interface{}{
			"user_id": req.UserID,
			"reason":  "invalid_credentials",
		})
		WriteError(w, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}

	session, err := h.tokens.Issue(req.UserID)
	if err != nil {
		h.logger.Error("Failed to issue session token", err, map[string]interface{}{"user_id": req.UserID})
		WriteError(w, http.StatusInternalServerError, "Failed to create session", nil)
		return
	}

	h.events.Log(r, security.EventSessionIssued, map[string]interface{}{
		"user_id":    req.UserID,
		"session_id": session.SessionID,
	})

	WriteSuccess(w, map[string]interface{}{
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
		"session_id": session.SessionID,
		"status":     "success",
	}, http.StatusOK)
}
