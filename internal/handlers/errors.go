package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/neurondb/NeuronQuery/api/internal/chat"
	"github.com/neurondb/NeuronQuery/api/internal/utils"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error    string   `json:"error"`
	Status   string   `json:"status"`
	Warnings []string `json:"warnings,omitempty"`
	Field    string   `json:"field,omitempty"`
}

// WriteError writes an error response. Only message reaches the caller;
// root causes stay in the server log.
func WriteError(w http.ResponseWriter, statusCode int, message string, warnings []string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:    message,
		Status:   "error",
		Warnings: warnings,
	})
}

// WriteValidationError writes a 400 for a malformed request field
func WriteValidationError(w http.ResponseWriter, err error) {
	response := ErrorResponse{
		Error:  "Invalid request",
		Status: "error",
	}

	var validationErr *utils.ValidationError
	if errors.As(err, &validationErr) {
		response.Error = validationErr.Message
		response.Field = validationErr.Field
	}

	writeJSON(w, http.StatusBadRequest, response)
}

// WriteChatError maps a pipeline failure to its status and public message
func WriteChatError(w http.ResponseWriter, err error) {
	var chatErr *chat.Error
	if !errors.As(err, &chatErr) {
		chatErr = chat.NewError(chat.KindInternal, err)
	}
	if chatErr.Status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	WriteError(w, chatErr.Status, chatErr.Message, chatErr.Warnings)
}

// WriteSuccess writes a success response
func WriteSuccess(w http.ResponseWriter, data interface{}, statusCode int) {
	writeJSON(w, statusCode, data)
}

// NotFound answers unknown routes
func NotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "Endpoint not found", nil)
}

// MethodNotAllowed answers known routes called with the wrong verb
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// decodeJSON reads a JSON object body into v
func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return &utils.ValidationError{Field: "body", Message: "Request body is required"}
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &utils.ValidationError{Field: "body", Message: "Invalid JSON body"}
	}
	return nil
}
