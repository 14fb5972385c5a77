package chat

import (
	"net/http"
)

// Kind names a pipeline failure
type Kind string

const (
	KindRejectedInput     Kind = "rejected_input"
	KindUntranslatable    Kind = "untranslatable"
	KindRejectedStatement Kind = "rejected_statement"
	KindExecutionFailed   Kind = "execution_failed"
	KindPoolExhausted     Kind = "pool_exhausted"
	KindInternal          Kind = "internal"
)

// User-facing messages. Internal details never leave the server.
const (
	MessageRejectedInput     = "Invalid input. Please provide a valid question."
	MessageUntranslatable    = "Unable to generate SQL query from your question."
	MessageRejectedStatement = "Generated SQL query contains potentially harmful operations."
	MessageExecutionFailed   = "Failed to execute database query."
	MessagePoolExhausted     = "The database is busy. Please try again shortly."
	MessageInternal          = "An unexpected error occurred while processing your request."
)

var kindStatus = map[Kind]struct {
	status  int
	message string
}{
	KindRejectedInput:     {http.StatusBadRequest, MessageRejectedInput},
	KindUntranslatable:    {http.StatusBadRequest, MessageUntranslatable},
	KindRejectedStatement: {http.StatusBadRequest, MessageRejectedStatement},
	KindExecutionFailed:   {http.StatusInternalServerError, MessageExecutionFailed},
	KindPoolExhausted:     {http.StatusServiceUnavailable, MessagePoolExhausted},
	KindInternal:          {http.StatusInternalServerError, MessageInternal},
}

// Error is a pipeline failure carrying its HTTP mapping
type Error struct {
	Kind     Kind
	Status   int
	Message  string
	Warnings []string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error with the status and message of kind
func NewError(kind Kind, err error, warnings ...string) *Error {
	m, ok := kindStatus[kind]
	if !ok {
		kind = KindInternal
		m = kindStatus[KindInternal]
	}
	return &Error{
		Kind:     kind,
		Status:   m.status,
		Message:  m.message,
		Warnings: warnings,
		Err:      err,
	}
}
