package chat

import (
	"time"

	"github.com/google/uuid"

	"github.com/neurondb/NeuronQuery/api/internal/logging"
	"github.com/neurondb/NeuronQuery/api/internal/security"
)

// Interaction is one answered question as written to the audit log
type Interaction struct {
	InteractionID string    `json:"interaction_id"`
	SessionID     string    `json:"session_id"`
	UserID        string    `json:"user_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Message       string    `json:"user_message"`
	SQL           string    `json:"sql_query"`
	RowCount      int       `json:"result_count"`
	Tables        []string  `json:"tables"`
	Complexity    string    `json:"complexity"`
	Encrypted     bool      `json:"encrypted"`
}

// Auditor writes interactions to the structured log. With a cipher set the
// message and SQL are stored encrypted.
type Auditor struct {
	logger *logging.Logger
	cipher *security.FieldCipher
	now    func() time.Time
}

// NewAuditor creates an auditor; cipher may be nil for plaintext entries
func NewAuditor(logger *logging.Logger, cipher *security.FieldCipher) *Auditor {
	return &Auditor{logger: logger, cipher: cipher, now: time.Now}
}

// Record stamps and logs the interaction and returns what was written
func (a *Auditor) Record(in Interaction) Interaction {
	if a == nil {
		return in
	}
	if in.InteractionID == "" {
		in.InteractionID = uuid.New().String()
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = a.now().UTC()
	}
	if in.Tables == nil {
		in.Tables = []string{}
	}

	if a.cipher != nil {
		msg, errMsg := a.cipher.Encrypt(in.Message)
		sql, errSQL := a.cipher.Encrypt(in.SQL)
		if errMsg != nil || errSQL != nil {
			a.logger.Error("Failed to encrypt interaction payload", firstErr(errMsg, errSQL), map[string]interface{}{
				"interaction_id": in.InteractionID,
			})
			msg, sql = "", ""
		}
		in.Message, in.SQL, in.Encrypted = msg, sql, true
	}

	a.logger.Info("Interaction logged", map[string]interface{}{
		"interaction_id": in.InteractionID,
		"session_id":     in.SessionID,
		"user_id":        in.UserID,
		"timestamp":      in.Timestamp.Format(time.RFC3339),
		"user_message":   in.Message,
		"sql_query":      in.SQL,
		"result_count":   in.RowCount,
		"tables":         in.Tables,
		"complexity":     in.Complexity,
		"encrypted":      in.Encrypted,
	})
	return in
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
