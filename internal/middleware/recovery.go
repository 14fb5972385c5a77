package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/neurondb/NeuronQuery/api/internal/logging"
)

// RecoveryMiddleware turns a panic into a JSON 500
func RecoveryMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("Panic recovered", fmt.Errorf("%v", rec), map[string]interface{}{
						"path":       r.URL.Path,
						"request_id": GetRequestID(r.Context()),
						"stack":      logging.Truncate(string(debug.Stack()), 4000),
					})

					writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
						"error":  "Internal server error",
						"status": "error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
