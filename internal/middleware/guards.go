package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/neurondb/NeuronQuery/api/internal/auth"
	"github.com/neurondb/NeuronQuery/api/internal/security"
	"github.com/neurondb/NeuronQuery/api/internal/utils"
)

/* IPAllowlistMiddleware answers 403 to clients outside the allow-list */
func IPAllowlistMiddleware(allow *security.IPAllowlist, events *security.EventLog, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := security.ClientIP(r, trustProxy)
			if !allow.Allowed(ip) {
				events.Log(r, security.EventIPBlocked, map[string]interface{}{
					"path": r.URL.Path,
				})
				writeJSON(w, http.StatusForbidden, map[string]interface{}{
					"error":  "Access denied",
					"status": "error",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

/* IPAllowlistStage wraps the allow-list as a pipeline stage */
func IPAllowlistStage(allow *security.IPAllowlist, events *security.EventLog, trustProxy bool) Stage {
	return Stage{Name: StageIPAllowlist, Wrap: IPAllowlistMiddleware(allow, events, trustProxy)}
}

/* AuthStage enforces session tokens when required, else only attaches valid claims */
func AuthStage(tokens *auth.TokenManager, events *security.EventLog, required bool) Stage {
	if required {
		return Stage{Name: StageAuth, Wrap: auth.Middleware(tokens, events)}
	}
	return Stage{Name: StageAuth, Wrap: auth.OptionalMiddleware(tokens)}
}

/*
 * InputGuardMiddleware screens every string field of a JSON object body
 * with the input scanner. Sensitive fields such as passwords are skipped.
 * Non-JSON and non-object bodies pass untouched; the body is restored for
 * the handler.
 */
func InputGuardMiddleware(scanner *security.InputScanner, events *security.EventLog, maxLength int, maxBody int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
				next.ServeHTTP(w, r)
				return
			}

			body, err := ReadBodyWithLimit(r, maxBody)
			if err != nil {
				status := http.StatusBadRequest
				message := "Failed to read request body"
				if errors.Is(err, ErrBodyTooLarge) {
					status = http.StatusRequestEntityTooLarge
					message = "Request body too large"
				}
				writeJSON(w, status, map[string]interface{}{
					"error":  message,
					"status": "error",
				})
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var payload map[string]interface{}
			if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
				next.ServeHTTP(w, r)
				return
			}

			for _, field := range stringFields("", payload) {
				if utils.IsSensitiveKey(field.key) {
					continue
				}
				result := scanner.Validate(field.value, maxLength)
				if result.Valid {
					continue
				}
				events.Log(r, security.EventInvalidInput, map[string]interface{}{
					"field":    field.path,
					"warnings": result.Warnings,
				})
				writeJSON(w, http.StatusBadRequest, map[string]interface{}{
					"error":    "Invalid input detected",
					"warnings": result.Warnings,
					"status":   "error",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

/* InputScanStage wraps the input guard as a pipeline stage */
func InputScanStage(scanner *security.InputScanner, events *security.EventLog, maxLength int, maxBody int64) Stage {
	return Stage{Name: StageInputScan, Wrap: InputGuardMiddleware(scanner, events, maxLength, maxBody)}
}

type stringField struct {
	path  string
	key   string
	value string
}

/* stringFields walks a decoded JSON value, visiting object keys in sorted order */
func stringFields(prefix string, v interface{}) []stringField {
	return collectStrings(prefix, "", v)
}

func collectStrings(prefix, key string, v interface{}) []stringField {
	var out []stringField
	switch val := v.(type) {
	case string:
		out = append(out, stringField{path: prefix, key: key, value: val})
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			path := k
			if prefix != "" {
				path = prefix + "." + k
			}
			out = append(out, collectStrings(path, k, val[k])...)
		}
	case []interface{}:
		for _, item := range val {
			out = append(out, collectStrings(prefix+"[]", key, item)...)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
