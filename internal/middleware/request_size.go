package middleware

import (
	"errors"
	"io"
	"net/http"
)

/* ErrBodyTooLarge is returned when a body exceeds its limit */
var ErrBodyTooLarge = errors.New("request body too large")

/* RequestSizeMiddleware limits the size of request bodies */
func RequestSizeMiddleware(maxSize int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxSize {
				writeJSON(w, http.StatusRequestEntityTooLarge, map[string]interface{}{
					"error":  "Request body too large",
					"status": "error",
				})
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxSize)
			}

			next.ServeHTTP(w, r)
		})
	}
}

/* ReadBodyWithLimit reads a request body, failing instead of truncating past maxSize */
func ReadBodyWithLimit(r *http.Request, maxSize int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxSize+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, ErrBodyTooLarge
		}
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, ErrBodyTooLarge
	}
	return data, nil
}
