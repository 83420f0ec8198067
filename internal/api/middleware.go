package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rcourtman/pulse-snmp-profiles/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// APIError is the JSON body of every non-2xx response.
type APIError struct {
	ErrorMessage string            `json:"error"`
	Code         string            `json:"code,omitempty"`
	StatusCode   int               `json:"status_code"`
	Timestamp    int64             `json:"timestamp"`
	RequestID    string            `json:"request_id,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.ErrorMessage
}

// middleware wraps a handler.
type middleware func(http.Handler) http.Handler

// chain applies mws so that the first one runs outermost.
func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// ErrorHandler wraps next with request IDs, access logging and panic
// recovery, without metrics.
func ErrorHandler(next http.Handler) http.Handler {
	var m *httpMetrics
	return chain(next, withRequestID, m.instrument, recoverPanics)
}

// withRequestID honours an incoming X-Request-ID or mints one, echoes it, and
// puts a request-tagged logger on the context.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, requestID := logging.WithRequestID(r.Context(), r.Header.Get(requestIDHeader))
		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// instrument records per-route metrics and logs every request, at warn level
// when it failed.
func (m *httpMetrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		route := normalizeRoute(r.URL.Path)
		start := time.Now()

		defer func() {
			elapsed := time.Since(start)
			m.recordRequest(r.Method, route, rw.StatusCode(), elapsed)

			logger := logging.FromContext(r.Context())
			event := logger.Debug()
			if rw.statusCode >= 400 {
				event = logger.Warn()
			}
			event.
				Str("method", r.Method).
				Str("route", route).
				Int("status", rw.statusCode).
				Dur("elapsed", elapsed).
				Msg("API request")
		}()

		next.ServeHTTP(rw, r)
	})
}

// recoverPanics turns a handler panic into a 500 with the usual error body.
func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger := logging.FromContext(r.Context())
				logger.Error().
					Interface("panic", v).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("Recovered panic in API handler")
				writeErrorResponse(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// writeErrorResponse writes an APIError. The request ID is read back from the
// response header set by withRequestID.
func writeErrorResponse(w http.ResponseWriter, statusCode int, code, message string, details map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	body := APIError{
		ErrorMessage: message,
		Code:         code,
		StatusCode:   statusCode,
		Timestamp:    time.Now().Unix(),
		RequestID:    strings.TrimSpace(w.Header().Get(requestIDHeader)),
		Details:      details,
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}

// responseWriter remembers the status code for metrics and logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.written {
		return
	}
	rw.statusCode = code
	rw.written = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) StatusCode() int {
	if rw == nil {
		return http.StatusInternalServerError
	}
	return rw.statusCode
}

// Hijack lets the fit stream upgrade through the middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	rw.written = true
	return hijacker.Hijack()
}
