package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/campus-finance/tuition-hub/internal/domain/ratelimit"
	"github.com/campus-finance/tuition-hub/internal/domain/shared"
	"github.com/campus-finance/tuition-hub/pkg/logger"
	"github.com/campus-finance/tuition-hub/pkg/timeutil"
)

const (
	codeInternal          = "INTERNAL_ERROR"
	codeTimeout           = "TIMEOUT"
	codeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	codeInvalidRequest    = "INVALID_REQUEST"
	codeInvalidFile       = "INVALID_FILE"
	codeFileTooLarge      = "FILE_TOO_LARGE"
)

// JSONResponse is the envelope of every API response.
type JSONResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		RequestID: requestIDFrom(r.Context()),
	})
}

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message, Details: details},
		RequestID: requestIDFrom(r.Context()),
	})
}

// writeError maps an error from the application layer to a status code.
// Store failures are logged and surfaced without their cause.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var exceeded *ratelimit.ExceededError
	if errors.As(err, &exceeded) {
		d := exceeded.Decision
		setRateLimitHeaders(w, d)
		writeAPIError(w, r, http.StatusTooManyRequests, codeRateLimitExceeded,
			"Daily query limit exceeded. Please try again tomorrow.",
			map[string]any{
				"studentNo":  exceeded.Subject,
				"callsToday": d.CallsToday,
				"maxAllowed": d.MaxAllowed,
				"resetTime":  timeutil.FormatReset(d.ResetAt),
			})
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		writeAPIError(w, r, http.StatusGatewayTimeout, codeTimeout, "Request timed out", nil)
		return
	}

	de, ok := shared.AsDomainError(err)
	if !ok || shared.IsStore(err) {
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
		writeAPIError(w, r, http.StatusInternalServerError, codeInternal, "An internal error occurred", nil)
		return
	}

	status := http.StatusInternalServerError
	switch {
	case shared.IsValidation(err):
		status = http.StatusBadRequest
	case shared.IsNotFound(err):
		status = http.StatusNotFound
	case shared.IsConflict(err):
		status = http.StatusConflict
	}
	writeAPIError(w, r, status, de.Code, de.Message, de.Details)
}

func setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.MaxAllowed))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining()))
	w.Header().Set("X-RateLimit-Reset", timeutil.FormatReset(d.ResetAt))
}

// decodeJSON reads a JSON body into v. Malformed bodies are validation errors.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if de, ok := shared.AsDomainError(err); ok {
			return de
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return shared.NewDomainError("http", "Decode", shared.ErrValidation,
				"PAYLOAD_TOO_LARGE", "Request body too large")
		}
		return shared.NewDomainError("http", "Decode", shared.ErrValidation,
			codeInvalidRequest, "Request body must be valid JSON")
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}
