package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. Error is mapped via userMessage (core.MapError) to a user message and code
//  4. The status comes from statusFor; the technical error is logged with
//     the request ID for correlation
//  5. The user message is written as JSON

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/giisexport/internal/core"
	"github.com/JonMunkholm/giisexport/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`

	RequestID string `json:"requestId,omitempty"`
}

// errBadRequest marks request decoding problems.
var errBadRequest = errors.New("bad request")

var badRequestMessage = core.UserMessage{
	Message: "Invalid request body",
	Action:  "Send a JSON object with tenantId and period (YYYY-MM)",
	Code:    "REQ001",
}

// userMessage maps err for clients. Service sentinels take precedence over
// the generic bad-request message.
func userMessage(err error) core.UserMessage {
	if errors.Is(err, errBadRequest) && !core.IsUserFacing(err) {
		return badRequestMessage
	}
	return core.MapError(err)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, core.ErrUnknownGuide),
		errors.Is(err, core.ErrInvalidPeriod),
		errors.Is(err, core.ErrGuideNotPlanned):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrBatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrBlockersPresent),
		errors.Is(err, core.ErrWarningsUnconfirmed),
		errors.Is(err, core.ErrBatchFailed),
		errors.Is(err, core.ErrBatchNotCompleted),
		errors.Is(err, core.ErrNoArtifacts):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyGenerations):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs the technical error server-side and returns the mapped
// user message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := userMessage(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request rejected", attrs...)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, status, ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,

		RequestID: requestID(r),
	})
}

// writeError writes a JSON error that did not come from the service.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{Error: message, Message: message, Code: code})
}

// requestID returns chi's request id so clients can quote it.
func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
