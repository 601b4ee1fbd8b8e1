package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/opencode-ai/wagate/internal/logging"
	"github.com/opencode-ai/wagate/internal/router"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeUnavailable    = "UNAVAILABLE"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// Messages of the send endpoints.
const (
	msgInvalidValue   = "Invalid value"
	msgInvalidGroupID = "Invalid value, you can use `id` or `name`"
	msgNoToken        = "Token not provided"
	msgAuthFailed     = "Authentication failed"
)

// Envelope is the response body of the send endpoints.
// Successful calls carry Response; rejected calls carry Message.
type Envelope struct {
	Status   bool `json:"status"`
	Response any  `json:"response,omitempty"`
	Message  any  `json:"message,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Debug().Err(err).Msg("write response")
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeOK writes a successful envelope.
func writeOK(w http.ResponseWriter, response any) {
	writeJSON(w, http.StatusOK, Envelope{Status: true, Response: response})
}

// writeRejected writes a failed envelope with a message.
func writeRejected(w http.ResponseWriter, status int, message any) {
	writeJSON(w, status, Envelope{Status: false, Message: message})
}

// writeValidation writes the field to message map of a rejected request.
func writeValidation(w http.ResponseWriter, fields map[string]string) {
	writeRejected(w, http.StatusUnprocessableEntity, fields)
}

// writeDispatchError maps a router error to its response.
func writeDispatchError(w http.ResponseWriter, err error) {
	var notFound *router.NotFoundError
	if errors.As(err, &notFound) {
		writeRejected(w, http.StatusUnprocessableEntity, notFound.Error())
		return
	}

	var noGroup *router.GroupNotFoundError
	if errors.As(err, &noGroup) {
		writeRejected(w, http.StatusUnprocessableEntity, noGroup.Error())
		return
	}

	var delivery *router.DeliveryError
	if errors.As(err, &delivery) {
		writeJSON(w, http.StatusInternalServerError, Envelope{Status: false, Response: delivery.Err.Error()})
		return
	}

	writeJSON(w, http.StatusInternalServerError, Envelope{Status: false, Response: err.Error()})
}
