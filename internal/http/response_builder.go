package http

import (
	"encoding/json"
	"net/http"

	"finsync/internal/core"
	"finsync/internal/log"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	RunID   string `json:"run_id,omitempty"`
}

// StatusFor maps an error to its HTTP status by kind and code.
func StatusFor(err error) int {
	switch core.CodeOf(err) {
	case core.CodeAccountNotFound:
		return http.StatusNotFound
	case core.CodeInvalidAccount:
		return http.StatusUnprocessableEntity
	case core.CodeProviderAuth:
		// The caller's credentials were fine; the provider rejected ours.
		return http.StatusBadGateway
	}
	switch core.KindOf(err) {
	case core.KindAuth:
		return http.StatusUnauthorized
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	case core.KindProvider:
		return http.StatusBadGateway
	case core.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse builds the response for err. Untyped errors are reported
// as INTERNAL without their text.
func ErrorResponse(err error) *JSONResponseBuilder {
	body := errorBody{Code: core.CodeOf(err), Message: core.MessageOf(err)}
	if body.Code == core.CodeInternal {
		body.Message = "internal error"
	}
	return NewJSONResponse().Status(StatusFor(err)).Body(body)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	logger := log.FromContext(r.Context()).WithComponent(log.ComponentHTTP)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", log.FieldErrorCode, core.CodeOf(err), log.FieldError, err)
	}
	ErrorResponse(err).Write(w)
}

// writeRunError reports a failed sync together with the id of the run it
// recorded, when there is one.
func writeRunError(w http.ResponseWriter, r *http.Request, err error, runID string) {
	if runID == "" {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).WithComponent(log.ComponentHTTP).WarnContext(r.Context(), "Sync failed",
		log.FieldRunID, runID, log.FieldErrorCode, core.CodeOf(err), log.FieldError, err)
	NewJSONResponse().Status(StatusFor(err)).Body(errorBody{
		Code:    core.CodeOf(err),
		Message: core.MessageOf(err),
		RunID:   runID,
	}).Write(w)
}

func badRequest(message string) error {
	return core.NewError(core.KindValidation, core.CodeValidation, message)
}
