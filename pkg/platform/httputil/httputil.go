// Package httputil centralizes JSON response writing and request decoding
// so handlers stay focused on wiring requests to services.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "bloodtrace/pkg/domain-errors"
)

// errorBody is the wire format for error responses.
type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a coded error to an HTTP status and JSON body. Internal
// errors suppress the description so implementation details never leak.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := errorBody{Error: string(code)}

	switch code {
	case dErrors.CodeInternal, dErrors.CodeInvariantViolation, dErrors.CodeRangeTooLarge:
		// RangeTooLarge reaching the transport means the scanner failed to
		// absorb it; treat as internal and keep details server-side.
		body.Error = string(dErrors.CodeInternal)
	default:
		if de, ok := err.(*dErrors.Error); ok {
			body.Description = de.Message()
		} else {
			body.Description = err.Error()
		}
	}

	WriteJSON(w, statusFor(code), body)
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput, dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeConflict, dErrors.CodeIntegrity:
		return http.StatusConflict
	case dErrors.CodeConnectivity:
		return http.StatusBadGateway
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Decode parses a JSON request body into T, writing a bad_request response
// on failure. The second return value reports whether decoding succeeded.
func Decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return v, false
	}
	return v, true
}
