package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/thinglink-core/internal/auth"
	"github.com/nerrad567/thinglink-core/internal/datapoint"
	"github.com/nerrad567/thinglink-core/internal/device"
	"github.com/nerrad567/thinglink-core/internal/fault"
	"github.com/nerrad567/thinglink-core/internal/pairing"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeUnauthorized    = "unauthorised"
	ErrCodeForbidden       = "forbidden"
	ErrCodeConflict        = "conflict"
	ErrCodeModeMismatch    = "mode_mismatch"
	ErrCodeInternal        = "internal_error"
	ErrCodeValidation      = "validation_error"
	ErrCodeProvider        = "provider_error"
	ErrCodeTimeout         = "timeout"
	ErrCodeTooManyRequests = "rate_limited"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps an error from the pairing, control or device
// layers to its HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	var mismatch *pairing.ModeMismatchError
	if errors.As(err, &mismatch) {
		writeJSON(w, http.StatusConflict, Error{
			Status:  http.StatusConflict,
			Code:    ErrCodeModeMismatch,
			Message: mismatch.Error(),
			Details: map[string]any{
				"uuid":           mismatch.UUID,
				"current_mode":   mismatch.Current,
				"suggested_mode": mismatch.Suggested,
			},
		})
		return
	}

	var enumErr *fault.InvalidEnumValueError
	if errors.As(err, &enumErr) {
		writeJSON(w, http.StatusBadRequest, Error{
			Status:  http.StatusBadRequest,
			Code:    ErrCodeValidation,
			Message: enumErr.Error(),
			Details: map[string]any{"allowed": enumErr.Allowed},
		})
		return
	}

	var pe *fault.ProviderError
	if errors.As(err, &pe) {
		writeJSON(w, http.StatusBadGateway, Error{
			Status:  http.StatusBadGateway,
			Code:    ErrCodeProvider,
			Message: pe.Error(),
			Details: map[string]any{"provider_code": pe.Code},
		})
		return
	}

	status, code := classify(err)
	if status == http.StatusInternalServerError {
		writeInternalError(w, "internal server error")
		return
	}
	writeError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, fault.ErrValidation),
		errors.Is(err, fault.ErrMissingCredentials),
		errors.Is(err, pairing.ErrInvalidMode):
		return http.StatusBadRequest, ErrCodeValidation
	case errors.Is(err, device.ErrDeviceNotFound),
		errors.Is(err, datapoint.ErrUnknownDataPoint),
		errors.Is(err, pairing.ErrUnknownDevice):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, pairing.ErrBusy),
		errors.Is(err, pairing.ErrInvalidState),
		errors.Is(err, pairing.ErrCancelled),
		errors.Is(err, fault.ErrAlreadyBound):
		return http.StatusConflict, ErrCodeConflict
	case errors.Is(err, fault.ErrProvider):
		return http.StatusBadGateway, ErrCodeProvider
	case errors.Is(err, fault.ErrTimeout):
		return http.StatusGatewayTimeout, ErrCodeTimeout
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrTokenInvalid):
		return http.StatusUnauthorized, ErrCodeUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, ErrCodeForbidden
	}
	return http.StatusInternalServerError, ErrCodeInternal
}
