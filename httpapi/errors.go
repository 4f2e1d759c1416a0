package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/authflow/authservice"
)

var errBadRequest = errors.New("invalid request body")

const detailBadRequest = "Invalid request body"

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, authservice.ErrChallengeAttemptsExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, authservice.ErrTOTPAlreadyEnabled),
		errors.Is(err, authservice.ErrTOTPNotProvisioned):
		return http.StatusConflict
	case authservice.IsRejection(err):
		return http.StatusUnauthorized
	default:
		return http.StatusServiceUnavailable
	}
}

func writeError(w http.ResponseWriter, err error) {
	detail := authservice.Detail(err)
	var invalid *validationError
	switch {
	case errors.As(err, &invalid):
		detail = invalid.detail
	case errors.Is(err, errBadRequest):
		detail = detailBadRequest
	}
	writeJSON(w, statusFor(err), ErrorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
