package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"rfqdesk/native/bank"
	"rfqdesk/native/permit"
	"rfqdesk/native/settlement"
)

var errRateLimited = errors.New("rate limit exceeded")

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// statusFor maps engine and collaborator errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, settlement.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, settlement.ErrRequestNotFound):
		return http.StatusNotFound
	case errors.Is(err, settlement.ErrLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, bank.ErrInsufficientBalance),
		errors.Is(err, bank.ErrInsufficientAllowance),
		errors.Is(err, permit.ErrPermitNonceUsed):
		return http.StatusConflict
	case errors.Is(err, settlement.ErrOracleStale),
		errors.Is(err, settlement.ErrOracleUnavailable),
		errors.Is(err, settlement.ErrPermitsDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, settlement.ErrDeadlineExpired),
		errors.Is(err, settlement.ErrDeadlineTooFar),
		errors.Is(err, settlement.ErrAmountTooSmall),
		errors.Is(err, settlement.ErrInvalidPrice),
		errors.Is(err, settlement.ErrPriceOutOfBand),
		errors.Is(err, permit.ErrPermitExpired),
		errors.Is(err, permit.ErrPermitSignatureInvalid),
		errors.Is(err, permit.ErrPermitSignerMismatch),
		errors.Is(err, permit.ErrPermitAmountInvalid):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: http.StatusText(status)}
	if err != nil {
		resp.Error = err.Error()
		if status != http.StatusInternalServerError {
			resp.Reason = settlement.Reason(err)
		}
	}
	writeJSON(w, status, resp)
}

func writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		writeError(w, status, errors.New("internal error"))
		return
	}
	writeError(w, status, err)
}
