package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "credpass/pkg/domain-errors"
)

// ErrorResponse is the JSON body written for failed requests.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Errors after WriteHeader cannot change the status code, so we ignore encoding errors.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError centralizes domain error translation to HTTP responses.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), ErrorResponse{
			Error:       DomainCodeToHTTPCode(domainErr.Code),
			Description: domainErr.Message,
		})
		return
	}

	// Fallback for unexpected errors
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: DomainCodeToHTTPCode(dErrors.CodeInternal),
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound, dErrors.CodeUnknownReference:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput,
		dErrors.CodeInvariantViolation, dErrors.CodeDecode:
		return http.StatusBadRequest
	case dErrors.CodeConflict, dErrors.CodeAlreadyFinalized, dErrors.CodeAlreadyVoted,
		dErrors.CodeTallyFrozen, dErrors.CodeIssuanceDuplicate, dErrors.CodeNotApproved,
		dErrors.CodeDuplicateApplication:
		return http.StatusConflict
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeIneligibleVoter:
		return http.StatusForbidden
	case dErrors.CodeStale:
		return http.StatusPreconditionFailed
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DomainCodeToHTTPCode translates domain error codes to HTTP error codes (for JSON response).
func DomainCodeToHTTPCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return "bad_request"
	case dErrors.CodeValidation, dErrors.CodeInvariantViolation:
		return "validation_error"
	case dErrors.CodeTimeout:
		return "ledger_timeout"
	case dErrors.CodeNotFound, dErrors.CodeConflict, dErrors.CodeUnauthorized, dErrors.CodeForbidden,
		dErrors.CodeDecode, dErrors.CodeUnknownReference, dErrors.CodeDuplicateApplication,
		dErrors.CodeAlreadyVoted, dErrors.CodeTallyFrozen, dErrors.CodeStale,
		dErrors.CodeIneligibleVoter, dErrors.CodeAlreadyFinalized, dErrors.CodeIssuanceDuplicate,
		dErrors.CodeNotApproved, dErrors.CodeUnavailable:
		return string(code)
	default:
		return "internal_error"
	}
}
