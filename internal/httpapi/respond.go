package httpapi

import (
	"encoding/json"
	"net/http"
)

// Error codes used in API error responses.
const (
	codeInvalidBody      = "INVALID_BODY"
	codeValidationError  = "VALIDATION_ERROR"
	codeNotFound         = "NOT_FOUND"
	codeConflict         = "CONFLICT"
	codeInternalError    = "INTERNAL_ERROR"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the envelope every non-2xx API response carries.
type ErrorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: errorBody{Code: code, Message: message}})
}
