// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"encoding/json"
	"net/http"

	"grimm.is/peek/internal/errors"
)

// Common error messages.
const (
	ErrInvalidBody  = "Invalid request body"
	ErrInvalidQuery = "Invalid query parameter"
	ErrNotFound     = "Not found"
	ErrNoHistory    = "History journal disabled"
)

// BindJSON decodes the request body into dest. On failure it writes a 400
// and returns false.
func BindJSON[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		WriteErrorDetails(w, http.StatusBadRequest, ErrInvalidBody, err)
		return false
	}
	return true
}

// WriteJSON writes data as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes a JSON error body.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteErrorDetails(w, status, message, nil)
}

// WriteErrorDetails writes a JSON error body with err as details.
func WriteErrorDetails(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	WriteJSON(w, status, response)
}

// WriteKindError picks the status code from the error kind and reports
// the kind in the body.
func WriteKindError(w http.ResponseWriter, message string, err error) {
	kind := errors.GetKind(err)
	status := StatusForKind(kind)
	WriteJSON(w, status, map[string]any{
		"error":   message,
		"status":  status,
		"kind":    kind,
		"details": err.Error(),
	})
}

// StatusForKind maps an error kind to an HTTP status.
func StatusForKind(kind errors.Kind) int {
	switch kind {
	case errors.KindValidation:
		return http.StatusBadRequest
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindPermission:
		return http.StatusForbidden
	case errors.KindConflict:
		return http.StatusConflict
	case errors.KindUnavailable:
		return http.StatusServiceUnavailable
	case errors.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
