// Package handlers implements the dashboard API endpoints.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vaani-ai/vaani-live/pkg/api/apierror"
	"github.com/vaani-ai/vaani-live/pkg/api/mw"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	apiErr, status := apierror.FromError(err, reqID)
	writeJSON(w, status, apierror.Envelope{Error: apiErr})
}

func badRequest(message, param string) *apierror.Error {
	return &apierror.Error{Type: apierror.ErrInvalidRequest, Message: message, Param: param}
}

func notFound(message string) *apierror.Error {
	return &apierror.Error{Type: apierror.ErrNotFound, Message: message}
}

// decodeBody parses a JSON request body into dst, rejecting unknown fields.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest(fmt.Sprintf("invalid request body: %v", err), "")
	}
	return nil
}

