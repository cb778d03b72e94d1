// Package handler contains the HTTP handlers of the usage service.
//
// Every /api/ route is mounted behind the auth middleware and reads the
// caller from the request context. Webhook routes are public and
// authenticate by signature instead.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/hireready/internal/auth"
	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/google/uuid"
)

// maxBodyBytes bounds request bodies on the JSON API.
const maxBodyBytes = 64 << 10

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, op string, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return domain.Invalid(op, "Request body is not valid JSON")
	}
	return nil
}

// pathUUID parses a UUID path value.
func pathUUID(r *http.Request, name, op string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, domain.NewValidationError(op, name, "Must be a valid ID")
	}
	return id, nil
}

// currentUser returns the authenticated user or writes a 401.
func currentUser(w http.ResponseWriter, r *http.Request, logger *slog.Logger) *domain.User {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, logger)
		return nil
	}
	return user
}
