package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/hongminglow/cuecast-be/internal/http/respond"
	"github.com/hongminglow/cuecast-be/internal/identity"
	"github.com/hongminglow/cuecast-be/internal/policy"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a single JSON object into dst. Unknown fields are
// rejected so that immutable fields such as email cannot be smuggled in.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respond.Error(w, http.StatusBadRequest, policy.Kind(policy.ErrValidation), "invalid JSON payload")
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		respond.Error(w, http.StatusBadRequest, policy.Kind(policy.ErrValidation), "request body must contain a single JSON object")
		return false
	}
	return true
}

// writeIdentityError maps sign-in and token failures. Everything else goes
// through the shared taxonomy.
func writeIdentityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		respond.Error(w, http.StatusUnauthorized, policy.Kind(policy.ErrUnauthenticated), err.Error())
	case errors.Is(err, identity.ErrInvalidToken):
		respond.Error(w, http.StatusUnauthorized, policy.Kind(policy.ErrUnauthenticated), "invalid or expired token")
	case errors.Is(err, identity.ErrEmailNotVerified), errors.Is(err, identity.ErrAccountDisabled):
		respond.Error(w, http.StatusForbidden, policy.Kind(policy.ErrForbidden), err.Error())
	case errors.Is(err, identity.ErrAlreadyVerified):
		respond.Error(w, http.StatusConflict, policy.Kind(policy.ErrValidation), err.Error())
	default:
		respond.FromError(w, err, false)
	}
}
