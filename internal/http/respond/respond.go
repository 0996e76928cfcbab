package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/hongminglow/cuecast-be/internal/policy"
)

// Envelope is the standard API response wrapper used across handlers.
type Envelope struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	ErrorKind string `json:"error_kind,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// FieldErrors is the data payload of a validation failure.
type FieldErrors struct {
	Fields map[string]string `json:"fields"`
}

// JSON writes a success or informational response using the common envelope.
func JSON(w http.ResponseWriter, status int, message string, data any) {
	write(w, status, Envelope{Code: status, Message: message, Data: data})
}

// Error writes an error response with the shared envelope structure.
func Error(w http.ResponseWriter, status int, kind, message string) {
	write(w, status, Envelope{Code: status, Message: message, ErrorKind: kind})
}

// FromError maps err onto its status and kind. Forbidden reasons are only
// written when revealReason is set; anyone else reads "not permitted".
func FromError(w http.ResponseWriter, err error, revealReason bool) {
	kind := policy.Kind(err)
	switch {
	case errors.Is(err, policy.ErrUnauthenticated):
		Error(w, http.StatusUnauthorized, kind, "please sign in")
	case errors.Is(err, policy.ErrForbidden):
		message := "not permitted"
		if revealReason {
			message = err.Error()
		}
		Error(w, http.StatusForbidden, kind, message)
	case errors.Is(err, policy.ErrValidation):
		status := http.StatusBadRequest
		env := Envelope{Code: status, Message: err.Error(), ErrorKind: kind}
		var verr *policy.ValidationError
		if errors.As(err, &verr) {
			if verr.Duplicate {
				status = http.StatusConflict
				env.Code = status
			}
			env.Data = FieldErrors{Fields: verr.Fields}
		}
		write(w, status, env)
	case errors.Is(err, policy.ErrNotFound):
		Error(w, http.StatusNotFound, kind, "user not found")
	case errors.Is(err, policy.ErrInvariantViolation):
		Error(w, http.StatusConflict, kind, err.Error())
	default:
		logrus.WithError(err).Error("respond: unhandled error")
		Error(w, http.StatusInternalServerError, kind, "something went wrong, please retry")
	}
}

func write(w http.ResponseWriter, status int, payload Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.WithError(err).Error("respond: encode payload failed")
	}
}
