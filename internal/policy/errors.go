package policy

import (
	"errors"
	"sort"
	"strings"
)

// Error kinds shared by the server boundary and the client pre-checks.
// Specific failures wrap one of these with fmt.Errorf("%w: ...").
var (
	ErrUnauthenticated    = errors.New("authentication required")
	ErrForbidden          = errors.New("forbidden")
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("user not found")
	ErrInvariantViolation = errors.New("invariant violation")
)

// ErrLastAdmin is returned when a change would leave no active admin.
var ErrLastAdmin = errorf(ErrInvariantViolation, "cannot remove the last admin")

// ValidationError carries field-level messages keyed by JSON field name.
// Duplicate marks a uniqueness conflict rather than malformed input.
type ValidationError struct {
	Fields    map[string]string
	Duplicate bool
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// FieldError builds a single-field ValidationError.
func FieldError(field, message string) error {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// DuplicateEmail reports that an account with the email already exists.
func DuplicateEmail() error {
	return &ValidationError{
		Fields:    map[string]string{"email": "an account with this email already exists"},
		Duplicate: true,
	}
}

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func errorf(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Forbidden wraps ErrForbidden with a specific reason.
func Forbidden(reason string) error {
	return errorf(ErrForbidden, reason)
}

// Kind returns the wire name of err's kind, or "transport" when err matches
// none of the taxonomy.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant_violation"
	default:
		return "transport"
	}
}

// KindError maps a wire kind back onto its sentinel. Unknown kinds yield nil.
func KindError(kind string) error {
	switch kind {
	case "unauthenticated":
		return ErrUnauthenticated
	case "forbidden":
		return ErrForbidden
	case "validation":
		return ErrValidation
	case "not_found":
		return ErrNotFound
	case "invariant_violation":
		return ErrInvariantViolation
	default:
		return nil
	}
}
