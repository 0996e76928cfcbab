package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hongminglow/cuecast-be/internal/authz"
	"github.com/hongminglow/cuecast-be/internal/http/respond"
	"github.com/hongminglow/cuecast-be/internal/identity"
	"github.com/hongminglow/cuecast-be/internal/models"
	"github.com/hongminglow/cuecast-be/internal/observability"
	"github.com/hongminglow/cuecast-be/internal/policy"
	"github.com/hongminglow/cuecast-be/internal/rbac"
)

type contextKey int

const (
	principalKey contextKey = iota
	tokenKey
)

// PrincipalResolver turns a bearer token into the current account.
type PrincipalResolver interface {
	Principal(ctx context.Context, token string) (models.Account, error)
}

// WithPrincipal stores the authenticated account and its token on ctx.
func WithPrincipal(ctx context.Context, account *models.Account, token string) context.Context {
	ctx = context.WithValue(ctx, principalKey, account)
	return context.WithValue(ctx, tokenKey, token)
}

// PrincipalFrom returns the authenticated account, or nil.
func PrincipalFrom(ctx context.Context) *models.Account {
	account, _ := ctx.Value(principalKey).(*models.Account)
	return account
}

// TokenFrom returns the bearer token the request was authenticated with.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate resolves the bearer token before any handler logic runs.
// Missing or invalid tokens stop the request with 401; deactivated
// accounts with 403.
func Authenticate(resolver PrincipalResolver, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				respond.FromError(w, policy.ErrUnauthenticated, false)
				return
			}
			account, err := resolver.Principal(r.Context(), token)
			if err != nil {
				if errors.Is(err, identity.ErrInvalidToken) {
					respond.FromError(w, policy.ErrUnauthenticated, false)
					return
				}
				log.WithError(err).Error("resolve principal")
				respond.FromError(w, err, false)
				return
			}
			if err := policy.CheckCaller(&account); err != nil {
				respond.FromError(w, err, true)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), &account, token)))
		})
	}
}

// Require runs the authorization gate for req and counts the decision.
func Require(req authz.Requirement, metrics *observability.Metrics) func(http.Handler) http.Handler {
	label := req.String()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFrom(r.Context())
			decision := authz.Authorize(principal, req)
			metrics.ObserveDecision(label, decision.Outcome.String())
			switch decision.Outcome {
			case authz.Allowed:
				next.ServeHTTP(w, r)
			case authz.Unauthenticated:
				respond.FromError(w, policy.ErrUnauthenticated, false)
			default:
				respond.FromError(w, policy.Forbidden(decision.Reason), rbac.IsAdmin(principal))
			}
		})
	}
}
