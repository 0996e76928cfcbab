package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/cuecast-be/internal/authz"
	"github.com/hongminglow/cuecast-be/internal/identity"
	"github.com/hongminglow/cuecast-be/internal/logging"
	"github.com/hongminglow/cuecast-be/internal/models"
	"github.com/hongminglow/cuecast-be/internal/observability"
)

type stubResolver map[string]models.Account

func (s stubResolver) Principal(_ context.Context, token string) (models.Account, error) {
	if token == "boom" {
		return models.Account{}, errors.New("redis down")
	}
	account, ok := s[token]
	if !ok {
		return models.Account{}, identity.ErrInvalidToken
	}
	return account, nil
}

var resolver = stubResolver{
	"admin-token":    {ID: "a", Role: models.RoleAdmin, IsActive: true},
	"streamer-token": {ID: "s", Role: models.RoleStreaming, IsActive: true},
	"inactive-token": {ID: "i", Role: models.RoleAdmin, IsActive: false},
}

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAuthenticate(t *testing.T) {
	var seen *models.Account
	h := Authenticate(resolver, logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFrom(r.Context())
		assert.Equal(t, "admin-token", TokenFrom(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}))

	assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "forged").Code)
	assert.Equal(t, http.StatusInternalServerError, serve(h, "boom").Code)

	rr := serve(h, "inactive-token")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "account is deactivated")

	require.Equal(t, http.StatusNoContent, serve(h, "admin-token").Code)
	require.NotNil(t, seen)
	assert.Equal(t, "a", seen.ID)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer abc ")
	assert.Equal(t, "abc", BearerToken(req))

	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, BearerToken(req))
}

func TestRequireHidesReasonFromNonAdmins(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	metrics := observability.NewMetrics()
	h := Authenticate(resolver, logging.Discard())(Require(authz.RequirePermission(models.PermUserManagement), metrics)(ok))

	rr := serve(h, "streamer-token")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "not permitted")
	assert.NotContains(t, rr.Body.String(), authz.ReasonMissingPermission)

	assert.Equal(t, http.StatusNoContent, serve(h, "admin-token").Code)

	adminOnlyForContributors := Authenticate(resolver, logging.Discard())(Require(authz.RequireRole(models.RoleContributor), metrics)(ok))
	rr = serve(adminOnlyForContributors, "admin-token")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), authz.ReasonRoleMismatch)
}

func TestRequireWithoutPrincipal(t *testing.T) {
	h := Require(authz.Requirement{}, nil)(http.NotFoundHandler())
	assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := CORS([]string{"https://Control.example"})(next)

	req := httptest.NewRequest(http.MethodOptions, "/users", nil)
	req.Header.Set("Origin", "https://control.example")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://control.example", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))

	open := CORS([]string{"*"})(next)
	rr = httptest.NewRecorder()
	open.ServeHTTP(rr, req)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestLoggingRecordsStatus(t *testing.T) {
	log := logrus.New()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	h := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health?token=secret", nil))

	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"path":"/health"`)
	assert.NotContains(t, buf.String(), "secret")
}
