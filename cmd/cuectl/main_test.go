package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/cuecast-be/internal/client"
	"github.com/hongminglow/cuecast-be/internal/http/respond"
	"github.com/hongminglow/cuecast-be/internal/models"
	"github.com/hongminglow/cuecast-be/internal/models/dto"
	"github.com/hongminglow/cuecast-be/internal/policy"
)

func runArgs(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cache := filepath.Join(t.TempDir(), "session.yaml")
	var out bytes.Buffer
	err := run(context.Background(), append([]string{"--server", "http://127.0.0.1:1", "--session-file", cache}, args...), &out)
	return out.String(), err
}

func TestRunWithoutCommandPrintsHelp(t *testing.T) {
	_, err := runArgs(t)
	require.ErrorIs(t, err, pflag.ErrHelp)
	assert.Equal(t, 0, exitCode(err))
}

func TestRunUnknownCommand(t *testing.T) {
	_, err := runArgs(t, "frobnicate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frobnicate")
}

func TestSignedOutCommands(t *testing.T) {
	for _, cmd := range []string{"whoami", "tabs"} {
		_, err := runArgs(t, cmd)
		require.ErrorIs(t, err, client.ErrNoSession, cmd)
	}

	_, err := runArgs(t, "users", "list")
	require.ErrorIs(t, err, policy.ErrUnauthenticated)
	assert.Equal(t, 3, exitCode(err))
}

func TestLoginRequiresCredentials(t *testing.T) {
	t.Setenv("CUECAST_PASSWORD", "")
	_, err := runArgs(t, "login", "--email", "ops@example.com")
	require.ErrorIs(t, err, policy.ErrValidation)
	assert.Equal(t, 2, exitCode(err))
}

func TestAuditRejectsUnknownFilter(t *testing.T) {
	_, err := runArgs(t, "audit", "--filter", "everything")
	require.ErrorIs(t, err, policy.ErrValidation)
}

func TestPermissionIDsTrims(t *testing.T) {
	ids := permissionIDs([]string{" stream_control", "setup_access "})
	assert.Equal(t, "stream_control", string(ids[0]))
	assert.Equal(t, "setup_access", string(ids[1]))
}

// signedIn serves /auth/session for account and counts every other request.
func signedIn(t *testing.T, account models.Account) (server, cache string, other *atomic.Int32) {
	t.Helper()
	other = new(atomic.Int32)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/session" {
			other.Add(1)
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(respond.Envelope{Code: http.StatusOK, Message: "ok", Data: dto.SessionResponse{Account: account}})
	}))
	t.Cleanup(ts.Close)

	cache = filepath.Join(t.TempDir(), "session.yaml")
	body := fmt.Sprintf("server: %s\ntoken: tok\nexpires_at: %s\n", ts.URL, time.Now().Add(time.Hour).UTC().Format(time.RFC3339))
	require.NoError(t, os.WriteFile(cache, []byte(body), 0o600))
	return ts.URL, cache, other
}

func TestUsersCommandsNeedUserManagement(t *testing.T) {
	moderator := models.Account{ID: "m", Email: "mod@example.com", Role: models.RoleModerator, IsActive: true}
	server, cache, other := signedIn(t, moderator)

	var out bytes.Buffer
	err := run(context.Background(), []string{"--server", server, "--session-file", cache, "whoami"}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "mod@example.com")

	for _, args := range [][]string{{"users", "list"}, {"audit"}} {
		err := run(context.Background(), append([]string{"--server", server, "--session-file", cache}, args...), &out)
		require.ErrorIs(t, err, policy.ErrForbidden, args)
		assert.Equal(t, 4, exitCode(err))
	}
	assert.Zero(t, other.Load())
}
