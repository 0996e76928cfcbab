package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hongminglow/cuecast-be/internal/models"
	"github.com/hongminglow/cuecast-be/internal/models/dto"
	"github.com/hongminglow/cuecast-be/internal/policy"
)

// ErrNoSession is returned by operations that need a signed-in principal.
var ErrNoSession = fmt.Errorf("%w: no session, run \"cuectl login\" first", policy.ErrUnauthenticated)

// cachedSession is the on-disk form of a session. Only the token is
// trusted; everything else is refreshed from the backend on Restore.
type cachedSession struct {
	Server    string    `yaml:"server"`
	Token     string    `yaml:"token"`
	ExpiresAt time.Time `yaml:"expires_at"`
	UserID    string    `yaml:"user_id"`
	Email     string    `yaml:"email"`
	Role      string    `yaml:"role"`
}

// Session is the current principal of an operator process. The zero state
// is signed out; Restore and Login populate it and Logout tears it down.
type Session struct {
	client    *Client
	cachePath string

	mu          sync.RWMutex
	token       string
	expiresAt   time.Time
	account     *models.Account
	permissions []models.PermissionID
}

// NewSession returns a signed-out session persisted at cachePath. An empty
// cachePath disables persistence.
func NewSession(c *Client, cachePath string) *Session {
	return &Session{client: c, cachePath: cachePath}
}

// DefaultCachePath honours CUECAST_SESSION_FILE, then XDG_CONFIG_HOME, then
// ~/.config.
func DefaultCachePath() string {
	if path := os.Getenv("CUECAST_SESSION_FILE"); path != "" {
		return path
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "cuecast-session.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "cuecast", "session.yaml")
}

// Restore loads a cached token and revalidates it with the backend. A
// missing cache leaves the session signed out without error; a rejected
// token clears the cache.
func (s *Session) Restore(ctx context.Context) error {
	cached, err := s.readCache()
	if err != nil || cached == nil {
		return err
	}
	if cached.Server != s.client.BaseURL() || !cached.ExpiresAt.After(time.Now()) {
		return s.clear()
	}

	var resp dto.SessionResponse
	if err := s.client.do(ctx, http.MethodGet, "/auth/session", cached.Token, nil, &resp); err != nil {
		if errors.Is(err, policy.ErrUnauthenticated) || errors.Is(err, policy.ErrForbidden) {
			return s.clear()
		}
		return err
	}
	resp.Token = cached.Token
	s.set(resp)
	return nil
}

// Login signs in and persists the session.
func (s *Session) Login(ctx context.Context, email, password string) error {
	var resp dto.SessionResponse
	if err := s.client.do(ctx, http.MethodPost, "/auth/login", "", dto.LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return err
	}
	s.set(resp)
	return s.writeCache()
}

// Logout revokes the token server-side, then clears memory and cache even
// when the revocation call fails.
func (s *Session) Logout(ctx context.Context) error {
	token := s.Token()
	var remoteErr error
	if token != "" {
		remoteErr = s.client.do(ctx, http.MethodPost, "/auth/logout", token, nil, nil)
		if errors.Is(remoteErr, policy.ErrUnauthenticated) {
			remoteErr = nil
		}
	}
	if err := s.clear(); err != nil {
		return err
	}
	return remoteErr
}

// Principal returns a copy of the signed-in account, or nil.
func (s *Session) Principal() *models.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.account == nil {
		return nil
	}
	account := *s.account
	return &account
}

// Token returns the bearer token, or "".
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Permissions returns the effective permissions reported at sign-in.
func (s *Session) Permissions() []models.PermissionID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.PermissionID(nil), s.permissions...)
}

func (s *Session) set(resp dto.SessionResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account := resp.Account
	s.account = &account
	s.token = resp.Token
	s.permissions = resp.Permissions
	if resp.ExpiresAt != nil {
		s.expiresAt = *resp.ExpiresAt
	}
}

func (s *Session) clear() error {
	s.mu.Lock()
	s.account = nil
	s.token = ""
	s.permissions = nil
	s.expiresAt = time.Time{}
	s.mu.Unlock()

	if s.cachePath == "" {
		return nil
	}
	if err := os.Remove(s.cachePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session file %s: %w", s.cachePath, err)
	}
	return nil
}

func (s *Session) readCache() (*cachedSession, error) {
	if s.cachePath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.cachePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session file %s: %w", s.cachePath, err)
	}
	var cached cachedSession
	if err := yaml.Unmarshal(data, &cached); err != nil || cached.Token == "" {
		return nil, s.clear()
	}
	return &cached, nil
}

func (s *Session) writeCache() error {
	if s.cachePath == "" {
		return nil
	}
	s.mu.RLock()
	cached := cachedSession{
		Server:    s.client.BaseURL(),
		Token:     s.token,
		ExpiresAt: s.expiresAt,
		UserID:    s.account.ID,
		Email:     s.account.Email,
		Role:      string(s.account.Role),
	}
	s.mu.RUnlock()

	data, err := yaml.Marshal(cached)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.cachePath), 0o700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	if err := os.WriteFile(s.cachePath, data, 0o600); err != nil {
		return fmt.Errorf("writing session file %s: %w", s.cachePath, err)
	}
	return nil
}
