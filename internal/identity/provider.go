// Package identity authenticates credentials, issues and resolves sessions,
// and owns the account and profile rows behind them.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/hongminglow/cuecast-be/internal/auth"
	"github.com/hongminglow/cuecast-be/internal/models"
	"github.com/hongminglow/cuecast-be/internal/policy"
	"github.com/hongminglow/cuecast-be/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotVerified   = errors.New("please verify your email address before signing in")
	ErrAccountDisabled    = errors.New("account is deactivated")
	ErrAlreadyVerified    = errors.New("email is already verified")
	ErrInvalidToken       = auth.ErrInvalidToken
)

// dummyHash keeps sign-in timing similar for unknown emails.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("cuecast-dummy-password"), bcrypt.DefaultCost)

// Revoker remembers signed-out token ids.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Session is an authenticated sign-in.
type Session struct {
	PrincipalID    string    `json:"principalId"`
	SessionToken   string    `json:"sessionToken"`
	EmailConfirmed bool      `json:"emailConfirmed"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// Profile is the mutable, role-bearing part of an account.
type Profile struct {
	Name      string      `json:"name"`
	Role      models.Role `json:"role"`
	IsActive  bool        `json:"isActive"`
	CreatedBy *string     `json:"createdBy,omitempty"`
}

// AuthFacts is the credential-side record only administrators may read.
type AuthFacts struct {
	Email            string     `json:"email"`
	CreatedAt        time.Time  `json:"createdAt"`
	LastSignInAt     *time.Time `json:"lastSignInAt,omitempty"`
	EmailConfirmedAt *time.Time `json:"emailConfirmedAt,omitempty"`
}

// Metadata seeds the profile row of a new account.
type Metadata struct {
	Name        string
	Role        models.Role
	CreatedBy   *string
	Permissions []models.PermissionID
}

// Registration is the result of a self-registration.
type Registration struct {
	PrincipalID       string
	Message           string
	VerificationToken string
}

// MutateFunc computes the next state of an account inside a transaction.
// A nil audit record means nothing is appended.
type MutateFunc func(ctx context.Context, current models.Account, admins storage.AdminCounter) (models.Account, *models.AuditRecord, error)

// GuardFunc vets a deletion inside the deleting transaction.
type GuardFunc func(ctx context.Context, current models.Account, admins storage.AdminCounter) error

// Provider implements the identity provider over a storage.UserStore.
type Provider struct {
	store          storage.UserStore
	tokens         *auth.TokenManager
	revoked        Revoker
	log            *logrus.Logger
	now            func() time.Time
	profileTimeout time.Duration
	pollInterval   time.Duration
}

// Option configures a Provider.
type Option func(*Provider)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithProfileTimeout bounds WaitForProfile.
func WithProfileTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.profileTimeout = d
		}
	}
}

// NewProvider wires a Provider.
func NewProvider(store storage.UserStore, tokens *auth.TokenManager, revoked Revoker, log *logrus.Logger, opts ...Option) *Provider {
	p := &Provider{
		store:          store,
		tokens:         tokens,
		revoked:        revoked,
		log:            log,
		now:            time.Now,
		profileTimeout: 3 * time.Second,
		pollInterval:   50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SignIn checks credentials and opens a session.
func (p *Provider) SignIn(ctx context.Context, email, password string) (Session, error) {
	account, err := p.store.FindByEmail(ctx, policy.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	if !account.EmailConfirmed() {
		return Session{}, ErrEmailNotVerified
	}
	if !account.IsActive {
		return Session{}, ErrAccountDisabled
	}
	if err := p.store.RecordSignIn(ctx, account.ID, p.now()); err != nil {
		return Session{}, fmt.Errorf("record sign-in: %w", err)
	}
	token, claims, err := p.tokens.Generate(account)
	if err != nil {
		return Session{}, err
	}
	return Session{
		PrincipalID:    account.ID,
		SessionToken:   token,
		EmailConfirmed: true,
		ExpiresAt:      claims.ExpiresAt.Time,
	}, nil
}

// SignOut revokes the session token.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	claims, err := p.tokens.Validate(token, auth.PurposeSession)
	if err != nil {
		return err
	}
	return p.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

// GetSession resolves a live session token.
func (p *Provider) GetSession(ctx context.Context, token string) (Session, error) {
	claims, err := p.tokens.Validate(token, auth.PurposeSession)
	if err != nil {
		return Session{}, err
	}
	revoked, err := p.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, ErrInvalidToken
	}
	return Session{
		PrincipalID:    claims.Subject,
		SessionToken:   token,
		EmailConfirmed: true,
		ExpiresAt:      claims.ExpiresAt.Time,
	}, nil
}

// Principal resolves a bearer token to the current account. A token whose
// account was deleted is treated as invalid.
func (p *Provider) Principal(ctx context.Context, token string) (models.Account, error) {
	session, err := p.GetSession(ctx, token)
	if err != nil {
		return models.Account{}, err
	}
	account, err := p.store.FindByID(ctx, session.PrincipalID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Account{}, ErrInvalidToken
		}
		return models.Account{}, err
	}
	return account, nil
}

// GetProfile returns the profile row of id.
func (p *Provider) GetProfile(ctx context.Context, id string) (Profile, error) {
	account, err := p.store.FindByID(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	return Profile{Name: account.Name, Role: account.Role, IsActive: account.IsActive, CreatedBy: account.CreatedBy}, nil
}

// AdminLookup returns the credential-side facts of id.
func (p *Provider) AdminLookup(ctx context.Context, id string) (AuthFacts, error) {
	account, err := p.store.FindByID(ctx, id)
	if err != nil {
		return AuthFacts{}, err
	}
	return AuthFacts{
		Email:            account.Email,
		CreatedAt:        account.CreatedAt,
		LastSignInAt:     account.LastSignInAt,
		EmailConfirmedAt: account.EmailConfirmedAt,
	}, nil
}

// Account returns the joined auth and profile record of id.
func (p *Provider) Account(ctx context.Context, id string) (models.Account, error) {
	return p.store.FindByID(ctx, id)
}

// ListAccounts returns every account, newest first.
func (p *Provider) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return p.store.ListAccounts(ctx)
}

// CountActiveAdmins counts active admins outside any transaction.
func (p *Provider) CountActiveAdmins(ctx context.Context) (int, error) {
	return p.store.CountActiveAdmins(ctx)
}

// ListAudit returns audit records newest first.
func (p *Provider) ListAudit(ctx context.Context, filter models.AuditFilter) ([]models.AuditRecord, error) {
	return p.store.ListAudit(ctx, filter)
}

// CreateAuthAccount hashes the password and writes the account and its
// profile in one transaction. A taken email yields storage.ErrAlreadyExists.
func (p *Provider) CreateAuthAccount(ctx context.Context, email, password string, meta Metadata, autoConfirm bool) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	now := p.now()
	account := models.Account{
		ID:           uuid.NewString(),
		Email:        policy.NormalizeEmail(email),
		Name:         meta.Name,
		Role:         meta.Role,
		IsActive:     true,
		CreatedAt:    now,
		CreatedBy:    meta.CreatedBy,
		Overrides:    meta.Permissions,
		PasswordHash: string(hash),
	}
	if autoConfirm {
		account.EmailConfirmedAt = &now
	}
	created, err := p.store.CreateAccount(ctx, account)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// WaitForProfile polls until the profile of id is readable or the profile
// timeout passes. With the transactional create path the first read succeeds;
// the poll covers stores that populate profiles asynchronously.
func (p *Provider) WaitForProfile(ctx context.Context, id string) (models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, p.profileTimeout)
	defer cancel()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		account, err := p.store.FindByID(ctx, id)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return models.Account{}, err
		}
		select {
		case <-ctx.Done():
			return models.Account{}, fmt.Errorf("user created but profile not found: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// MutateProfile locks id, applies fn and persists the result together with
// the audit record fn returns, all in one transaction.
func (p *Provider) MutateProfile(ctx context.Context, id string, fn MutateFunc) (models.Account, error) {
	var updated models.Account
	err := p.store.WithinTx(ctx, func(tx storage.Tx) error {
		current, err := tx.LockAccount(ctx, id)
		if err != nil {
			return err
		}
		next, record, err := fn(ctx, current, tx)
		if err != nil {
			return err
		}
		if err := tx.SaveProfile(ctx, next); err != nil {
			return err
		}
		if record != nil {
			if err := tx.AppendAudit(ctx, *record); err != nil {
				return fmt.Errorf("append audit: %w", err)
			}
		}
		updated = next
		return nil
	})
	return updated, err
}

// RemoveAccount deletes id after guard approves it. The profile row goes
// with the account.
func (p *Provider) RemoveAccount(ctx context.Context, id string, guard GuardFunc) error {
	return p.store.WithinTx(ctx, func(tx storage.Tx) error {
		current, err := tx.LockAccount(ctx, id)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(ctx, current, tx); err != nil {
				return err
			}
		}
		return tx.DeleteAccount(ctx, id)
	})
}

// DeleteAuthAccount deletes id unconditionally.
func (p *Provider) DeleteAuthAccount(ctx context.Context, id string) error {
	return p.RemoveAccount(ctx, id, nil)
}
