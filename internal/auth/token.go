package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hongminglow/cuecast-be/internal/models"
)

// Token purposes. A verification token never authenticates a request.
const (
	PurposeSession     = "session"
	PurposeVerifyEmail = "verify_email"
)

// VerificationTTL bounds how long an emailed verification link stays valid.
const VerificationTTL = 48 * time.Hour

// ErrInvalidToken covers malformed, expired, wrongly signed or wrong-purpose tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims are carried in every token this service issues.
type Claims struct {
	jwt.RegisteredClaims
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
}

// TokenManager issues and validates signed JWTs.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	cache  *lru.Cache[string, *Claims]
}

// NewTokenManager creates a manager with the provided secret, issuer, and lifetime.
func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	cache, _ := lru.New[string, *Claims](4096)
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
		cache:  cache,
	}
}

// Generate issues a session token for the account.
func (t *TokenManager) Generate(account models.Account) (string, *Claims, error) {
	return t.issue(account, PurposeSession, t.ttl)
}

// GenerateVerification issues an email verification token for the account.
func (t *TokenManager) GenerateVerification(account models.Account) (string, error) {
	token, _, err := t.issue(account, PurposeVerifyEmail, VerificationTTL)
	return token, err
}

func (t *TokenManager) issue(account models.Account, purpose string, ttl time.Duration) (string, *Claims, error) {
	now := t.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    t.issuer,
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:   account.Email,
		Purpose: purpose,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Validate checks signature, issuer, expiry and purpose. Verified claims are
// cached by token string; expiry is re-checked on every hit.
func (t *TokenManager) Validate(raw, purpose string) (*Claims, error) {
	if claims, ok := t.cache.Get(raw); ok {
		if claims.Purpose != purpose || !claims.ExpiresAt.After(t.now()) {
			return nil, ErrInvalidToken
		}
		return claims, nil
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	t.cache.Add(raw, claims)
	if claims.Purpose != purpose {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
