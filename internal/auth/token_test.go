package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/cuecast-be/internal/models"
)

func TestGenerateAndValidate(t *testing.T) {
	tm := NewTokenManager("secret", "cuecast-test", time.Hour)
	account := models.Account{ID: "u-1", Email: "alice@example.com"}

	token, claims, err := tm.Generate(account)
	require.NoError(t, err)
	assert.NotEmpty(t, claims.ID)

	got, err := tm.Validate(token, PurposeSession)
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.Subject)
	assert.Equal(t, "alice@example.com", got.Email)

	again, err := tm.Validate(token, PurposeSession)
	require.NoError(t, err)
	assert.Equal(t, got.ID, again.ID)
}

func TestValidateRejectsWrongPurpose(t *testing.T) {
	tm := NewTokenManager("secret", "cuecast-test", time.Hour)
	account := models.Account{ID: "u-1"}

	verify, err := tm.GenerateVerification(account)
	require.NoError(t, err)

	_, err = tm.Validate(verify, PurposeSession)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tm.Validate(verify, PurposeVerifyEmail)
	assert.NoError(t, err)
}

func TestValidateRejectsForeignSignatureAndIssuer(t *testing.T) {
	issuer := NewTokenManager("secret", "cuecast-test", time.Hour)
	token, _, err := issuer.Generate(models.Account{ID: "u-1"})
	require.NoError(t, err)

	_, err = NewTokenManager("other-secret", "cuecast-test", time.Hour).Validate(token, PurposeSession)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokenManager("secret", "someone-else", time.Hour).Validate(token, PurposeSession)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Validate("not-a-token", PurposeSession)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsExpiredCachedToken(t *testing.T) {
	tm := NewTokenManager("secret", "cuecast-test", time.Minute)
	now := time.Now()
	tm.now = func() time.Time { return now }

	token, _, err := tm.Generate(models.Account{ID: "u-1"})
	require.NoError(t, err)
	_, err = tm.Validate(token, PurposeSession)
	require.NoError(t, err)

	tm.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = tm.Validate(token, PurposeSession)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
