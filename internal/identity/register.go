package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hongminglow/cuecast-be/internal/auth"
	"github.com/hongminglow/cuecast-be/internal/models"
	"github.com/hongminglow/cuecast-be/internal/policy"
	"github.com/hongminglow/cuecast-be/internal/storage"
)

// Register creates an unverified account with the default role. No session
// is opened; the caller must deliver the verification token out of band.
func (p *Provider) Register(ctx context.Context, req policy.RegisterRequest) (Registration, error) {
	req.Normalize()
	if err := policy.ValidateRegistration(req); err != nil {
		return Registration{}, err
	}

	id, err := p.CreateAuthAccount(ctx, req.Email, req.Password, Metadata{Name: req.Name, Role: models.DefaultRole}, false)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return Registration{}, policy.DuplicateEmail()
		}
		return Registration{}, err
	}
	account, err := p.WaitForProfile(ctx, id)
	if err != nil {
		return Registration{}, err
	}
	token, err := p.tokens.GenerateVerification(account)
	if err != nil {
		return Registration{}, err
	}

	p.log.WithFields(logrus.Fields{"user_id": id}).Info("registered account awaiting verification")
	return Registration{
		PrincipalID:       id,
		Message:           fmt.Sprintf("We've sent a confirmation link to %s. Please verify to continue.", account.Email),
		VerificationToken: token,
	}, nil
}

// VerifyEmail confirms the account named by a verification token.
func (p *Provider) VerifyEmail(ctx context.Context, token string) (models.Account, error) {
	claims, err := p.tokens.Validate(token, auth.PurposeVerifyEmail)
	if err != nil {
		return models.Account{}, err
	}
	if err := p.ConfirmEmail(ctx, claims.Subject); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Account{}, ErrInvalidToken
		}
		return models.Account{}, err
	}
	return p.store.FindByID(ctx, claims.Subject)
}

// ConfirmEmail marks id verified, making it eligible to sign in.
func (p *Provider) ConfirmEmail(ctx context.Context, id string) error {
	account, err := p.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if account.EmailConfirmed() {
		return ErrAlreadyVerified
	}
	return p.store.ConfirmEmail(ctx, id, p.now())
}
