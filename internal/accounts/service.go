// Package accounts is the trusted server boundary for listing, creating,
// updating and deleting accounts.
package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hongminglow/cuecast-be/internal/identity"
	"github.com/hongminglow/cuecast-be/internal/models"
	"github.com/hongminglow/cuecast-be/internal/observability"
	"github.com/hongminglow/cuecast-be/internal/policy"
	"github.com/hongminglow/cuecast-be/internal/storage"
)

// Provider is the slice of the identity provider the service needs.
type Provider interface {
	ListAccounts(ctx context.Context) ([]models.Account, error)
	CountActiveAdmins(ctx context.Context) (int, error)
	CreateAuthAccount(ctx context.Context, email, password string, meta identity.Metadata, autoConfirm bool) (string, error)
	WaitForProfile(ctx context.Context, id string) (models.Account, error)
	MutateProfile(ctx context.Context, id string, fn identity.MutateFunc) (models.Account, error)
	RemoveAccount(ctx context.Context, id string, guard identity.GuardFunc) error
	ListAudit(ctx context.Context, filter models.AuditFilter) ([]models.AuditRecord, error)
}

var _ Provider = (*identity.Provider)(nil)

// Service enforces account-mutation authorization and the last-admin rule.
type Service struct {
	provider Provider
	log      *logrus.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewService wires a Service. metrics may be nil.
func NewService(provider Provider, log *logrus.Logger, metrics *observability.Metrics) *Service {
	return &Service{provider: provider, log: log, metrics: metrics, now: time.Now}
}

// ListUsers returns every account, newest first.
func (s *Service) ListUsers(ctx context.Context, caller *models.Account) ([]models.Account, error) {
	if err := policy.CheckList(caller); err != nil {
		s.denied("list", caller, "", err)
		return nil, err
	}
	return s.provider.ListAccounts(ctx)
}

// CreateUser creates an active, pre-verified account. Creation is not
// audited; only role and active-flag changes are.
func (s *Service) CreateUser(ctx context.Context, caller *models.Account, req policy.CreateRequest) (created models.Account, err error) {
	defer func() { s.observe("create", err) }()

	req.Normalize()
	if err := policy.CheckCreate(caller, req); err != nil {
		s.denied("create", caller, "", err)
		return models.Account{}, err
	}

	meta := identity.Metadata{
		Name:        req.Name,
		Role:        req.Role,
		CreatedBy:   &caller.ID,
		Permissions: req.Permissions,
	}
	id, err := s.provider.CreateAuthAccount(ctx, req.Email, req.Password, meta, true)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return models.Account{}, policy.DuplicateEmail()
		}
		return models.Account{}, err
	}
	created, err = s.provider.WaitForProfile(ctx, id)
	if err != nil {
		return models.Account{}, err
	}

	s.log.WithFields(logrus.Fields{
		"caller_id": caller.ID,
		"target_id": created.ID,
		"role":      created.Role,
	}).Info("account created")
	return created, nil
}

// UpdateUser applies req to targetID. The target row is locked, the
// last-admin rule is evaluated under the store's admin lock, and the audit
// record is written in the same transaction as the change.
func (s *Service) UpdateUser(ctx context.Context, caller *models.Account, targetID string, req policy.UpdateRequest) (updated models.Account, err error) {
	defer func() { s.observe("update", err) }()

	if err := policy.CheckManager(caller, "updating"); err != nil {
		s.denied("update", caller, targetID, err)
		return models.Account{}, err
	}
	req.Normalize()

	updated, err = s.provider.MutateProfile(ctx, targetID, func(ctx context.Context, current models.Account, admins storage.AdminCounter) (models.Account, *models.AuditRecord, error) {
		if err := policy.CheckUpdate(caller, &current, req); err != nil {
			return models.Account{}, nil, err
		}
		if policy.WouldRemoveAdmin(&current, req) {
			n, err := admins.CountActiveAdmins(ctx)
			if err != nil {
				return models.Account{}, nil, err
			}
			if err := policy.CheckLastAdmin(n); err != nil {
				return models.Account{}, nil, err
			}
		}

		next := policy.Apply(current, req)
		if next.Role == current.Role && next.IsActive == current.IsActive {
			return next, nil, nil
		}
		return next, &models.AuditRecord{
			ID:              uuid.NewString(),
			ChangedUserID:   current.ID,
			ChangedByUserID: caller.ID,
			OldRole:         current.Role,
			NewRole:         next.Role,
			OldIsActive:     current.IsActive,
			NewIsActive:     next.IsActive,
			Reason:          req.Reason,
			CreatedAt:       s.now(),
		}, nil
	})
	if err != nil {
		err = translate(err)
		s.denied("update", caller, targetID, err)
		return models.Account{}, err
	}

	s.log.WithFields(logrus.Fields{
		"caller_id": caller.ID,
		"target_id": targetID,
		"role":      updated.Role,
		"is_active": updated.IsActive,
	}).Info("account updated")
	return updated, nil
}

// DeleteUser removes targetID. Self-deletion is rejected before any lookup.
// Deleting an active admin is subject to the same last-admin rule as a
// demotion.
func (s *Service) DeleteUser(ctx context.Context, caller *models.Account, targetID string) (err error) {
	defer func() { s.observe("delete", err) }()

	if err := policy.CheckDeleteSelf(caller, targetID); err != nil {
		s.denied("delete", caller, targetID, err)
		return err
	}
	if err := policy.CheckManager(caller, "deleting"); err != nil {
		s.denied("delete", caller, targetID, err)
		return err
	}

	err = s.provider.RemoveAccount(ctx, targetID, func(ctx context.Context, current models.Account, admins storage.AdminCounter) error {
		if err := policy.CheckDelete(caller, &current); err != nil {
			return err
		}
		if current.IsActiveAdmin() {
			n, err := admins.CountActiveAdmins(ctx)
			if err != nil {
				return err
			}
			return policy.CheckLastAdmin(n)
		}
		return nil
	})
	if err != nil {
		err = translate(err)
		s.denied("delete", caller, targetID, err)
		return err
	}

	s.log.WithFields(logrus.Fields{"caller_id": caller.ID, "target_id": targetID}).Info("account deleted")
	return nil
}

// ListAuditLogs returns audit records matching filter, newest first.
func (s *Service) ListAuditLogs(ctx context.Context, caller *models.Account, filter models.AuditFilter) ([]models.AuditRecord, error) {
	if err := policy.CheckAudit(caller); err != nil {
		s.denied("audit", caller, "", err)
		return nil, err
	}
	return s.provider.ListAudit(ctx, filter)
}

// EnsureAdmin seeds a verified admin when the store has no active admin.
// It reports whether an account was created. An email that already belongs
// to an account is left alone: the account is not promoted.
func (s *Service) EnsureAdmin(ctx context.Context, email, password, name string) (bool, error) {
	n, err := s.provider.CountActiveAdmins(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	req := policy.CreateRequest{Name: name, Email: email, Password: password, Role: models.RoleAdmin}
	req.Normalize()
	if err := policy.CheckCreate(&models.Account{Role: models.RoleAdmin, IsActive: true}, req); err != nil {
		return false, err
	}
	id, err := s.provider.CreateAuthAccount(ctx, req.Email, req.Password, identity.Metadata{Name: req.Name, Role: models.RoleAdmin}, true)
	if errors.Is(err, storage.ErrAlreadyExists) {
		s.log.WithField("email", req.Email).Warn("bootstrap admin skipped: email already belongs to an account")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.log.WithFields(logrus.Fields{"target_id": id}).Info("bootstrap admin created")
	return true, nil
}

func translate(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return policy.ErrNotFound
	}
	return err
}

func (s *Service) observe(op string, err error) {
	if err == nil {
		s.metrics.ObserveMutation(op, "ok")
		return
	}
	s.metrics.ObserveMutation(op, policy.Kind(err))
}

func (s *Service) denied(op string, caller *models.Account, targetID string, err error) {
	if !errors.Is(err, policy.ErrForbidden) && !errors.Is(err, policy.ErrInvariantViolation) {
		return
	}
	fields := logrus.Fields{"operation": op, "target_id": targetID, "reason": err.Error()}
	if caller != nil {
		fields["caller_id"] = caller.ID
		fields["caller_role"] = caller.Role
	}
	s.log.WithFields(fields).Warn("account mutation rejected")
}
