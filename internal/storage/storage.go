package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hongminglow/cuecast-be/internal/models"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict.
var ErrAlreadyExists = errors.New("record already exists")

// AdminCounter counts active admins. Inside a Tx the count is taken under
// the store's admin lock, so no other transaction can change the admin set
// until the caller's transaction ends.
type AdminCounter interface {
	CountActiveAdmins(ctx context.Context) (int, error)
}

// Tx is a unit of work over account rows. Implementations serialize
// transactions that count admins.
type Tx interface {
	AdminCounter
	// LockAccount reads an account and holds a row lock until the Tx ends.
	LockAccount(ctx context.Context, id string) (models.Account, error)
	SaveProfile(ctx context.Context, account models.Account) error
	DeleteAccount(ctx context.Context, id string) error
	AppendAudit(ctx context.Context, record models.AuditRecord) error
}

// UserStore captures persistence operations needed by the identity provider.
type UserStore interface {
	// CreateAccount writes the auth record and its profile row atomically.
	CreateAccount(ctx context.Context, account models.Account) (models.Account, error)
	FindByID(ctx context.Context, id string) (models.Account, error)
	FindByEmail(ctx context.Context, email string) (models.Account, error)
	// ListAccounts returns every account, most recently created first.
	ListAccounts(ctx context.Context) ([]models.Account, error)
	ConfirmEmail(ctx context.Context, id string, at time.Time) error
	RecordSignIn(ctx context.Context, id string, at time.Time) error
	// ListAudit returns audit records newest first.
	ListAudit(ctx context.Context, filter models.AuditFilter) ([]models.AuditRecord, error)
	CountActiveAdmins(ctx context.Context) (int, error)
	WithinTx(ctx context.Context, fn func(Tx) error) error
	Ping(ctx context.Context) error
	Close()
}
