package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hongminglow/cuecast-be/internal/models"
	"github.com/hongminglow/cuecast-be/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ensure Store satisfies the storage.UserStore interface at compile time.
var _ storage.UserStore = (*Store)(nil)

// adminLockKey is the advisory lock guarding the active-admin set.
const adminLockKey int64 = 0x63756561646d696e

// Store provides Postgres-backed persistence for accounts and audit records.
type Store struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new Store and runs migrations.
func NewUserStore(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases database resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS auth_accounts (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_sign_in_at TIMESTAMPTZ,
			email_confirmed_at TIMESTAMPTZ
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS auth_accounts_email_unique_idx ON auth_accounts (lower(email));`,
		`CREATE TABLE IF NOT EXISTS user_profiles (
			id UUID PRIMARY KEY REFERENCES auth_accounts(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'streaming',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_by UUID,
			permissions TEXT[] NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS user_profiles_active_admin_idx ON user_profiles (role, is_active);`,
		`CREATE TABLE IF NOT EXISTS user_audit_logs (
			id UUID PRIMARY KEY,
			changed_user_id UUID NOT NULL,
			changed_by_user_id UUID NOT NULL,
			old_role TEXT NOT NULL,
			new_role TEXT NOT NULL,
			old_is_active BOOLEAN NOT NULL,
			new_is_active BOOLEAN NOT NULL,
			change_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS user_audit_logs_created_idx ON user_audit_logs (created_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}

const accountColumns = `a.id::text, a.email, a.password_hash, a.created_at, a.last_sign_in_at, a.email_confirmed_at,
	p.name, p.role, p.is_active, p.created_by::text, p.permissions`

const accountFrom = `FROM auth_accounts a JOIN user_profiles p ON p.id = a.id`

// CreateAccount inserts the auth row and profile row in one transaction.
func (s *Store) CreateAccount(ctx context.Context, account models.Account) (models.Account, error) {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO auth_accounts (id, email, password_hash, created_at, email_confirmed_at) VALUES ($1, $2, $3, $4, $5)`,
			account.ID, account.Email, account.PasswordHash, account.CreatedAt, account.EmailConfirmedAt,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO user_profiles (id, name, role, is_active, created_by, permissions) VALUES ($1, $2, $3, $4, $5, $6)`,
			account.ID, account.Name, string(account.Role), account.IsActive, account.CreatedBy, permissionStrings(account.Overrides),
		)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.Account{}, storage.ErrAlreadyExists
		}
		return models.Account{}, err
	}
	return s.FindByID(ctx, account.ID)
}

// FindByID fetches an account by id.
func (s *Store) FindByID(ctx context.Context, id string) (models.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` `+accountFrom+` WHERE a.id::text = $1`, id)
	return scanAccount(row)
}

// FindByEmail fetches an account by email address, ignoring case.
func (s *Store) FindByEmail(ctx context.Context, email string) (models.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` `+accountFrom+` WHERE lower(a.email) = lower($1)`, email)
	return scanAccount(row)
}

// ListAccounts returns all accounts, newest first.
func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+accountColumns+` `+accountFrom+` ORDER BY a.created_at DESC, a.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	return out, rows.Err()
}

// ConfirmEmail stamps the email confirmation time.
func (s *Store) ConfirmEmail(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, `UPDATE auth_accounts SET email_confirmed_at = $2 WHERE id::text = $1`, id, at)
}

// RecordSignIn stamps the last sign-in time.
func (s *Store) RecordSignIn(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, `UPDATE auth_accounts SET last_sign_in_at = $2 WHERE id::text = $1`, id, at)
}

// CountActiveAdmins counts admins without taking the admin lock.
func (s *Store) CountActiveAdmins(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM user_profiles WHERE role = 'admin' AND is_active`).Scan(&n)
	return n, err
}

// ListAudit returns audit records newest first.
func (s *Store) ListAudit(ctx context.Context, filter models.AuditFilter) ([]models.AuditRecord, error) {
	query := `SELECT id::text, changed_user_id::text, changed_by_user_id::text, old_role, new_role,
		old_is_active, new_is_active, change_reason, created_at FROM user_audit_logs`
	switch filter {
	case models.AuditRoleChanges:
		query += ` WHERE old_role <> new_role`
	case models.AuditStatusChanges:
		query += ` WHERE old_is_active <> new_is_active`
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		var oldRole, newRole string
		if err := rows.Scan(&rec.ID, &rec.ChangedUserID, &rec.ChangedByUserID, &oldRole, &newRole,
			&rec.OldIsActive, &rec.NewIsActive, &rec.Reason, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.OldRole = models.Role(oldRole)
		rec.NewRole = models.Role(newRole)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// WithinTx runs fn in a READ COMMITTED transaction. Row locks and the admin
// advisory lock are held until commit; READ COMMITTED makes every statement
// that runs after a lock wait see the rows committed by the previous holder.
func (s *Store) WithinTx(ctx context.Context, fn func(storage.Tx) error) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockAccount(ctx context.Context, id string) (models.Account, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+accountColumns+` `+accountFrom+` WHERE a.id::text = $1 FOR UPDATE OF p`, id)
	return scanAccount(row)
}

func (t *pgTx) CountActiveAdmins(ctx context.Context) (int, error) {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, adminLockKey); err != nil {
		return 0, fmt.Errorf("admin lock: %w", err)
	}
	var n int
	err := t.tx.QueryRow(ctx, `SELECT count(*) FROM user_profiles WHERE role = 'admin' AND is_active`).Scan(&n)
	return n, err
}

func (t *pgTx) SaveProfile(ctx context.Context, account models.Account) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE user_profiles SET name = $2, role = $3, is_active = $4, permissions = $5, updated_at = NOW() WHERE id::text = $1`,
		account.ID, account.Name, string(account.Role), account.IsActive, permissionStrings(account.Overrides),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *pgTx) DeleteAccount(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM auth_accounts WHERE id::text = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *pgTx) AppendAudit(ctx context.Context, rec models.AuditRecord) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO user_audit_logs (id, changed_user_id, changed_by_user_id, old_role, new_role, old_is_active, new_is_active, change_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.ChangedUserID, rec.ChangedByUserID, string(rec.OldRole), string(rec.NewRole),
		rec.OldIsActive, rec.NewIsActive, rec.Reason, rec.CreatedAt,
	)
	return err
}

func scanAccount(row pgx.Row) (models.Account, error) {
	var account models.Account
	var role string
	var perms []string
	if err := row.Scan(&account.ID, &account.Email, &account.PasswordHash, &account.CreatedAt,
		&account.LastSignInAt, &account.EmailConfirmedAt, &account.Name, &role, &account.IsActive,
		&account.CreatedBy, &perms); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, storage.ErrNotFound
		}
		return models.Account{}, err
	}
	account.Role = models.Role(role)
	for _, p := range perms {
		account.Overrides = append(account.Overrides, models.PermissionID(p))
	}
	return account, nil
}

func permissionStrings(ids []models.PermissionID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
