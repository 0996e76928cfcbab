// Package sqlite is an embedded storage backend for local development and
// tests. The pool is pinned to one connection, so transactions (and with them
// every admin count) are fully serialized.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hongminglow/cuecast-be/internal/models"
	"github.com/hongminglow/cuecast-be/internal/storage"
)

var _ storage.UserStore = (*Store)(nil)

// Store provides SQLite-backed persistence for accounts and audit records.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations. Use
// ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases database resources.
func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS auth_accounts (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL COLLATE NOCASE UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			last_sign_in_at TIMESTAMP,
			email_confirmed_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS user_profiles (
			id TEXT PRIMARY KEY REFERENCES auth_accounts(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'streaming',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_by TEXT,
			permissions TEXT NOT NULL DEFAULT '[]',
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS user_audit_logs (
			id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			changed_user_id TEXT NOT NULL,
			changed_by_user_id TEXT NOT NULL,
			old_role TEXT NOT NULL,
			new_role TEXT NOT NULL,
			old_is_active INTEGER NOT NULL,
			new_is_active INTEGER NOT NULL,
			change_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}

const accountQuery = `SELECT a.id, a.email, a.password_hash, a.created_at, a.last_sign_in_at, a.email_confirmed_at,
	p.name, p.role, p.is_active, p.created_by, p.permissions
	FROM auth_accounts a JOIN user_profiles p ON p.id = a.id`

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CreateAccount inserts the auth row and profile row in one transaction.
func (s *Store) CreateAccount(ctx context.Context, account models.Account) (models.Account, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO auth_accounts (id, email, password_hash, created_at, email_confirmed_at) VALUES (?, ?, ?, ?, ?)`,
			account.ID, account.Email, account.PasswordHash, account.CreatedAt.UTC(), nullTime(account.EmailConfirmedAt),
		); err != nil {
			return err
		}
		perms, err := encodePermissions(account.Overrides)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_profiles (id, name, role, is_active, created_by, permissions) VALUES (?, ?, ?, ?, ?, ?)`,
			account.ID, account.Name, string(account.Role), account.IsActive, account.CreatedBy, perms,
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return models.Account{}, storage.ErrAlreadyExists
		}
		return models.Account{}, err
	}
	return s.FindByID(ctx, account.ID)
}

// FindByID fetches an account by id.
func (s *Store) FindByID(ctx context.Context, id string) (models.Account, error) {
	return findOne(ctx, s.db, accountQuery+` WHERE a.id = ?`, id)
}

// FindByEmail fetches an account by email address, ignoring case.
func (s *Store) FindByEmail(ctx context.Context, email string) (models.Account, error) {
	return findOne(ctx, s.db, accountQuery+` WHERE a.email = ? COLLATE NOCASE`, email)
}

// ListAccounts returns all accounts, newest first.
func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, accountQuery+` ORDER BY a.created_at DESC, a.rowid DESC`)
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
	return execOne(ctx, s.db, `UPDATE auth_accounts SET email_confirmed_at = ? WHERE id = ?`, at.UTC(), id)
}

// RecordSignIn stamps the last sign-in time.
func (s *Store) RecordSignIn(ctx context.Context, id string, at time.Time) error {
	return execOne(ctx, s.db, `UPDATE auth_accounts SET last_sign_in_at = ? WHERE id = ?`, at.UTC(), id)
}

// CountActiveAdmins counts active admins.
func (s *Store) CountActiveAdmins(ctx context.Context) (int, error) {
	return countActiveAdmins(ctx, s.db)
}

// ListAudit returns audit records newest first.
func (s *Store) ListAudit(ctx context.Context, filter models.AuditFilter) ([]models.AuditRecord, error) {
	query := `SELECT id, changed_user_id, changed_by_user_id, old_role, new_role, old_is_active, new_is_active,
		change_reason, created_at FROM user_audit_logs`
	switch filter {
	case models.AuditRoleChanges:
		query += ` WHERE old_role <> new_role`
	case models.AuditStatusChanges:
		query += ` WHERE old_is_active <> new_is_active`
	}
	query += ` ORDER BY seq DESC`

	rows, err := s.db.QueryContext(ctx, query)
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

// WithinTx runs fn in a transaction. With a single connection no other
// statement runs until fn returns.
func (s *Store) WithinTx(ctx context.Context, fn func(storage.Tx) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return fn(&sqliteTx{tx: tx})
	})
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) LockAccount(ctx context.Context, id string) (models.Account, error) {
	return findOne(ctx, t.tx, accountQuery+` WHERE a.id = ?`, id)
}

func (t *sqliteTx) CountActiveAdmins(ctx context.Context) (int, error) {
	return countActiveAdmins(ctx, t.tx)
}

func (t *sqliteTx) SaveProfile(ctx context.Context, account models.Account) error {
	perms, err := encodePermissions(account.Overrides)
	if err != nil {
		return err
	}
	return execOne(ctx, t.tx,
		`UPDATE user_profiles SET name = ?, role = ?, is_active = ?, permissions = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		account.Name, string(account.Role), account.IsActive, perms, account.ID,
	)
}

func (t *sqliteTx) DeleteAccount(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM user_profiles WHERE id = ?`, id); err != nil {
		return err
	}
	return execOne(ctx, t.tx, `DELETE FROM auth_accounts WHERE id = ?`, id)
}

func (t *sqliteTx) AppendAudit(ctx context.Context, rec models.AuditRecord) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO user_audit_logs (id, seq, changed_user_id, changed_by_user_id, old_role, new_role, old_is_active, new_is_active, change_reason, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM user_audit_logs), ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ChangedUserID, rec.ChangedByUserID, string(rec.OldRole), string(rec.NewRole),
		rec.OldIsActive, rec.NewIsActive, rec.Reason, rec.CreatedAt.UTC(),
	)
	return err
}

func countActiveAdmins(ctx context.Context, q queryer) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT count(*) FROM user_profiles WHERE role = 'admin' AND is_active = 1`).Scan(&n)
	return n, err
}

func execOne(ctx context.Context, q queryer, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func findOne(ctx context.Context, q queryer, query string, args ...any) (models.Account, error) {
	return scanAccount(q.QueryRowContext(ctx, query, args...))
}

func scanAccount(row scanner) (models.Account, error) {
	var account models.Account
	var role, perms string
	var lastSignIn, confirmed sql.NullTime
	var createdBy sql.NullString
	if err := row.Scan(&account.ID, &account.Email, &account.PasswordHash, &account.CreatedAt,
		&lastSignIn, &confirmed, &account.Name, &role, &account.IsActive, &createdBy, &perms); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Account{}, storage.ErrNotFound
		}
		return models.Account{}, err
	}
	account.Role = models.Role(role)
	if lastSignIn.Valid {
		t := lastSignIn.Time
		account.LastSignInAt = &t
	}
	if confirmed.Valid {
		t := confirmed.Time
		account.EmailConfirmedAt = &t
	}
	if createdBy.Valid {
		v := createdBy.String
		account.CreatedBy = &v
	}
	if err := json.Unmarshal([]byte(perms), &account.Overrides); err != nil {
		return models.Account{}, fmt.Errorf("decode permissions: %w", err)
	}
	return account, nil
}

func encodePermissions(ids []models.PermissionID) (string, error) {
	if ids == nil {
		ids = []models.PermissionID{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
