package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/carepoint/server/internal/model"
	"github.com/jmoiron/sqlx"
)

// AccountRepo defines the interface for account repository operations
type AccountRepo interface {
	FindByEmail(ctx context.Context, email string) (model.Account, error)
	Insert(ctx context.Context, a *model.Account) error
	UpdateLastLogin(ctx context.Context, email string, at time.Time) error
	List(ctx context.Context) ([]model.Account, error)
	ListByRoles(ctx context.Context, roles ...model.Role) ([]model.Account, error)
}

type accountRepo struct {
	db *sqlx.DB
}

// NewAccountRepo creates a new AccountRepo instance
func NewAccountRepo(db *sqlx.DB) AccountRepo {
	return &accountRepo{db: db}
}

// Counters live in login_attempts; accounts without a row read as zero.
const selectAccount = `
	SELECT a.id, a.email, a.password_hash, a.role,
	       COALESCE(la.failed_attempts, 0) AS failed_attempts,
	       la.locked_until,
	       a.last_login_at, a.created_at, a.updated_at
	FROM accounts a
	LEFT JOIN login_attempts la ON la.email = a.email
`

// FindByEmail returns the account registered under email or ErrNotFound.
func (r *accountRepo) FindByEmail(ctx context.Context, email string) (model.Account, error) {
	var a model.Account
	err := r.db.GetContext(ctx, &a, r.db.Rebind(selectAccount+`WHERE a.email = ?`), email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, fmt.Errorf("account %w", ErrNotFound)
		}
		return model.Account{}, fmt.Errorf("failed to query account: %w", err)
	}
	return a, nil
}

// Insert stores a new account. The caller assigns ID and timestamps.
func (r *accountRepo) Insert(ctx context.Context, a *model.Account) error {
	query := r.db.Rebind(`
		INSERT INTO accounts (id, email, password_hash, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query, a.ID, a.Email, a.PasswordHash, a.Role, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("account %s: %w", a.Email, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// UpdateLastLogin records a successful authentication time.
func (r *accountRepo) UpdateLastLogin(ctx context.Context, email string, at time.Time) error {
	query := r.db.Rebind(`UPDATE accounts SET last_login_at = ?, updated_at = ? WHERE email = ?`)
	res, err := r.db.ExecContext(ctx, query, at, at, email)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("account %w", ErrNotFound)
	}
	return nil
}

// List returns every account ordered by creation time.
func (r *accountRepo) List(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	if err := r.db.SelectContext(ctx, &accounts, selectAccount+`ORDER BY a.created_at, a.email`); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// ListByRoles returns accounts holding any of roles, ordered by email.
func (r *accountRepo) ListByRoles(ctx context.Context, roles ...model.Role) ([]model.Account, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.String())
	}
	query, args, err := sqlx.In(selectAccount+`WHERE a.role IN (?) ORDER BY a.email`, names)
	if err != nil {
		return nil, fmt.Errorf("failed to build role query: %w", err)
	}
	var accounts []model.Account
	if err := r.db.SelectContext(ctx, &accounts, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list accounts by role: %w", err)
	}
	return accounts, nil
}
