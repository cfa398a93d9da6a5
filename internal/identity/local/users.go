package local

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/learnexa/learnexa/internal/identity"
	"github.com/learnexa/learnexa/internal/platform/db"
)

// ErrUserNotFound is returned when no account matches a lookup.
var ErrUserNotFound = errors.New("local: user not found")

// Account is a stored user with its credential hash.
type Account struct {
	identity.User
	PasswordHash string
}

// NewAccount is the input of UserRepository.Create.
type NewAccount struct {
	Email        string
	Phone        string
	PasswordHash string
	Metadata     map[string]string
}

// UserRepository persists accounts.
type UserRepository interface {
	Create(ctx context.Context, in NewAccount) (identity.User, error)
	ByEmail(ctx context.Context, email string) (Account, error)
	ByID(ctx context.Context, id string) (Account, error)
	// FindOrCreateByPhone returns the account owning phone, creating it
	// when absent. created reports whether a row was inserted.
	FindOrCreateByPhone(ctx context.Context, phone string) (user identity.User, created bool, err error)
	UpdatePassword(ctx context.Context, id, hash string) error
}

// Repository stores accounts in the users relation.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const accountColumns = `id, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(password_hash, ''), metadata, created_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	var meta map[string]string
	if err := row.Scan(&a.ID, &a.Email, &a.Phone, &a.PasswordHash, &meta, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrUserNotFound
		}
		return Account{}, err
	}
	if len(meta) > 0 {
		a.Metadata = meta
	}
	return a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Create inserts an account. A taken email or phone yields
// identity.ErrAlreadyRegistered.
func (r *Repository) Create(ctx context.Context, in NewAccount) (identity.User, error) {
	meta := in.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	a, err := scanAccount(r.pool.QueryRow(ctx, `
		INSERT INTO users (email, phone, password_hash, metadata)
		VALUES (NULLIF($1, ''), NULLIF($2, ''), NULLIF($3, ''), $4)
		RETURNING `+accountColumns, strings.ToLower(in.Email), in.Phone, in.PasswordHash, meta))
	if err != nil {
		if isUniqueViolation(err) {
			return identity.User{}, identity.ErrAlreadyRegistered
		}
		return identity.User{}, fmt.Errorf("local: create user: %w", err)
	}
	return a.User, nil
}

// ByEmail loads the account registered with email.
func (r *Repository) ByEmail(ctx context.Context, email string) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE email = $1`, strings.ToLower(email)))
}

// ByID loads an account by primary key.
func (r *Repository) ByID(ctx context.Context, id string) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE id = $1`, id))
}

// FindOrCreateByPhone runs the lookup and insert in one transaction so
// concurrent first sign-ins of a phone settle on one row.
func (r *Repository) FindOrCreateByPhone(ctx context.Context, phone string) (identity.User, bool, error) {
	var (
		user    identity.User
		created bool
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		a, err := scanAccount(tx.QueryRow(ctx, `
			INSERT INTO users (phone, metadata) VALUES ($1, '{}'::jsonb)
			ON CONFLICT (phone) DO NOTHING
			RETURNING `+accountColumns, phone))
		switch {
		case err == nil:
			user, created = a.User, true
			return nil
		case !errors.Is(err, ErrUserNotFound):
			return err
		}
		a, err = scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE phone = $1`, phone))
		if err != nil {
			return err
		}
		user = a.User
		return nil
	})
	if err != nil {
		return identity.User{}, false, fmt.Errorf("local: phone user: %w", err)
	}
	return user, created, nil
}

// UpdatePassword replaces the password hash of id.
func (r *Repository) UpdatePassword(ctx context.Context, id, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("local: update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
