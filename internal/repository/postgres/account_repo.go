package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/streampulse/accounts/internal/domain/account"
)

var _ account.Repo = (*AccountRepo)(nil)

type AccountRepo struct {
	db *DB
}

func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

const accountColumns = `
id, username, email, full_name, avatar_url, COALESCE(cover_image_url, ''),
password_hash, COALESCE(refresh_token, ''), created_at, updated_at`

const (
	qAccountInsert = `
INSERT INTO accounts (id, username, email, full_name, avatar_url, cover_image_url, password_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9);`

	qAccountByID = `
SELECT ` + accountColumns + `
FROM accounts
WHERE id = $1;`

	qAccountByIdentifier = `
SELECT ` + accountColumns + `
FROM accounts
WHERE email = $1 OR username = $1;`

	qAccountByUsername = `
SELECT ` + accountColumns + `
FROM accounts
WHERE username = $1;`

	qAccountSave = `
UPDATE accounts
SET username        = $2,
    email           = $3,
    full_name       = $4,
    avatar_url      = $5,
    cover_image_url = NULLIF($6, ''),
    password_hash   = $7,
    refresh_token   = NULLIF($8, ''),
    updated_at      = NOW()
WHERE id = $1
RETURNING updated_at;`

	// The WHERE clause makes rotation conditional: a refresh that lost the
	// race against a concurrent rotation matches zero rows.
	qAccountRotateRefresh = `
UPDATE accounts
SET refresh_token = $3,
    updated_at    = NOW()
WHERE id = $1 AND refresh_token = $2;`
)

func (r *AccountRepo) Create(ctx context.Context, a *account.Account) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	_, err := eq.Exec(ctx, qAccountInsert,
		a.ID, a.Username, a.Email, a.FullName, a.AvatarURL, a.CoverImageURL,
		a.PasswordHash, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return account.ErrDuplicate
		}
		return fmt.Errorf("account insert: %w", err)
	}
	return nil
}

func (r *AccountRepo) FindByID(ctx context.Context, id string) (*account.Account, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var a account.Account
	if err := scanAccount(r.db.Pool.QueryRow(ctx, qAccountByID, id), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) FindByIdentifier(ctx context.Context, identifier string) (*account.Account, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var a account.Account
	if err := scanAccount(r.db.Pool.QueryRow(ctx, qAccountByIdentifier, identifier), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) FindByUsername(ctx context.Context, username string) (*account.Account, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var a account.Account
	if err := scanAccount(r.db.Pool.QueryRow(ctx, qAccountByUsername, username), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) Save(ctx context.Context, a *account.Account, opts account.SaveOptions) error {
	if !opts.SkipValidation {
		if err := a.Validate(); err != nil {
			return err
		}
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	err := eq.QueryRow(ctx, qAccountSave,
		a.ID, a.Username, a.Email, a.FullName, a.AvatarURL, a.CoverImageURL,
		a.PasswordHash, a.RefreshToken,
	).Scan(&a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return account.ErrNotFound
		}
		if isUniqueViolation(err) {
			return account.ErrDuplicate
		}
		return fmt.Errorf("account update: %w", err)
	}
	return nil
}

func (r *AccountRepo) RotateRefreshToken(ctx context.Context, id, old, replacement string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, qAccountRotateRefresh, id, old, replacement)
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrStaleRefreshToken
	}
	return nil
}

func scanAccount(row pgx.Row, out *account.Account) error {
	err := row.Scan(
		&out.ID, &out.Username, &out.Email, &out.FullName, &out.AvatarURL,
		&out.CoverImageURL, &out.PasswordHash, &out.RefreshToken,
		&out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return account.ErrNotFound
		}
		return fmt.Errorf("scan account: %w", err)
	}
	return nil
}
