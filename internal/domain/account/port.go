package account

import "context"

// SaveOptions controls how Save treats the record. SkipValidation exists for
// the session manager's partial secret-field updates (refresh-token rotation,
// password rewrite), which must not re-trigger full-record validation.
type SaveOptions struct {
	SkipValidation bool
}

type Repo interface {
	Create(ctx context.Context, a *Account) error
	FindByID(ctx context.Context, id string) (*Account, error)
	// FindByIdentifier resolves an account by email or username.
	FindByIdentifier(ctx context.Context, identifier string) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	Save(ctx context.Context, a *Account, opts SaveOptions) error
	// RotateRefreshToken overwrites the stored refresh token only if it still
	// equals old; returns ErrStaleRefreshToken otherwise. Serializes racing
	// refresh calls on the same account.
	RotateRefreshToken(ctx context.Context, id, old, replacement string) error
}
