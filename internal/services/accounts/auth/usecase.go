package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streampulse/accounts/internal/auth"
	"github.com/streampulse/accounts/internal/domain/account"
	"github.com/streampulse/accounts/internal/domain/outbox"
	outboxsvc "github.com/streampulse/accounts/internal/outbox"
)

var (
	// ErrInvalidCredentials covers both unknown identifier and wrong password,
	// so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid identifier or password")
	// ErrInvalidSession covers refresh tokens that are forged, expired or
	// superseded by a later rotation.
	ErrInvalidSession = errors.New("invalid or expired session")
)

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Pair is one issued access/refresh token pair.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

type Deps struct {
	Accounts account.Repo
	Tokens   *auth.TokenManager
	Hasher   *auth.PasswordHasher
	Outbox   outbox.Repository
	Tx       Transactor
	Logger   *zap.Logger
	Now      func() time.Time
}

// Usecase is the session manager: it owns every mutation of the account's
// secret fields (password hash, stored refresh token).
type Usecase struct {
	accounts account.Repo
	tokens   *auth.TokenManager
	hasher   *auth.PasswordHasher
	outbox   outbox.Repository
	tx       Transactor
	log      *zap.Logger
	now      func() time.Time
}

func NewUsecase(d Deps) *Usecase {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Usecase{
		accounts: d.Accounts,
		tokens:   d.Tokens,
		hasher:   d.Hasher,
		outbox:   d.Outbox,
		tx:       d.Tx,
		log:      d.Logger,
		now:      d.Now,
	}
}

// IssuePair issues a fresh token pair for the account and persists the new
// refresh token, superseding whatever was stored before.
func (u *Usecase) IssuePair(ctx context.Context, accountID string) (*Pair, *account.View, error) {
	acc, err := u.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, nil, account.ErrNotFound
		}
		return nil, nil, fmt.Errorf("load account: %w", err)
	}
	return u.issueAndStore(ctx, acc)
}

func (u *Usecase) issueAndStore(ctx context.Context, acc *account.Account) (*Pair, *account.View, error) {
	view := acc.Sanitized()

	access, err := u.tokens.IssueAccessToken(view)
	if err != nil {
		return nil, nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := u.tokens.IssueRefreshToken(acc.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("issue refresh token: %w", err)
	}

	acc.RefreshToken = refresh
	if err := u.accounts.Save(ctx, acc, account.SaveOptions{SkipValidation: true}); err != nil {
		return nil, nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &Pair{AccessToken: access, RefreshToken: refresh}, view, nil
}

// Login authenticates by email or username and issues a token pair.
func (u *Usecase) Login(ctx context.Context, identifier, password string) (*Pair, *account.View, error) {
	acc, err := u.accounts.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("resolve account: %w", err)
	}

	ok, err := u.hasher.Verify(password, acc.PasswordHash)
	if err != nil {
		return nil, nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, nil, ErrInvalidCredentials
	}

	u.log.Info("login", zap.String("account_id", acc.ID))
	return u.issueAndStore(ctx, acc)
}

// Refresh validates a presented refresh token and rotates the pair. A token
// that verifies cryptographically but no longer equals the stored value has
// been superseded and is rejected; the rotation itself is a conditional
// overwrite so two racing refreshes cannot both win.
func (u *Usecase) Refresh(ctx context.Context, presented string) (*Pair, *account.View, error) {
	if presented == "" {
		return nil, nil, ErrInvalidSession
	}

	claims, err := u.tokens.VerifyRefresh(presented)
	if err != nil {
		return nil, nil, ErrInvalidSession
	}

	acc, err := u.accounts.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, nil, ErrInvalidSession
		}
		return nil, nil, fmt.Errorf("load account: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(acc.RefreshToken), []byte(presented)) != 1 {
		u.log.Warn("stale refresh token presented", zap.String("account_id", acc.ID))
		return nil, nil, ErrInvalidSession
	}

	view := acc.Sanitized()
	access, err := u.tokens.IssueAccessToken(view)
	if err != nil {
		return nil, nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := u.tokens.IssueRefreshToken(acc.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("issue refresh token: %w", err)
	}

	if err := u.accounts.RotateRefreshToken(ctx, acc.ID, presented, refresh); err != nil {
		if errors.Is(err, account.ErrStaleRefreshToken) {
			return nil, nil, ErrInvalidSession
		}
		return nil, nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	return &Pair{AccessToken: access, RefreshToken: refresh}, view, nil
}

// Invalidate clears the stored refresh token. Idempotent: clearing an
// already-clear session, or a vanished account, is a no-op success.
func (u *Usecase) Invalidate(ctx context.Context, accountID string) error {
	acc, err := u.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load account: %w", err)
	}
	if acc.RefreshToken == "" {
		return nil
	}
	acc.RefreshToken = ""
	if err := u.accounts.Save(ctx, acc, account.SaveOptions{SkipValidation: true}); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

// ChangePassword verifies the old password and rewrites the digest. The
// current session is deliberately left intact: outstanding refresh tokens
// stay live until rotation or logout, matching the product's behavior.
func (u *Usecase) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	acc, err := u.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return account.ErrNotFound
		}
		return fmt.Errorf("load account: %w", err)
	}

	ok, err := u.hasher.Verify(oldPassword, acc.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	digest, err := u.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	acc.PasswordHash = digest

	err = u.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := u.accounts.Save(ctx, acc, account.SaveOptions{SkipValidation: true}); err != nil {
			return fmt.Errorf("store password hash: %w", err)
		}
		payload, err := json.Marshal(outboxsvc.PasswordChangedPayload{
			AccountID: acc.ID,
			At:        u.now(),
		})
		if err != nil {
			return fmt.Errorf("marshal password-changed payload: %w", err)
		}
		return u.outbox.Enqueue(ctx, uuid.NewString(), outbox.KindPasswordChanged, payload)
	})
	if err != nil {
		return err
	}

	u.log.Info("password changed", zap.String("account_id", acc.ID))
	return nil
}
