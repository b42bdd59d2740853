package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streampulse/accounts/internal/auth"
	"github.com/streampulse/accounts/internal/domain/account"
	"github.com/streampulse/accounts/internal/domain/outbox"
	outboxsvc "github.com/streampulse/accounts/internal/outbox"
)

// MediaStore uploads an object and returns its public URL.
type MediaStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Upload struct {
	Content     io.Reader
	ContentType string
}

type RegisterInput struct {
	Username   string
	Email      string
	FullName   string
	Password   string
	Avatar     *Upload
	CoverImage *Upload
}

type Deps struct {
	Accounts account.Repo
	Hasher   *auth.PasswordHasher
	Media    MediaStore
	Outbox   outbox.Repository
	Tx       Transactor
	Logger   *zap.Logger
	Now      func() time.Time
}

type Usecase struct {
	accounts account.Repo
	hasher   *auth.PasswordHasher
	media    MediaStore
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
		hasher:   d.Hasher,
		media:    d.Media,
		outbox:   d.Outbox,
		tx:       d.Tx,
		log:      d.Logger,
		now:      d.Now,
	}
}

// Register creates an account: uniqueness checks, media upload, then the row
// insert and the account_registered event in one transaction.
func (u *Usecase) Register(ctx context.Context, in RegisterInput) (*account.View, error) {
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)

	if in.Username == "" || in.Email == "" || in.FullName == "" || in.Password == "" {
		return nil, errors.Join(account.ErrInvalid, errors.New("all fields are required"))
	}
	if in.Avatar == nil {
		return nil, errors.Join(account.ErrInvalid, errors.New("avatar is required"))
	}

	for _, identifier := range []string{in.Email, in.Username} {
		_, err := u.accounts.FindByIdentifier(ctx, identifier)
		switch {
		case err == nil:
			return nil, account.ErrDuplicate
		case !errors.Is(err, account.ErrNotFound):
			return nil, fmt.Errorf("uniqueness check: %w", err)
		}
	}

	avatarURL, err := u.media.Upload(ctx, u.mediaKey("avatars"), in.Avatar.ContentType, in.Avatar.Content)
	if err != nil {
		return nil, fmt.Errorf("upload avatar: %w", err)
	}
	var coverURL string
	if in.CoverImage != nil {
		coverURL, err = u.media.Upload(ctx, u.mediaKey("covers"), in.CoverImage.ContentType, in.CoverImage.Content)
		if err != nil {
			return nil, fmt.Errorf("upload cover image: %w", err)
		}
	}

	digest, err := u.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := u.now()
	acc := &account.Account{
		ID:            uuid.NewString(),
		Username:      in.Username,
		Email:         in.Email,
		FullName:      in.FullName,
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
		PasswordHash:  digest,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := acc.Validate(); err != nil {
		return nil, err
	}

	err = u.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := u.accounts.Create(ctx, acc); err != nil {
			return err
		}
		payload, err := json.Marshal(outboxsvc.AccountRegisteredPayload{
			AccountID: acc.ID,
			Username:  acc.Username,
			Email:     acc.Email,
			At:        now,
		})
		if err != nil {
			return fmt.Errorf("marshal account-registered payload: %w", err)
		}
		return u.outbox.Enqueue(ctx, uuid.NewString(), outbox.KindAccountRegistered, payload)
	})
	if err != nil {
		if errors.Is(err, account.ErrDuplicate) {
			return nil, account.ErrDuplicate
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	u.log.Info("account registered",
		zap.String("account_id", acc.ID),
		zap.String("username", acc.Username),
	)
	return acc.Sanitized(), nil
}

// ByUsername is the public profile lookup.
func (u *Usecase) ByUsername(ctx context.Context, username string) (*account.View, error) {
	acc, err := u.accounts.FindByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, account.ErrNotFound
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	return acc.Sanitized(), nil
}

// mediaKey builds object keys like avatars/2026/08/29/<uuid>.
func (u *Usecase) mediaKey(prefix string) string {
	d := u.now()
	return fmt.Sprintf("%s/%d/%02d/%02d/%s", prefix, d.Year(), d.Month(), d.Day(), uuid.New())
}
