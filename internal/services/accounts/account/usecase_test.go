package account

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/streampulse/accounts/internal/auth"
	"github.com/streampulse/accounts/internal/domain/account"
	"github.com/streampulse/accounts/internal/domain/outbox"
)

type memRepo struct {
	mu       sync.Mutex
	accounts map[string]*account.Account
}

func newMemRepo() *memRepo { return &memRepo{accounts: map[string]*account.Account{}} }

func (r *memRepo) Create(_ context.Context, a *account.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ex := range r.accounts {
		if ex.Email == a.Email || ex.Username == a.Username {
			return account.ErrDuplicate
		}
	}
	cp := *a
	r.accounts[a.ID] = &cp
	return nil
}

func (r *memRepo) FindByID(_ context.Context, id string) (*account.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) FindByIdentifier(_ context.Context, identifier string) (*account.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email == identifier || a.Username == identifier {
			cp := *a
			return &cp, nil
		}
	}
	return nil, account.ErrNotFound
}

func (r *memRepo) FindByUsername(_ context.Context, username string) (*account.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, account.ErrNotFound
}

func (r *memRepo) Save(_ context.Context, a *account.Account, opts account.SaveOptions) error {
	if !opts.SkipValidation {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.accounts[a.ID] = &cp
	return nil
}

func (r *memRepo) RotateRefreshToken(_ context.Context, id, old, replacement string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return account.ErrNotFound
	}
	if a.RefreshToken != old {
		return account.ErrStaleRefreshToken
	}
	a.RefreshToken = replacement
	return nil
}

type memMedia struct {
	mu      sync.Mutex
	uploads []string
}

func (m *memMedia) Upload(_ context.Context, key, _ string, body io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, key)
	return "https://cdn.example.com/" + key, nil
}

type memOutbox struct {
	mu    sync.Mutex
	kinds []outbox.Kind
}

func (o *memOutbox) Enqueue(_ context.Context, _ string, kind outbox.Kind, _ []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.kinds = append(o.kinds, kind)
	return nil
}

func (o *memOutbox) PickBatch(context.Context, int, time.Duration) ([]outbox.Message, error) {
	return nil, nil
}

func (o *memOutbox) MarkSuccess(context.Context, []string) error { return nil }

type passTx struct{}

func (passTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestUsecase(t *testing.T) (*Usecase, *memRepo, *memMedia, *memOutbox) {
	t.Helper()
	repo := newMemRepo()
	media := &memMedia{}
	ob := &memOutbox{}
	uc := NewUsecase(Deps{
		Accounts: repo,
		Hasher:   auth.NewPasswordHasher(bcrypt.MinCost),
		Media:    media,
		Outbox:   ob,
		Tx:       passTx{},
	})
	return uc, repo, media, ob
}

func validInput() RegisterInput {
	return RegisterInput{
		Username: "Gopher",
		Email:    "Gopher@Example.com",
		FullName: "Go Pher",
		Password: "hunter22",
		Avatar:   &Upload{Content: strings.NewReader("png bytes"), ContentType: "image/png"},
	}
}

func TestRegister_Success(t *testing.T) {
	uc, repo, media, ob := newTestUsecase(t)

	view, err := uc.Register(context.Background(), validInput())
	require.NoError(t, err)
	require.Equal(t, "gopher", view.Username)
	require.Equal(t, "gopher@example.com", view.Email)
	require.NotEmpty(t, view.ID)
	require.Contains(t, view.AvatarURL, "avatars/")
	require.Empty(t, view.CoverImageURL)

	stored, err := repo.FindByID(context.Background(), view.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.PasswordHash)
	require.NotEqual(t, "hunter22", stored.PasswordHash)
	require.Empty(t, stored.RefreshToken)

	require.Len(t, media.uploads, 1)
	require.Equal(t, []outbox.Kind{outbox.KindAccountRegistered}, ob.kinds)
}

func TestRegister_WithCoverImage(t *testing.T) {
	uc, _, media, _ := newTestUsecase(t)

	in := validInput()
	in.CoverImage = &Upload{Content: strings.NewReader("jpg bytes"), ContentType: "image/jpeg"}

	view, err := uc.Register(context.Background(), in)
	require.NoError(t, err)
	require.Contains(t, view.CoverImageURL, "covers/")
	require.Len(t, media.uploads, 2)
}

func TestRegister_MissingFields(t *testing.T) {
	uc, _, _, ob := newTestUsecase(t)

	in := validInput()
	in.Email = "  "
	_, err := uc.Register(context.Background(), in)
	require.ErrorIs(t, err, account.ErrInvalid)
	require.Empty(t, ob.kinds)
}

func TestRegister_MissingAvatar(t *testing.T) {
	uc, _, media, _ := newTestUsecase(t)

	in := validInput()
	in.Avatar = nil
	_, err := uc.Register(context.Background(), in)
	require.ErrorIs(t, err, account.ErrInvalid)
	require.Empty(t, media.uploads)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	uc, _, _, _ := newTestUsecase(t)

	_, err := uc.Register(context.Background(), validInput())
	require.NoError(t, err)

	in := validInput()
	in.Username = "someoneelse"
	in.Avatar = &Upload{Content: strings.NewReader("png"), ContentType: "image/png"}
	_, err = uc.Register(context.Background(), in)
	require.ErrorIs(t, err, account.ErrDuplicate)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	uc, _, _, _ := newTestUsecase(t)

	_, err := uc.Register(context.Background(), validInput())
	require.NoError(t, err)

	in := validInput()
	in.Email = "other@example.com"
	in.Avatar = &Upload{Content: strings.NewReader("png"), ContentType: "image/png"}
	_, err = uc.Register(context.Background(), in)
	require.ErrorIs(t, err, account.ErrDuplicate)
}

func TestByUsername(t *testing.T) {
	uc, _, _, _ := newTestUsecase(t)

	view, err := uc.Register(context.Background(), validInput())
	require.NoError(t, err)

	got, err := uc.ByUsername(context.Background(), " Gopher ")
	require.NoError(t, err)
	require.Equal(t, view.ID, got.ID)

	_, err = uc.ByUsername(context.Background(), "nobody")
	require.ErrorIs(t, err, account.ErrNotFound)
}
