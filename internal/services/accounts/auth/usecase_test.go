package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/streampulse/accounts/internal/auth"
	"github.com/streampulse/accounts/internal/domain/account"
	"github.com/streampulse/accounts/internal/domain/outbox"
)

type memAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*account.Account
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{accounts: map[string]*account.Account{}}
}

func (r *memAccountRepo) put(a *account.Account) {
	cp := *a
	r.accounts[a.ID] = &cp
}

func (r *memAccountRepo) Create(_ context.Context, a *account.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ex := range r.accounts {
		if ex.Email == a.Email || ex.Username == a.Username {
			return account.ErrDuplicate
		}
	}
	r.put(a)
	return nil
}

func (r *memAccountRepo) FindByID(_ context.Context, id string) (*account.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memAccountRepo) FindByIdentifier(_ context.Context, identifier string) (*account.Account, error) {
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

func (r *memAccountRepo) FindByUsername(_ context.Context, username string) (*account.Account, error) {
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

func (r *memAccountRepo) Save(_ context.Context, a *account.Account, opts account.SaveOptions) error {
	if !opts.SkipValidation {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[a.ID]; !ok {
		return account.ErrNotFound
	}
	r.put(a)
	return nil
}

func (r *memAccountRepo) RotateRefreshToken(_ context.Context, id, old, replacement string) error {
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

type memOutbox struct {
	mu      sync.Mutex
	entries []outbox.Kind
}

func (o *memOutbox) Enqueue(_ context.Context, _ string, kind outbox.Kind, _ []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, kind)
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

func newTestUsecase(t *testing.T) (*Usecase, *memAccountRepo, *memOutbox) {
	t.Helper()

	tokens, err := auth.NewTokenManager(auth.Keys{
		AccessSecret:  []byte("test-access"),
		RefreshSecret: []byte("test-refresh"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    time.Hour,
	}, nil)
	require.NoError(t, err)

	repo := newMemAccountRepo()
	ob := &memOutbox{}
	uc := NewUsecase(Deps{
		Accounts: repo,
		Tokens:   tokens,
		Hasher:   auth.NewPasswordHasher(bcrypt.MinCost),
		Outbox:   ob,
		Tx:       passTx{},
	})
	return uc, repo, ob
}

func seedAccount(t *testing.T, repo *memAccountRepo, password string) *account.Account {
	t.Helper()
	digest, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	a := &account.Account{
		ID:           "acc-1",
		Username:     "gopher",
		Email:        "gopher@example.com",
		FullName:     "Go Pher",
		AvatarURL:    "https://cdn.example.com/a.png",
		PasswordHash: string(digest),
	}
	require.NoError(t, repo.Create(context.Background(), a))
	return a
}

func TestLogin_StoresRefreshToken(t *testing.T) {
	uc, repo, _ := newTestUsecase(t)
	seedAccount(t, repo, "hunter22")

	pair, view, err := uc.Login(context.Background(), "gopher@example.com", "hunter22")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "acc-1", view.ID)

	stored, err := repo.FindByID(context.Background(), "acc-1")
	require.NoError(t, err)
	require.Equal(t, pair.RefreshToken, stored.RefreshToken)
}

func TestLogin_ByUsername(t *testing.T) {
	uc, repo, _ := newTestUsecase(t)
	seedAccount(t, repo, "hunter22")

	_, view, err := uc.Login(context.Background(), "gopher", "hunter22")
	require.NoError(t, err)
	require.Equal(t, "gopher", view.Username)
}

func TestLogin_BadCredentialsIndistinguishable(t *testing.T) {
	uc, repo, _ := newTestUsecase(t)
	seedAccount(t, repo, "hunter22")

	_, _, errUnknown := uc.Login(context.Background(), "nobody@example.com", "hunter22")
	_, _, errWrongPw := uc.Login(context.Background(), "gopher@example.com", "wrong")

	require.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	require.ErrorIs(t, errWrongPw, ErrInvalidCredentials)
	require.Equal(t, errUnknown, errWrongPw)
}

func TestLogin_ViewCarriesNoSecrets(t *testing.T) {
	uc, repo, _ := newTestUsecase(t)
	seedAccount(t, repo, "hunter22")

	_, view, err := uc.Login(context.Background(), "gopher", "hunter22")
	require.NoError(t, err)
	require.Equal(t, "gopher@example.com", view.Email)
	require.NotEmpty(t, view.AvatarURL)
}

func TestRefresh_RotatesAndRejectsReplay(t *testing.T) {
	uc, repo, _ := newTestUsecase(t)
	seedAccount(t, repo, "hunter22")

	pair1, _, err := uc.Login(context.Background(), "gopher", "hunter22")
	require.NoError(t, err)

	pair2, view, err := uc.Refresh(context.Background(), pair1.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, "acc-1", view.ID)
	require.NotEqual(t, pair1.RefreshToken, pair2.RefreshToken)

	stored, err := repo.FindByID(context.Background(), "acc-1")
	require.NoError(t, err)
	require.Equal(t, pair2.RefreshToken, stored.RefreshToken)

	_, _, err = uc.Refresh(context.Background(), pair1.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidSession)

	_, _, err = uc.Refresh(context.Background(), pair2.RefreshToken)
	require.NoError(t, err)
}

func TestRefresh_LoginSupersedesPreviousSession(t *testing.T) {
	uc, repo, _ := newTestUsecase(t)
	seedAccount(t, repo, "hunter22")

	pair1, _, err := uc.Login(context.Background(), "gopher", "hunter22")
	require.NoError(t, err)

	_, _, err = uc.Login(context.Background(), "gopher", "hunter22")
	require.NoError(t, err)

	_, _, err = uc.Refresh(context.Background(), pair1.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestRefresh_RejectsForgedAndEmpty(t *testing.T) {
	uc, repo, _ := newTestUsecase(t)
	seedAccount(t, repo, "hunter22")

	_, _, err := uc.Refresh(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidSession)

	_, _, err = uc.Refresh(context.Background(), "forged.token.value")
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestRefresh_AfterInvalidate(t *testing.T) {
	uc, repo, _ := newTestUsecase(t)
	seedAccount(t, repo, "hunter22")

	pair, _, err := uc.Login(context.Background(), "gopher", "hunter22")
	require.NoError(t, err)

	require.NoError(t, uc.Invalidate(context.Background(), "acc-1"))

	_, _, err = uc.Refresh(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestInvalidate_Idempotent(t *testing.T) {
	uc, repo, _ := newTestUsecase(t)
	seedAccount(t, repo, "hunter22")

	_, _, err := uc.Login(context.Background(), "gopher", "hunter22")
	require.NoError(t, err)

	require.NoError(t, uc.Invalidate(context.Background(), "acc-1"))
	require.NoError(t, uc.Invalidate(context.Background(), "acc-1"))
	require.NoError(t, uc.Invalidate(context.Background(), "ghost"))
}

func TestChangePassword_RewritesDigestAndKeepsSession(t *testing.T) {
	uc, repo, ob := newTestUsecase(t)
	seedAccount(t, repo, "old-password")

	pair, _, err := uc.Login(context.Background(), "gopher", "old-password")
	require.NoError(t, err)

	err = uc.ChangePassword(context.Background(), "acc-1", "old-password", "new-password")
	require.NoError(t, err)

	_, _, err = uc.Login(context.Background(), "gopher", "old-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = uc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)

	require.Equal(t, []outbox.Kind{outbox.KindPasswordChanged}, ob.entries)
}

func TestChangePassword_WrongOldPassword(t *testing.T) {
	uc, repo, ob := newTestUsecase(t)
	seedAccount(t, repo, "old-password")

	err := uc.ChangePassword(context.Background(), "acc-1", "wrong", "new-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Empty(t, ob.entries)
}

func TestChangePassword_UnknownAccount(t *testing.T) {
	uc, _, _ := newTestUsecase(t)

	err := uc.ChangePassword(context.Background(), "ghost", "a", "b")
	require.ErrorIs(t, err, account.ErrNotFound)
}

func TestIssuePair_UnknownAccount(t *testing.T) {
	uc, _, _ := newTestUsecase(t)

	_, _, err := uc.IssuePair(context.Background(), "ghost")
	require.ErrorIs(t, err, account.ErrNotFound)
}
