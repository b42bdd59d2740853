package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streampulse/accounts/internal/domain/account"
)

func testKeys() Keys {
	return Keys{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    720 * time.Hour,
	}
}

func testView() *account.View {
	return &account.View{
		ID:       "acc-1",
		Username: "gopher",
		Email:    "gopher@example.com",
		FullName: "Go Pher",
	}
}

func TestNewTokenManager_RequiresSecrets(t *testing.T) {
	_, err := NewTokenManager(Keys{RefreshSecret: []byte("x")}, nil)
	require.ErrorIs(t, err, ErrNoSigningKey)

	_, err = NewTokenManager(Keys{AccessSecret: []byte("x")}, nil)
	require.ErrorIs(t, err, ErrNoSigningKey)
}

func TestAccessToken_RoundTrip(t *testing.T) {
	m, err := NewTokenManager(testKeys(), nil)
	require.NoError(t, err)

	tok, err := m.IssueAccessToken(testView())
	require.NoError(t, err)

	claims, err := m.VerifyAccess(tok)
	require.NoError(t, err)
	require.Equal(t, "acc-1", claims.Subject)
	require.Equal(t, "gopher@example.com", claims.Email)
	require.Equal(t, "gopher", claims.Username)
	require.Equal(t, "Go Pher", claims.FullName)
}

func TestRefreshToken_SubjectOnly(t *testing.T) {
	m, err := NewTokenManager(testKeys(), nil)
	require.NoError(t, err)

	tok, err := m.IssueRefreshToken("acc-1")
	require.NoError(t, err)

	claims, err := m.VerifyRefresh(tok)
	require.NoError(t, err)
	require.Equal(t, "acc-1", claims.Subject)
}

func TestVerify_CrossKindRejected(t *testing.T) {
	m, err := NewTokenManager(testKeys(), nil)
	require.NoError(t, err)

	access, err := m.IssueAccessToken(testView())
	require.NoError(t, err)
	refresh, err := m.IssueRefreshToken("acc-1")
	require.NoError(t, err)

	_, err = m.VerifyRefresh(access)
	require.ErrorIs(t, err, ErrTokenInvalid)
	_, err = m.VerifyAccess(refresh)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerify_WrongKey(t *testing.T) {
	m1, err := NewTokenManager(testKeys(), nil)
	require.NoError(t, err)

	other := testKeys()
	other.AccessSecret = []byte("some-other-secret")
	m2, err := NewTokenManager(other, nil)
	require.NoError(t, err)

	tok, err := m1.IssueAccessToken(testView())
	require.NoError(t, err)

	_, err = m2.VerifyAccess(tok)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerify_Expired(t *testing.T) {
	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	m, err := NewTokenManager(testKeys(), func() time.Time { return clock })
	require.NoError(t, err)

	tok, err := m.IssueAccessToken(testView())
	require.NoError(t, err)

	clock = clock.Add(16 * time.Minute)
	_, err = m.VerifyAccess(tok)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_Garbage(t *testing.T) {
	m, err := NewTokenManager(testKeys(), nil)
	require.NoError(t, err)

	_, err = m.VerifyAccess("not.a.jwt")
	require.ErrorIs(t, err, ErrTokenInvalid)
	_, err = m.VerifyRefresh("")
	require.ErrorIs(t, err, ErrTokenInvalid)
}
