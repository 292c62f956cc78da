package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestGateway() *MemoryGateway {
	return NewMemoryGateway(zap.NewNop())
}

func TestMemoryGateway_CreateAccountAndSignIn(t *testing.T) {
	gw := newTestGateway()
	ctx := context.Background()

	created, err := gw.CreateAccount(ctx, "Jane@Example.com", "Secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, created.UID)
	assert.Equal(t, "jane@example.com", created.Email)
	assert.NotEmpty(t, created.IDToken)

	signedIn, err := gw.SignIn(ctx, "jane@example.com", "Secret1")
	require.NoError(t, err)
	assert.Equal(t, created.UID, signedIn.UID)
	assert.NotEqual(t, created.IDToken, signedIn.IDToken)
}

func TestMemoryGateway_CreateAccountFailures(t *testing.T) {
	gw := newTestGateway()
	ctx := context.Background()

	_, err := gw.CreateAccount(ctx, "jane@example.com", "Secret1")
	require.NoError(t, err)

	_, err = gw.CreateAccount(ctx, "jane@example.com", "Other22")
	assert.Equal(t, EmailInUse, KindOf(err))

	_, err = gw.CreateAccount(ctx, "bob@example.com", "abc")
	assert.Equal(t, WeakPassword, KindOf(err))

	_, err = gw.CreateAccount(ctx, "not-an-email", "Secret1")
	assert.Equal(t, InvalidEmail, KindOf(err))
}

func TestMemoryGateway_SignInFailures(t *testing.T) {
	gw := newTestGateway()
	ctx := context.Background()

	_, err := gw.SignIn(ctx, "nobody@example.com", "Secret1")
	assert.Equal(t, UserNotFound, KindOf(err))

	_, err = gw.CreateAccount(ctx, "jane@example.com", "Secret1")
	require.NoError(t, err)

	for i := 0; i < memoryMaxFailedAttempts; i++ {
		_, err = gw.SignIn(ctx, "jane@example.com", "Wrong11")
		assert.Equal(t, WrongPassword, KindOf(err))
	}
	_, err = gw.SignIn(ctx, "jane@example.com", "Secret1")
	assert.Equal(t, TooManyRequests, KindOf(err), "account locks after repeated failures")

	_, err = gw.CreateAccount(ctx, "bob@example.com", "Secret1")
	require.NoError(t, err)
	require.True(t, gw.Disable("bob@example.com"))
	_, err = gw.SignIn(ctx, "bob@example.com", "Secret1")
	assert.Equal(t, UserDisabled, KindOf(err))
}

func TestMemoryGateway_VerifyAndSignOut(t *testing.T) {
	gw := newTestGateway()
	ctx := context.Background()

	user, err := gw.CreateAccount(ctx, "jane@example.com", "Secret1")
	require.NoError(t, err)
	require.NoError(t, gw.UpdateDisplayName(ctx, user.UID, "Jane Cooper"))

	verified, err := gw.VerifySession(ctx, user.IDToken)
	require.NoError(t, err)
	assert.Equal(t, "Jane Cooper", verified.DisplayName)

	require.NoError(t, gw.SignOut(ctx, user.UID))
	_, err = gw.VerifySession(ctx, user.IDToken)
	assert.Error(t, err)
}

func TestMemoryGateway_ExpiredTokenCanBeRefreshed(t *testing.T) {
	gw := newTestGateway()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	gw.now = func() time.Time { return now }
	gw.SetIDTokenTTL(time.Hour)

	user, err := gw.CreateAccount(ctx, "jane@example.com", "Secret1")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = gw.VerifySession(ctx, user.IDToken)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenExpired)

	renewed, err := gw.RefreshSession(ctx, user.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, user.UID, renewed.UID)
	assert.NotEqual(t, user.RefreshToken, renewed.RefreshToken)

	verified, err := gw.VerifySession(ctx, renewed.IDToken)
	require.NoError(t, err)
	assert.Equal(t, user.UID, verified.UID)

	_, err = gw.RefreshSession(ctx, user.RefreshToken)
	assert.Error(t, err, "a rotated refresh token is spent")

	require.NoError(t, gw.SignOut(ctx, user.UID))
	_, err = gw.RefreshSession(ctx, renewed.RefreshToken)
	assert.Error(t, err, "sign-out revokes refresh tokens")
}

func TestMemoryGateway_Profiles(t *testing.T) {
	gw := newTestGateway()
	ctx := context.Background()

	_, err := gw.GetProfile(ctx, "uid-1")
	assert.ErrorIs(t, err, ErrProfileNotFound)

	require.NoError(t, gw.SetProfile(ctx, "uid-1", &Profile{FullName: "Jane Cooper", Gender: "female"}))
	require.NoError(t, gw.SetProfile(ctx, "uid-1", &Profile{FullName: "Jane C"}))

	got, err := gw.GetProfile(ctx, "uid-1")
	require.NoError(t, err)
	assert.Equal(t, "Jane C", got.FullName)
	assert.Empty(t, got.Gender, "SetProfile overwrites rather than merges")
}

func TestMemoryGateway_CanceledContext(t *testing.T) {
	gw := newTestGateway()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gw.CreateAccount(ctx, "jane@example.com", "Secret1")
	assert.Equal(t, NetworkError, KindOf(err))
}
