package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"onboarding_backend/internal/common"
	"onboarding_backend/internal/config"
	"onboarding_backend/internal/draft"
	"onboarding_backend/internal/identity"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// flakyGateway fails GetProfile with a transient error a fixed number of times.
type flakyGateway struct {
	*identity.MemoryGateway
	failures  int32
	calls     int32
	verifyErr error
}

func (g *flakyGateway) GetProfile(ctx context.Context, uid string) (*identity.Profile, error) {
	n := atomic.AddInt32(&g.calls, 1)
	if n <= atomic.LoadInt32(&g.failures) {
		return nil, identity.NewError(identity.OpFetchProfile, identity.NetworkError, errors.New("unavailable"))
	}
	return g.MemoryGateway.GetProfile(ctx, uid)
}

func (g *flakyGateway) VerifySession(ctx context.Context, idToken string) (*identity.User, error) {
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	return g.MemoryGateway.VerifySession(ctx, idToken)
}

func testConfig() *config.Config {
	return &config.Config{
		SessionSecret:         testSecret,
		SessionCookieName:     "onboarding_session",
		SessionCookieSameSite: "Lax",
		SessionTTL:            time.Hour,
		ProfileCacheTTL:       time.Minute,
		ProfileFetchAttempts:  2,
	}
}

func newTestManager(t *testing.T) (*Manager, *flakyGateway) {
	t.Helper()
	gw := &flakyGateway{MemoryGateway: identity.NewMemoryGateway(zap.NewNop())}
	m := NewManager(testConfig(), draft.NewMemoryStore(time.Minute), gw, NewHub(), zap.NewNop())
	return m, gw
}

func resolved(m *Manager, sid string) *Context {
	sc := m.Open(sid, zap.NewNop())
	sc.Resolve(context.Background())
	return sc
}

func TestSessionToken_RoundTrip(t *testing.T) {
	now := time.Now()
	signed, err := signSessionID([]byte(testSecret), "sid-1", time.Hour, now)
	require.NoError(t, err)

	sid, err := parseSessionID([]byte(testSecret), signed)
	require.NoError(t, err)
	assert.Equal(t, "sid-1", sid)

	_, err = parseSessionID([]byte("another-secret-another-secret-xx"), signed)
	assert.Error(t, err)

	expired, err := signSessionID([]byte(testSecret), "sid-1", time.Minute, now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = parseSessionID([]byte(testSecret), expired)
	assert.Error(t, err)
}

func TestMiddleware_IssuesAndReusesCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, _ := newTestManager(t)

	router := gin.New()
	router.Use(m.Middleware())
	router.GET("/whoami", func(c *gin.Context) {
		sc := FromGin(c)
		c.JSON(http.StatusOK, gin.H{"sid": sc.ID(), "state": sc.State()})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)
	assert.Contains(t, w.Body.String(), `"state":"anonymous"`)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(cookies[0])
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req)
	assert.Empty(t, w2.Result().Cookies(), "a valid cookie is not reissued")
}

func TestContext_SignUpSignOutLifecycle(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sc := resolved(m, "sid-1")
	assert.False(t, sc.Loading())
	assert.Equal(t, StateAnonymous, sc.State())

	user, err := sc.SignUp(ctx, "jane@example.com", "Secret1")
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, sc.State())
	m.WaitIdle()

	next := resolved(m, "sid-1")
	require.NotNil(t, next.CurrentUser())
	assert.Equal(t, user.UID, next.CurrentUser().UID)
	assert.Nil(t, next.Profile())

	require.NoError(t, next.SignOut(ctx))
	require.NoError(t, next.SignOut(ctx), "sign-out is idempotent")
	assert.Nil(t, next.CurrentUser())

	after := resolved(m, "sid-1")
	assert.Equal(t, StateAnonymous, after.State())
}

func TestContext_AuthOutlivesDraftTTL(t *testing.T) {
	cfg := testConfig()
	cfg.SessionTTL = 24 * time.Hour
	gw := identity.NewMemoryGateway(zap.NewNop())
	m := NewManager(cfg, draft.NewMemoryStore(200*time.Millisecond), gw, NewHub(), zap.NewNop())
	ctx := context.Background()

	sc := resolved(m, "sid-1")
	_, err := sc.SignUp(ctx, "jane@example.com", "Secret1")
	require.NoError(t, err)
	require.NoError(t, sc.Draft.PutRegistration(ctx, &draft.Registration{Email: "jane@example.com"}))
	m.WaitIdle()

	time.Sleep(300 * time.Millisecond)

	next := resolved(m, "sid-1")
	assert.Equal(t, StateAuthenticated, next.State(), "sign-in lasts for the session TTL")
	reg, err := next.Draft.Registration(ctx)
	require.NoError(t, err)
	assert.Nil(t, reg, "draft entries still expire on the draft TTL")
}

func TestContext_ResolveRefreshesExpiredToken(t *testing.T) {
	m, gw := newTestManager(t)
	gw.SetIDTokenTTL(10 * time.Millisecond)
	ctx := context.Background()

	user, err := resolved(m, "sid-1").SignUp(ctx, "jane@example.com", "Secret1")
	require.NoError(t, err)
	m.WaitIdle()

	for i := 0; i < 2; i++ {
		time.Sleep(20 * time.Millisecond)
		sc := resolved(m, "sid-1")
		require.Equal(t, StateAuthenticated, sc.State(), "refresh %d", i)
		assert.Equal(t, user.UID, sc.CurrentUser().UID)
	}

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, gw.MemoryGateway.SignOut(ctx, user.UID))
	assert.Equal(t, StateAnonymous, resolved(m, "sid-1").State(), "gateway sign-out ends the session")
}

func TestContext_ProfileOperations(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	sc := resolved(m, "sid-1")
	user, err := sc.SignUp(ctx, "jane@example.com", "Secret1")
	require.NoError(t, err)
	m.WaitIdle()

	profile, err := sc.FetchProfile(ctx, user.UID)
	require.NoError(t, err)
	assert.Nil(t, profile, "a fresh user has no profile and that is not an error")

	require.NoError(t, sc.SaveProfile(ctx, user.UID, &identity.Profile{FullName: "Jane Cooper", RegistrationCompleted: true}))
	got := sc.Profile()
	require.NotNil(t, got)
	assert.Equal(t, fixed, got.CreatedAt)
	assert.Equal(t, fixed, got.UpdatedAt)

	require.NoError(t, sc.SignOut(ctx))
	_, cached := m.profiles.Get(user.UID)
	assert.False(t, cached, "sign-out invalidates the cached profile")
}

func TestContext_ProfileFetchRetriesTransientErrors(t *testing.T) {
	m, gw := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, gw.MemoryGateway.SetProfile(ctx, "u1", &identity.Profile{FullName: "Jane"}))
	atomic.StoreInt32(&gw.failures, 1)

	profile, err := m.loadProfile(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, int32(2), atomic.LoadInt32(&gw.calls))

	atomic.StoreInt32(&gw.calls, 0)
	atomic.StoreInt32(&gw.failures, 5)
	_, err = m.loadProfile(ctx, "u1")
	assert.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&gw.calls), "gives up after the configured attempts")

	atomic.StoreInt32(&gw.calls, 0)
	atomic.StoreInt32(&gw.failures, 0)
	profile, err = m.loadProfile(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, profile)
	assert.Equal(t, int32(1), atomic.LoadInt32(&gw.calls), "not-found is never retried")
}

func TestContext_ProfileFetchBacksOffBetweenAttempts(t *testing.T) {
	m, gw := newTestManager(t)
	m.retryBackoff = 30 * time.Millisecond
	atomic.StoreInt32(&gw.failures, 5)

	start := time.Now()
	_, err := m.loadProfile(context.Background(), "u1")
	assert.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	m.retryBackoff = time.Hour
	atomic.StoreInt32(&gw.calls, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start = time.Now()
	_, err = m.loadProfile(ctx, "u1")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "a cancelled context ends the backoff")
	assert.Equal(t, int32(1), atomic.LoadInt32(&gw.calls))
}

func TestContext_ResolveStaysLoadingWhenGatewayUnreachable(t *testing.T) {
	m, gw := newTestManager(t)
	ctx := context.Background()

	_, err := resolved(m, "sid-1").SignUp(ctx, "jane@example.com", "Secret1")
	require.NoError(t, err)
	m.WaitIdle()

	gw.verifyErr = identity.NewError(identity.OpVerify, identity.NetworkError, errors.New("dial tcp: timeout"))
	sc := resolved(m, "sid-1")
	assert.True(t, sc.Loading())

	gw.verifyErr = identity.NewError(identity.OpVerify, identity.Unknown, errors.New("revoked"))
	sc = resolved(m, "sid-1")
	assert.Equal(t, StateAnonymous, sc.State())
}

func TestContext_UpdateDisplayName(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	anon := resolved(m, "sid-anon")
	assert.NoError(t, anon.UpdateDisplayName(ctx, "Nobody"))

	sc := resolved(m, "sid-1")
	_, err := sc.SignUp(ctx, "jane@example.com", "Secret1")
	require.NoError(t, err)
	require.NoError(t, sc.UpdateDisplayName(ctx, "Jane Cooper"))
	m.WaitIdle()

	assert.Equal(t, "Jane Cooper", resolved(m, "sid-1").CurrentUser().DisplayName)
}

func TestContext_WaitForUser(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	waiting := resolved(m, "sid-1")
	assert.Nil(t, waiting.WaitForUser(ctx, 20*time.Millisecond))

	done := make(chan string, 1)
	go func() {
		if u := waiting.WaitForUser(ctx, 2*time.Second); u != nil {
			done <- u.UID
			return
		}
		done <- ""
	}()

	time.Sleep(20 * time.Millisecond)
	user, err := resolved(m, "sid-1").SignUp(ctx, "jane@example.com", "Secret1")
	require.NoError(t, err)
	m.WaitIdle()

	select {
	case uid := <-done:
		assert.Equal(t, user.UID, uid)
	case <-time.After(3 * time.Second):
		t.Fatal("WaitForUser did not return")
	}
}

func TestContext_BeginRefusesConcurrentSubmission(t *testing.T) {
	m, _ := newTestManager(t)
	sc := resolved(m, "sid-1")

	release, err := sc.Begin("register")
	require.NoError(t, err)

	_, err = resolved(m, "sid-1").Begin("register")
	assert.ErrorIs(t, err, common.ErrSubmissionPending)

	other, err := sc.Begin("login")
	require.NoError(t, err)
	other()

	release()
	release()
	again, err := sc.Begin("register")
	require.NoError(t, err)
	again()
}

func TestContext_BeginForgetsReleasedSubmissions(t *testing.T) {
	m, _ := newTestManager(t)
	for i := 0; i < 1000; i++ {
		release, err := m.Open(fmt.Sprintf("sid-%d", i), zap.NewNop()).Begin("register")
		require.NoError(t, err)
		release()
	}

	left := 0
	m.pending.Range(func(_, _ interface{}) bool {
		left++
		return true
	})
	assert.Zero(t, left)
}

func TestContext_CompletionMarker(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	sc := resolved(m, "sid-1")

	assert.False(t, sc.Completed(ctx))
	require.NoError(t, sc.MarkCompleted(ctx))
	assert.True(t, resolved(m, "sid-1").Completed(ctx))
	require.NoError(t, sc.ClearCompleted(ctx))
	assert.False(t, sc.Completed(ctx))
}
