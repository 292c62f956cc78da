// Package session maps browser sessions onto server-side auth state and drafts.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"onboarding_backend/internal/common"
	"onboarding_backend/internal/config"
	"onboarding_backend/internal/draft"
	"onboarding_backend/internal/identity"
	"onboarding_backend/internal/platform/crypto"
)

const sessionIDLength = 32

// Manager owns the session cookie and the per-session auth state.
type Manager struct {
	store         draft.Store
	gateway       identity.Gateway
	hub           *Hub
	profiles      *ProfileCache
	logger        *zap.Logger
	secret        []byte
	cookieName    string
	cookieDomain  string
	cookieSecure  bool
	cookieSame    http.SameSite
	ttl           time.Duration
	fetchAttempts int
	retryBackoff  time.Duration
	now           func() time.Time

	pending sync.Map
	fetches sync.WaitGroup
}

func NewManager(cfg *config.Config, store draft.Store, gateway identity.Gateway, hub *Hub, logger *zap.Logger) *Manager {
	if cfg.UsesDevelopmentSessionSecret() {
		logger.Warn("SESSION_SECRET not set; using the development secret")
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{
		store:         store,
		gateway:       gateway,
		hub:           hub,
		profiles:      NewProfileCache(cfg.ProfileCacheTTL),
		logger:        logger.Named("session"),
		secret:        []byte(cfg.SessionSecret),
		cookieName:    cfg.SessionCookieName,
		cookieDomain:  cfg.SessionCookieDomain,
		cookieSecure:  cfg.SessionCookieSecure,
		cookieSame:    parseSameSite(cfg.SessionCookieSameSite),
		ttl:           ttl,
		fetchAttempts: cfg.ProfileFetchAttempts,
		retryBackoff:  100 * time.Millisecond,
		now:           time.Now,
	}
}

// Middleware attaches a resolved *Context to every request, issuing a new
// session cookie when the request carries none or an invalid one.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := m.sessionID(c)
		if err != nil {
			common.RespondWithError(c, err)
			return
		}

		sc := m.Open(sid, common.LoggerFromContext(c, m.logger))
		sc.Resolve(c.Request.Context())
		c.Set(common.SessionKey, sc)
		c.Next()
	}
}

// FromGin returns the session context installed by Middleware.
func FromGin(c *gin.Context) *Context {
	v, ok := c.Get(common.SessionKey)
	if !ok {
		return nil
	}
	sc, _ := v.(*Context)
	return sc
}

// Open builds an unresolved context for sid.
func (m *Manager) Open(sid string, logger *zap.Logger) *Context {
	return &Context{
		m:      m,
		sid:    sid,
		state:  StateUnknown,
		logger: logger,
		Draft:  draft.New(m.store, sid, logger),
	}
}

// WaitIdle blocks until background profile fetches have finished.
func (m *Manager) WaitIdle() {
	m.fetches.Wait()
}

func (m *Manager) sessionID(c *gin.Context) (string, error) {
	if cookie, err := c.Request.Cookie(m.cookieName); err == nil {
		sid, err := parseSessionID(m.secret, cookie.Value)
		if err == nil {
			return sid, nil
		}
		m.logger.Debug("Replacing invalid session cookie", zap.Error(err))
	}

	sid, err := crypto.GenerateSecureRandomString(sessionIDLength)
	if err != nil {
		m.logger.Error("Failed to generate session id", zap.Error(err))
		return "", err
	}
	signed, err := signSessionID(m.secret, sid, m.ttl, m.now())
	if err != nil {
		m.logger.Error("Failed to sign session cookie", zap.Error(err))
		return "", err
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     m.cookieName,
		Value:    signed,
		Path:     "/",
		Domain:   m.cookieDomain,
		MaxAge:   int(m.ttl.Seconds()),
		Secure:   m.cookieSecure,
		HttpOnly: true,
		SameSite: m.cookieSame,
	})
	return sid, nil
}

// loadProfile fetches with retries on transient failures. Not-found is final.
func (m *Manager) loadProfile(ctx context.Context, uid string) (*identity.Profile, error) {
	var lastErr error
	for attempt := 1; attempt <= m.fetchAttempts; attempt++ {
		profile, err := m.gateway.GetProfile(ctx, uid)
		switch {
		case err == nil:
			m.profiles.Set(uid, profile)
			return profile, nil
		case isProfileNotFound(err):
			m.profiles.MarkMissing(uid)
			return nil, nil
		}
		lastErr = err
		m.logger.Debug("Profile fetch failed", zap.String("uid", uid), zap.Int("attempt", attempt), zap.Error(err))
		if attempt == m.fetchAttempts {
			break
		}

		backoff := time.NewTimer(time.Duration(attempt) * m.retryBackoff)
		select {
		case <-ctx.Done():
			backoff.Stop()
			return nil, lastErr
		case <-backoff.C:
		}
	}
	return nil, lastErr
}

// fetchProfileAsync runs the fetch that follows a transition to Authenticated.
func (m *Manager) fetchProfileAsync(uid string) {
	m.fetches.Add(1)
	go func() {
		defer m.fetches.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := m.loadProfile(ctx, uid); err != nil {
			m.logger.Warn("Error fetching user profile", zap.String("uid", uid), zap.Error(err))
		}
	}()
}

// markPending reports false when key is already in flight. The returned
// release removes the key and is safe to call more than once.
func (m *Manager) markPending(key string) (func(), bool) {
	if _, loaded := m.pending.LoadOrStore(key, struct{}{}); loaded {
		return nil, false
	}
	var once sync.Once
	return func() { once.Do(func() { m.pending.Delete(key) }) }, true
}

func parseSameSite(s string) http.SameSite {
	switch s {
	case "Lax":
		return http.SameSiteLaxMode
	case "Strict":
		return http.SameSiteStrictMode
	case "None":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
