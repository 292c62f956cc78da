package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"onboarding_backend/internal/common"
	"onboarding_backend/internal/draft"
	"onboarding_backend/internal/identity"
)

// AuthState is the auth-state machine of a session.
type AuthState string

const (
	StateUnknown       AuthState = "unknown"
	StateAuthenticated AuthState = "authenticated"
	StateAnonymous     AuthState = "anonymous"
)

const (
	keyAuthState = "authState"
	keyFlowState = "flowState"

	flowComplete = "complete"
)

type storedAuth struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
}

func (s storedAuth) user() *identity.User {
	return &identity.User{
		UID:          s.UID,
		Email:        s.Email,
		DisplayName:  s.DisplayName,
		IDToken:      s.IDToken,
		RefreshToken: s.RefreshToken,
	}
}

func fromUser(u *identity.User) storedAuth {
	return storedAuth{
		UID:          u.UID,
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		IDToken:      u.IDToken,
		RefreshToken: u.RefreshToken,
	}
}

type flowMarker struct {
	State string `json:"state"`
}

// Context is the auth session of one request.
type Context struct {
	m      *Manager
	sid    string
	logger *zap.Logger

	mu    sync.RWMutex
	state AuthState
	user  *identity.User

	// Draft is the typed signup draft of this session.
	Draft *draft.Draft
}

func (c *Context) ID() string { return c.sid }

// Loading reports whether the initial auth state is still unknown.
func (c *Context) Loading() bool {
	return c.State() == StateUnknown
}

func (c *Context) State() AuthState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// CurrentUser is nil unless the session is authenticated.
func (c *Context) CurrentUser() *identity.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

// Profile is the cached profile of the current user, nil when none is known.
func (c *Context) Profile() *identity.Profile {
	u := c.CurrentUser()
	if u == nil {
		return nil
	}
	profile, _ := c.m.profiles.Get(u.UID)
	return profile
}

// Resolve performs the first auth-state notification of the request. The
// stored identity is re-verified with the gateway and an expired ID token is
// renewed with the stored refresh token; a verification the gateway cannot
// answer leaves the session in StateUnknown.
func (c *Context) Resolve(ctx context.Context) {
	stored, ok, err := c.loadAuth(ctx)
	if err != nil {
		c.logger.Warn("Failed to read session auth state", zap.Error(err))
		return
	}
	if !ok {
		c.setState(StateAnonymous, nil)
		return
	}

	verified, err := c.m.gateway.VerifySession(ctx, stored.IDToken)
	if errors.Is(err, identity.ErrTokenExpired) && stored.RefreshToken != "" {
		verified, err = c.refresh(ctx, &stored)
	}
	if err != nil {
		if identity.KindOf(err) == identity.NetworkError {
			c.logger.Warn("Could not verify session with identity gateway", zap.Error(err))
			return
		}
		c.logger.Info("Stored session no longer valid; signing out locally", zap.Error(err))
		_ = c.dropAuth(ctx, stored.UID)
		c.setState(StateAnonymous, nil)
		return
	}

	user := stored.user()
	if verified.DisplayName != "" {
		user.DisplayName = verified.DisplayName
	}
	c.setState(StateAuthenticated, user)

	if _, cached := c.m.profiles.Get(user.UID); !cached {
		if _, err := c.m.loadProfile(ctx, user.UID); err != nil {
			c.logger.Warn("Error fetching user profile", zap.String("uid", user.UID), zap.Error(err))
		}
	}
}

// refresh trades the stored refresh token for a new ID token and persists the
// renewed pair.
func (c *Context) refresh(ctx context.Context, stored *storedAuth) (*identity.User, error) {
	renewed, err := c.m.gateway.RefreshSession(ctx, stored.RefreshToken)
	if err != nil {
		return nil, err
	}
	stored.IDToken = renewed.IDToken
	if renewed.RefreshToken != "" {
		stored.RefreshToken = renewed.RefreshToken
	}
	if err := c.saveAuth(ctx, *stored); err != nil {
		c.logger.Warn("Failed to store refreshed session tokens", zap.Error(err))
	}
	c.logger.Debug("Session ID token refreshed", zap.String("uid", stored.UID))
	return renewed, nil
}

// SignUp creates an identity and signs this session into it.
func (c *Context) SignUp(ctx context.Context, email, password string) (*identity.User, error) {
	user, err := c.m.gateway.CreateAccount(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := c.authenticate(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (c *Context) SignIn(ctx context.Context, email, password string) (*identity.User, error) {
	user, err := c.m.gateway.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := c.authenticate(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SignOut ends the authenticated session and clears the cached profile.
// Calling it on an anonymous session is a no-op.
func (c *Context) SignOut(ctx context.Context) error {
	user := c.CurrentUser()
	if user == nil {
		if stored, ok, _ := c.loadAuth(ctx); ok {
			user = stored.user()
		}
	}
	if user == nil {
		c.setState(StateAnonymous, nil)
		return nil
	}

	if err := c.m.gateway.SignOut(ctx, user.UID); err != nil {
		c.logger.Warn("Identity gateway sign-out failed; session cleared locally", zap.Error(err))
	}
	if err := c.dropAuth(ctx, user.UID); err != nil {
		return err
	}
	c.setState(StateAnonymous, nil)
	c.m.hub.Publish(Event{SessionID: c.sid, State: StateAnonymous})
	return nil
}

// SaveProfile overwrites the profile document of uid, stamping both timestamps.
func (c *Context) SaveProfile(ctx context.Context, uid string, profile *identity.Profile) error {
	now := c.m.now().UTC()
	profile.CreatedAt = now
	profile.UpdatedAt = now
	if err := c.m.gateway.SetProfile(ctx, uid, profile); err != nil {
		return err
	}
	c.m.profiles.Set(uid, profile)
	return nil
}

// FetchProfile returns nil and no error when the user has no profile yet.
func (c *Context) FetchProfile(ctx context.Context, uid string) (*identity.Profile, error) {
	return c.m.loadProfile(ctx, uid)
}

// UpdateDisplayName is a no-op when nobody is signed in.
func (c *Context) UpdateDisplayName(ctx context.Context, name string) error {
	user := c.CurrentUser()
	if user == nil {
		return nil
	}
	if err := c.m.gateway.UpdateDisplayName(ctx, user.UID, name); err != nil {
		return err
	}
	user.DisplayName = name
	if err := c.saveAuth(ctx, fromUser(user)); err != nil {
		return err
	}
	c.setState(StateAuthenticated, user)
	return nil
}

// WaitForUser returns the current user, waiting up to grace for another
// request of this session to sign in. It returns nil when the grace period
// elapses or ctx ends first.
func (c *Context) WaitForUser(ctx context.Context, grace time.Duration) *identity.User {
	if u := c.CurrentUser(); u != nil {
		return u
	}

	events, unsubscribe := c.m.hub.Subscribe(c.sid)
	defer unsubscribe()

	// A sign-in may have landed between Resolve and Subscribe.
	if stored, ok, _ := c.loadAuth(ctx); ok {
		user := stored.user()
		c.setState(StateAuthenticated, user)
		return user
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	for {
		select {
		case ev := <-events:
			if ev.State == StateAuthenticated && ev.User != nil {
				c.setState(StateAuthenticated, ev.User)
				return c.CurrentUser()
			}
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// Begin marks a submission of step as pending for this session. A second
// submission before release is called is refused.
func (c *Context) Begin(step string) (func(), error) {
	release, ok := c.m.markPending(c.sid + ":" + step)
	if !ok {
		return nil, common.ErrSubmissionPending
	}
	return release, nil
}

// MarkCompleted records that this session finished the signup flow.
func (c *Context) MarkCompleted(ctx context.Context) error {
	raw, err := json.Marshal(flowMarker{State: flowComplete})
	if err != nil {
		return err
	}
	return c.m.store.Save(ctx, c.sid, keyFlowState, raw, c.m.ttl)
}

// Completed reports whether the session finished the signup flow and has not
// signed out since.
func (c *Context) Completed(ctx context.Context) bool {
	raw, err := c.m.store.Load(ctx, c.sid, keyFlowState)
	if err != nil {
		return false
	}
	var marker flowMarker
	if err := json.Unmarshal(raw, &marker); err != nil {
		return false
	}
	return marker.State == flowComplete
}

func (c *Context) ClearCompleted(ctx context.Context) error {
	return c.m.store.Delete(ctx, c.sid, keyFlowState)
}

func (c *Context) authenticate(ctx context.Context, user *identity.User) error {
	if err := c.saveAuth(ctx, fromUser(user)); err != nil {
		return err
	}
	c.setState(StateAuthenticated, user)
	c.m.hub.Publish(Event{SessionID: c.sid, State: StateAuthenticated, User: user})
	c.m.fetchProfileAsync(user.UID)
	return nil
}

func (c *Context) setState(state AuthState, user *identity.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	c.user = user
}

// loadAuth reports ok=false for a missing or unreadable record and an error
// only when the store itself failed.
func (c *Context) loadAuth(ctx context.Context) (storedAuth, bool, error) {
	raw, err := c.m.store.Load(ctx, c.sid, keyAuthState)
	if errors.Is(err, draft.ErrNotFound) {
		return storedAuth{}, false, nil
	}
	if err != nil {
		return storedAuth{}, false, err
	}
	var stored storedAuth
	if err := json.Unmarshal(raw, &stored); err != nil || stored.UID == "" {
		return storedAuth{}, false, nil
	}
	return stored, true, nil
}

func (c *Context) saveAuth(ctx context.Context, stored storedAuth) error {
	raw, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return c.m.store.Save(ctx, c.sid, keyAuthState, raw, c.m.ttl)
}

func (c *Context) dropAuth(ctx context.Context, uid string) error {
	c.m.profiles.Invalidate(uid)
	return c.m.store.Delete(ctx, c.sid, keyAuthState)
}

func isProfileNotFound(err error) bool {
	return errors.Is(err, identity.ErrProfileNotFound)
}
