package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"onboarding_backend/internal/platform/crypto"
)

const (
	memoryMinPasswordLength = 6
	memoryMaxFailedAttempts = 5
	memoryTokenLength       = 48
)

type memoryAccount struct {
	uid          string
	email        string
	displayName  string
	passwordHash []byte
	disabled     bool
	failures     int
}

type memoryToken struct {
	uid     string
	expires time.Time
}

// MemoryGateway is an in-process Gateway for local development and tests.
// Accounts, sessions and profiles live only as long as the process.
type MemoryGateway struct {
	mu         sync.RWMutex
	byEmail    map[string]*memoryAccount
	byUID      map[string]*memoryAccount
	tokens     map[string]memoryToken
	refresh    map[string]string
	profiles   map[string]Profile
	idTokenTTL time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

func NewMemoryGateway(logger *zap.Logger) *MemoryGateway {
	return &MemoryGateway{
		byEmail:  make(map[string]*memoryAccount),
		byUID:    make(map[string]*memoryAccount),
		tokens:   make(map[string]memoryToken),
		refresh:  make(map[string]string),
		profiles: make(map[string]Profile),
		now:      time.Now,
		logger:   logger,
	}
}

// SetIDTokenTTL makes ID tokens issued from now on expire after ttl. Zero
// means they never expire.
func (g *MemoryGateway) SetIDTokenTTL(ttl time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.idTokenTTL = ttl
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (g *MemoryGateway) CreateAccount(ctx context.Context, email, password string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewError(OpSignUp, NetworkError, err)
	}
	key := normalizeEmail(email)
	if !strings.Contains(key, "@") {
		return nil, NewError(OpSignUp, InvalidEmail, nil)
	}
	if len(password) < memoryMinPasswordLength {
		return nil, NewError(OpSignUp, WeakPassword, nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, NewError(OpSignUp, Unknown, fmt.Errorf("hash password: %w", err))
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.byEmail[key]; exists {
		return nil, NewError(OpSignUp, EmailInUse, nil)
	}
	acct := &memoryAccount{uid: uuid.NewString(), email: key, passwordHash: hash}
	g.byEmail[key] = acct
	g.byUID[acct.uid] = acct

	g.logger.Debug("Memory identity account created", zap.String("uid", acct.uid))
	return g.issueLocked(acct)
}

func (g *MemoryGateway) SignIn(ctx context.Context, email, password string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewError(OpSignIn, NetworkError, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	acct, ok := g.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, NewError(OpSignIn, UserNotFound, nil)
	}
	if acct.disabled {
		return nil, NewError(OpSignIn, UserDisabled, nil)
	}
	if acct.failures >= memoryMaxFailedAttempts {
		return nil, NewError(OpSignIn, TooManyRequests, nil)
	}
	if err := bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)); err != nil {
		acct.failures++
		return nil, NewError(OpSignIn, WrongPassword, nil)
	}
	acct.failures = 0
	return g.issueLocked(acct)
}

func (g *MemoryGateway) issueLocked(acct *memoryAccount) (*User, error) {
	idToken, err := crypto.GenerateSecureRandomString(memoryTokenLength)
	if err != nil {
		return nil, NewError(OpSignIn, Unknown, err)
	}
	refresh, err := crypto.GenerateSecureRandomString(memoryTokenLength)
	if err != nil {
		return nil, NewError(OpSignIn, Unknown, err)
	}
	tok := memoryToken{uid: acct.uid}
	if g.idTokenTTL > 0 {
		tok.expires = g.now().Add(g.idTokenTTL)
	}
	g.tokens[idToken] = tok
	g.refresh[refresh] = acct.uid
	return &User{
		UID:          acct.uid,
		Email:        acct.email,
		DisplayName:  acct.displayName,
		IDToken:      idToken,
		RefreshToken: refresh,
	}, nil
}

func (g *MemoryGateway) VerifySession(ctx context.Context, idToken string) (*User, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tok, ok := g.tokens[idToken]
	if !ok {
		return nil, NewError(OpVerify, Unknown, errors.New("unknown or revoked token"))
	}
	if !tok.expires.IsZero() && !g.now().Before(tok.expires) {
		return nil, NewError(OpVerify, Unknown, ErrTokenExpired)
	}
	acct := g.byUID[tok.uid]
	if acct.disabled {
		return nil, NewError(OpVerify, UserDisabled, nil)
	}
	return &User{UID: acct.uid, Email: acct.email, DisplayName: acct.displayName, IDToken: idToken}, nil
}

// RefreshSession rotates the refresh token: the old one stops working.
func (g *MemoryGateway) RefreshSession(ctx context.Context, refreshToken string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewError(OpRefresh, NetworkError, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	uid, ok := g.refresh[refreshToken]
	if !ok {
		return nil, NewError(OpRefresh, Unknown, errors.New("unknown or revoked refresh token"))
	}
	acct := g.byUID[uid]
	if acct.disabled {
		return nil, NewError(OpRefresh, UserDisabled, nil)
	}
	delete(g.refresh, refreshToken)
	return g.issueLocked(acct)
}

func (g *MemoryGateway) SignOut(ctx context.Context, uid string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for token, tok := range g.tokens {
		if tok.uid == uid {
			delete(g.tokens, token)
		}
	}
	for token, owner := range g.refresh {
		if owner == uid {
			delete(g.refresh, token)
		}
	}
	return nil
}

func (g *MemoryGateway) UpdateDisplayName(ctx context.Context, uid, displayName string) error {
	if err := ctx.Err(); err != nil {
		return NewError(OpDisplayName, NetworkError, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	acct, ok := g.byUID[uid]
	if !ok {
		return NewError(OpDisplayName, UserNotFound, nil)
	}
	acct.displayName = displayName
	return nil
}

func (g *MemoryGateway) SetProfile(ctx context.Context, uid string, profile *Profile) error {
	if err := ctx.Err(); err != nil {
		return NewError(OpSaveProfile, NetworkError, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.profiles[uid] = *profile
	return nil
}

func (g *MemoryGateway) GetProfile(ctx context.Context, uid string) (*Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewError(OpFetchProfile, NetworkError, err)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	profile, ok := g.profiles[uid]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &profile, nil
}

// Disable marks an account as disabled; subsequent sign-ins fail with UserDisabled.
func (g *MemoryGateway) Disable(email string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	acct, ok := g.byEmail[normalizeEmail(email)]
	if ok {
		acct.disabled = true
	}
	return ok
}
