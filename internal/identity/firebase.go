package identity

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"onboarding_backend/internal/config"
)

// FirebaseGateway talks to Firebase Auth and stores profiles in Firestore.
// Password sign-up and sign-in go through the Identity Toolkit REST API with the
// project's web API key, ID tokens are renewed through the securetoken endpoint,
// and everything else uses the Admin SDK.
type FirebaseGateway struct {
	authClient  *auth.Client
	toolkit     *identitytoolkit.RelyingpartyService
	secureToken *secureTokenClient
	profiles    *firestore.CollectionRef
	closeStore  func() error
	logger      *zap.Logger
}

// NewFirebaseGateway initializes the Firebase Admin SDK, the Identity Toolkit client
// and the Firestore profile collection.
func NewFirebaseGateway(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*FirebaseGateway, error) {
	if cfg.FirebaseServiceAccountKeyPath == "" {
		logger.Error("Firebase service account key path is not configured.")
		return nil, fmt.Errorf("firebase service account key path is required")
	}

	cleanPath := filepath.Clean(cfg.FirebaseServiceAccountKeyPath)
	opt := option.WithCredentialsFile(cleanPath)

	var conf *firebase.Config
	if cfg.FirebaseProjectID != "" {
		conf = &firebase.Config{ProjectID: cfg.FirebaseProjectID}
	}
	app, err := firebase.NewApp(ctx, conf, opt)
	if err != nil {
		logger.Error("Failed to initialize Firebase Admin SDK app", zap.Error(err), zap.String("keyPath", cleanPath))
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		logger.Error("Failed to get Firebase Auth client", zap.Error(err))
		return nil, fmt.Errorf("error getting Firebase Auth client: %w", err)
	}

	store, err := app.Firestore(ctx)
	if err != nil {
		logger.Error("Failed to get Firestore client", zap.Error(err))
		return nil, fmt.Errorf("error getting Firestore client: %w", err)
	}

	toolkit, err := identitytoolkit.NewService(ctx, option.WithAPIKey(cfg.FirebaseWebAPIKey))
	if err != nil {
		_ = store.Close()
		logger.Error("Failed to create Identity Toolkit client", zap.Error(err))
		return nil, fmt.Errorf("error creating identity toolkit client: %w", err)
	}

	logger.Info("Firebase identity gateway initialized",
		zap.String("profilesCollection", cfg.FirebaseProfilesCollection))
	return &FirebaseGateway{
		authClient:  authClient,
		toolkit:     toolkit.Relyingparty,
		secureToken: newSecureTokenClient(secureTokenURL, cfg.FirebaseWebAPIKey, nil),
		profiles:    store.Collection(cfg.FirebaseProfilesCollection),
		closeStore:  store.Close,
		logger:      logger,
	}, nil
}

// Close releases the Firestore connection.
func (g *FirebaseGateway) Close() error {
	return g.closeStore()
}

// CreateAccount registers the identity, then signs in with the same
// credentials so the session holds a secure ID and refresh token pair.
func (g *FirebaseGateway) CreateAccount(ctx context.Context, email, password string) (*User, error) {
	resp, err := g.toolkit.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:    email,
		Password: password,
	}).Context(ctx).Do()
	if err != nil {
		return nil, NewError(OpSignUp, classifyToolkitError(err), err)
	}
	g.logger.Debug("Firebase account created", zap.String("uid", resp.LocalId))
	return g.signInWithPassword(ctx, OpSignUp, email, password)
}

func (g *FirebaseGateway) SignIn(ctx context.Context, email, password string) (*User, error) {
	return g.signInWithPassword(ctx, OpSignIn, email, password)
}

func (g *FirebaseGateway) signInWithPassword(ctx context.Context, op Op, email, password string) (*User, error) {
	resp, err := g.toolkit.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, NewError(op, classifyToolkitError(err), err)
	}
	return &User{
		UID:          resp.LocalId,
		Email:        resp.Email,
		DisplayName:  resp.DisplayName,
		IDToken:      resp.IdToken,
		RefreshToken: resp.RefreshToken,
	}, nil
}

func (g *FirebaseGateway) VerifySession(ctx context.Context, idToken string) (*User, error) {
	if idToken == "" {
		return nil, NewError(OpVerify, Unknown, errors.New("ID token must not be empty"))
	}
	token, err := g.authClient.VerifyIDToken(ctx, idToken)
	if err != nil {
		if auth.IsIDTokenExpired(err) {
			return nil, NewError(OpVerify, Unknown, fmt.Errorf("%w: %v", ErrTokenExpired, err))
		}
		g.logger.Debug("Firebase ID token verification failed", zap.Error(err))
		return nil, NewError(OpVerify, classifyAdminError(err), err)
	}

	user := &User{UID: token.UID, IDToken: idToken}
	if email, ok := token.Claims["email"].(string); ok {
		user.Email = email
	}
	if name, ok := token.Claims["name"].(string); ok {
		user.DisplayName = name
	}
	return user, nil
}

func (g *FirebaseGateway) RefreshSession(ctx context.Context, refreshToken string) (*User, error) {
	user, err := g.secureToken.refresh(ctx, refreshToken)
	if err != nil {
		g.logger.Debug("Firebase token refresh failed", zap.Error(err))
		return nil, err
	}
	return user, nil
}

func (g *FirebaseGateway) SignOut(ctx context.Context, uid string) error {
	if err := g.authClient.RevokeRefreshTokens(ctx, uid); err != nil {
		g.logger.Error("Failed to revoke refresh tokens", zap.Error(err), zap.String("uid", uid))
		return NewError(OpSignOut, classifyAdminError(err), err)
	}
	return nil
}

func (g *FirebaseGateway) UpdateDisplayName(ctx context.Context, uid, displayName string) error {
	params := (&auth.UserToUpdate{}).DisplayName(displayName)
	if _, err := g.authClient.UpdateUser(ctx, uid, params); err != nil {
		return NewError(OpDisplayName, classifyAdminError(err), err)
	}
	return nil
}

func (g *FirebaseGateway) SetProfile(ctx context.Context, uid string, profile *Profile) error {
	if _, err := g.profiles.Doc(uid).Set(ctx, profile); err != nil {
		return NewError(OpSaveProfile, classifyGRPCError(err), err)
	}
	return nil
}

func (g *FirebaseGateway) GetProfile(ctx context.Context, uid string) (*Profile, error) {
	snap, err := g.profiles.Doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrProfileNotFound
		}
		return nil, NewError(OpFetchProfile, classifyGRPCError(err), err)
	}
	if !snap.Exists() {
		return nil, ErrProfileNotFound
	}

	var profile Profile
	if err := snap.DataTo(&profile); err != nil {
		return nil, NewError(OpFetchProfile, Unknown, err)
	}
	return &profile, nil
}

// classifyToolkitError maps Identity Toolkit error messages such as
// "EMAIL_EXISTS" or "WEAK_PASSWORD : Password should be at least 6 characters".
func classifyToolkitError(err error) Kind {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		if isNetworkError(err) {
			return NetworkError
		}
		return Unknown
	}

	code := apiErr.Message
	if i := strings.IndexAny(code, " :"); i > 0 {
		code = code[:i]
	}
	switch code {
	case "EMAIL_EXISTS":
		return EmailInUse
	case "WEAK_PASSWORD":
		return WeakPassword
	case "INVALID_EMAIL", "MISSING_EMAIL":
		return InvalidEmail
	case "EMAIL_NOT_FOUND":
		return UserNotFound
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS":
		return WrongPassword
	case "USER_DISABLED":
		return UserDisabled
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return TooManyRequests
	}
	if apiErr.Code >= 500 {
		return NetworkError
	}
	return Unknown
}

func classifyAdminError(err error) Kind {
	switch {
	case auth.IsUserNotFound(err):
		return UserNotFound
	case auth.IsUserDisabled(err):
		return UserDisabled
	case auth.IsEmailAlreadyExists(err):
		return EmailInUse
	case isNetworkError(err):
		return NetworkError
	}
	return Unknown
}

func classifyGRPCError(err error) Kind {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return NetworkError
	case codes.ResourceExhausted:
		return TooManyRequests
	}
	if isNetworkError(err) {
		return NetworkError
	}
	return Unknown
}
