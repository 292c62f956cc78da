// Package identity is the boundary to the hosted authentication and profile-document service.
package identity

import (
	"context"
	"errors"
	"time"
)

// ErrProfileNotFound signals that no profile document exists for the user yet.
// It is a normal outcome for a fresh account, not a failure.
var ErrProfileNotFound = errors.New("identity: profile not found")

// ErrTokenExpired is wrapped by VerifySession when the ID token is well formed
// but past its expiry. The session can be renewed with RefreshSession.
var ErrTokenExpired = errors.New("identity: ID token expired")

// User is the identity handle of an authenticated account.
type User struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName,omitempty"`
	IDToken      string `json:"-"`
	RefreshToken string `json:"-"`
}

// Address is the postal address captured by the last signup step.
type Address struct {
	StreetAddress string  `json:"streetAddress" firestore:"streetAddress"`
	Apartment     *string `json:"apartment" firestore:"apartment"`
	City          string  `json:"city" firestore:"city"`
	State         string  `json:"state" firestore:"state"`
	ZipCode       string  `json:"zipCode" firestore:"zipCode"`
}

// Profile is the persisted user document, written once when signup completes.
type Profile struct {
	Email                 string    `json:"email" firestore:"email"`
	FullName              string    `json:"fullName" firestore:"fullName"`
	Handle                string    `json:"handle" firestore:"handle"`
	Gender                string    `json:"gender" firestore:"gender"`
	PhoneNumber           string    `json:"phoneNumber" firestore:"phoneNumber"`
	Birthday              *string   `json:"birthday" firestore:"birthday"`
	Address               Address   `json:"address" firestore:"address"`
	RegistrationCompleted bool      `json:"registrationCompleted" firestore:"registrationCompleted"`
	CreatedAt             time.Time `json:"createdAt" firestore:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt" firestore:"updatedAt"`
}

// Gateway is the hosted identity + profile-document service.
type Gateway interface {
	// CreateAccount registers a new email/password identity and signs it in.
	CreateAccount(ctx context.Context, email, password string) (*User, error)
	// SignIn authenticates an existing identity.
	SignIn(ctx context.Context, email, password string) (*User, error)
	// VerifySession validates a previously issued ID token and returns its identity.
	VerifySession(ctx context.Context, idToken string) (*User, error)
	// RefreshSession trades a refresh token for a new ID token (and possibly a
	// rotated refresh token).
	RefreshSession(ctx context.Context, refreshToken string) (*User, error)
	// SignOut revokes the identity's outstanding sessions.
	SignOut(ctx context.Context, uid string) error
	// UpdateDisplayName sets the identity's display name.
	UpdateDisplayName(ctx context.Context, uid, displayName string) error
	// SetProfile replaces the user's profile document. It never merges.
	SetProfile(ctx context.Context, uid string, profile *Profile) error
	// GetProfile returns ErrProfileNotFound when the user has no document.
	GetProfile(ctx context.Context, uid string) (*Profile, error)
}
