package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "onboarding_backend"

// cookieClaims carries the session id in the subject.
type cookieClaims struct {
	jwt.RegisteredClaims
}

func signSessionID(secret []byte, sid string, ttl time.Duration, now time.Time) (string, error) {
	claims := &cookieClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sid,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("could not sign session cookie: %w", err)
	}
	return signed, nil
}

func parseSessionID(secret []byte, raw string) (string, error) {
	claims := &cookieClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return "", fmt.Errorf("invalid session cookie: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("invalid session cookie claims")
	}
	return claims.Subject, nil
}
