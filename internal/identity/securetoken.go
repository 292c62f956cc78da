package identity

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

const secureTokenURL = "https://securetoken.googleapis.com/v1/token"

// secureTokenClient exchanges Firebase refresh tokens for fresh ID tokens.
type secureTokenClient struct {
	config     *oauth2.Config
	httpClient *http.Client
}

func newSecureTokenClient(endpoint, apiKey string, httpClient *http.Client) *secureTokenClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &secureTokenClient{
		config: &oauth2.Config{
			Endpoint: oauth2.Endpoint{
				TokenURL:  endpoint + "?key=" + url.QueryEscape(apiKey),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}
}

func (s *secureTokenClient) refresh(ctx context.Context, refreshToken string) (*User, error) {
	if refreshToken == "" {
		return nil, NewError(OpRefresh, Unknown, errors.New("refresh token must not be empty"))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	token, err := s.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, NewError(OpRefresh, classifyRefreshError(err), err)
	}

	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return nil, NewError(OpRefresh, Unknown, errors.New("token response carried no id_token"))
	}
	uid, _ := token.Extra("user_id").(string)
	return &User{UID: uid, IDToken: idToken, RefreshToken: token.RefreshToken}, nil
}

// classifyRefreshError maps securetoken failures such as
// {"error":{"message":"USER_DISABLED"}}.
func classifyRefreshError(err error) Kind {
	var rErr *oauth2.RetrieveError
	if !errors.As(err, &rErr) {
		if isNetworkError(err) {
			return NetworkError
		}
		return Unknown
	}
	if rErr.Response != nil && rErr.Response.StatusCode >= 500 {
		return NetworkError
	}
	body := string(rErr.Body)
	switch {
	case strings.Contains(body, "USER_DISABLED"):
		return UserDisabled
	case strings.Contains(body, "USER_NOT_FOUND"):
		return UserNotFound
	case strings.Contains(body, "TOO_MANY_ATTEMPTS_TRY_LATER"):
		return TooManyRequests
	}
	return Unknown
}
