package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewError(OpSignIn, WrongPassword, nil))
	assert.Equal(t, WrongPassword, KindOf(wrapped))
	assert.Equal(t, NetworkError, KindOf(context.DeadlineExceeded))
	assert.Equal(t, Unknown, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestKindMessage(t *testing.T) {
	assert.Equal(t, "An account with this email already exists", EmailInUse.Message(OpSignUp))
	assert.Equal(t, "Incorrect password", WrongPassword.Message(OpSignIn))
	assert.Equal(t, "Failed to create account. Please try again.", Unknown.Message(OpSignUp))
	assert.Equal(t, "Failed to log in. Please try again.", Unknown.Message(OpSignIn))
	assert.Equal(t, "Failed to save address. Please try again.", NetworkError.Message(OpSaveProfile))
}

func TestKindHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusConflict, EmailInUse.HTTPStatus())
	assert.Equal(t, http.StatusUnauthorized, WrongPassword.HTTPStatus())
	assert.Equal(t, http.StatusTooManyRequests, TooManyRequests.HTTPStatus())
	assert.Equal(t, http.StatusBadGateway, Unknown.HTTPStatus())
}

func TestClassifyToolkitError(t *testing.T) {
	tests := []struct {
		message string
		code    int
		want    Kind
	}{
		{"EMAIL_EXISTS", 400, EmailInUse},
		{"WEAK_PASSWORD : Password should be at least 6 characters", 400, WeakPassword},
		{"INVALID_EMAIL", 400, InvalidEmail},
		{"EMAIL_NOT_FOUND", 400, UserNotFound},
		{"INVALID_LOGIN_CREDENTIALS", 400, WrongPassword},
		{"USER_DISABLED", 400, UserDisabled},
		{"TOO_MANY_ATTEMPTS_TRY_LATER : Access disabled", 400, TooManyRequests},
		{"backend error", 503, NetworkError},
		{"SOMETHING_ELSE", 400, Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			err := &googleapi.Error{Code: tt.code, Message: tt.message}
			assert.Equal(t, tt.want, classifyToolkitError(err))
		})
	}
}
