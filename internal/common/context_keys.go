// File: internal/common/context_keys.go
package common

const (
	// RequestIDHeader is the header name for request ID
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey is the gin context key for the request ID
	RequestIDKey = "requestID"
	// SessionKey is the gin context key for the resolved *session.Context
	SessionKey = "session"
)
