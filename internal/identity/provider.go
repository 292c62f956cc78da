package identity

import (
	"context"

	"go.uber.org/zap"

	"onboarding_backend/internal/config"
)

// NewGateway builds the gateway selected by IDENTITY_BACKEND. The returned cleanup
// closes any connection the backend holds.
func NewGateway(cfg *config.Config, logger *zap.Logger) (Gateway, func(), error) {
	if cfg.IdentityBackend == config.IdentityBackendFirebase {
		gw, err := NewFirebaseGateway(context.Background(), cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := gw.Close(); err != nil {
				logger.Warn("Failed to close Firestore client", zap.Error(err))
			}
		}
		return gw, cleanup, nil
	}

	logger.Warn("Using in-memory identity gateway; accounts are lost on restart")
	return NewMemoryGateway(logger), func() {}, nil
}
