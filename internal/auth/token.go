package auth

import (
	"fmt"

	"github.com/redmonkez12/go-auth-service/internal/config"
)

// NewTokenService returns the implementation selected by cfg.TokenStrategy
func NewTokenService(cfg config.AuthConfig) (TokenService, error) {
	var (
		tokens TokenService
		err    error
	)

	switch cfg.TokenStrategy {
	case config.TokenStrategyPaseto:
		tokens, err = NewPasetoService(cfg.PasetoKey)
	case config.TokenStrategyJWT:
		tokens, err = NewJWTService(cfg.JWTSecret)
	default:
		return nil, fmt.Errorf("unsupported token strategy %q", cfg.TokenStrategy)
	}
	if err != nil {
		return nil, err
	}

	return tokens, nil
}

// Durations extracts the per-use token lifetimes from cfg
func Durations(cfg config.AuthConfig) TokenDurations {
	return TokenDurations{
		Session:      cfg.SessionTokenDuration,
		Verification: cfg.VerificationTokenDuration,
		Reset:        cfg.ResetTokenDuration,
	}
}
