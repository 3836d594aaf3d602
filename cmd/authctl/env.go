package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/go-auth-service/internal/auth"
	"github.com/redmonkez12/go-auth-service/internal/config"
	"github.com/redmonkez12/go-auth-service/internal/database"
	"github.com/redmonkez12/go-auth-service/internal/email"
	"github.com/redmonkez12/go-auth-service/internal/logging"
	"github.com/redmonkez12/go-auth-service/internal/password"
	"github.com/redmonkez12/go-auth-service/internal/user"
)

// cliEnv is the service graph the commands run against.
// Role changes go through the same principal cache as the API so they take effect immediately.
type cliEnv struct {
	db      *bun.DB
	redis   *redis.Client
	service *auth.Service
}

func openEnv(ctx context.Context) (*cliEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logging.SetDefault(logger)

	db, err := database.Open(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	env := &cliEnv{db: db}

	var cache auth.PrincipalCache
	if cfg.Redis.Enabled() {
		env.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := env.redis.Ping(ctx).Err(); err != nil {
			env.Close()
			return nil, fmt.Errorf("failed to ping Redis: %w", err)
		}
		cache = auth.NewRedisPrincipalCache(env.redis, cfg.Redis.CacheTTL)
	}

	tokens, err := auth.NewTokenService(cfg.Auth)
	if err != nil {
		env.Close()
		return nil, err
	}

	// commands never send mail
	mailer := email.NewService(email.NewLogDialer(logger), cfg.Email.From, cfg.Email.PublicURL, cfg.Email.FrontendURL)

	env.service = auth.NewService(
		user.NewRepository(db),
		auth.NewPasswordResetRepository(db),
		auth.NewAccessLogRepository(db),
		tokens,
		password.NewHasher(password.DefaultParams),
		mailer,
		cache,
		auth.Durations(cfg.Auth),
	)

	return env, nil
}

func (e *cliEnv) Close() {
	if e.service != nil {
		e.service.Wait()
	}
	if e.redis != nil {
		_ = e.redis.Close()
	}
	_ = e.db.Close()
}
