package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	_ "github.com/redmonkez12/go-auth-service/docs" // Swagger docs
	"github.com/redmonkez12/go-auth-service/internal/auth"
	"github.com/redmonkez12/go-auth-service/internal/config"
	"github.com/redmonkez12/go-auth-service/internal/database"
	"github.com/redmonkez12/go-auth-service/internal/email"
	httpServer "github.com/redmonkez12/go-auth-service/internal/http"
	"github.com/redmonkez12/go-auth-service/internal/logging"
	"github.com/redmonkez12/go-auth-service/internal/password"
	"github.com/redmonkez12/go-auth-service/internal/user"
)

// @title           Go Auth Service
// @version         1.0
// @description     Registration, email verification, login and password reset with role-gated admin endpoints.

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logging.SetDefault(logger)
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"token_strategy", cfg.Auth.TokenStrategy,
	)

	db, err := database.Open(cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(context.Background(), db.DB); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	var cache auth.PrincipalCache
	if cfg.Redis.Enabled() {
		redisClient, err := initRedis(cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		defer redisClient.Close()

		cache = auth.NewRedisPrincipalCache(redisClient, cfg.Redis.CacheTTL)
		logger.Info("principal cache enabled", "addr", cfg.Redis.Address(), "ttl", cfg.Redis.CacheTTL)
	}

	tokens, err := auth.NewTokenService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	var dialer email.Dialer
	if cfg.Email.Enabled() {
		dialer = email.NewSMTPDialer(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPUser, cfg.Email.SMTPPassword)
	} else {
		logger.Warn("SMTP_HOST not set, emails will only be logged")
		dialer = email.NewLogDialer(logger)
	}
	emailService := email.NewService(dialer, cfg.Email.From, cfg.Email.PublicURL, cfg.Email.FrontendURL)

	authService := auth.NewService(
		user.NewRepository(db),
		auth.NewPasswordResetRepository(db),
		auth.NewAccessLogRepository(db),
		tokens,
		password.NewHasher(password.DefaultParams),
		emailService,
		cache,
		auth.Durations(cfg.Auth),
	)

	authHandler := auth.NewHandler(authService)
	guard := auth.NewMiddleware(authService)

	router := httpServer.NewRouter(cfg, authHandler, guard, logger)

	server := httpServer.NewServer(
		":"+cfg.Server.Port,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		// let queued emails go out before the process exits
		authService.Wait()
	}

	return nil
}

// initRedis initializes the Redis connection and returns a Redis client
func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
