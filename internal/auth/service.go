package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/go-auth-service/internal/email"
	"github.com/redmonkez12/go-auth-service/internal/logging"
	"github.com/redmonkez12/go-auth-service/internal/password"
	"github.com/redmonkez12/go-auth-service/internal/user"
)

const (
	msgLoginSuccess         = "Login successful"
	msgEmailVerified        = "Email verified successfully. You can now login."
	msgEmailAlreadyVerified = "Email already verified. You can login now."
	msgResetRequested       = "If an account exists with that email, a password reset link has been sent."
	msgPasswordReset        = "Password reset successfully. You can now login with your new password."
	msgUserDeleted          = "User deleted"
	msgAccessGranted        = "Access granted"
)

// TokenDurations configures how long each kind of token stays valid
type TokenDurations struct {
	Session      time.Duration
	Verification time.Duration
	Reset        time.Duration
}

// Result is the body of operations that only report an outcome
type Result struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

// LoginResult carries the session token
type LoginResult struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	Token      string `json:"token"`
}

// RegisterInput holds the fields of a new account
type RegisterInput struct {
	Name     string
	LastName string
	Email    string
	Password string
}

// AccessLogEntry is an access log record with the user's public fields
type AccessLogEntry struct {
	ID        int64      `json:"id"`
	UserID    uuid.UUID  `json:"userId"`
	User      *user.User `json:"user"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Service handles authentication business logic
type Service struct {
	users      UserStore
	resets     ResetTicketStore
	accessLogs AccessLogStore
	tokens     TokenService
	hasher     PasswordHasher
	mailer     EmailService
	cache      PrincipalCache
	durations  TokenDurations

	mailWG sync.WaitGroup
}

func NewService(
	users UserStore,
	resets ResetTicketStore,
	accessLogs AccessLogStore,
	tokens TokenService,
	hasher PasswordHasher,
	mailer EmailService,
	cache PrincipalCache,
	durations TokenDurations,
) *Service {
	if cache == nil {
		cache = NopPrincipalCache{}
	}
	return &Service{
		users:      users,
		resets:     resets,
		accessLogs: accessLogs,
		tokens:     tokens,
		hasher:     hasher,
		mailer:     mailer,
		cache:      cache,
		durations:  durations,
	}
}

// Register creates an unverified account and sends the confirmation email
func (s *Service) Register(ctx context.Context, in RegisterInput) (*user.User, error) {
	logger := logging.GetLoggerFromContext(ctx)

	newUser := user.New(in.Name, in.LastName, in.Email, "")
	if newUser.Name == "" || newUser.LastName == "" || newUser.Email == "" || in.Password == "" {
		return nil, ErrInvalidInput
	}

	passwordHash, err := s.hashPassword(ctx, in.Password)
	if err != nil {
		return nil, err
	}
	newUser.PasswordHash = passwordHash

	created, err := s.users.Insert(ctx, newUser)
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		logger.Error("failed to create user", "error", err)
		return nil, internalError("create user", err)
	}

	logger.Info("user registered", "user_id", created.ID)

	// The account exists at this point; mail problems are logged, never returned
	token, err := s.tokens.CreateToken(TokenPayload{UserID: created.ID.String()}, s.durations.Verification)
	if err != nil {
		logger.Error("failed to create verification token", "user_id", created.ID, "error", err)
	} else {
		recipient := email.Recipient{Email: created.Email, Name: created.Name, Token: token}
		s.dispatchEmail(ctx, "registration", func(ctx context.Context) error {
			return s.mailer.SendRegistrationEmail(ctx, recipient)
		})
	}

	return created.Public(), nil
}

// Login issues a session token. Unverified accounts are refused before the
// password is compared.
func (s *Service) Login(ctx context.Context, emailAddr, plaintext string) (*LoginResult, error) {
	logger := logging.GetLoggerFromContext(ctx)

	emailAddr = strings.TrimSpace(emailAddr)
	if emailAddr == "" || plaintext == "" {
		return nil, ErrInvalidCredentials
	}

	existingUser, err := s.users.GetByEmail(ctx, emailAddr, user.WithCredentials())
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		logger.Error("failed to get user for login", "error", err)
		return nil, internalError("get user", err)
	}

	if !existingUser.IsVerified() {
		return nil, ErrEmailNotVerified
	}

	if !s.hasher.Verify(plaintext, existingUser.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.CreateToken(TokenPayload{UserID: existingUser.ID.String()}, s.durations.Session)
	if err != nil {
		logger.Error("failed to create session token", "user_id", existingUser.ID, "error", err)
		return nil, internalError("create session token", err)
	}

	s.upgradeHash(ctx, existingUser, plaintext)

	return &LoginResult{Message: msgLoginSuccess, StatusCode: 200, Token: token}, nil
}

// VerifyEmail marks the token's user as verified. Repeating it is a no-op.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*Result, error) {
	logger := logging.GetLoggerFromContext(ctx)

	userID, err := s.userIDFromToken(token)
	if err != nil {
		return nil, err
	}

	changed, err := s.users.MarkEmailAsVerified(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		logger.Error("failed to verify email", "user_id", userID, "error", err)
		return nil, internalError("verify email", err)
	}

	if !changed {
		return &Result{Message: msgEmailAlreadyVerified, StatusCode: 200}, nil
	}

	s.evictPrincipal(ctx, userID)
	logger.Info("email verified", "user_id", userID)

	return &Result{Message: msgEmailVerified, StatusCode: 200}, nil
}

// RequestPasswordReset issues a reset ticket for a verified account.
// The result is the same whether or not a ticket was issued.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) *Result {
	logger := logging.GetLoggerFromContext(ctx)
	generic := &Result{Message: msgResetRequested, StatusCode: 200}

	emailAddr = strings.TrimSpace(emailAddr)
	if emailAddr == "" {
		return generic
	}

	existingUser, err := s.users.GetByEmail(ctx, emailAddr, user.WithVerified())
	if err != nil {
		// Don't reveal if user exists
		if !errors.Is(err, user.ErrNotFound) {
			logger.Warn("failed to get user for password reset", "error", err)
		}
		return generic
	}

	if !existingUser.IsVerified() {
		logger.Debug("password reset requested for unverified user", "user_id", existingUser.ID)
		return generic
	}

	ticket, err := s.resets.Create(ctx, existingUser.ID)
	if err != nil {
		logger.Warn("failed to create password reset ticket", "user_id", existingUser.ID, "error", err)
		return generic
	}

	token, err := s.tokens.CreateToken(TokenPayload{ResetID: ticket.ID}, s.durations.Reset)
	if err != nil {
		logger.Warn("failed to create password reset token", "ticket_id", ticket.ID, "error", err)
		return generic
	}

	recipient := email.Recipient{Email: existingUser.Email, Name: existingUser.Name, Token: token}
	s.dispatchEmail(ctx, "forgot_password", func(ctx context.Context) error {
		return s.mailer.SendForgotPasswordEmail(ctx, recipient)
	})

	return generic
}

// ResetPassword sets a new password using a reset token. Each token works once.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (*Result, error) {
	logger := logging.GetLoggerFromContext(ctx)

	if newPassword == "" {
		return nil, ErrInvalidInput
	}

	claims, err := s.tokens.VerifyToken(strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	if claims.ResetID == 0 {
		return nil, ErrInvalidToken
	}

	ticket, err := s.resets.GetByID(ctx, claims.ResetID)
	if err != nil {
		if errors.Is(err, ErrResetTicketNotFound) {
			return nil, ErrInvalidToken
		}
		logger.Error("failed to get password reset ticket", "ticket_id", claims.ResetID, "error", err)
		return nil, internalError("get reset ticket", err)
	}

	if ticket.Used {
		return nil, ErrTokenAlreadyUsed
	}
	if ticket.User == nil {
		return nil, ErrInvalidToken
	}

	passwordHash, err := s.hashPassword(ctx, newPassword)
	if err != nil {
		return nil, err
	}

	if err := s.resets.Consume(ctx, ticket.ID, ticket.UserID, passwordHash); err != nil {
		switch {
		case errors.Is(err, ErrResetTicketUsed):
			return nil, ErrTokenAlreadyUsed
		case errors.Is(err, user.ErrNotFound):
			return nil, ErrInvalidToken
		}
		logger.Error("failed to reset password", "ticket_id", ticket.ID, "error", err)
		return nil, internalError("reset password", err)
	}

	logger.Info("password reset", "user_id", ticket.UserID)

	return &Result{Message: msgPasswordReset, StatusCode: 200}, nil
}

// DeleteUser soft-deletes a user. Reset tickets and access logs are kept.
func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) (*Result, error) {
	logger := logging.GetLoggerFromContext(ctx)

	if err := s.users.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrNotFound
		}
		logger.Error("failed to delete user", "user_id", id, "error", err)
		return nil, internalError("delete user", err)
	}

	s.evictPrincipal(ctx, id)
	logger.Info("user deleted", "user_id", id)

	return &Result{Message: msgUserDeleted, StatusCode: 200}, nil
}

// AllowAccess records that an admin granted access to the user
func (s *Service) AllowAccess(ctx context.Context, id uuid.UUID) (*Result, error) {
	logger := logging.GetLoggerFromContext(ctx)

	if _, err := s.FindUser(ctx, id); err != nil {
		return nil, err
	}

	entry, err := s.accessLogs.Insert(ctx, id)
	if err != nil {
		logger.Error("failed to insert access log", "user_id", id, "error", err)
		return nil, internalError("insert access log", err)
	}

	logger.Info("access granted", "user_id", id, "access_log_id", entry.ID)

	return &Result{Message: msgAccessGranted, StatusCode: 200}, nil
}

// GetAccessLogs lists every access log entry in chronological order
func (s *Service) GetAccessLogs(ctx context.Context) ([]AccessLogEntry, error) {
	logs, err := s.accessLogs.List(ctx)
	if err != nil {
		logging.GetLoggerFromContext(ctx).Error("failed to list access logs", "error", err)
		return nil, internalError("list access logs", err)
	}

	entries := make([]AccessLogEntry, 0, len(logs))
	for _, l := range logs {
		entry := AccessLogEntry{
			ID:        l.ID,
			UserID:    l.UserID,
			CreatedAt: l.CreatedAt,
		}
		if l.User != nil {
			entry.User = user.MapDBUser(l.User, user.Default)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// FindUser returns a user with the default projection
func (s *Service) FindUser(ctx context.Context, id uuid.UUID) (*user.User, error) {
	u, err := s.users.GetByID(ctx, id, user.Default)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrNotFound
		}
		logging.GetLoggerFromContext(ctx).Error("failed to get user", "user_id", id, "error", err)
		return nil, internalError("get user", err)
	}
	return u, nil
}

// CreateAdmin creates a verified ADMIN account without sending any email
func (s *Service) CreateAdmin(ctx context.Context, in RegisterInput) (*user.User, error) {
	admin := user.New(in.Name, in.LastName, in.Email, "")
	if admin.Name == "" || admin.LastName == "" || admin.Email == "" || in.Password == "" {
		return nil, ErrInvalidInput
	}

	passwordHash, err := s.hashPassword(ctx, in.Password)
	if err != nil {
		return nil, err
	}

	verified := true
	admin.PasswordHash = passwordHash
	admin.Role = user.RoleAdmin
	admin.Verified = &verified

	created, err := s.users.Insert(ctx, admin)
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, internalError("create admin", err)
	}

	return created.Public(), nil
}

// SetRole changes the role of the account registered with emailAddr
func (s *Service) SetRole(ctx context.Context, emailAddr string, role user.Role) (*user.User, error) {
	if !role.Valid() {
		return nil, ErrInvalidInput
	}

	u, err := s.users.GetByEmail(ctx, strings.TrimSpace(emailAddr), user.Default)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, internalError("get user", err)
	}

	if err := s.users.UpdateRole(ctx, u.ID, role); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, internalError("update role", err)
	}

	s.evictPrincipal(ctx, u.ID)
	u.Role = role

	return u, nil
}

// Principal resolves the guard's view of a user, consulting the cache first
func (s *Service) Principal(ctx context.Context, id uuid.UUID) (*Principal, error) {
	logger := logging.GetLoggerFromContext(ctx)

	p, err := s.cache.Get(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrPrincipalNotCached) {
		logger.Warn("principal cache lookup failed", "user_id", id, "error", err)
	}

	// read before the store so an eviction racing the load is noticed by Set
	version, versionErr := s.cache.Version(ctx, id)
	if versionErr != nil {
		logger.Warn("principal cache version lookup failed", "user_id", id, "error", versionErr)
	}

	u, err := s.users.GetByID(ctx, id, user.WithVerified())
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrNotFound
		}
		logger.Error("failed to load principal", "user_id", id, "error", err)
		return nil, internalError("load principal", err)
	}

	p = &Principal{ID: u.ID, Name: u.Name, Role: u.Role, Verified: u.IsVerified()}
	if versionErr == nil {
		if err := s.cache.Set(ctx, p, version); err != nil {
			logger.Warn("failed to cache principal", "user_id", id, "error", err)
		}
	}

	return p, nil
}

// ParseSessionToken verifies a session token and returns the user ID it names
func (s *Service) ParseSessionToken(token string) (uuid.UUID, error) {
	return s.userIDFromToken(token)
}

// Wait blocks until every queued email has been handed to the mailer
func (s *Service) Wait() {
	s.mailWG.Wait()
}

func (s *Service) userIDFromToken(token string) (uuid.UUID, error) {
	claims, err := s.tokens.VerifyToken(strings.TrimSpace(token))
	if err != nil {
		return uuid.Nil, err
	}
	if claims.UserID == "" {
		return uuid.Nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: user id is not a uuid", ErrInvalidToken)
	}

	return userID, nil
}

func (s *Service) hashPassword(ctx context.Context, plaintext string) (string, error) {
	passwordHash, err := s.hasher.Hash(plaintext)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		logging.GetLoggerFromContext(ctx).Error("failed to hash password", "error", err)
		return "", internalError("hash password", err)
	}
	return passwordHash, nil
}

// upgradeHash re-hashes a password stored with an outdated algorithm or cost
func (s *Service) upgradeHash(ctx context.Context, u *user.User, plaintext string) {
	rehasher, ok := s.hasher.(interface{ NeedsRehash(string) bool })
	if !ok || !rehasher.NeedsRehash(u.PasswordHash) {
		return
	}

	logger := logging.GetLoggerFromContext(ctx)

	passwordHash, err := s.hasher.Hash(plaintext)
	if err != nil {
		logger.Warn("failed to rehash password", "user_id", u.ID, "error", err)
		return
	}
	if err := s.users.UpdatePassword(ctx, u.ID, passwordHash); err != nil {
		logger.Warn("failed to store rehashed password", "user_id", u.ID, "error", err)
		return
	}

	logger.Info("password hash upgraded", "user_id", u.ID)
}

func (s *Service) evictPrincipal(ctx context.Context, id uuid.UUID) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		logging.GetLoggerFromContext(ctx).Warn("failed to invalidate principal cache", "user_id", id, "error", err)
	}
}

// dispatchEmail sends in the background. The request's logger and values
// carry over, its cancellation does not.
func (s *Service) dispatchEmail(ctx context.Context, kind string, send func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)

	s.mailWG.Add(1)
	go func() {
		defer s.mailWG.Done()
		if err := send(ctx); err != nil {
			logging.GetLoggerFromContext(ctx).Warn("failed to send email", "kind", kind, "error", err)
		}
	}()
}
