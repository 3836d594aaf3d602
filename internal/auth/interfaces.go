package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/go-auth-service/internal/database"
	"github.com/redmonkez12/go-auth-service/internal/email"
	"github.com/redmonkez12/go-auth-service/internal/user"
)

// TokenPayload is what a token carries: a user ID for session and
// verification tokens, or a reset ticket ID for password reset tokens.
type TokenPayload struct {
	UserID  string
	ResetID int64
}

// TokenClaims represents the verified contents of a token
type TokenClaims struct {
	UserID    string    `json:"userId,omitempty"`
	ResetID   int64     `json:"resetId,omitempty"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// TokenService defines the interface for token creation and validation.
// Implementations include PasetoService (PASETO v4.local) and JWTService (HS256).
type TokenService interface {
	CreateToken(payload TokenPayload, duration time.Duration) (string, error)
	VerifyToken(tokenStr string) (*TokenClaims, error)
}

// UserStore is the subset of user.Repository the service needs
type UserStore interface {
	Insert(ctx context.Context, u *user.User) (*user.User, error)
	GetByEmail(ctx context.Context, email string, p user.Projection) (*user.User, error)
	GetByID(ctx context.Context, id uuid.UUID, p user.Projection) (*user.User, error)
	MarkEmailAsVerified(ctx context.Context, id uuid.UUID) (bool, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateRole(ctx context.Context, id uuid.UUID, role user.Role) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// ResetTicketStore persists single-use password reset tickets
type ResetTicketStore interface {
	Create(ctx context.Context, userID uuid.UUID) (*database.PasswordReset, error)
	GetByID(ctx context.Context, id int64) (*database.PasswordReset, error)
	Consume(ctx context.Context, id int64, userID uuid.UUID, passwordHash string) error
}

// AccessLogStore is the append-only audit trail of granted access
type AccessLogStore interface {
	Insert(ctx context.Context, userID uuid.UUID) (*database.AccessLog, error)
	List(ctx context.Context) ([]database.AccessLog, error)
}

// PrincipalCache caches the guard's view of a user. Set only stores p when no
// Invalidate happened since Version returned version.
type PrincipalCache interface {
	Get(ctx context.Context, userID uuid.UUID) (*Principal, error)
	Version(ctx context.Context, userID uuid.UUID) (int64, error)
	Set(ctx context.Context, p *Principal, version int64) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// EmailService defines the interface for email operations
type EmailService interface {
	SendRegistrationEmail(ctx context.Context, to email.Recipient) error
	SendForgotPasswordEmail(ctx context.Context, to email.Recipient) error
}

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encodedHash string) bool
}
