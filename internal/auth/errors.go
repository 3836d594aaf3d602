package auth

import (
	"errors"
	"fmt"

	"github.com/redmonkez12/go-auth-service/internal/user"
)

var (
	ErrDuplicateEmail     = user.ErrDuplicateEmail
	ErrNotFound           = user.ErrNotFound
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotVerified   = errors.New("email not verified, please check your inbox")
	ErrTokenAlreadyUsed   = errors.New("token has already been used")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInternal           = errors.New("internal error")
)

// Token verification failures. Each one also matches ErrInvalidToken.
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = fmt.Errorf("%w: token has expired", ErrInvalidToken)
	ErrInvalidSignature = fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	ErrMalformedToken   = fmt.Errorf("%w: malformed token", ErrInvalidToken)
)

// Reset ticket store errors
var (
	ErrResetTicketNotFound = errors.New("password reset ticket not found")
	ErrResetTicketUsed     = errors.New("password reset ticket already used")
)

// internalError keeps the cause for logs while matching ErrInternal
func internalError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}
