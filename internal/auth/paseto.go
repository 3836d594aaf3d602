package auth

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"aidanwoods.dev/go-paseto"
)

const pasetoV4LocalHeader = "v4.local."

// PasetoService handles PASETO token creation and validation
// Uses v4.local (symmetric encryption with XChaCha20-Poly1305)
type PasetoService struct {
	symmetricKey paseto.V4SymmetricKey
	now          func() time.Time
}

func NewPasetoService(symmetricKey []byte) (*PasetoService, error) {
	if len(symmetricKey) != 32 {
		return nil, fmt.Errorf("symmetric key must be exactly 32 bytes, got %d", len(symmetricKey))
	}

	key, err := paseto.V4SymmetricKeyFromBytes(symmetricKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create symmetric key: %w", err)
	}

	return &PasetoService{
		symmetricKey: key,
		now:          time.Now,
	}, nil
}

// CreateToken generates a new PASETO v4.local token carrying payload
func (s *PasetoService) CreateToken(payload TokenPayload, duration time.Duration) (string, error) {
	if duration <= 0 {
		return "", fmt.Errorf("token duration must be positive, got %s", duration)
	}

	now := s.now()

	token := paseto.NewToken()
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(now.Add(duration))
	if payload.UserID != "" {
		token.SetString("user_id", payload.UserID)
	}
	if payload.ResetID != 0 {
		token.SetString("reset_id", strconv.FormatInt(payload.ResetID, 10))
	}

	return token.V4Encrypt(s.symmetricKey, nil), nil
}

// VerifyToken decrypts a PASETO v4.local token and returns the claims.
// Expiry is checked here rather than by the parser so that an expired
// token reports ErrExpiredToken instead of a generic rule failure.
func (s *PasetoService) VerifyToken(tokenStr string) (*TokenClaims, error) {
	if !strings.HasPrefix(tokenStr, pasetoV4LocalHeader) || len(tokenStr) == len(pasetoV4LocalHeader) {
		return nil, ErrMalformedToken
	}

	parser := paseto.NewParserWithoutExpiryCheck()

	token, err := parser.ParseV4Local(s.symmetricKey, tokenStr, nil)
	if err != nil {
		return nil, ErrInvalidSignature
	}

	expiresAt, err := token.GetExpiration()
	if err != nil {
		return nil, ErrMalformedToken
	}
	if !s.now().Before(expiresAt) {
		return nil, ErrExpiredToken
	}

	issuedAt, err := token.GetIssuedAt()
	if err != nil {
		return nil, ErrMalformedToken
	}

	claims := &TokenClaims{
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}

	if userID, err := token.GetString("user_id"); err == nil {
		claims.UserID = userID
	}
	if resetID, err := token.GetString("reset_id"); err == nil {
		claims.ResetID, err = strconv.ParseInt(resetID, 10, 64)
		if err != nil {
			return nil, ErrMalformedToken
		}
	}

	if claims.UserID == "" && claims.ResetID == 0 {
		return nil, ErrMalformedToken
	}

	return claims, nil
}
