package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwtClaims is the HS256 token body: registered claims plus the payload
type jwtClaims struct {
	jwt.RegisteredClaims
	UserID  string `json:"userId,omitempty"`
	ResetID int64  `json:"resetId,omitempty"`
}

// JWTService signs and verifies HS256 JSON Web Tokens
type JWTService struct {
	secret []byte
	now    func() time.Time
}

func NewJWTService(secret []byte) (*JWTService, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 bytes, got %d", len(secret))
	}
	return &JWTService{secret: secret, now: time.Now}, nil
}

// CreateToken signs payload with an expiry of now+duration
func (s *JWTService) CreateToken(payload TokenPayload, duration time.Duration) (string, error) {
	if duration <= 0 {
		return "", fmt.Errorf("token duration must be positive, got %s", duration)
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
		},
		UserID:  payload.UserID,
		ResetID: payload.ResetID,
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// VerifyToken checks the signature and expiry of tokenStr
func (s *JWTService) VerifyToken(tokenStr string) (*TokenClaims, error) {
	claims := &jwtClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformedToken
		default:
			return nil, ErrInvalidSignature
		}
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.UserID == "" && claims.ResetID == 0 {
		return nil, ErrMalformedToken
	}

	out := &TokenClaims{
		UserID:    claims.UserID,
		ResetID:   claims.ResetID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}

	return out, nil
}
