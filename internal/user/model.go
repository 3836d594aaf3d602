package user

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the authorization role of a user
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ParseRole converts a case-insensitive string to a Role
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	return r, r.Valid()
}

type User struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	LastName     string     `json:"lastName"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // Never expose password hash in JSON
	Role         Role       `json:"role"`
	Verified     *bool      `json:"verified,omitempty"` // nil unless loaded with WithVerified
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	DeletedAt    *time.Time `json:"-"`
}

// New builds an unverified USER record with a fresh ID. It does not persist anything.
func New(name, lastName, email, passwordHash string) *User {
	verified := false
	return &User{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(name),
		LastName:     strings.TrimSpace(lastName),
		Email:        strings.TrimSpace(email),
		PasswordHash: passwordHash,
		Role:         RoleUser,
		Verified:     &verified,
	}
}

// IsVerified reports the verification flag; false when it was not projected
func (u *User) IsVerified() bool {
	return u.Verified != nil && *u.Verified
}

// Public returns a copy without sensitive fields, suitable for responses
func (u *User) Public() *User {
	c := *u
	c.PasswordHash = ""
	c.Verified = nil
	return &c
}
