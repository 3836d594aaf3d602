package user

import "github.com/uptrace/bun"

// Projection selects which sensitive columns a read returns.
// The zero value is the default projection: no password hash, no verified flag.
type Projection struct {
	PasswordHash bool
	Verified     bool
}

// Default read projection
var Default = Projection{}

// WithVerified includes the verified flag
func WithVerified() Projection {
	return Projection{Verified: true}
}

// WithCredentials includes the password hash and the verified flag
func WithCredentials() Projection {
	return Projection{PasswordHash: true, Verified: true}
}

func (p Projection) apply(q *bun.SelectQuery) *bun.SelectQuery {
	excluded := make([]string, 0, 2)
	if !p.PasswordHash {
		excluded = append(excluded, "password_hash")
	}
	if !p.Verified {
		excluded = append(excluded, "verified")
	}
	if len(excluded) > 0 {
		q = q.ExcludeColumn(excluded...)
	}
	return q
}
