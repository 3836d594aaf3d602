package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the persistence model of the users table.
// Rows with deleted_at set are excluded from every query unless WhereAllWithDeleted is used.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid"`
	Name         string     `bun:"name,notnull"`
	LastName     string     `bun:"last_name,notnull"`
	Email        string     `bun:"email,notnull"`
	PasswordHash string     `bun:"password_hash,notnull"`
	Role         string     `bun:"role,notnull,default:'USER'"`
	Verified     bool       `bun:"verified,notnull,default:false"`
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt    *time.Time `bun:"deleted_at,soft_delete,nullzero"`
}

// PasswordReset is a single-use password reset ticket
type PasswordReset struct {
	bun.BaseModel `bun:"table:password_resets,alias:pr"`

	ID        int64     `bun:"id,pk,autoincrement"`
	UserID    uuid.UUID `bun:"user_id,notnull,type:uuid"`
	User      *User     `bun:"rel:belongs-to,join:user_id=id"`
	Used      bool      `bun:"used,notnull,default:false"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// AccessLog is an append-only record of an admin granting access to a user
type AccessLog struct {
	bun.BaseModel `bun:"table:access_logs,alias:al"`

	ID        int64     `bun:"id,pk,autoincrement"`
	UserID    uuid.UUID `bun:"user_id,notnull,type:uuid"`
	User      *User     `bun:"rel:belongs-to,join:user_id=id"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
