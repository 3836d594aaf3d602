package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/go-auth-service/internal/database"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation
const uniqueViolation = "23505"

// Repository handles user data persistence.
// Soft-deleted users are invisible to every read and write.
type Repository struct {
	db bun.IDB
}

func NewRepository(db bun.IDB) *Repository {
	return &Repository{db: db}
}

// Insert persists a user created with New
func (r *Repository) Insert(ctx context.Context, u *User) (*User, error) {
	now := time.Now().UTC()
	dbUser := &database.User{
		ID:           u.ID,
		Name:         u.Name,
		LastName:     u.LastName,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Verified:     u.IsVerified(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if dbUser.ID == uuid.Nil {
		dbUser.ID = uuid.New()
	}
	if dbUser.Role == "" {
		dbUser.Role = string(RoleUser)
	}

	_, err := r.db.NewInsert().
		Model(dbUser).
		Exec(ctx)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return mapDBUserToModel(dbUser, WithCredentials()), nil
}

// GetByEmail retrieves a user by email
func (r *Repository) GetByEmail(ctx context.Context, email string, p Projection) (*User, error) {
	dbUser := new(database.User)
	err := p.apply(r.db.NewSelect().Model(dbUser)).
		Where("email = ?", email).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return mapDBUserToModel(dbUser, p), nil
}

// GetByID retrieves a user by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID, p Projection) (*User, error) {
	dbUser := new(database.User)
	err := p.apply(r.db.NewSelect().Model(dbUser)).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return mapDBUserToModel(dbUser, p), nil
}

// Save writes the mutable profile fields of u back to the store.
// The password hash and verified flag are only written when present on u.
func (r *Repository) Save(ctx context.Context, u *User) (*User, error) {
	dbUser := &database.User{
		ID:           u.ID,
		Name:         u.Name,
		LastName:     u.LastName,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Verified:     u.IsVerified(),
		UpdatedAt:    time.Now().UTC(),
	}

	columns := []string{"name", "last_name", "email", "role", "updated_at"}
	if u.PasswordHash != "" {
		columns = append(columns, "password_hash")
	}
	if u.Verified != nil {
		columns = append(columns, "verified")
	}

	result, err := r.db.NewUpdate().
		Model(dbUser).
		Column(columns...).
		WherePK().
		Where("deleted_at IS NULL").
		Exec(ctx)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	if err := expectRows(result); err != nil {
		return nil, err
	}

	saved := *u
	saved.UpdatedAt = dbUser.UpdatedAt
	return &saved, nil
}

// MarkEmailAsVerified flips verified from false to true.
// It reports whether a row changed; false with a nil error means the user was already verified.
func (r *Repository) MarkEmailAsVerified(ctx context.Context, userID uuid.UUID) (bool, error) {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("verified = ?", true).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", userID).
		Where("verified = ?", false).
		Where("deleted_at IS NULL").
		Exec(ctx)

	if err != nil {
		return false, fmt.Errorf("failed to mark email as verified: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		return true, nil
	}

	// Distinguish "already verified" from "no such user"
	if _, err := r.GetByID(ctx, userID, Default); err != nil {
		return false, err
	}

	return false, nil
}

// UpdatePassword updates a user's password hash
func (r *Repository) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", userID).
		Where("deleted_at IS NULL").
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return expectRows(result)
}

// UpdateRole changes a user's role
func (r *Repository) UpdateRole(ctx context.Context, userID uuid.UUID, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}

	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("role = ?", string(role)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", userID).
		Where("deleted_at IS NULL").
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	return expectRows(result)
}

// SoftDelete sets deleted_at; the row stays in the table but disappears from lookups
func (r *Repository) SoftDelete(ctx context.Context, userID uuid.UUID) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("deleted_at = ?", time.Now().UTC()).
		Where("id = ?", userID).
		Where("deleted_at IS NULL").
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return expectRows(result)
}

func expectRows(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// isUniqueViolation recognizes unique constraint failures from PostgreSQL and SQLite
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}

	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// MapDBUser converts a database model loaded with projection p to the domain model
func MapDBUser(dbu *database.User, p Projection) *User {
	return mapDBUserToModel(dbu, p)
}

// mapDBUserToModel converts database model to domain model
func mapDBUserToModel(dbu *database.User, p Projection) *User {
	u := &User{
		ID:        dbu.ID,
		Name:      dbu.Name,
		LastName:  dbu.LastName,
		Email:     dbu.Email,
		Role:      Role(dbu.Role),
		CreatedAt: dbu.CreatedAt,
		UpdatedAt: dbu.UpdatedAt,
		DeletedAt: dbu.DeletedAt,
	}
	if p.PasswordHash {
		u.PasswordHash = dbu.PasswordHash
	}
	if p.Verified {
		verified := dbu.Verified
		u.Verified = &verified
	}
	return u
}
