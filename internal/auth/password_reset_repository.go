package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/go-auth-service/internal/database"
)

// PasswordResetRepository persists single-use password reset tickets
type PasswordResetRepository struct {
	db bun.IDB
}

// NewPasswordResetRepository creates a new password reset repository instance
func NewPasswordResetRepository(db bun.IDB) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

// Create stores a new unused ticket for userID
func (r *PasswordResetRepository) Create(ctx context.Context, userID uuid.UUID) (*database.PasswordReset, error) {
	ticket := &database.PasswordReset{
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}

	_, err := r.db.NewInsert().
		Model(ticket).
		Returning("id").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create password reset ticket: %w", err)
	}

	return ticket, nil
}

// GetByID loads a ticket together with its (non-deleted) user
func (r *PasswordResetRepository) GetByID(ctx context.Context, id int64) (*database.PasswordReset, error) {
	ticket := new(database.PasswordReset)
	err := r.db.NewSelect().
		Model(ticket).
		Relation("User", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.ExcludeColumn("password_hash")
		}).
		Where("pr.id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResetTicketNotFound
		}
		return nil, fmt.Errorf("failed to get password reset ticket: %w", err)
	}

	ticket.User = activeUser(ticket.User)
	return ticket, nil
}

// Consume marks the ticket used and stores the new password hash in one
// transaction. Only one caller can flip a ticket; the rest get
// ErrResetTicketUsed and leave the password untouched.
func (r *PasswordResetRepository) Consume(ctx context.Context, id int64, userID uuid.UUID, passwordHash string) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		result, err := tx.NewUpdate().
			Model((*database.PasswordReset)(nil)).
			Set("used = ?", true).
			Where("id = ?", id).
			Where("user_id = ?", userID).
			Where("used = ?", false).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark password reset ticket used: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return ErrResetTicketUsed
		}

		result, err = tx.NewUpdate().
			Model((*database.User)(nil)).
			Set("password_hash = ?", passwordHash).
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ?", userID).
			Where("deleted_at IS NULL").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}

		rowsAffected, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return ErrNotFound
		}

		return nil
	})
}
