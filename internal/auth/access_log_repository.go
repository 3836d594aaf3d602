package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/go-auth-service/internal/database"
)

// AccessLogRepository handles the append-only access log
type AccessLogRepository struct {
	db bun.IDB
}

func NewAccessLogRepository(db bun.IDB) *AccessLogRepository {
	return &AccessLogRepository{db: db}
}

// Insert appends an entry for userID
func (r *AccessLogRepository) Insert(ctx context.Context, userID uuid.UUID) (*database.AccessLog, error) {
	entry := &database.AccessLog{
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}

	_, err := r.db.NewInsert().
		Model(entry).
		Returning("id").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to insert access log: %w", err)
	}

	return entry, nil
}

// List returns every entry in insertion order with the user's public columns.
// Entries whose user has been soft-deleted come back with a nil User.
func (r *AccessLogRepository) List(ctx context.Context) ([]database.AccessLog, error) {
	var entries []database.AccessLog

	err := r.db.NewSelect().
		Model(&entries).
		Relation("User", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Column("id", "name", "last_name", "email", "role", "created_at", "updated_at", "deleted_at")
		}).
		OrderExpr("al.created_at ASC, al.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list access logs: %w", err)
	}

	for i := range entries {
		entries[i].User = activeUser(entries[i].User)
	}

	return entries, nil
}

// activeUser drops a joined user that is missing or soft-deleted
func activeUser(u *database.User) *database.User {
	if u == nil || u.ID == uuid.Nil || u.DeletedAt != nil {
		return nil
	}
	return u
}
