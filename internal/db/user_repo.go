package db

import (
	"context"

	"talentsphere/internal/types"
)

// UserRepository exposes the minimal read access the delivery pipeline needs
// from the users table. User CRUD belongs to the surrounding web application.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a UserRepository backed by the given database
// connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// GetEmail returns the user's verified contact address.
func (r *UserRepository) GetEmail(ctx context.Context, userID string) (string, error) {
	var email string
	err := r.db.QueryRow(ctx,
		`SELECT email FROM users WHERE id = $1`,
		userID,
	).Scan(&email)
	if err != nil {
		if isNoRows(err) {
			return "", types.NewAppError(types.ErrCodeNotFoundUser, "user not found", err)
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to look up user email", err)
	}
	return email, nil
}
