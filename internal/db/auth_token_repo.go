package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"talentsphere/internal/types"
)

// AuthTokenRepository resolves bearer tokens against the auth_tokens table.
// The surrounding web application writes rows at login and deletes them at
// logout; this side only reads. Tokens are stored as SHA-256 hex digests so a
// leaked table dump never yields usable credentials.
type AuthTokenRepository struct {
	db DBTX
}

// NewAuthTokenRepository creates an AuthTokenRepository backed by the given
// database connection (pool or transaction).
func NewAuthTokenRepository(db DBTX) *AuthTokenRepository {
	return &AuthTokenRepository{db: db}
}

// ResolveToken returns the user Actor a bearer token belongs to, or nil when
// the token is unknown or expired.
func (r *AuthTokenRepository) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	var userID string
	err := r.db.QueryRow(ctx,
		`SELECT user_id FROM auth_tokens
		 WHERE token_hash = $1 AND (expires_at IS NULL OR expires_at > $2)`,
		HashToken(token), time.Now().UTC(),
	).Scan(&userID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to resolve auth token", err)
	}
	return &types.Actor{ID: userID, Type: types.ActorTypeUser}, nil
}

// HashToken returns the stored form of a bearer token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
