package db

import (
	"context"
	"time"

	"talentsphere/internal/types"
)

// PostingRepository provides the sweep and stats queries over the jobs and
// scholarships tables. The sweeper is the only writer that goes through this
// repository; posting CRUD belongs to the surrounding web application.
type PostingRepository struct {
	db DBTX
}

// NewPostingRepository creates a PostingRepository backed by the given
// database connection (pool or transaction).
func NewPostingRepository(db DBTX) *PostingRepository {
	return &PostingRepository{db: db}
}

// tableFor maps a posting kind to its table name. Both tables share the
// source/expires_at column shape the sweeper relies on.
func tableFor(kind types.PostingKind) string {
	if kind == types.PostingScholarship {
		return "scholarships"
	}
	return "jobs"
}

// CountStats classifies one table's external rows against the cutoff.
// Eligible rows are strictly older than the cutoff; a row expiring exactly at
// the cutoff instant is still active.
func (r *PostingRepository) CountStats(ctx context.Context, kind types.PostingKind, cutoff time.Time) (types.PostingStats, error) {
	var stats types.PostingStats
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE expires_at < $1),
		        COUNT(*) FILTER (WHERE expires_at >= $1)
		 FROM `+tableFor(kind)+`
		 WHERE source = 'external'`,
		cutoff,
	).Scan(&stats.TotalExternal, &stats.EligibleForDeletion, &stats.Active)
	if err != nil {
		return types.PostingStats{}, types.NewAppError(types.ErrCodeInternalDB, "failed to count posting stats", err)
	}
	return stats, nil
}

// DeleteExpiredExternal bulk-deletes external rows whose expiration strictly
// predates the cutoff. One statement, one implicit transaction: the sweep is
// atomic and naturally idempotent (a second run matches zero rows). Internal
// postings are excluded by the source predicate regardless of their age.
func (r *PostingRepository) DeleteExpiredExternal(ctx context.Context, kind types.PostingKind, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM `+tableFor(kind)+`
		 WHERE source = 'external' AND expires_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete expired postings", err)
	}
	return tag.RowsAffected(), nil
}

// ListExpiringExternal returns external postings that will become eligible
// for deletion within the warning window and have not been warned yet.
// Claiming the warning flag in the same statement keeps the query idempotent
// across overlapping invocations.
func (r *PostingRepository) ListExpiringExternal(ctx context.Context, kind types.PostingKind, cutoff, windowEnd time.Time, limit int) ([]types.ExpiringPosting, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`UPDATE `+tableFor(kind)+`
		 SET expiry_warned = TRUE
		 WHERE id IN (
		     SELECT id FROM `+tableFor(kind)+`
		     WHERE source = 'external'
		       AND expiry_warned = FALSE
		       AND expires_at >= $1
		       AND expires_at < $2
		     LIMIT $3
		 )
		 RETURNING id, title, owner_id, expires_at`,
		cutoff, windowEnd, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list expiring postings", err)
	}
	defer rows.Close()

	var results []types.ExpiringPosting
	for rows.Next() {
		p := types.ExpiringPosting{Kind: kind}
		if err := rows.Scan(&p.ID, &p.Title, &p.OwnerID, &p.ExpiresAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan expiring posting", err)
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating expiring postings", err)
	}

	return results, nil
}
