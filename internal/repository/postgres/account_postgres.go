package postgres

import (
	"context"
	"database/sql"
	"errors"
)

// AccountPostgres provides the committed account state the quota guard reads:
// assigned policy slug and total stored bytes. It satisfies quota.Source.
type AccountPostgres struct {
	db *sql.DB
}

// NewAccountPostgres creates a new AccountPostgres source.
func NewAccountPostgres(db *sql.DB) *AccountPostgres {
	return &AccountPostgres{db: db}
}

// PolicySlug returns the owner's assigned quota policy slug. A missing owner
// row yields an empty slug, which the guard resolves to the default tier.
func (r *AccountPostgres) PolicySlug(ctx context.Context, ownerID string) (string, error) {
	const q = `SELECT COALESCE(quota_policy, '') FROM owners WHERE id = $1`
	var slug string
	if err := r.db.QueryRowContext(ctx, q, ownerID).Scan(&slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return slug, nil
}

// TotalSizeByOwner sums the owner's committed upload sizes. Usage is always
// computed from the latest committed rows, never cached.
func (r *AccountPostgres) TotalSizeByOwner(ctx context.Context, ownerID string) (int64, error) {
	const q = `SELECT COALESCE(SUM(size), 0) FROM uploads WHERE owner_id = $1`
	var total int64
	if err := r.db.QueryRowContext(ctx, q, ownerID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
