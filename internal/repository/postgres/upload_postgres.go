package postgres

import (
	"context"
	"database/sql"

	"cdnapi/internal/model"
	"cdnapi/internal/repository"
)

// UploadPostgres is a PostgreSQL implementation of repository.UploadRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type UploadPostgres struct {
	db *sql.DB
}

// NewUploadPostgres creates a new UploadPostgres repository.
func NewUploadPostgres(db *sql.DB) *UploadPostgres {
	return &UploadPostgres{db: db}
}

var _ repository.UploadRepository = (*UploadPostgres)(nil)

const uploadColumns = `id, owner_id, filename, storage_key, size, content_type, provenance, COALESCE(original_url, ''), created_at`

func scanUpload(row interface{ Scan(...any) error }) (*model.Upload, error) {
	var u model.Upload
	if err := row.Scan(
		&u.ID,
		&u.OwnerID,
		&u.Filename,
		&u.StorageKey,
		&u.Size,
		&u.ContentType,
		&u.Provenance,
		&u.OriginalURL,
		&u.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new upload row and returns the stored record.
func (r *UploadPostgres) Create(ctx context.Context, up *model.Upload) (*model.Upload, error) {
	const q = `
		INSERT INTO uploads (id, owner_id, filename, storage_key, size, content_type, provenance, original_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
		RETURNING ` + uploadColumns
	row := r.db.QueryRowContext(ctx, q,
		up.ID,
		up.OwnerID,
		up.Filename,
		up.StorageKey,
		up.Size,
		up.ContentType,
		up.Provenance,
		up.OriginalURL,
		up.CreatedAt,
	)
	return scanUpload(row)
}

// FindByID fetches a single upload by its ID.
func (r *UploadPostgres) FindByID(ctx context.Context, id string) (*model.Upload, error) {
	const q = `SELECT ` + uploadColumns + ` FROM uploads WHERE id = $1`
	return scanUpload(r.db.QueryRowContext(ctx, q, id))
}

// ListByOwner returns the owner's uploads using LIMIT/OFFSET pagination and a total count.
func (r *UploadPostgres) ListByOwner(ctx context.Context, ownerID string, pq repository.PageQuery) (*repository.PageResult[model.Upload], error) {
	const qCount = `SELECT COUNT(*) FROM uploads WHERE owner_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount, ownerID).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT ` + uploadColumns + `
		FROM uploads
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, qList, ownerID, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Upload, 0)
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Upload]{
		Items: items,
		Total: total,
	}, nil
}

// Delete removes an upload by ID. It does not return an error if the row does not exist.
func (r *UploadPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM uploads WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	_, _ = res.RowsAffected()
	return nil
}

// TotalSizeByOwner sums the owner's committed upload sizes.
func (r *UploadPostgres) TotalSizeByOwner(ctx context.Context, ownerID string) (int64, error) {
	const q = `SELECT COALESCE(SUM(size), 0) FROM uploads WHERE owner_id = $1`
	var total int64
	if err := r.db.QueryRowContext(ctx, q, ownerID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
