package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdnapi/internal/model"
	"cdnapi/internal/repository"
)

var uploadCols = []string{"id", "owner_id", "filename", "storage_key", "size", "content_type", "provenance", "original_url", "created_at"}

func sampleUpload() *model.Upload {
	return &model.Upload{
		ID:          "7f9c48e2-9a1b-4a5e-8a3e-111111111111",
		OwnerID:     "owner-1",
		Filename:    "cat.png",
		StorageKey:  "s/v3/abc_cat.png",
		Size:        1024,
		ContentType: "image/png",
		Provenance:  model.ProvenanceAPI,
		OriginalURL: "https://example.com/cat.png",
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func uploadRow(up *model.Upload) *sqlmock.Rows {
	return sqlmock.NewRows(uploadCols).AddRow(
		up.ID, up.OwnerID, up.Filename, up.StorageKey, up.Size,
		up.ContentType, string(up.Provenance), up.OriginalURL, up.CreatedAt,
	)
}

func TestUploadPostgresCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUploadPostgres(db)
	up := sampleUpload()

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO uploads")).
			WithArgs(up.ID, up.OwnerID, up.Filename, up.StorageKey, up.Size, up.ContentType, up.Provenance, up.OriginalURL, up.CreatedAt).
			WillReturnRows(uploadRow(up))

		got, err := repo.Create(context.Background(), up)
		require.NoError(t, err)
		assert.Equal(t, up.ID, got.ID)
		assert.Equal(t, up.StorageKey, got.StorageKey)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert error", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO uploads")).
			WillReturnError(errors.New("unique violation"))

		_, err := repo.Create(context.Background(), up)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUploadPostgresFindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUploadPostgres(db)
	up := sampleUpload()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM uploads WHERE id = $1")).
			WithArgs(up.ID).
			WillReturnRows(uploadRow(up))

		got, err := repo.FindByID(context.Background(), up.ID)
		require.NoError(t, err)
		assert.Equal(t, up.Filename, got.Filename)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM uploads WHERE id = $1")).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.FindByID(context.Background(), "missing")
		assert.ErrorIs(t, err, sql.ErrNoRows)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUploadPostgresListByOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUploadPostgres(db)
	up := sampleUpload()

	t.Run("returns items and total", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM uploads WHERE owner_id = $1")).
			WithArgs("owner-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
		mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id DESC")).
			WithArgs("owner-1", 10, 0).
			WillReturnRows(uploadRow(up))

		res, err := repo.ListByOwner(context.Background(), "owner-1", repository.PageQuery{Limit: 10, Offset: 0})
		require.NoError(t, err)
		assert.Equal(t, 7, res.Total)
		require.Len(t, res.Items, 1)
		assert.Equal(t, up.ID, res.Items[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty page", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM uploads WHERE owner_id = $1")).
			WithArgs("owner-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id DESC")).
			WithArgs("owner-1", 10, 0).
			WillReturnRows(sqlmock.NewRows(uploadCols))

		res, err := repo.ListByOwner(context.Background(), "owner-1", repository.PageQuery{Limit: 10, Offset: 0})
		require.NoError(t, err)
		assert.Equal(t, 0, res.Total)
		assert.Empty(t, res.Items)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUploadPostgresDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUploadPostgres(db)

	t.Run("deletes row", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM uploads WHERE id = $1")).
			WithArgs("id-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Delete(context.Background(), "id-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row is not an error", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM uploads WHERE id = $1")).
			WithArgs("missing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.NoError(t, repo.Delete(context.Background(), "missing"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUploadPostgresTotalSizeByOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUploadPostgres(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(size), 0) FROM uploads WHERE owner_id = $1")).
		WithArgs("owner-1").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(4096))

	total, err := repo.TotalSizeByOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4096), total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountPostgresPolicySlug(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAccountPostgres(db)

	t.Run("assigned policy", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM owners WHERE id = $1")).
			WithArgs("owner-1").
			WillReturnRows(sqlmock.NewRows([]string{"quota_policy"}).AddRow("verified"))

		slug, err := repo.PolicySlug(context.Background(), "owner-1")
		require.NoError(t, err)
		assert.Equal(t, "verified", slug)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing owner yields empty slug", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM owners WHERE id = $1")).
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		slug, err := repo.PolicySlug(context.Background(), "ghost")
		require.NoError(t, err)
		assert.Equal(t, "", slug)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error propagates", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM owners WHERE id = $1")).
			WithArgs("owner-1").
			WillReturnError(errors.New("db down"))

		_, err := repo.PolicySlug(context.Background(), "owner-1")
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
