package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cdnapi/internal/config"
	"cdnapi/internal/fetch"
	"cdnapi/internal/identity"
	"cdnapi/internal/model"
	"cdnapi/internal/quota"
	"cdnapi/internal/repository"
	"cdnapi/internal/storage"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("upload not found")
	ErrStorageFailed = errors.New("storage failed")
)

// QuotaExceededError reports an inadmissible upload together with the usage
// snapshot the decision was made against, so callers can tell the owner how
// much space is left.
type QuotaExceededError struct {
	Usage quota.Usage
	Size  int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %d bytes requested, %d of %d used", e.Size, e.Usage.Used, e.Usage.Limit)
}

// bulkConcurrency bounds how many URLs of one bulk request are ingested at a time.
const bulkConcurrency = 3

// Fetcher downloads a remote resource, presenting the forwarded credential to
// the source when set.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL, forwardedAuth string) (*fetch.Payload, error)
}

// ObjectWriter persists payloads to the object store, switching between
// single-shot and multipart upload based on size.
type ObjectWriter interface {
	Store(ctx context.Context, key string, data []byte, contentType string) (storage.ObjectInfo, error)
	StoreStream(ctx context.Context, key string, r io.Reader, contentType string, sizeHint int64) (storage.ObjectInfo, error)
}

// ObjectPurger removes stored objects during deletes and compensations.
// Purging an already-gone key is success, not error.
type ObjectPurger interface {
	Delete(ctx context.Context, key string) error
}

// QuotaGuard evaluates upload admissibility against committed account state.
type QuotaGuard interface {
	CanAdmit(ctx context.Context, ownerID string, prospectiveSize int64) (bool, quota.Usage, error)
	Usage(ctx context.Context, ownerID string) (quota.Usage, error)
}

// UploadListResult is the service-level DTO for paginated uploads.
type UploadListResult struct {
	Items []model.Upload `json:"data"`
	Total int            `json:"total"`
}

// IngestService defines the ingestion pipeline use cases.
type IngestService interface {
	// UploadDirect ingests a payload whose size is known up front. Quota is
	// checked before any storage write; an inadmissible upload touches
	// neither the store nor the database.
	UploadDirect(ctx context.Context, ownerID string, r io.Reader, filename, contentType string, size int64, provenance model.Provenance) (*model.Upload, error)

	// UploadFromURL ingests a remote resource. The size is unknown until the
	// download finishes, so storage proceeds first and quota is enforced
	// afterwards, with full compensation on violation.
	UploadFromURL(ctx context.Context, ownerID, rawURL, forwardedAuth string, provenance model.Provenance) (*model.Upload, error)

	// UploadFromURLs ingests a batch of URLs with bounded concurrency.
	// The first failure cancels the remaining downloads.
	UploadFromURLs(ctx context.Context, ownerID string, urls []string, forwardedAuth string, provenance model.Provenance) ([]*model.Upload, error)

	// Get returns one of the owner's uploads by ID.
	Get(ctx context.Context, ownerID, id string) (*model.Upload, error)

	// List returns the owner's uploads, recent first.
	List(ctx context.Context, ownerID string, limit, offset int) (*UploadListResult, error)

	// Delete removes an upload record and purges its stored object.
	Delete(ctx context.Context, ownerID, id string) error

	// Usage returns the owner's current storage usage snapshot.
	Usage(ctx context.Context, ownerID string) (quota.Usage, error)

	// FileURL builds the public CDN URL for an upload.
	FileURL(up *model.Upload) string
}

// ingestService is a concrete implementation of IngestService.
type ingestService struct {
	fetcher Fetcher
	writer  ObjectWriter
	purger  ObjectPurger
	repo    repository.UploadRepository
	guard   QuotaGuard
	cdn     config.CDNConfig
}

// NewIngestService constructs a new IngestService.
func NewIngestService(fetcher Fetcher, writer ObjectWriter, purger ObjectPurger, repo repository.UploadRepository, guard QuotaGuard, cdn config.CDNConfig) IngestService {
	if cdn.Namespace == "" {
		cdn.Namespace = "s/v3"
	}
	return &ingestService{
		fetcher: fetcher,
		writer:  writer,
		purger:  purger,
		repo:    repo,
		guard:   guard,
		cdn:     cdn,
	}
}

func (s *ingestService) UploadDirect(ctx context.Context, ownerID string, r io.Reader, filename, contentType string, size int64, provenance model.Provenance) (*model.Upload, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrInvalidInput)
	}
	if r == nil {
		return nil, fmt.Errorf("%w: file is required", ErrInvalidInput)
	}
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrInvalidInput)
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: size is required", ErrInvalidInput)
	}
	if !provenance.Valid() {
		return nil, fmt.Errorf("%w: unknown provenance %q", ErrInvalidInput, provenance)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// Size is known up front: reject before any fetch or store happens.
	ok, usage, err := s.guard.CanAdmit(ctx, ownerID, size)
	if err != nil {
		return nil, fmt.Errorf("quota pre-check: %w", err)
	}
	if !ok {
		return nil, &QuotaExceededError{Usage: usage, Size: size}
	}

	sanitized := identity.SanitizeFilename(filename)
	key := fmt.Sprintf("%s/%s_%s", s.cdn.Namespace, uuid.NewString(), sanitized)

	info, err := s.writer.StoreStream(ctx, key, r, contentType, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}

	return s.record(ctx, &model.Upload{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Filename:    sanitized,
		StorageKey:  info.Key,
		Size:        info.Size,
		ContentType: contentType,
		Provenance:  provenance,
		CreatedAt:   time.Now().UTC(),
	})
}

func (s *ingestService) UploadFromURL(ctx context.Context, ownerID, rawURL, forwardedAuth string, provenance model.Provenance) (*model.Upload, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrInvalidInput)
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, fmt.Errorf("%w: url must be http(s)", ErrInvalidInput)
	}
	if !provenance.Valid() {
		return nil, fmt.Errorf("%w: unknown provenance %q", ErrInvalidInput, provenance)
	}

	// The size is unknown until the payload is downloaded, so quota is
	// enforced post-hoc with compensation instead of up front.
	payload, err := s.fetcher.Fetch(ctx, rawURL, forwardedAuth)
	if err != nil {
		return nil, err
	}

	name := rawURL[strings.LastIndex(rawURL, "/")+1:]
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		name = "file"
	}
	id := identity.Identify(s.cdn.Namespace, payload.Bytes, name)

	if _, err := s.writer.Store(ctx, id.StorageKey, payload.Bytes, payload.ContentType); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}

	up, err := s.record(ctx, &model.Upload{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Filename:    id.SanitizedFilename,
		StorageKey:  id.StorageKey,
		Size:        payload.Size,
		ContentType: payload.ContentType,
		Provenance:  provenance,
		OriginalURL: rawURL,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	if qerr := s.postCheckQuota(ctx, up); qerr != nil {
		return nil, qerr
	}
	return up, nil
}

func (s *ingestService) UploadFromURLs(ctx context.Context, ownerID string, urls []string, forwardedAuth string, provenance model.Provenance) ([]*model.Upload, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: at least one url is required", ErrInvalidInput)
	}
	if len(urls) > 100 {
		return nil, fmt.Errorf("%w: at most 100 urls per request", ErrInvalidInput)
	}

	results := make([]*model.Upload, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			up, err := s.UploadFromURL(gctx, ownerID, u, forwardedAuth, provenance)
			if err != nil {
				return err
			}
			results[i] = up
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// record persists the upload row. If the database write fails the stored
// object is purged so no unreferenced object survives.
func (s *ingestService) record(ctx context.Context, up *model.Upload) (*model.Upload, error) {
	stored, err := s.repo.Create(ctx, up)
	if err != nil {
		if delErr := s.purger.Delete(ctx, up.StorageKey); delErr != nil {
			return nil, fmt.Errorf("db save failed: %v; rollback delete failed: %v", err, delErr)
		}
		return nil, fmt.Errorf("db save failed: %w", err)
	}
	return stored, nil
}

// postCheckQuota enforces the policy once the true size is known. A violation
// triggers the compensating transaction: the record is deleted and the object
// purged, both attempted even if the first fails, before the quota error is
// surfaced with a usage snapshot that excludes the rejected bytes.
func (s *ingestService) postCheckQuota(ctx context.Context, up *model.Upload) error {
	usage, err := s.guard.Usage(ctx, up.OwnerID)
	if err != nil {
		return fmt.Errorf("quota post-check: %w", err)
	}
	policy := quota.PolicyFor(usage.Policy)

	if up.Size <= policy.MaxFileSize && usage.Used <= policy.MaxTotalStorage {
		return nil
	}

	if err := s.repo.Delete(ctx, up.ID); err != nil {
		logJSON(map[string]any{
			"component": "ingest",
			"event":     "compensation_record_delete_failed",
			"level":     "error",
			"upload_id": up.ID,
			"error":     err.Error(),
		})
	}
	if err := s.purger.Delete(ctx, up.StorageKey); err != nil {
		logJSON(map[string]any{
			"component":   "ingest",
			"event":       "compensation_purge_failed",
			"level":       "error",
			"storage_key": up.StorageKey,
			"error":       err.Error(),
		})
	}

	// Report usage as of after the compensation.
	if after, err := s.guard.Usage(ctx, up.OwnerID); err == nil {
		usage = after
	}
	return &QuotaExceededError{Usage: usage, Size: up.Size}
}

// Get returns an upload by ID, scoped to its owner.
func (s *ingestService) Get(ctx context.Context, ownerID, id string) (*model.Upload, error) {
	if id == "" || ownerID == "" {
		return nil, fmt.Errorf("%w: id and owner id are required", ErrInvalidInput)
	}
	up, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if up.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return up, nil
}

// List returns paginated uploads without exposing repository types.
func (s *ingestService) List(ctx context.Context, ownerID string, limit, offset int) (*UploadListResult, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.ListByOwner(ctx, ownerID, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &UploadListResult{Items: res.Items, Total: res.Total}, nil
}

// Delete removes an upload from storage, then deletes its record. The purge
// treats an already-gone object as success.
func (s *ingestService) Delete(ctx context.Context, ownerID, id string) error {
	up, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	// Purge the object first; if this fails, keep the row so the reference is not lost.
	if err := s.purger.Delete(ctx, up.StorageKey); err != nil {
		return fmt.Errorf("purge object: %w", err)
	}
	return s.repo.Delete(ctx, id)
}

// Usage returns the owner's usage snapshot for display by callers.
func (s *ingestService) Usage(ctx context.Context, ownerID string) (quota.Usage, error) {
	if ownerID == "" {
		return quota.Usage{}, fmt.Errorf("%w: owner id is required", ErrInvalidInput)
	}
	return s.guard.Usage(ctx, ownerID)
}

// FileURL builds the public CDN URL for an upload.
func (s *ingestService) FileURL(up *model.Upload) string {
	return strings.TrimSuffix(s.cdn.BaseURL, "/") + "/" + up.StorageKey
}

func logJSON(data map[string]any) {
	data["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	if _, ok := data["level"]; !ok {
		data["level"] = "info"
	}
	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	log.SetFlags(0)
	log.Println(string(b))
}
