package storage

import (
	"context"
	"io"
	"time"
)

// Package storage contains object storage abstractions and the upload writer
// for S3-compatible stores. Implementations must avoid using local disk and
// rely on streaming I/O only.

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1 and
// the implementation will buffer/chunk as supported by the backend.
type PutObjectOptions struct {
	Size         int64
	ContentType  string
	CacheControl string
	Metadata     map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Part identifies one completed part of a multipart upload.
type Part struct {
	Number int
	ETag   string
	Size   int64
}

// Storage is a reusable, S3-compatible object storage client interface.
// Methods use context and streaming readers; no local disk is used.
// Delete is idempotent: removing an already-gone key is success.
type Storage interface {
	// Put uploads an object under the given key in a single request.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get retrieves an object's content as a streaming reader alongside its info.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Delete removes an object by key.
	Delete(ctx context.Context, key string) error
	// PresignGet returns a time-limited URL that can be used to download the object without credentials.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)

	// CreateMultipart starts a multipart upload and returns its upload id.
	CreateMultipart(ctx context.Context, key string, opt PutObjectOptions) (string, error)
	// UploadPart transfers one part of an in-progress multipart upload.
	UploadPart(ctx context.Context, key, uploadID string, number int, r io.Reader, size int64) (Part, error)
	// CompleteMultipart assembles the parts, which must be sorted by number, into the final object.
	CompleteMultipart(ctx context.Context, key, uploadID string, parts []Part) (ObjectInfo, error)
	// AbortMultipart discards an in-progress multipart upload and its parts.
	AbortMultipart(ctx context.Context, key, uploadID string) error
}
