package repository

import (
	"context"

	"cdnapi/internal/model"
)

// Package repository contains data access layer abstractions.
// Implementations can live in subpackages (e.g., postgres) inside this directory.

// UploadRepository defines data access for upload records using SQL queries only.
// No business logic here — strictly persistence operations.
type UploadRepository interface {
	// Create inserts a new upload record.
	// The caller should provide required fields (e.g., ID, CreatedAt) according to the database schema defaults.
	// Returns the stored record (may include values set by the DB).
	Create(ctx context.Context, up *model.Upload) (*model.Upload, error)

	// FindByID returns an upload by its ID.
	FindByID(ctx context.Context, id string) (*model.Upload, error)

	// ListByOwner returns a paginated, recent-first list of the owner's uploads and a total count.
	ListByOwner(ctx context.Context, ownerID string, pq PageQuery) (*PageResult[model.Upload], error)

	// Delete removes an upload by ID. It returns nil if the row was deleted or did not exist.
	Delete(ctx context.Context, id string) error

	// TotalSizeByOwner returns the sum of the owner's committed upload sizes in bytes.
	TotalSizeByOwner(ctx context.Context, ownerID string) (int64, error)
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
