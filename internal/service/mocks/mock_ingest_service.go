package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"cdnapi/internal/model"
	"cdnapi/internal/quota"
	"cdnapi/internal/service"
)

type MockIngestService struct {
	mock.Mock
}

func (m *MockIngestService) UploadDirect(ctx context.Context, ownerID string, r io.Reader, filename, contentType string, size int64, provenance model.Provenance) (*model.Upload, error) {
	args := m.Called(ctx, ownerID, r, filename, contentType, size, provenance)
	if up, ok := args.Get(0).(*model.Upload); ok {
		return up, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIngestService) UploadFromURL(ctx context.Context, ownerID, rawURL, forwardedAuth string, provenance model.Provenance) (*model.Upload, error) {
	args := m.Called(ctx, ownerID, rawURL, forwardedAuth, provenance)
	if up, ok := args.Get(0).(*model.Upload); ok {
		return up, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIngestService) UploadFromURLs(ctx context.Context, ownerID string, urls []string, forwardedAuth string, provenance model.Provenance) ([]*model.Upload, error) {
	args := m.Called(ctx, ownerID, urls, forwardedAuth, provenance)
	if ups, ok := args.Get(0).([]*model.Upload); ok {
		return ups, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIngestService) Get(ctx context.Context, ownerID, id string) (*model.Upload, error) {
	args := m.Called(ctx, ownerID, id)
	if up, ok := args.Get(0).(*model.Upload); ok {
		return up, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIngestService) List(ctx context.Context, ownerID string, limit, offset int) (*service.UploadListResult, error) {
	args := m.Called(ctx, ownerID, limit, offset)
	if res, ok := args.Get(0).(*service.UploadListResult); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIngestService) Delete(ctx context.Context, ownerID, id string) error {
	args := m.Called(ctx, ownerID, id)
	return args.Error(0)
}

func (m *MockIngestService) Usage(ctx context.Context, ownerID string) (quota.Usage, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).(quota.Usage), args.Error(1)
}

func (m *MockIngestService) FileURL(up *model.Upload) string {
	args := m.Called(up)
	return args.String(0)
}
