package mocks

import (
	"context"
	"io"
	"time"

	"cdnapi/internal/storage"

	"github.com/stretchr/testify/mock"
)

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Put(ctx context.Context, key string, r io.Reader, opt storage.PutObjectOptions) (storage.ObjectInfo, error) {
	args := m.Called(ctx, key, r, opt)
	if f, ok := args.Get(0).(func(context.Context, string, io.Reader, storage.PutObjectOptions) storage.ObjectInfo); ok {
		return f(ctx, key, r, opt), args.Error(1)
	}
	return args.Get(0).(storage.ObjectInfo), args.Error(1)
}

func (m *MockStorage) Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(io.ReadCloser), args.Get(1).(storage.ObjectInfo), args.Error(2)
}

func (m *MockStorage) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockStorage) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, key, expiry)
	return args.String(0), args.Error(1)
}

func (m *MockStorage) CreateMultipart(ctx context.Context, key string, opt storage.PutObjectOptions) (string, error) {
	args := m.Called(ctx, key, opt)
	return args.String(0), args.Error(1)
}

func (m *MockStorage) UploadPart(ctx context.Context, key, uploadID string, number int, r io.Reader, size int64) (storage.Part, error) {
	args := m.Called(ctx, key, uploadID, number, r, size)
	if f, ok := args.Get(0).(func(context.Context, string, string, int, io.Reader, int64) storage.Part); ok {
		return f(ctx, key, uploadID, number, r, size), args.Error(1)
	}
	return args.Get(0).(storage.Part), args.Error(1)
}

func (m *MockStorage) CompleteMultipart(ctx context.Context, key, uploadID string, parts []storage.Part) (storage.ObjectInfo, error) {
	args := m.Called(ctx, key, uploadID, parts)
	return args.Get(0).(storage.ObjectInfo), args.Error(1)
}

func (m *MockStorage) AbortMultipart(ctx context.Context, key, uploadID string) error {
	args := m.Called(ctx, key, uploadID)
	return args.Error(0)
}
