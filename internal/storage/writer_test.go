package storage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cdnapi/internal/storage"
	"cdnapi/internal/storage/mocks"
)

const (
	kib = 1024
	mib = 1024 * 1024
	gib = 1024 * 1024 * 1024
)

func TestCalculatePartSize(t *testing.T) {
	tests := []struct {
		name string
		size int64
		want int64
	}{
		{"small file stays at floor", 1 * mib, 5 * mib},
		{"50MB stays at floor", 50 * mib, 5 * mib},
		{"just above 100MB tier", 101 * mib, 10 * mib},
		{"500MB stays in 10MB tier", 500 * mib, 10 * mib},
		{"600MB scales to 25MB", 600 * mib, 25 * mib},
		{"1.5GB scales to 50MB", 3 * gib / 2, 50 * mib},
		{"10GB scales to 50MB", 10 * gib, 50 * mib},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, storage.CalculatePartSize(tt.size))
		})
	}

	t.Run("never exceeds 1000 parts", func(t *testing.T) {
		sizes := []int64{10 * mib, 99 * mib, 101 * mib, 499 * mib, 501 * mib, 1 * gib, 2 * gib, 10 * gib, 50 * gib}
		for _, size := range sizes {
			partSize := storage.CalculatePartSize(size)
			parts := (size + partSize - 1) / partSize
			assert.LessOrEqualf(t, parts, int64(1000), "size %d gives %d parts", size, parts)
		}
	})

	t.Run("clamped to 100MB", func(t *testing.T) {
		assert.Equal(t, int64(100*mib), storage.CalculatePartSize(150*gib))
	})
}

// partRecorder captures uploaded part bytes so tests can verify reassembly.
type partRecorder struct {
	mu    sync.Mutex
	parts map[int][]byte
}

func newPartRecorder() *partRecorder {
	return &partRecorder{parts: map[int][]byte{}}
}

func (pr *partRecorder) callback(_ context.Context, _, _ string, number int, r io.Reader, _ int64) storage.Part {
	data, _ := io.ReadAll(r)
	pr.mu.Lock()
	pr.parts[number] = data
	pr.mu.Unlock()
	return storage.Part{Number: number, ETag: "etag", Size: int64(len(data))}
}

func (pr *partRecorder) assembled(numParts int) []byte {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	var out []byte
	for i := 1; i <= numParts; i++ {
		out = append(out, pr.parts[i]...)
	}
	return out
}

func patternedData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestWriterStore(t *testing.T) {
	cfg := storage.WriterConfig{MultipartThreshold: 10 * mib, PartConcurrency: 4}

	t.Run("small payload is a single put", func(t *testing.T) {
		store := new(mocks.MockStorage)
		w := storage.NewWriter(store, cfg)
		data := []byte("hello world")

		store.On("Put", mock.Anything, "k", mock.Anything, mock.MatchedBy(func(opt storage.PutObjectOptions) bool {
			return opt.Size == int64(len(data)) && opt.CacheControl == storage.ImmutableCacheControl
		})).Return(storage.ObjectInfo{Key: "k", Size: int64(len(data))}, nil).Once()

		info, err := w.Store(context.Background(), "k", data, "text/plain")
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), info.Size)
		store.AssertExpectations(t)
		store.AssertNotCalled(t, "CreateMultipart", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("large payload is reassembled from parts", func(t *testing.T) {
		store := new(mocks.MockStorage)
		w := storage.NewWriter(store, cfg)
		data := patternedData(12 * mib)
		rec := newPartRecorder()

		store.On("CreateMultipart", mock.Anything, "k", mock.MatchedBy(func(opt storage.PutObjectOptions) bool {
			return opt.CacheControl == storage.ImmutableCacheControl
		})).Return("upload-1", nil).Once()
		store.On("UploadPart", mock.Anything, "k", "upload-1", mock.Anything, mock.Anything, mock.Anything).
			Return(rec.callback, nil).Times(3)
		store.On("CompleteMultipart", mock.Anything, "k", "upload-1", mock.MatchedBy(func(parts []storage.Part) bool {
			for i, p := range parts {
				if p.Number != i+1 {
					return false
				}
			}
			return len(parts) == 3
		})).Return(storage.ObjectInfo{Key: "k", Size: int64(len(data))}, nil).Once()

		info, err := w.Store(context.Background(), "k", data, "application/octet-stream")
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), info.Size)
		assert.True(t, bytes.Equal(data, rec.assembled(3)))
		store.AssertExpectations(t)
		store.AssertNotCalled(t, "AbortMultipart", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("part failure aborts exactly once", func(t *testing.T) {
		store := new(mocks.MockStorage)
		w := storage.NewWriter(store, cfg)
		data := patternedData(12 * mib)

		store.On("CreateMultipart", mock.Anything, "k", mock.Anything).Return("upload-1", nil).Once()
		store.On("UploadPart", mock.Anything, "k", "upload-1", mock.Anything, mock.Anything, mock.Anything).
			Return(storage.Part{}, errors.New("part failed"))
		store.On("AbortMultipart", mock.Anything, "k", "upload-1").Return(nil).Once()

		_, err := w.Store(context.Background(), "k", data, "application/octet-stream")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "part failed")
		store.AssertExpectations(t)
		store.AssertNumberOfCalls(t, "AbortMultipart", 1)
		store.AssertNotCalled(t, "CompleteMultipart", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("complete failure aborts exactly once", func(t *testing.T) {
		store := new(mocks.MockStorage)
		w := storage.NewWriter(store, cfg)
		data := patternedData(12 * mib)
		rec := newPartRecorder()

		store.On("CreateMultipart", mock.Anything, "k", mock.Anything).Return("upload-1", nil).Once()
		store.On("UploadPart", mock.Anything, "k", "upload-1", mock.Anything, mock.Anything, mock.Anything).
			Return(rec.callback, nil).Times(3)
		store.On("CompleteMultipart", mock.Anything, "k", "upload-1", mock.Anything).
			Return(storage.ObjectInfo{}, errors.New("complete failed")).Once()
		store.On("AbortMultipart", mock.Anything, "k", "upload-1").Return(nil).Once()

		_, err := w.Store(context.Background(), "k", data, "application/octet-stream")
		require.Error(t, err)
		store.AssertExpectations(t)
		store.AssertNumberOfCalls(t, "AbortMultipart", 1)
	})

	t.Run("abort failure does not mask the original error", func(t *testing.T) {
		store := new(mocks.MockStorage)
		w := storage.NewWriter(store, cfg)
		data := patternedData(12 * mib)

		store.On("CreateMultipart", mock.Anything, "k", mock.Anything).Return("upload-1", nil).Once()
		store.On("UploadPart", mock.Anything, "k", "upload-1", mock.Anything, mock.Anything, mock.Anything).
			Return(storage.Part{}, errors.New("part failed"))
		store.On("AbortMultipart", mock.Anything, "k", "upload-1").Return(errors.New("abort failed")).Once()

		_, err := w.Store(context.Background(), "k", data, "application/octet-stream")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "part failed")
		assert.NotContains(t, err.Error(), "abort failed")
	})
}

func TestWriterStoreStream(t *testing.T) {
	cfg := storage.WriterConfig{MultipartThreshold: 10 * mib, PartConcurrency: 4}

	t.Run("small known size buffers into a single put", func(t *testing.T) {
		store := new(mocks.MockStorage)
		w := storage.NewWriter(store, cfg)
		data := []byte("hello")

		store.On("Put", mock.Anything, "k", mock.Anything, mock.Anything).
			Return(storage.ObjectInfo{Key: "k", Size: int64(len(data))}, nil).Once()

		_, err := w.StoreStream(context.Background(), "k", bytes.NewReader(data), "text/plain", int64(len(data)))
		require.NoError(t, err)
		store.AssertExpectations(t)
		store.AssertNotCalled(t, "CreateMultipart", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown size chunks on the fly", func(t *testing.T) {
		store := new(mocks.MockStorage)
		w := storage.NewWriter(store, cfg)
		data := patternedData(25 * mib)
		rec := newPartRecorder()

		store.On("CreateMultipart", mock.Anything, "k", mock.Anything).Return("upload-1", nil).Once()
		store.On("UploadPart", mock.Anything, "k", "upload-1", mock.Anything, mock.Anything, mock.Anything).
			Return(rec.callback, nil).Times(3)
		store.On("CompleteMultipart", mock.Anything, "k", "upload-1", mock.Anything).
			Return(storage.ObjectInfo{Key: "k", Size: int64(len(data))}, nil).Once()

		_, err := w.StoreStream(context.Background(), "k", bytes.NewReader(data), "application/octet-stream", -1)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(data, rec.assembled(3)))
		store.AssertExpectations(t)
	})

	t.Run("empty stream of unknown size becomes an empty put", func(t *testing.T) {
		store := new(mocks.MockStorage)
		w := storage.NewWriter(store, cfg)

		store.On("CreateMultipart", mock.Anything, "k", mock.Anything).Return("upload-1", nil).Once()
		store.On("AbortMultipart", mock.Anything, "k", "upload-1").Return(nil).Once()
		store.On("Put", mock.Anything, "k", mock.Anything, mock.Anything).
			Return(storage.ObjectInfo{Key: "k", Size: 0}, nil).Once()

		_, err := w.StoreStream(context.Background(), "k", bytes.NewReader(nil), "application/octet-stream", -1)
		require.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("read failure aborts the upload", func(t *testing.T) {
		store := new(mocks.MockStorage)
		w := storage.NewWriter(store, cfg)

		store.On("CreateMultipart", mock.Anything, "k", mock.Anything).Return("upload-1", nil).Once()
		store.On("AbortMultipart", mock.Anything, "k", "upload-1").Return(nil).Once()

		r := io.MultiReader(bytes.NewReader(patternedData(1*kib)), iotest{})
		_, err := w.StoreStream(context.Background(), "k", r, "application/octet-stream", -1)
		require.Error(t, err)
		store.AssertExpectations(t)
		store.AssertNumberOfCalls(t, "AbortMultipart", 1)
	})
}

// iotest always fails mid-stream.
type iotest struct{}

func (iotest) Read([]byte) (int, error) { return 0, errors.New("stream broken") }
