package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Object content at a given key never changes, so every write carries a
// long-lived immutable cache directive for the CDN in front of the store.
const ImmutableCacheControl = "public, immutable, max-age=31536000"

const (
	// minPartSize is the object store's floor for non-final multipart parts.
	minPartSize = 5 * 1024 * 1024
	maxPartSize = 100 * 1024 * 1024
	maxParts    = 1000

	defaultMultipartThreshold = 10 * 1024 * 1024
	defaultPartConcurrency    = 4
)

// CalculatePartSize picks the multipart part size for a payload of totalSize
// bytes: start at the 5 MiB floor, scale through 10/25/50 MiB tiers as the
// payload grows, keep the part count under the store's 1000-part limit, and
// clamp to 100 MiB.
func CalculatePartSize(totalSize int64) int64 {
	partSize := int64(minPartSize)

	if totalSize/minPartSize > maxParts {
		partSize = (totalSize + maxParts - 1) / maxParts
	}

	if totalSize > 100*1024*1024 && partSize < 10*1024*1024 {
		partSize = 10 * 1024 * 1024
	}
	if totalSize > 500*1024*1024 && partSize < 25*1024*1024 {
		partSize = 25 * 1024 * 1024
	}
	if totalSize > 1024*1024*1024 && partSize < 50*1024*1024 {
		partSize = 50 * 1024 * 1024
	}

	if partSize < minPartSize {
		partSize = minPartSize
	}
	if partSize > maxPartSize {
		partSize = maxPartSize
	}
	return partSize
}

// WriterConfig tunes the upload writer. Zero values fall back to defaults.
type WriterConfig struct {
	MultipartThreshold int64
	PartConcurrency    int
}

// Writer persists byte payloads and streams to the object store, switching
// between single-shot PUT and multipart upload based on size. Every multipart
// upload that does not complete is aborted before the error propagates.
type Writer struct {
	store Storage
	cfg   WriterConfig
}

// NewWriter constructs a Writer over the given store.
func NewWriter(store Storage, cfg WriterConfig) *Writer {
	if cfg.MultipartThreshold <= 0 {
		cfg.MultipartThreshold = defaultMultipartThreshold
	}
	if cfg.PartConcurrency <= 0 {
		cfg.PartConcurrency = defaultPartConcurrency
	}
	return &Writer{store: store, cfg: cfg}
}

// Store writes a fully buffered payload under key. Payloads below the
// multipart threshold go out as a single PUT; larger ones are uploaded in
// concurrently transferred parts.
func (w *Writer) Store(ctx context.Context, key string, data []byte, contentType string) (ObjectInfo, error) {
	size := int64(len(data))
	if size < w.cfg.MultipartThreshold {
		info, err := w.store.Put(ctx, key, bytes.NewReader(data), PutObjectOptions{
			Size:         size,
			ContentType:  contentType,
			CacheControl: ImmutableCacheControl,
		})
		if err != nil {
			return ObjectInfo{}, fmt.Errorf("put object: %w", err)
		}
		return info, nil
	}
	return w.storeMultipart(ctx, key, data, contentType)
}

func (w *Writer) storeMultipart(ctx context.Context, key string, data []byte, contentType string) (ObjectInfo, error) {
	uploadID, err := w.store.CreateMultipart(ctx, key, PutObjectOptions{
		ContentType:  contentType,
		CacheControl: ImmutableCacheControl,
	})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("create multipart upload: %w", err)
	}

	completed := false
	defer func() {
		if !completed {
			w.abort(key, uploadID)
		}
	}()

	size := int64(len(data))
	partSize := CalculatePartSize(size)
	numParts := int((size + partSize - 1) / partSize)

	parts := make([]Part, numParts)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.PartConcurrency)

	for i := 0; i < numParts; i++ {
		i := i
		start := int64(i) * partSize
		end := start + partSize
		if end > size {
			end = size
		}
		g.Go(func() error {
			part, err := w.store.UploadPart(gctx, key, uploadID, i+1, bytes.NewReader(data[start:end]), end-start)
			if err != nil {
				return fmt.Errorf("upload part %d: %w", i+1, err)
			}
			parts[i] = part
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return ObjectInfo{}, err
	}

	// Completion order is not upload order.
	sort.Slice(parts, func(a, b int) bool { return parts[a].Number < parts[b].Number })

	info, err := w.store.CompleteMultipart(ctx, key, uploadID, parts)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("complete multipart upload: %w", err)
	}
	completed = true

	info.ContentType = contentType
	return info, nil
}

// StoreStream writes a single-consumer stream of unknown or declared size.
// Small known sizes are buffered into a single PUT. Everything else is
// chunked on the fly: part boundaries are determined by accumulated bytes
// reaching the part size, not by a pre-computed total.
func (w *Writer) StoreStream(ctx context.Context, key string, r io.Reader, contentType string, sizeHint int64) (ObjectInfo, error) {
	if sizeHint >= 0 && sizeHint < w.cfg.MultipartThreshold {
		data, err := io.ReadAll(r)
		if err != nil {
			return ObjectInfo{}, fmt.Errorf("read stream: %w", err)
		}
		return w.Store(ctx, key, data, contentType)
	}

	partSize := w.cfg.MultipartThreshold
	if sizeHint > 0 {
		partSize = CalculatePartSize(sizeHint)
	}

	uploadID, err := w.store.CreateMultipart(ctx, key, PutObjectOptions{
		ContentType:  contentType,
		CacheControl: ImmutableCacheControl,
	})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("create multipart upload: %w", err)
	}

	completed := false
	defer func() {
		if !completed {
			w.abort(key, uploadID)
		}
	}()

	var (
		mu    sync.Mutex
		parts []Part
	)

	g, gctx := errgroup.WithContext(ctx)
	// SetLimit makes Go block when the limit is reached, so at most
	// PartConcurrency part buffers are in flight at once.
	g.SetLimit(w.cfg.PartConcurrency)

	number := 0
	for {
		buf := make([]byte, partSize)
		n, readErr := io.ReadFull(r, buf)
		if readErr == io.EOF {
			break
		}
		if readErr != nil && readErr != io.ErrUnexpectedEOF {
			_ = g.Wait()
			return ObjectInfo{}, fmt.Errorf("read stream: %w", readErr)
		}

		number++
		partNumber := number
		chunk := buf[:n]
		g.Go(func() error {
			part, err := w.store.UploadPart(gctx, key, uploadID, partNumber, bytes.NewReader(chunk), int64(len(chunk)))
			if err != nil {
				return fmt.Errorf("upload part %d: %w", partNumber, err)
			}
			mu.Lock()
			parts = append(parts, part)
			mu.Unlock()
			return nil
		})

		if readErr == io.ErrUnexpectedEOF {
			break
		}
	}

	if err := g.Wait(); err != nil {
		return ObjectInfo{}, err
	}

	if number == 0 {
		// Empty stream: nothing to assemble, fall back to an empty PUT.
		w.abort(key, uploadID)
		completed = true
		return w.Store(ctx, key, nil, contentType)
	}

	sort.Slice(parts, func(a, b int) bool { return parts[a].Number < parts[b].Number })

	info, err := w.store.CompleteMultipart(ctx, key, uploadID, parts)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("complete multipart upload: %w", err)
	}
	completed = true

	info.ContentType = contentType
	return info, nil
}

// abort discards an unfinished multipart upload so the store never bills for
// orphaned parts. Abort failures are logged and never mask the original error.
func (w *Writer) abort(key, uploadID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := w.store.AbortMultipart(ctx, key, uploadID); err != nil {
		logJSON(map[string]any{
			"component": "storage",
			"event":     "multipart_abort_failed",
			"level":     "error",
			"key":       key,
			"upload_id": uploadID,
			"error":     err.Error(),
		})
	}
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
