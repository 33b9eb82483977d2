package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"cdnapi/internal/config"
)

// Package fetch retrieves byte payloads from remote URLs on behalf of the
// ingestion pipeline. Sources are untrusted or semi-trusted: redirects are not
// followed, and large downloads fall back to ranged chunk retrieval with
// bounded concurrency and per-chunk retries.

// Payload is the result of a successful fetch. The byte buffer is owned by
// the caller; the fetcher retains no reference after returning.
type Payload struct {
	Bytes       []byte
	Size        int64
	ContentType string
	SourceURL   string
}

// RetryPolicy is an explicit bounded-retry policy for chunk downloads.
// Delay doubles per attempt starting from BaseDelay.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Backoff returns the delay before the given retry (0-based).
func (p RetryPolicy) Backoff(retry int) time.Duration {
	return p.BaseDelay << retry
}

// Fetcher downloads remote files with connect and total timeouts enforced.
// It is safe for concurrent use by multiple goroutines.
type Fetcher struct {
	client *http.Client
	cfg    config.FetchConfig
	retry  RetryPolicy
}

// New creates a Fetcher from the given configuration.
func New(cfg config.FetchConfig) *Fetcher {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ConnectTimeout * 2,
		MaxIdleConnsPerHost:   cfg.ChunkConcurrency,
	}
	return &Fetcher{
		client: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			// Redirects are surfaced to the caller, never followed.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		cfg: cfg,
		retry: RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.RetryBaseDelay,
		},
	}
}

// NormalizeAuthorization turns a raw credential into a bearer-style header
// value, leaving already-prefixed values untouched.
func NormalizeAuthorization(credential string) string {
	if credential == "" {
		return ""
	}
	if strings.HasPrefix(credential, "Bearer ") {
		return credential
	}
	return "Bearer " + credential
}

// Fetch downloads the resource at rawURL, presenting forwardedAuth to the
// source when set. Declared sizes above the chunk threshold are retrieved via
// ranged chunks; so is any download whose direct read fails with a known size.
// Downloads larger than the configured MaxSize fail before the payload is
// buffered in full.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, forwardedAuth string) (*Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.TotalTimeout)
	defer cancel()

	auth := NormalizeAuthorization(forwardedAuth)

	resp, err := f.get(ctx, rawURL, auth, "")
	if err != nil {
		return nil, &Error{Kind: KindDownloadFailed, URL: rawURL, Err: err}
	}

	if ferr := classifyStatus(resp, rawURL); ferr != nil {
		resp.Body.Close()
		return nil, ferr
	}

	size := resp.ContentLength
	if f.cfg.MaxSize > 0 && size > f.cfg.MaxSize {
		resp.Body.Close()
		return nil, &Error{
			Kind:   KindDownloadFailed,
			Status: resp.StatusCode,
			URL:    rawURL,
			Err:    fmt.Errorf("declared size %d exceeds download limit %d", size, f.cfg.MaxSize),
		}
	}

	var data []byte
	switch {
	case size >= f.cfg.ChunkThreshold:
		// Large declared size: drop the direct body and retrieve by ranges.
		resp.Body.Close()
		data, err = f.fetchChunked(ctx, rawURL, auth, size)
		if err != nil {
			return nil, err
		}
	default:
		body := io.Reader(resp.Body)
		if f.cfg.MaxSize > 0 {
			// The declared size may be absent or lie; never buffer past the cap.
			body = io.LimitReader(resp.Body, f.cfg.MaxSize+1)
		}
		data, err = io.ReadAll(body)
		resp.Body.Close()
		if err == nil && f.cfg.MaxSize > 0 && int64(len(data)) > f.cfg.MaxSize {
			return nil, &Error{
				Kind: KindDownloadFailed,
				URL:  rawURL,
				Err:  fmt.Errorf("download exceeds limit of %d bytes", f.cfg.MaxSize),
			}
		}
		if err != nil {
			if size > 0 {
				// Direct read failed mid-body; the size is known, so ranged
				// retrieval can still recover the payload.
				logJSON(map[string]any{
					"component": "fetch",
					"event":     "direct_read_failed",
					"level":     "warn",
					"url":       rawURL,
					"error":     err.Error(),
				})
				data, err = f.fetchChunked(ctx, rawURL, auth, size)
				if err != nil {
					return nil, err
				}
			} else {
				return nil, &Error{Kind: KindDownloadFailed, URL: rawURL, Err: err}
			}
		}
	}

	return &Payload{
		Bytes:       data,
		Size:        int64(len(data)),
		ContentType: sniffContentType(data, rawURL, resp.Header.Get("Content-Type")),
		SourceURL:   rawURL,
	}, nil
}

// fetchChunked splits [0, size) into equal-ish ranges of the configured chunk
// size, fetches them concurrently, and reassembles them in index order. The
// reassembled length is verified; a mismatch is a hard failure.
func (f *Fetcher) fetchChunked(ctx context.Context, rawURL, auth string, size int64) ([]byte, error) {
	if confirmed, ok := f.probeSize(ctx, rawURL, auth); ok {
		size = confirmed
	}
	if size <= 0 {
		return nil, &Error{Kind: KindDownloadFailed, URL: rawURL, Err: fmt.Errorf("chunked fetch requires a known size")}
	}
	if f.cfg.MaxSize > 0 && size > f.cfg.MaxSize {
		// The HEAD probe may reveal a true size larger than declared.
		return nil, &Error{Kind: KindDownloadFailed, URL: rawURL, Err: fmt.Errorf("size %d exceeds download limit %d", size, f.cfg.MaxSize)}
	}

	chunkSize := f.cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 10 * 1024 * 1024
	}
	numChunks := int((size + chunkSize - 1) / chunkSize)

	buf := make([]byte, size)
	written := make([]int64, numChunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.ChunkConcurrency)

	for i := 0; i < numChunks; i++ {
		i := i
		start := int64(i) * chunkSize
		end := start + chunkSize - 1
		if end >= size {
			end = size - 1
		}
		g.Go(func() error {
			n, err := f.fetchRangeWithRetry(gctx, rawURL, auth, start, end, buf[start:end+1])
			if err != nil {
				return err
			}
			written[i] = n
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int64
	for _, n := range written {
		total += n
	}
	if total != size {
		return nil, &Error{
			Kind: KindDownloadFailed,
			URL:  rawURL,
			Err:  fmt.Errorf("reassembled %d bytes, expected %d", total, size),
		}
	}
	return buf, nil
}

// probeSize issues a HEAD request to confirm the true size before chunking.
// A failed probe is logged and ignored; the declared size stands.
func (f *Fetcher) probeSize(ctx context.Context, rawURL, auth string) (int64, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, false
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := f.client.Do(req)
	if err != nil || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status := 0
		if resp != nil {
			status = resp.StatusCode
			resp.Body.Close()
		}
		logJSON(map[string]any{
			"component": "fetch",
			"event":     "head_probe_failed",
			"level":     "warn",
			"url":       rawURL,
			"status":    status,
		})
		return 0, false
	}
	defer resp.Body.Close()
	if resp.ContentLength <= 0 {
		return 0, false
	}
	return resp.ContentLength, true
}

// fetchRangeWithRetry retries a single range download with doubling backoff
// before giving up on the whole operation. Auth rejections are not retried.
func (f *Fetcher) fetchRangeWithRetry(ctx context.Context, rawURL, auth string, start, end int64, dst []byte) (int64, error) {
	var lastErr error
	for attempt := 0; attempt <= f.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, &Error{Kind: KindDownloadFailed, URL: rawURL, Err: ctx.Err()}
			case <-time.After(f.retry.Backoff(attempt - 1)):
			}
		}
		n, err := f.fetchRange(ctx, rawURL, auth, start, end, dst)
		if err == nil {
			return n, nil
		}
		if IsAuthFailed(err) {
			return 0, err
		}
		lastErr = err
	}
	return 0, lastErr
}

// fetchRange downloads bytes [start, end] into dst. A server that ignores the
// Range header and answers 200 is tolerated: the needed sub-range is sliced
// out of the full body instead of failing.
func (f *Fetcher) fetchRange(ctx context.Context, rawURL, auth string, start, end int64, dst []byte) (int64, error) {
	resp, err := f.get(ctx, rawURL, auth, fmt.Sprintf("bytes=%d-%d", start, end))
	if err != nil {
		return 0, &Error{Kind: KindDownloadFailed, URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	want := end - start + 1

	switch resp.StatusCode {
	case http.StatusPartialContent:
		n, err := io.ReadFull(resp.Body, dst[:want])
		if err != nil {
			return 0, &Error{Kind: KindDownloadFailed, URL: rawURL, Err: fmt.Errorf("range %d-%d short read: %w", start, end, err)}
		}
		return int64(n), nil
	case http.StatusOK:
		full, err := io.ReadAll(resp.Body)
		if err != nil {
			return 0, &Error{Kind: KindDownloadFailed, URL: rawURL, Err: err}
		}
		if int64(len(full)) < end+1 {
			return 0, &Error{Kind: KindDownloadFailed, URL: rawURL, Err: fmt.Errorf("full body %d bytes cannot satisfy range %d-%d", len(full), start, end)}
		}
		copy(dst[:want], full[start:end+1])
		return want, nil
	default:
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			// A 2xx other than 200/206 carries no usable range body.
			return 0, &Error{
				Kind:   KindDownloadFailed,
				Status: resp.StatusCode,
				URL:    rawURL,
				Err:    fmt.Errorf("unexpected status for range request: %s", resp.Status),
			}
		}
		return 0, classifyStatus(resp, rawURL)
	}
}

func (f *Fetcher) get(ctx context.Context, rawURL, auth, byteRange string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if byteRange != "" {
		req.Header.Set("Range", byteRange)
	}
	return f.client.Do(req)
}

// classifyStatus maps a non-success response to a typed error. Redirects are
// failures carrying the Location for diagnostics; the fetcher never follows
// them.
func classifyStatus(resp *http.Response, rawURL string) *Error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &Error{
			Kind:   KindAuthFailed,
			Status: resp.StatusCode,
			URL:    rawURL,
			Err:    fmt.Errorf("source rejected credential: %s", resp.Status),
		}
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return &Error{
			Kind:     KindDownloadFailed,
			Status:   resp.StatusCode,
			URL:      rawURL,
			Location: resp.Header.Get("Location"),
			Err:      fmt.Errorf("redirect not followed: %s", resp.Status),
		}
	default:
		return &Error{
			Kind:   KindDownloadFailed,
			Status: resp.StatusCode,
			URL:    rawURL,
			Err:    fmt.Errorf("download failed: %s", resp.Status),
		}
	}
}

// sniffContentType determines the payload content type from magic numbers,
// then the URL extension, then the response header, then a generic fallback.
func sniffContentType(data []byte, rawURL, headerType string) string {
	sniffed := http.DetectContentType(data)
	if sniffed != "" && sniffed != "application/octet-stream" {
		return sniffed
	}
	if u, err := url.Parse(rawURL); err == nil {
		if byExt := mime.TypeByExtension(path.Ext(u.Path)); byExt != "" {
			return byExt
		}
	}
	if headerType != "" {
		return headerType
	}
	return "application/octet-stream"
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
