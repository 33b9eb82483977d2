package service

import (
	"fmt"
	"path"
	"strings"
	"time"

	"cdnapi/internal/model"
)

// Result is the canonical caller-facing shape of a successful ingestion.
// Older API versions are rendered from it by FormatResults; there is one
// internal result type and a formatting function per wire shape.
type Result struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
}

// ResultFrom builds the canonical result for an upload and its public URL.
func ResultFrom(up *model.Upload, url string) Result {
	return Result{
		ID:          up.ID,
		Filename:    up.Filename,
		Size:        up.Size,
		ContentType: up.ContentType,
		URL:         url,
		CreatedAt:   up.CreatedAt,
	}
}

// versionedFile is one entry of the v3 bulk response.
type versionedFile struct {
	DeployedURL string `json:"deployedUrl"`
	File        string `json:"file"`
	SHA         string `json:"sha"`
	Size        int64  `json:"size"`
}

type versionedResponse struct {
	Files   []versionedFile `json:"files"`
	CDNBase string          `json:"cdnBase"`
}

// shaFromURL recovers the content hash prefix of a stored file name
// ("<sha>_<name>"). Files stored under generated ids yield that id instead.
func shaFromURL(fileURL string) string {
	base := path.Base(fileURL)
	if i := strings.Index(base, "_"); i > 0 {
		return base[:i]
	}
	return base
}

// FormatResults renders results in the requested legacy wire shape.
// Version 1 is a bare URL list, version 2 a filename-to-URL map, anything
// else the current files+cdnBase object.
func FormatResults(results []Result, version int, cdnBase string) any {
	switch version {
	case 1:
		urls := make([]string, 0, len(results))
		for _, r := range results {
			urls = append(urls, r.URL)
		}
		return urls
	case 2:
		out := make(map[string]string, len(results))
		for i, r := range results {
			out[fmt.Sprintf("%d%s", i, path.Base(r.URL))] = r.URL
		}
		return out
	default:
		files := make([]versionedFile, 0, len(results))
		for i, r := range results {
			files = append(files, versionedFile{
				DeployedURL: r.URL,
				File:        fmt.Sprintf("%d_%s", i, path.Base(r.URL)),
				SHA:         shaFromURL(r.URL),
				Size:        r.Size,
			})
		}
		return versionedResponse{Files: files, CDNBase: cdnBase}
	}
}
