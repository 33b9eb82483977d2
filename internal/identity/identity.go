package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"
)

// Package identity derives the stable identity of a byte payload: its content
// hash, a storage-safe filename, and the deterministic key the object is
// stored under. Identical bytes and filename always produce the same key.

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9.-]`)

// Identity is the derived, immutable identity of a payload.
type Identity struct {
	Hash              string
	SanitizedFilename string
	StorageKey        string
}

// SanitizeFilename replaces every character outside [A-Za-z0-9.-] with an
// underscore. An empty result is substituted with a timestamp placeholder so
// the storage key never degenerates to the bare hash.
func SanitizeFilename(name string) string {
	sanitized := unsafeChars.ReplaceAllString(name, "_")
	if sanitized == "" {
		sanitized = fmt.Sprintf("upload_%d", time.Now().UnixMilli())
	}
	return sanitized
}

// Identify computes the content identity for data under the given namespace.
// The key layout is "<namespace>/<sha1-hex>_<sanitized-filename>".
func Identify(namespace string, data []byte, filename string) Identity {
	sum := sha1.Sum(data)
	hash := hex.EncodeToString(sum[:])
	sanitized := SanitizeFilename(filename)
	return Identity{
		Hash:              hash,
		SanitizedFilename: sanitized,
		StorageKey:        fmt.Sprintf("%s/%s_%s", namespace, hash, sanitized),
	}
}
