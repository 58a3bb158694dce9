// Package storage holds media objects, either in MinIO or in a local directory.
package storage

import (
	"context"
	"net/url"
	"path"
	"strings"
)

// Store reads and writes media objects by key
type Store interface {
	// Get returns the object bytes and content type. A missing object is a
	// not_found error.
	Get(ctx context.Context, key string) ([]byte, string, error)
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error
	// PutFile uploads a local file and returns the stored size
	PutFile(ctx context.Context, key, filePath, contentType string, metadata map[string]string) (int64, error)
	// Name describes the backing location for logs
	Name() string
}

// ObjectKey turns a relative file path into a storage key: separators are
// normalized, every segment is query-escaped and empty segments are dropped.
func ObjectKey(p string) string {
	p = strings.Map(func(r rune) rune {
		switch r {
		case '\u3000': // full-width space
			return ' '
		case '\u200B', '\uFEFF': // zero-width space and BOM
			return -1
		default:
			return r
		}
	}, p)
	p = strings.ReplaceAll(p, "\\", "/")

	segments := strings.Split(p, "/")
	for i, segment := range segments {
		// decode first in case it's already encoded
		if decoded, err := url.QueryUnescape(segment); err == nil {
			segment = decoded
		}
		segment = strings.ReplaceAll(segment, "&", "and")
		segment = strings.ReplaceAll(segment, "+", "plus")
		segments[i] = url.QueryEscape(segment)
	}

	key := strings.Join(segments, "/")
	for strings.Contains(key, "//") {
		key = strings.ReplaceAll(key, "//", "/")
	}
	return strings.TrimPrefix(key, "/")
}

// ContentType guesses an image mime type from the key extension
func ContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".avif":
		return "image/avif"
	case ".heic":
		return "image/heic"
	case ".svg":
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}

// IsImage reports whether the key has an image extension
func IsImage(key string) bool {
	return strings.HasPrefix(ContentType(key), "image/")
}
