package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/apperrors"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "normal path",
			input:    "2024/05/cat.jpg",
			expected: "2024/05/cat.jpg",
		},
		{
			name:     "windows path",
			input:    "2024\\05\\cat.jpg",
			expected: "2024/05/cat.jpg",
		},
		{
			name:     "path with spaces",
			input:    "uploads/my cat.jpg",
			expected: "uploads/my+cat.jpg",
		},
		{
			name:     "path with special chars",
			input:    "uploads/cat&dog+test.png",
			expected: "uploads/catanddog+test.png",
		},
		{
			name:     "path with double slashes",
			input:    "uploads//2024//cat.jpg",
			expected: "uploads/2024/cat.jpg",
		},
		{
			name:     "leading slash and zero-width space",
			input:    "/uploads/ca\u200bt.jpg",
			expected: "uploads/cat.jpg",
		},
		{
			name:     "empty path",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ObjectKey(tt.input)
			if result != tt.expected {
				t.Errorf("ObjectKey(%q) = %q; want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/jpeg", ContentType("a/B.JPG"))
	assert.Equal(t, "image/webp", ContentType("x.webp"))
	assert.Equal(t, "application/octet-stream", ContentType("notes.txt"))
	assert.True(t, IsImage("x.png"))
	assert.False(t, IsImage("x.pdf"))
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "2024/05/a.png", []byte("png-bytes"), "image/png", nil))
	data, contentType, err := store.Get(ctx, "2024/05/a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
	assert.Equal(t, "image/png", contentType)

	_, _, err = store.Get(ctx, "missing.jpg")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	_, _, err = store.Get(ctx, "../outside.jpg")
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	src := filepath.Join(t.TempDir(), "b.jpg")
	require.NoError(t, os.WriteFile(src, []byte("jpeg"), 0o644))
	n, err := store.PutFile(ctx, "b.jpg", src, "image/jpeg", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
