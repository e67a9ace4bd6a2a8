package storage

import (
	"strings"
	"testing"

	"github.com/goldleaf/storefront/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewObjectKey(t *testing.T) {
	key := NewObjectKey("products", "Ring Photo.JPG")
	assert.True(t, strings.HasPrefix(key, "products/"))
	assert.True(t, strings.HasSuffix(key, ".jpg"))
	assert.NotEqual(t, key, NewObjectKey("products", "Ring Photo.JPG"))
}

func TestMediaKind(t *testing.T) {
	assert.Equal(t, "image", MediaKind("a.PNG"))
	assert.Equal(t, "video", MediaKind("clip.mp4"))
	assert.Equal(t, "", MediaKind("script.exe"))
}

func TestNewS3StoreNotConfigured(t *testing.T) {
	_, err := NewS3Store(config.StorageConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestS3StoreURL(t *testing.T) {
	s, err := NewS3Store(config.StorageConfig{Endpoint: "s3.example.com", Bucket: "media", UseSSL: true})
	require.NoError(t, err)
	assert.Equal(t, "https://s3.example.com/media/products/a.jpg", s.URL("/products/a.jpg"))

	s, err = NewS3Store(config.StorageConfig{Endpoint: "s3.example.com", Bucket: "media", PublicBaseURL: "https://cdn.example.com/"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/x.png", s.URL("x.png"))
}
