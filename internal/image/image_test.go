package image_test

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/plumekit/plume/internal/image"
	"github.com/plumekit/plume/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupFolder(t *testing.T, names ...string) string {
	t.Helper()

	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("img"), 0o644))
	}

	return dir
}

func newSource(t *testing.T, folder string) *image.Source {
	t.Helper()

	cfg := config.Default().Images
	cfg.Folder = folder

	return image.NewSource(&cfg, rand.New(rand.NewSource(1)), zap.NewNop())
}

func neverUsed(string) bool { return false }

func TestPickSkipsUsedImages(t *testing.T) {
	t.Parallel()

	dir := setupFolder(t, "a.jpg", "b.png", "notes.txt")
	source := newSource(t, dir)

	used := func(path string) bool { return filepath.Base(path) == "a.jpg" }

	for i := 0; i < 10; i++ {
		path, err := source.Pick(used)
		require.NoError(t, err)
		assert.Equal(t, "b.png", filepath.Base(path))
	}
}

func TestPickRecyclesWhenAllUsed(t *testing.T) {
	t.Parallel()

	dir := setupFolder(t, "a.jpg", "b.png")
	source := newSource(t, dir)

	path, err := source.Pick(func(string) bool { return true })
	require.NoError(t, err)
	assert.Contains(t, []string{"a.jpg", "b.png"}, filepath.Base(path))
}

func TestPickEmptyFolder(t *testing.T) {
	t.Parallel()

	source := newSource(t, setupFolder(t))

	_, err := source.Pick(neverUsed)
	require.ErrorIs(t, err, image.ErrNoImages)
}

func TestPickIgnoresUnknownExtensions(t *testing.T) {
	t.Parallel()

	dir := setupFolder(t, "readme.md", "data.json")
	source := newSource(t, dir)

	_, err := source.Pick(neverUsed)
	require.ErrorIs(t, err, image.ErrNoImages)
}

func TestUploadReturnsPublicURL(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "secret", r.FormValue("key"))

		_, _, err := r.FormFile("image")
		require.NoError(t, err)

		w.Write([]byte(`{"data":{"url":"https://img.example/x.jpg"}}`))
	}))
	t.Cleanup(server.Close)

	cfg := config.Default().Images
	cfg.UploadURL = server.URL
	cfg.UploadKey = "secret"

	uploader := image.NewUploader(&cfg, zap.NewNop())

	dir := setupFolder(t, "x.jpg")

	url, err := uploader.Upload(context.Background(), filepath.Join(dir, "x.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/x.jpg", url)
}

func TestUploadRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		w.Write([]byte(`{"data":{"url":"https://img.example/y.jpg"}}`))
	}))
	t.Cleanup(server.Close)

	cfg := config.Default().Images
	cfg.UploadURL = server.URL

	uploader := image.NewUploader(&cfg, zap.NewNop())

	dir := setupFolder(t, "y.jpg")

	url, err := uploader.Upload(context.Background(), filepath.Join(dir, "y.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/y.jpg", url)
	assert.Equal(t, int32(2), calls.Load())
}

func TestUploadNotConfigured(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Images
	uploader := image.NewUploader(&cfg, zap.NewNop())

	_, err := uploader.Upload(context.Background(), "whatever.jpg")
	require.ErrorIs(t, err, image.ErrUploaderNotConfigured)
}
