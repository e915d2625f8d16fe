package transform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestPreserveTransformerCopiesBytes(t *testing.T) {
	src := writeFile(t, t.TempDir(), "combined.tmp", []byte("original bytes"))
	dst := filepath.Join(t.TempDir(), "final.jpg")

	res, err := NewPreserveTransformer().Transform(context.Background(), src, dst, Options{Type: TypeAuto})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, dst, res.Path)
	assert.Equal(t, TypePreserve, res.ProcessingType)
	assert.Equal(t, int64(14), res.OriginalSize)
	assert.Equal(t, res.OriginalSize, res.FinalSize)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("original bytes"), data)
	assert.FileExists(t, src, "input is never destroyed")
}

func TestPreserveTransformerMissingSource(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "final.jpg")
	_, err := NewPreserveTransformer().Transform(context.Background(), "/does/not/exist", dst, Options{})
	assert.Error(t, err)
}

func TestHTTPTransformerWritesServiceOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1 << 20))
		assert.Equal(t, TypeOptimize, r.FormValue("type"))
		assert.Equal(t, "80", r.FormValue("quality"))

		w.Header().Set("X-Processing-Type", TypeOptimize)
		w.Write([]byte("optimized"))
	}))
	defer srv.Close()

	src := writeFile(t, t.TempDir(), "combined.tmp", []byte("original long content"))
	dst := filepath.Join(t.TempDir(), "final.jpg")

	res, err := NewHTTPTransformer(srv.URL).Transform(context.Background(), src, dst, Options{Type: TypeOptimize, Quality: 80})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, TypeOptimize, res.ProcessingType)
	assert.Equal(t, int64(21), res.OriginalSize)
	assert.Equal(t, int64(9), res.FinalSize)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("optimized"), data)
}

func TestHTTPTransformerServiceErrorPreservesInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported format", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	src := writeFile(t, t.TempDir(), "combined.tmp", []byte("original"))
	dst := filepath.Join(t.TempDir(), "final.jpg")

	res, err := NewHTTPTransformer(srv.URL).Transform(context.Background(), src, dst, Options{Type: TypeAuto})
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, src, res.Path, "failure points at the preserved input")
	assert.Contains(t, res.Reason, "unsupported format")
	assert.FileExists(t, src)
	assert.NoFileExists(t, dst)
}
