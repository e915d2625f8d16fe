package upload

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imagerelay/imagerelay/internal/domain"
)

func writeChunk(t *testing.T, chunkDir, uploadID string, index int, data []byte) {
	t.Helper()
	path := filepath.Join(chunkDir, fmt.Sprintf("%s-%d", uploadID, index))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestCombineConcatenatesInIndexOrder(t *testing.T) {
	chunkDir := t.TempDir()
	combiner := NewCombiner(chunkDir)

	// Written out of arrival order on purpose; only index order matters.
	writeChunk(t, chunkDir, "u1", 2, []byte("cc"))
	writeChunk(t, chunkDir, "u1", 0, []byte("aa"))
	writeChunk(t, chunkDir, "u1", 1, []byte("bb"))

	dst := filepath.Join(t.TempDir(), "combined")
	require.NoError(t, combiner.Combine("u1", 3, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("aabbcc"), data)
}

func TestCombineMissingChunkWritesNothing(t *testing.T) {
	chunkDir := t.TempDir()
	combiner := NewCombiner(chunkDir)

	writeChunk(t, chunkDir, "u1", 0, []byte("aa"))
	writeChunk(t, chunkDir, "u1", 2, []byte("cc"))

	dst := filepath.Join(t.TempDir(), "combined")
	err := combiner.Combine("u1", 3, dst)

	var missing *domain.MissingChunkError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, 1, missing.Index)

	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr), "no partial writes on missing chunk")
}

func TestCombineEmptyChunksAllowed(t *testing.T) {
	chunkDir := t.TempDir()
	combiner := NewCombiner(chunkDir)

	writeChunk(t, chunkDir, "u1", 0, nil)
	writeChunk(t, chunkDir, "u1", 1, []byte("x"))

	dst := filepath.Join(t.TempDir(), "combined")
	require.NoError(t, combiner.Combine("u1", 2, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
}

func TestChunkPathIsDeterministic(t *testing.T) {
	combiner := NewCombiner("/data/chunks")
	assert.Equal(t, filepath.Join("/data/chunks", "abc-7"), combiner.ChunkPath("abc", 7))
}
