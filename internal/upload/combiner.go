package upload

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/imagerelay/imagerelay/internal/domain"
)

// Combiner reassembles chunk files into a single artifact. Chunks are raw
// byte ranges of the original file, so write order must follow chunk index
// order exactly.
type Combiner struct {
	chunkDir string
}

func NewCombiner(chunkDir string) *Combiner {
	return &Combiner{chunkDir: chunkDir}
}

// ChunkPath returns the deterministic on-disk path for one chunk.
func (c *Combiner) ChunkPath(uploadID string, index int) string {
	return filepath.Join(c.chunkDir, fmt.Sprintf("%s-%d", uploadID, index))
}

// Combine verifies that every chunk in [0, totalChunks) exists, then streams
// them in ascending index order into dst. The destination is flushed and
// closed before Combine reports success; if any chunk is missing nothing is
// written at all.
func (c *Combiner) Combine(uploadID string, totalChunks int, dst string) error {
	for i := 0; i < totalChunks; i++ {
		if _, err := os.Stat(c.ChunkPath(uploadID, i)); err != nil {
			return &domain.MissingChunkError{UploadID: uploadID, Index: i}
		}
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create combined file %s: %w", dst, err)
	}
	w := bufio.NewWriter(out)

	for i := 0; i < totalChunks; i++ {
		if err := c.appendChunk(w, uploadID, i); err != nil {
			out.Close()
			os.Remove(dst)
			return err
		}
	}

	if err := w.Flush(); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to flush combined file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to close combined file: %w", err)
	}
	return nil
}

func (c *Combiner) appendChunk(w io.Writer, uploadID string, index int) error {
	path := c.ChunkPath(uploadID, index)
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open chunk %d: %w", index, err)
	}
	defer in.Close()

	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("failed to copy chunk %d: %w", index, err)
	}
	return nil
}
