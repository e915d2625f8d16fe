package transform

import (
	"context"
	"fmt"
	"io"
	"os"
)

// PreserveTransformer copies the combined file to the final path unchanged.
// It is the default when no transform service is configured and the fallback
// when the service fails.
type PreserveTransformer struct{}

func NewPreserveTransformer() *PreserveTransformer {
	return &PreserveTransformer{}
}

func (t *PreserveTransformer) Transform(ctx context.Context, srcPath, dstPath string, opts Options) (*Result, error) {
	size, err := copyFile(srcPath, dstPath)
	if err != nil {
		return nil, err
	}
	return &Result{
		Success:        true,
		Path:           dstPath,
		ProcessingType: TypePreserve,
		OriginalSize:   size,
		FinalSize:      size,
	}, nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dst, err)
	}

	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		os.Remove(dst)
		return 0, fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return 0, fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return n, nil
}

var _ Transformer = (*PreserveTransformer)(nil)
