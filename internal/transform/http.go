package transform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"
)

// HTTPTransformer sends the combined file to an external transform service
// and writes the returned bytes to the final path. The request is retried on
// transport-level failures; an HTTP error status is reported as an
// unsuccessful Result rather than an error, since the original bytes are
// still intact at srcPath.
type HTTPTransformer struct {
	serviceURL string
	client     *retryablehttp.Client
}

func NewHTTPTransformer(serviceURL string) *HTTPTransformer {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil
	return &HTTPTransformer{serviceURL: serviceURL, client: client}
}

func (t *HTTPTransformer) Transform(ctx context.Context, srcPath, dstPath string, opts Options) (*Result, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", srcPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", srcPath, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(srcPath))
	if err != nil {
		return nil, fmt.Errorf("failed to build transform request: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", srcPath, err)
	}
	mw.WriteField("type", opts.Type)
	mw.WriteField("quality", strconv.Itoa(opts.Quality))
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize transform request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, t.serviceURL, body.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to build transform request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transform service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &Result{
			Success:      false,
			Path:         srcPath,
			OriginalSize: info.Size(),
			Reason:       fmt.Sprintf("transform service returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg)),
		}, nil
	}

	out, err := os.Create(dstPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dstPath, err)
	}
	written, err := io.Copy(out, resp.Body)
	if err != nil {
		out.Close()
		os.Remove(dstPath)
		return nil, fmt.Errorf("failed to write transformed artifact: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dstPath)
		return nil, fmt.Errorf("failed to close %s: %w", dstPath, err)
	}

	processingType := resp.Header.Get("X-Processing-Type")
	if processingType == "" {
		processingType = opts.Type
	}

	return &Result{
		Success:        true,
		Path:           dstPath,
		ProcessingType: processingType,
		OriginalSize:   info.Size(),
		FinalSize:      written,
	}, nil
}

var _ Transformer = (*HTTPTransformer)(nil)
