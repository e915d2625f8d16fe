package syncqueue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imagerelay/imagerelay/internal/domain"
	"github.com/imagerelay/imagerelay/internal/queue"
)

type putRecord struct {
	Key         string
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

// flakyStore fails its first n PutObject calls, then succeeds.
type flakyStore struct {
	mu       sync.Mutex
	failures int
	calls    int
	puts     []putRecord
}

func (s *flakyStore) PutObject(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.calls <= s.failures {
		return errors.New("connection reset by peer")
	}
	s.puts = append(s.puts, putRecord{Key: key, Data: data, ContentType: contentType, Metadata: metadata})
	return nil
}

func (s *flakyStore) recorded() []putRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]putRecord(nil), s.puts...)
}

func newTestQueue(t *testing.T, failures, maxRetries int) (*Queue, *flakyStore) {
	t.Helper()
	store := &flakyStore{failures: failures}
	q := New(queue.NewMemoryEngine(), store, Config{
		MaxConcurrent: 2,
		MaxRetries:    maxRetries,
		RetryDelay:    time.Millisecond,
	})
	q.Start(context.Background())
	t.Cleanup(q.Stop)
	return q, store
}

func writeSource(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func waitForStatus(t *testing.T, q *Queue, taskID string, want TaskStatus) TaskView {
	t.Helper()
	var view TaskView
	require.Eventually(t, func() bool {
		v, err := q.GetStatus(context.Background(), taskID)
		if err != nil {
			return false
		}
		view = v
		return v.Status == want
	}, 5*time.Second, 5*time.Millisecond)
	return view
}

func TestSubmitTransfersAndCompletes(t *testing.T) {
	q, store := newTestQueue(t, 0, 3)
	src := writeSource(t, "artifact.txt", []byte("payload bytes"))

	taskID, err := q.Submit(context.Background(), FileInfo{
		Path:     src,
		Key:      "uploads/artifact.txt",
		Metadata: map[string]string{"original-filename": "artifact.txt"},
	})
	require.NoError(t, err)

	view := waitForStatus(t, q, taskID, TaskCompleted)
	assert.NotNil(t, view.CompletedAt)
	assert.Empty(t, view.LastError)
	assert.Zero(t, view.Attempts)

	puts := store.recorded()
	require.Len(t, puts, 1)
	assert.Equal(t, "uploads/artifact.txt", puts[0].Key)
	assert.Equal(t, []byte("payload bytes"), puts[0].Data)
	assert.Contains(t, puts[0].ContentType, "text/plain")
	assert.Equal(t, "artifact.txt", puts[0].Metadata["original-filename"])

	// Source kept without delete-after-upload.
	assert.FileExists(t, src)
}

func TestRetryThenSucceed(t *testing.T) {
	q, store := newTestQueue(t, 2, 3)
	src := writeSource(t, "artifact.bin", []byte{0x01, 0x02})

	taskID, err := q.Submit(context.Background(), FileInfo{Path: src, Key: "k"})
	require.NoError(t, err)

	view := waitForStatus(t, q, taskID, TaskCompleted)
	assert.Equal(t, 2, view.Attempts, "two failed attempts before success")
	require.Len(t, store.recorded(), 1)
}

func TestRetriesExhaustedMarksFailed(t *testing.T) {
	q, store := newTestQueue(t, 10, 3)
	src := writeSource(t, "artifact.bin", []byte{0x01})

	taskID, err := q.Submit(context.Background(), FileInfo{Path: src, Key: "k"})
	require.NoError(t, err)

	view := waitForStatus(t, q, taskID, TaskFailed)
	assert.Equal(t, 3, view.Attempts)
	assert.Contains(t, view.LastError, "connection reset")
	assert.Empty(t, store.recorded())
}

func TestDeleteAfterUpload(t *testing.T) {
	q, _ := newTestQueue(t, 0, 1)
	src := writeSource(t, "artifact.bin", []byte("x"))

	taskID, err := q.Submit(context.Background(), FileInfo{Path: src, Key: "k", DeleteAfterUpload: true})
	require.NoError(t, err)

	waitForStatus(t, q, taskID, TaskCompleted)
	assert.NoFileExists(t, src)
}

func TestRetriesKeepSubmissionTimestamp(t *testing.T) {
	q, _ := newTestQueue(t, 1, 2)
	src := writeSource(t, "artifact.bin", []byte("x"))

	taskID, err := q.Submit(context.Background(), FileInfo{Path: src, Key: "k"})
	require.NoError(t, err)

	before, err := q.GetStatus(context.Background(), taskID)
	require.NoError(t, err)

	after := waitForStatus(t, q, taskID, TaskCompleted)
	assert.Equal(t, before.SubmittedAt, after.SubmittedAt)
}

func TestMetadataSanitizedBeforeTransport(t *testing.T) {
	q, store := newTestQueue(t, 0, 1)
	src := writeSource(t, "artifact.bin", []byte("x"))

	taskID, err := q.Submit(context.Background(), FileInfo{
		Path: src,
		Key:  "k",
		Metadata: map[string]string{
			"name":          "pho\x00to.jpg",
			"desc\x1b":      "clean\tvalue",
			"\x00\x01\x02":  "dropped key",
			"already-clean": "kept",
		},
	})
	require.NoError(t, err)

	waitForStatus(t, q, taskID, TaskCompleted)
	puts := store.recorded()
	require.Len(t, puts, 1)
	md := puts[0].Metadata
	assert.Equal(t, "photo.jpg", md["name"])
	assert.Equal(t, "cleanvalue", md["desc"])
	assert.Equal(t, "kept", md["already-clean"])
	assert.NotContains(t, md, "")
}

func TestGetStatusUnknownTask(t *testing.T) {
	q, _ := newTestQueue(t, 0, 1)

	_, err := q.GetStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestSubmitValidation(t *testing.T) {
	q, _ := newTestQueue(t, 0, 1)

	var verr *domain.ValidationError
	_, err := q.Submit(context.Background(), FileInfo{Key: "k"})
	assert.ErrorAs(t, err, &verr)

	_, err = q.Submit(context.Background(), FileInfo{Path: "/tmp/x"})
	assert.ErrorAs(t, err, &verr)
}

func TestQueueStats(t *testing.T) {
	q, _ := newTestQueue(t, 10, 1)
	src := writeSource(t, "artifact.bin", []byte("x"))

	taskID, err := q.Submit(context.Background(), FileInfo{Path: src, Key: "k"})
	require.NoError(t, err)
	waitForStatus(t, q, taskID, TaskFailed)

	stats := q.GetQueueStats(context.Background())
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, 2, stats.MaxConcurrent)
	assert.Equal(t, 1, stats.MaxRetries)
}
