package syncqueue

import (
	"strings"
	"time"
	"unicode"
)

// TaskStatus represents the state of a single relay task. Transitions are
// monotonic: pending -> syncing -> completed | failed. Retries re-enter
// syncing without resetting the submission timestamp.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskSyncing   TaskStatus = "syncing"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// FileInfo describes one artifact to relay to remote storage.
type FileInfo struct {
	Path              string
	Key               string
	ContentType       string
	Metadata          map[string]string
	DeleteAfterUpload bool
}

// Task tracks the lifecycle of one relay.
type Task struct {
	ID          string
	Status      TaskStatus
	SubmittedAt time.Time
	CompletedAt *time.Time
	LastError   string
	Path        string
	Key         string
	Attempts    int
}

// TaskView is the status surface returned to callers, with live queue
// counters attached.
type TaskView struct {
	Task
	QueueDepth    int64
	ActiveWorkers int64
	MaxConcurrent int
}

// QueueStats is the aggregate monitoring surface.
type QueueStats struct {
	Pending       int64
	Syncing       int64
	Completed     int64
	Failed        int64
	MaxConcurrent int
	MaxRetries    int
}

// payload is the durable form of a task handed to the queue engine. It
// carries everything needed to resume the transfer after a restart,
// including the original submission timestamp.
type payload struct {
	TaskID            string            `json:"task_id"`
	Path              string            `json:"path"`
	Key               string            `json:"key"`
	ContentType       string            `json:"content_type"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	DeleteAfterUpload bool              `json:"delete_after_upload"`
	SubmittedAt       time.Time         `json:"submitted_at"`
}

// sanitizeMetadata strips non-printable characters from keys and values.
// Object stores reject control bytes in metadata headers, so this runs as a
// mandatory pre-transport transform regardless of the storage client.
func sanitizeMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		key := stripNonPrintable(k)
		if key == "" {
			continue
		}
		out[key] = stripNonPrintable(v)
	}
	return out
}

func stripNonPrintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, s)
}
