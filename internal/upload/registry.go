package upload

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of an upload session.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusInProgress   Status = "in_progress"
	StatusProcessing   Status = "processing"
	StatusFailed       Status = "failed"
)

// Session tracks one in-flight chunked upload.
type Session struct {
	ID          string
	Received    map[int]struct{}
	TotalChunks int
	Filename    string
	CreatedAt   time.Time
	LastChunkAt time.Time
	Status      Status
	LastError   string
}

// Registry is the concurrency-safe table of live upload sessions. Sessions
// are removed on completion or cancellation; failed sessions stay queryable
// until cancelled or swept.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create registers a new session under a server-generated identifier and
// returns that identifier.
func (r *Registry) Create() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	r.sessions[id] = &Session{
		ID:        id,
		Received:  make(map[int]struct{}),
		CreatedAt: time.Now(),
		Status:    StatusInitializing,
	}
	return id
}

// Get returns a snapshot of the session. Mutating the returned value does
// not affect the registry.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	snap := *s
	snap.Received = make(map[int]struct{}, len(s.Received))
	for i := range s.Received {
		snap.Received[i] = struct{}{}
	}
	return snap, true
}

// Update applies fn to the session under the registry lock. It returns false
// if the identifier is not registered.
func (r *Registry) Update(id string, fn func(*Session)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	fn(s)
	return true
}

// Delete removes the session.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
