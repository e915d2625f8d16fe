package cleanup

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Record names the transient files owned by one upload.
type Record struct {
	TempFile   string   // absolute path of the temporary combined file
	ChunkFiles []string // absolute paths of the chunk files
	FinalFile  string   // base name of the final artifact, once known
}

type entry struct {
	rec       Record
	cleanedAt time.Time // zero until a cleanup pass consumed the entry
}

// Ledger tracks which transient files belong to which upload and removes
// them when the pipeline finishes, on either branch. Entries are retained
// for a bounded window after cleanup so the orphan sweeper can recognize
// recently-handled artifacts, then dropped.
type Ledger struct {
	mu        sync.Mutex
	entries   map[string]*entry
	chunkDir  string
	outputDir string
	retention time.Duration
}

func NewLedger(chunkDir, outputDir string, retention time.Duration) *Ledger {
	return &Ledger{
		entries:   make(map[string]*entry),
		chunkDir:  chunkDir,
		outputDir: outputDir,
		retention: retention,
	}
}

// Register stores or merge-updates the record for an upload. Later calls may
// add the final file name; earlier fields are preserved when the new record
// leaves them empty.
func (l *Ledger) Register(uploadID string, rec Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[uploadID]
	if !ok {
		l.entries[uploadID] = &entry{rec: rec}
		return
	}
	if rec.TempFile != "" {
		e.rec.TempFile = rec.TempFile
	}
	if len(rec.ChunkFiles) > 0 {
		e.rec.ChunkFiles = rec.ChunkFiles
	}
	if rec.FinalFile != "" {
		e.rec.FinalFile = rec.FinalFile
	}
	e.cleanedAt = time.Time{}
}

// Reset installs a fresh record for a new pipeline run, discarding whatever
// an earlier run for the same upload registered. A failure in the new run
// must not delete a previous run's artifact.
func (l *Ledger) Reset(uploadID string, rec Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[uploadID] = &entry{rec: rec}
}

// Cleanup removes every transient file for the upload. It is idempotent and
// best-effort: deletion errors are logged and swallowed so cleanup never
// masks the pipeline's own outcome. When success is false the final artifact
// is deleted too, since a failed pipeline must not leave a partially-valid
// output visible.
func (l *Ledger) Cleanup(uploadID string, success bool) {
	l.mu.Lock()
	e, ok := l.entries[uploadID]
	var rec Record
	if ok {
		rec = e.rec
		e.cleanedAt = time.Now()
	}
	l.mu.Unlock()

	// Scan the chunk directory by prefix rather than trusting the record
	// alone, so chunks the ledger never learned about are removed as well.
	prefix := uploadID + "-"
	if dirents, err := os.ReadDir(l.chunkDir); err == nil {
		for _, d := range dirents {
			if d.IsDir() || !strings.HasPrefix(d.Name(), prefix) {
				continue
			}
			removeQuiet(filepath.Join(l.chunkDir, d.Name()))
		}
	}
	for _, f := range rec.ChunkFiles {
		removeQuiet(f)
	}
	if rec.TempFile != "" {
		removeQuiet(rec.TempFile)
	}
	if !success && rec.FinalFile != "" {
		removeQuiet(filepath.Join(l.outputDir, rec.FinalFile))
	}

	l.expire()
}

// ProtectsFinal reports whether name matches the final artifact of a live,
// uncleaned ledger entry. The sweeper uses this to spare artifacts whose
// sync is still pending.
func (l *Ledger) ProtectsFinal(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range l.entries {
		if e.cleanedAt.IsZero() && e.rec.FinalFile == name {
			return true
		}
	}
	return false
}

// expire drops cleaned entries past the retention window. Callers must not
// hold l.mu.
func (l *Ledger) expire() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.retention)
	for id, e := range l.entries {
		if !e.cleanedAt.IsZero() && e.cleanedAt.Before(cutoff) {
			delete(l.entries, id)
		}
	}
}

func removeQuiet(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", path).Msg("cleanup failed to remove file")
	}
}
