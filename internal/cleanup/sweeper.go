package cleanup

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// SweeperConfig holds the cadence and age thresholds for the orphan sweeps.
type SweeperConfig struct {
	Interval         time.Duration
	ChunkMaxAge      time.Duration
	ProcessingMaxAge time.Duration
	OutputMaxAge     time.Duration
}

// Sweeper periodically removes stale files that no live upload owns. It is
// an explicit scheduled task: Start launches the timer loop, Stop halts it,
// and Sweep runs a single pass so tests never depend on timer firings.
type Sweeper struct {
	ledger        *Ledger
	chunkDir      string
	processingDir string
	outputDir     string
	cfg           SweeperConfig
	stop          chan struct{}
	done          chan struct{}
}

func NewSweeper(ledger *Ledger, chunkDir, processingDir, outputDir string, cfg SweeperConfig) *Sweeper {
	return &Sweeper{
		ledger:        ledger,
		chunkDir:      chunkDir,
		processingDir: processingDir,
		outputDir:     outputDir,
		cfg:           cfg,
	}
}

// Start launches the periodic sweep loop.
func (s *Sweeper) Start() {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the sweep loop and waits for the current pass to finish.
func (s *Sweeper) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
}

// Sweep runs one pass over all three directories.
func (s *Sweeper) Sweep() {
	removed := 0
	removed += s.sweepDir(s.processingDir, s.cfg.ProcessingMaxAge, nil)
	removed += s.sweepDir(s.chunkDir, s.cfg.ChunkMaxAge, nil)
	removed += s.sweepDir(s.outputDir, s.cfg.OutputMaxAge, s.ledger.ProtectsFinal)
	s.ledger.expire()

	if removed > 0 {
		log.Info().Int("removed", removed).Msg("orphan sweep removed stale files")
	}
}

// sweepDir deletes regular files older than maxAge, skipping any whose name
// the protected func claims. Stat/remove races with concurrent pipeline
// activity are benign: a file may legitimately disappear between listing and
// deletion.
func (s *Sweeper) sweepDir(dir string, maxAge time.Duration, protected func(string) bool) int {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("dir", dir).Msg("sweep failed to read directory")
		}
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		if protected != nil && protected(d.Name()) {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, d.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("sweep failed to remove file")
			continue
		}
		removed++
	}
	return removed
}
