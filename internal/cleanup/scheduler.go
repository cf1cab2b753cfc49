package cleanup

import (
	"log"
	"os"
	"path/filepath"
	"time"
)

// mediaExtensions are the artifact kinds the pipeline can leave behind in
// the temp directory if the process dies mid-item.
var mediaExtensions = map[string]bool{
	".mp4": true,
	".wav": true,
	".tmp": true,
}

// Scheduler sweeps stale media artifacts out of the temp directory. The
// pipeline cleans up after itself on every path, so anything the sweeper
// finds is debris from a crashed or killed run.
type Scheduler struct {
	tempDir  string
	interval time.Duration
	maxAge   time.Duration
	stop     chan struct{}
}

// NewScheduler creates a sweeper over tempDir removing media files older
// than maxAge every interval.
func NewScheduler(tempDir string, interval, maxAge time.Duration) *Scheduler {
	return &Scheduler{
		tempDir:  tempDir,
		interval: interval,
		maxAge:   maxAge,
		stop:     make(chan struct{}),
	}
}

// Start runs one sweep immediately and then sweeps on the interval until
// Stop is called.
func (s *Scheduler) Start() {
	s.sweep()

	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stop:
				return
			}
		}
	}()

	log.Printf("Temp sweeper started (interval %s, max age %s)", s.interval, s.maxAge)
}

// Stop halts the periodic sweeps.
func (s *Scheduler) Stop() {
	close(s.stop)
	log.Println("Temp sweeper stopped")
}

// sweep removes stale media files directly under the temp directory and
// returns how many were deleted.
func (s *Scheduler) sweep() int {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Temp sweep failed to read %s: %v", s.tempDir, err)
		}
		return 0
	}

	cutoff := time.Now().Add(-s.maxAge)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() || !mediaExtensions[filepath.Ext(entry.Name())] {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(s.tempDir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Printf("Temp sweep failed to remove %s: %v", path, err)
			continue
		}
		removed++
		log.Printf("Removed stale temp file %s (age %s)",
			entry.Name(), time.Since(info.ModTime()).Round(time.Minute))
	}

	if removed > 0 {
		log.Printf("Temp sweep removed %d stale files", removed)
	}
	return removed
}

// EnsureDir creates dir if needed.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
