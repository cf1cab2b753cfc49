package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codebuildervaibhav/video-transcriber/internal/types"
)

// Store is the durable record of per-video processing state, backed by a
// single JSON file. It is the only writer of status records: the pipeline
// requests updates through Set and never touches the backing file.
//
// Every mutation rewrites the whole file through a temp file + rename, so
// a crash leaves either the old snapshot or the new one, never a partial
// write. The tracked set is small and writes happen once per processed
// video, so the O(n) write amplification is acceptable.
type Store struct {
	path string

	mu          sync.Mutex
	records     map[string]*types.StatusRecord
	lastUpdated time.Time
}

// snapshot is the on-disk layout of the status file.
type snapshot struct {
	LastUpdated time.Time                      `json:"last_updated"`
	Videos      map[string]*types.StatusRecord `json:"videos"`
}

// NewStore opens the status file at path, creating parent directories and
// starting empty when the file does not exist yet.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create status directory: %w", err)
	}

	s := &Store{
		path:    path,
		records: make(map[string]*types.StatusRecord),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse status file %s: %w", path, err)
	}
	if snap.Videos != nil {
		s.records = snap.Videos
	}
	s.lastUpdated = snap.LastUpdated

	return s, nil
}

// Set records a status for the given video id. The record is created on
// first write (fixing created_at); updated_at is always bumped. A non-empty
// errMsg is stored as the record's error text, last write wins.
func (s *Store) Set(id string, st types.Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()

	rec, ok := s.records[id]
	if !ok {
		rec = &types.StatusRecord{CreatedAt: now}
		s.records[id] = rec
	}
	rec.Status = st
	rec.UpdatedAt = now
	if errMsg != "" {
		rec.Error = errMsg
	}

	return s.flush(now)
}

// Get returns the status for id. Absent records report pending with
// ok=false: a video the pipeline never touched is implicitly pending.
func (s *Store) Get(id string) (types.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return types.StatusPending, false
	}
	return rec.Status, true
}

// Record returns a copy of the full status record for id.
func (s *Store) Record(id string) (types.StatusRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return types.StatusRecord{}, false
	}
	return *rec, true
}

// IsCompleted reports whether the video finished successfully.
func (s *Store) IsCompleted(id string) bool {
	st, _ := s.Get(id)
	return st == types.StatusCompleted
}

// IsProcessing reports whether the video is currently being processed.
func (s *Store) IsProcessing(id string) bool {
	st, _ := s.Get(id)
	return st == types.StatusProcessing
}

// IsFailed reports whether the video's last run failed.
func (s *Store) IsFailed(id string) bool {
	st, _ := s.Get(id)
	return st == types.StatusFailed
}

// All returns a snapshot copy of every tracked record.
func (s *Store) All() map[string]types.StatusRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]types.StatusRecord, len(s.records))
	for id, rec := range s.records {
		out[id] = *rec
	}
	return out
}

// CountByStatus returns how many tracked videos are in each state.
func (s *Store) CountByStatus() map[types.Status]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[types.Status]int)
	for _, rec := range s.records {
		counts[rec.Status]++
	}
	return counts
}

// Len returns the number of tracked videos.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// flush writes the whole store to disk. Callers must hold s.mu.
func (s *Store) flush(now time.Time) error {
	s.lastUpdated = now

	data, err := json.MarshalIndent(snapshot{
		LastUpdated: s.lastUpdated,
		Videos:      s.records,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write status file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace status file: %w", err)
	}
	return nil
}
