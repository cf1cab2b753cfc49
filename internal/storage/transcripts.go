package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/codebuildervaibhav/video-transcriber/internal/types"
)

// TranscriptStore persists one JSON transcript artifact per video under the
// output directory. Artifacts are immutable once written except for a full
// overwrite when a video is reprocessed.
type TranscriptStore struct {
	outputDir string
}

// NewTranscriptStore creates a transcript store rooted at outputDir.
func NewTranscriptStore(outputDir string) *TranscriptStore {
	return &TranscriptStore{outputDir: outputDir}
}

// Path returns the artifact path for a video id.
func (s *TranscriptStore) Path(videoID string) string {
	return filepath.Join(s.outputDir, videoID+".json")
}

// Save writes the transcript for its video id, replacing any previous
// artifact wholesale. The write goes through a temp file + rename so a
// crash never leaves a half-written transcript behind.
func (s *TranscriptStore) Save(t *types.Transcript) (string, error) {
	if t.VideoID == "" {
		return "", fmt.Errorf("transcript has no video id")
	}
	if err := os.MkdirAll(s.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal transcript: %w", err)
	}

	path := s.Path(t.VideoID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to replace transcript: %w", err)
	}
	return path, nil
}

// Load reads the persisted transcript for a video id.
func (s *TranscriptStore) Load(videoID string) (*types.Transcript, error) {
	data, err := os.ReadFile(s.Path(videoID))
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript for %s: %w", videoID, err)
	}
	var t types.Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse transcript for %s: %w", videoID, err)
	}
	return &t, nil
}

// Exists reports whether a transcript artifact is present for the id.
func (s *TranscriptStore) Exists(videoID string) bool {
	_, err := os.Stat(s.Path(videoID))
	return err == nil
}
