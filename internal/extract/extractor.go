package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// commandRunner abstracts subprocess execution so tests can substitute a
// fake ffmpeg.
type commandRunner interface {
	run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Extractor converts video containers to normalized PCM WAV audio via
// ffmpeg. The target format is fixed per ASR requirements: 16-bit PCM at
// the configured sample rate and channel count.
type Extractor struct {
	tempDir    string
	sampleRate int
	channels   int
	runner     commandRunner
}

// NewExtractor creates an audio extractor writing into tempDir.
// Zero sampleRate/channels fall back to 16 kHz mono.
func NewExtractor(tempDir string, sampleRate, channels int) *Extractor {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}
	return &Extractor{
		tempDir:    tempDir,
		sampleRate: sampleRate,
		channels:   channels,
		runner:     execRunner{},
	}
}

// Extract produces tempDir/{stem}.wav from the given video file. A partial
// output file is removed on failure.
func (e *Extractor) Extract(ctx context.Context, videoPath string) (string, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return "", fmt.Errorf("video file not found: %w", err)
	}
	if err := os.MkdirAll(e.tempDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	outPath := filepath.Join(e.tempDir, stem+".wav")

	args := []string{
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(e.sampleRate),
		"-ac", strconv.Itoa(e.channels),
		"-y",
		outPath,
	}

	output, err := e.runner.run(ctx, "ffmpeg", args...)
	if err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("ffmpeg failed: %v: %s", err, truncate(output, 512))
	}

	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("ffmpeg produced no output file: %w", err)
	}
	return outPath, nil
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
