package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/codebuildervaibhav/video-transcriber/internal/mediastore"
	"github.com/codebuildervaibhav/video-transcriber/internal/metrics"
	"github.com/codebuildervaibhav/video-transcriber/internal/progress"
	"github.com/codebuildervaibhav/video-transcriber/internal/status"
	"github.com/codebuildervaibhav/video-transcriber/internal/storage"
	"github.com/codebuildervaibhav/video-transcriber/internal/types"
)

// MediaStore is the acquisition side of the pipeline: listing, download
// and metadata lookup against the remote file store.
type MediaStore interface {
	ListVideos(ctx context.Context, filter mediastore.Filter) ([]types.VideoFile, error)
	Download(ctx context.Context, id, destDir string) (string, error)
	ResolveMetadata(ctx context.Context, id string) (*types.VideoMeta, error)
}

// AudioExtractor converts a local video file to normalized PCM audio.
type AudioExtractor interface {
	Extract(ctx context.Context, videoPath string) (string, error)
}

// Transcriber turns audio into a structured transcript. audioPath may be
// empty for sources that only have a public URL.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, audioURL string) (*types.Transcript, error)
}

// Mode selects the pipeline variant.
type Mode string

const (
	// ModeVideo downloads raw video and extracts audio locally before
	// transcription.
	ModeVideo Mode = "video"
	// ModeAudio transcribes pre-extracted audio straight from its public
	// URL; nothing is downloaded and no local artifacts exist.
	ModeAudio Mode = "audio"
)

// Config wires a Processor. Media, Extractor, Transcriber, Status and
// Transcripts are required; Metadata, Drive and Hub are optional and may
// be nil.
type Config struct {
	Media       MediaStore
	Extractor   AudioExtractor
	Transcriber Transcriber
	Status      *status.Store
	Transcripts *storage.TranscriptStore

	Metadata *storage.MetadataDB
	Drive    *storage.DriveClient
	Hub      *progress.Hub

	Mode        Mode
	TempDir     string
	VideoSuffix string // listing filter for raw video, default ".mp4"
	AudioSuffix string // listing filter / URL suffix for audio, default ".wav"
}

// Processor drives one video at a time through download, extraction,
// transcription and persistence, recording the outcome in the status
// store. Errors are contained per video; nothing propagates past Process.
type Processor struct {
	media       MediaStore
	extractor   AudioExtractor
	transcriber Transcriber
	store       *status.Store
	transcripts *storage.TranscriptStore
	metadata    *storage.MetadataDB
	drive       *storage.DriveClient
	hub         *progress.Hub

	mode        Mode
	tempDir     string
	videoSuffix string
	audioSuffix string
}

// NewProcessor creates a processor from cfg.
func NewProcessor(cfg Config) *Processor {
	if cfg.Mode == "" {
		cfg.Mode = ModeVideo
	}
	if cfg.VideoSuffix == "" {
		cfg.VideoSuffix = ".mp4"
	}
	if cfg.AudioSuffix == "" {
		cfg.AudioSuffix = ".wav"
	}
	return &Processor{
		media:       cfg.Media,
		extractor:   cfg.Extractor,
		transcriber: cfg.Transcriber,
		store:       cfg.Status,
		transcripts: cfg.Transcripts,
		metadata:    cfg.Metadata,
		drive:       cfg.Drive,
		hub:         cfg.Hub,
		mode:        cfg.Mode,
		tempDir:     cfg.TempDir,
		videoSuffix: cfg.VideoSuffix,
		audioSuffix: cfg.AudioSuffix,
	}
}

// StatusStore exposes the status store for the read-side handlers.
func (p *Processor) StatusStore() *status.Store {
	return p.store
}

// ProcessAll runs one batch pass: list everything, skip what is already
// completed, process the rest strictly in list order.
func (p *Processor) ProcessAll(ctx context.Context) (types.BatchSummary, error) {
	suffix := p.videoSuffix
	if p.mode == ModeAudio {
		suffix = p.audioSuffix
	}

	videos, err := p.media.ListVideos(ctx, mediastore.Filter{Suffix: suffix})
	if err != nil {
		return types.BatchSummary{}, fmt.Errorf("failed to list videos: %w", err)
	}

	summary := types.BatchSummary{Total: len(videos)}
	if len(videos) == 0 {
		log.Println("No videos found, nothing to process")
		return summary, nil
	}

	log.Printf("Found %d videos to consider", len(videos))

	for _, video := range videos {
		// Completed items are never reprocessed: this is what makes a
		// batch run safe to repeat.
		if p.store.IsCompleted(video.ID) {
			log.Printf("Video %s already completed, skipping", video.ID)
			summary.Processed++
			summary.Success++
			metrics.RecordVideoSkipped()
			p.hub.Publish(progress.Event{Type: progress.EventVideoSkipped, VideoID: video.ID})
			continue
		}

		result := p.Process(ctx, video)
		summary.Processed++
		if result.Success {
			summary.Success++
		} else {
			summary.Failed++
		}
	}

	metrics.RecordBatchRun()
	log.Printf("Batch complete: total %d, success %d, failed %d",
		summary.Total, summary.Success, summary.Failed)
	return summary, nil
}

// Process runs the pipeline for one video. The returned result is a pure
// value: every side effect (status writes, persisted transcript, temp file
// cleanup) has already happened. Panics are caught and recorded as a
// failure so one misbehaving item can never abort a batch.
func (p *Processor) Process(ctx context.Context, video types.VideoFile) (res types.ProcessResult) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("processing panic: %v", r)
			log.Printf("PANIC processing video %s: %v\n%s", video.ID, r, debug.Stack())
			if err := p.store.Set(video.ID, types.StatusFailed, msg); err != nil {
				log.Printf("Failed to record panic for %s: %v", video.ID, err)
			}
			res = types.ProcessResult{VideoID: video.ID, Error: msg, Elapsed: time.Since(start)}
			metrics.RecordVideoProcessed(false, time.Since(start).Seconds())
			p.hub.Publish(progress.Event{Type: progress.EventVideoFailed, VideoID: video.ID, Error: msg})
		}
	}()

	log.Printf("Processing video %s", video.ID)
	if err := p.store.Set(video.ID, types.StatusProcessing, ""); err != nil {
		log.Printf("Failed to mark %s processing: %v", video.ID, err)
	}
	p.hub.Publish(progress.Event{Type: progress.EventVideoStarted, VideoID: video.ID})

	var transcript *types.Transcript
	var err error
	if p.mode == ModeAudio {
		transcript, err = p.runAudio(ctx, video)
	} else {
		transcript, err = p.runVideo(ctx, video)
	}

	elapsed := time.Since(start)
	if err != nil {
		log.Printf("Video %s failed: %v", video.ID, err)
		if serr := p.store.Set(video.ID, types.StatusFailed, err.Error()); serr != nil {
			log.Printf("Failed to record failure for %s: %v", video.ID, serr)
		}
		metrics.RecordVideoProcessed(false, elapsed.Seconds())
		p.hub.Publish(progress.Event{Type: progress.EventVideoFailed, VideoID: video.ID, Error: err.Error()})
		return types.ProcessResult{VideoID: video.ID, Error: err.Error(), Elapsed: elapsed}
	}

	if serr := p.store.Set(video.ID, types.StatusCompleted, ""); serr != nil {
		log.Printf("Failed to record completion for %s: %v", video.ID, serr)
	}
	metrics.RecordVideoProcessed(true, elapsed.Seconds())
	p.hub.Publish(progress.Event{Type: progress.EventVideoCompleted, VideoID: video.ID})

	log.Printf("Video %s completed in %.2fs", video.ID, elapsed.Seconds())
	return types.ProcessResult{
		VideoID:    video.ID,
		Success:    true,
		Transcript: transcript,
		Elapsed:    elapsed,
	}
}

// runVideo is the full variant: download, extract, transcribe, persist.
// The defers remove both temp artifacts on every exit path.
func (p *Processor) runVideo(ctx context.Context, video types.VideoFile) (*types.Transcript, error) {
	videoPath, err := p.media.Download(ctx, video.ID, p.tempDir)
	if err != nil {
		return nil, &StepError{Step: StepDownload, Err: err}
	}
	defer p.removeTemp(videoPath)

	audioPath, err := p.extractor.Extract(ctx, videoPath)
	if err != nil {
		return nil, &StepError{Step: StepExtract, Err: err}
	}
	defer p.removeTemp(audioPath)

	// The store serves the extracted audio next to the video under the
	// same name, so the public audio URL is the video URL re-suffixed.
	audioURL := strings.Replace(video.URL, p.videoSuffix, p.audioSuffix, 1)

	transcript, err := p.transcriber.Transcribe(ctx, audioPath, audioURL)
	if err != nil {
		return nil, &StepError{Step: StepTranscribe, Err: err}
	}
	transcript.VideoID = video.ID

	if err := p.persist(ctx, video, transcript); err != nil {
		return nil, &StepError{Step: StepPersist, Err: err}
	}
	return transcript, nil
}

// runAudio is the audio-only variant: the listing already points at
// normalized audio, so there is nothing to download or extract.
func (p *Processor) runAudio(ctx context.Context, video types.VideoFile) (*types.Transcript, error) {
	transcript, err := p.transcriber.Transcribe(ctx, "", video.URL)
	if err != nil {
		return nil, &StepError{Step: StepTranscribe, Err: err}
	}
	transcript.VideoID = video.ID

	if err := p.persist(ctx, video, transcript); err != nil {
		return nil, &StepError{Step: StepPersist, Err: err}
	}
	return transcript, nil
}

// persist writes the transcript artifact and updates the optional mirrors.
// Only the artifact write can fail the pipeline; the metadata index and
// the Drive mirror are best-effort.
func (p *Processor) persist(ctx context.Context, video types.VideoFile, transcript *types.Transcript) error {
	localPath, err := p.transcripts.Save(transcript)
	if err != nil {
		return err
	}

	meta, err := p.media.ResolveMetadata(ctx, video.ID)
	if err != nil {
		log.Printf("Metadata lookup for %s failed: %v", video.ID, err)
	}

	driveURL := ""
	if p.drive != nil {
		driveURL = p.mirrorToDrive(transcript, meta)
	}

	if p.metadata != nil {
		if err := p.metadata.Save(transcript, meta, localPath, driveURL); err != nil {
			log.Printf("Metadata index save for %s failed: %v", video.ID, err)
		}
	}
	return nil
}

// mirrorToDrive uploads with retry and backoff; failure is logged, never
// propagated.
func (p *Processor) mirrorToDrive(transcript *types.Transcript, meta *types.VideoMeta) string {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		var url string
		url, err = p.drive.Upload(transcript, meta)
		if err == nil {
			return url
		}
		log.Printf("Drive upload attempt %d/3 for %s failed: %v", attempt, transcript.VideoID, err)
		if attempt < 3 {
			time.Sleep(time.Duration(attempt*attempt) * time.Second)
		}
	}
	log.Printf("WARNING: Drive mirror for %s gave up after 3 attempts, transcript kept locally only",
		transcript.VideoID)
	return ""
}

// removeTemp deletes a temporary artifact. Missing files are fine: the
// cleanup discipline is unconditional, so double removal can happen.
func (p *Processor) removeTemp(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to remove temp file %s: %v", path, err)
	}
}
