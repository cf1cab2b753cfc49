package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/video-transcriber/internal/mediastore"
	"github.com/codebuildervaibhav/video-transcriber/internal/status"
	"github.com/codebuildervaibhav/video-transcriber/internal/storage"
	"github.com/codebuildervaibhav/video-transcriber/internal/types"
)

// fakeMedia serves a fixed listing and writes download artifacts the way
// the real client does.
type fakeMedia struct {
	mu          sync.Mutex
	videos      []types.VideoFile
	listErr     error
	downloadErr map[string]error
	downloads   map[string]int
	meta        map[string]*types.VideoMeta
}

func (m *fakeMedia) ListVideos(ctx context.Context, filter mediastore.Filter) ([]types.VideoFile, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.videos, nil
}

func (m *fakeMedia) Download(ctx context.Context, id, destDir string) (string, error) {
	m.mu.Lock()
	if m.downloads == nil {
		m.downloads = make(map[string]int)
	}
	m.downloads[id]++
	m.mu.Unlock()

	if err := m.downloadErr[id]; err != nil {
		return "", err
	}
	path := filepath.Join(destDir, id+".mp4")
	if err := os.WriteFile(path, []byte("video-"+id), 0644); err != nil {
		return "", err
	}
	return path, nil
}

func (m *fakeMedia) ResolveMetadata(ctx context.Context, id string) (*types.VideoMeta, error) {
	return m.meta[id], nil
}

// fakeExtractor writes a wav next to nothing in particular, mimicking the
// real extractor's tempDir/{stem}.wav contract.
type fakeExtractor struct {
	mu      sync.Mutex
	tempDir string
	errFor  map[string]error
	calls   int
}

func (e *fakeExtractor) Extract(ctx context.Context, videoPath string) (string, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	stem := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	if err := e.errFor[stem]; err != nil {
		return "", err
	}
	out := filepath.Join(e.tempDir, stem+".wav")
	if err := os.WriteFile(out, []byte("audio-"+stem), 0644); err != nil {
		return "", err
	}
	return out, nil
}

// fakeTranscriber returns canned transcripts, counts calls per audio URL
// and can fail, panic or run a probe callback per video id.
type fakeTranscriber struct {
	mu       sync.Mutex
	calls    map[string]int
	failFor  map[string]error
	panicFor map[string]bool
	probe    func(id string)
	result   func(id string) *types.Transcript
	lastURL  map[string]string
}

func idFromURL(audioURL string) string {
	base := filepath.Base(audioURL)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (tr *fakeTranscriber) Transcribe(ctx context.Context, audioPath, audioURL string) (*types.Transcript, error) {
	id := idFromURL(audioURL)

	tr.mu.Lock()
	if tr.calls == nil {
		tr.calls = make(map[string]int)
	}
	if tr.lastURL == nil {
		tr.lastURL = make(map[string]string)
	}
	tr.calls[id]++
	tr.lastURL[id] = audioURL
	tr.mu.Unlock()

	if tr.probe != nil {
		tr.probe(id)
	}
	if tr.panicFor[id] {
		panic("transcriber exploded")
	}
	if err := tr.failFor[id]; err != nil {
		return nil, err
	}
	if tr.result != nil {
		return tr.result(id), nil
	}
	return &types.Transcript{
		Text:          "text for " + id,
		Segments:      []types.Segment{{Start: 0, End: 1, Text: "text for " + id, Confidence: 0.8}},
		Confidence:    0.8,
		AudioDuration: 1,
	}, nil
}

type testEnv struct {
	processor   *Processor
	media       *fakeMedia
	extractor   *fakeExtractor
	transcriber *fakeTranscriber
	store       *status.Store
	transcripts *storage.TranscriptStore
	tempDir     string
}

func newTestEnv(t *testing.T, mode Mode, videos ...types.VideoFile) *testEnv {
	t.Helper()

	root := t.TempDir()
	tempDir := filepath.Join(root, "temp")
	require.NoError(t, os.MkdirAll(tempDir, 0755))

	store, err := status.NewStore(filepath.Join(root, "status.json"))
	require.NoError(t, err)

	env := &testEnv{
		media:       &fakeMedia{videos: videos},
		extractor:   &fakeExtractor{tempDir: tempDir},
		transcriber: &fakeTranscriber{},
		store:       store,
		transcripts: storage.NewTranscriptStore(filepath.Join(root, "output")),
		tempDir:     tempDir,
	}
	env.processor = NewProcessor(Config{
		Media:       env.media,
		Extractor:   env.extractor,
		Transcriber: env.transcriber,
		Status:      env.store,
		Transcripts: env.transcripts,
		Mode:        mode,
		TempDir:     tempDir,
	})
	return env
}

func video(id string) types.VideoFile {
	return types.VideoFile{
		ID:       id,
		Filename: id + ".mp4",
		Size:     100,
		URL:      "http://host/files/" + id + ".mp4",
	}
}

func audioOnly(id string) types.VideoFile {
	return types.VideoFile{
		ID:       id,
		Filename: id + ".wav",
		Size:     100,
		URL:      "http://host/audio/" + id + ".wav",
	}
}

func assertTempEmpty(t *testing.T, tempDir string) {
	t.Helper()
	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp dir must hold no leftover artifacts")
}

func TestProcessAudioOnlyScenario(t *testing.T) {
	// Item "abc123" with audio URL http://host/audio/abc123.wav: one
	// segment [0.0,1.2] at confidence 0.9 must persist with overall
	// confidence 0.9 and end completed.
	env := newTestEnv(t, ModeAudio, audioOnly("abc123"))
	env.transcriber.result = func(id string) *types.Transcript {
		return &types.Transcript{
			Text:          "hello world",
			Segments:      []types.Segment{{Start: 0.0, End: 1.2, Text: "hello world", Confidence: 0.9}},
			Confidence:    0.9,
			AudioDuration: 1.2,
		}
	}

	summary, err := env.processor.ProcessAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.BatchSummary{Total: 1, Processed: 1, Success: 1}, summary)

	st, ok := env.store.Get("abc123")
	assert.True(t, ok)
	assert.Equal(t, types.StatusCompleted, st)

	saved, err := env.transcripts.Load("abc123")
	require.NoError(t, err)
	assert.Equal(t, "hello world", saved.Text)
	assert.InDelta(t, 0.9, saved.Confidence, 1e-9)
	assert.InDelta(t, 1.2, saved.AudioDuration, 1e-9)

	// Audio-only pipeline never downloads or extracts.
	assert.Empty(t, env.media.downloads)
	assert.Equal(t, 0, env.extractor.calls)
	assert.Equal(t, "http://host/audio/abc123.wav", env.transcriber.lastURL["abc123"])
}

func TestProcessVideoPipeline(t *testing.T) {
	env := newTestEnv(t, ModeVideo, video("v1"))

	summary, err := env.processor.ProcessAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.BatchSummary{Total: 1, Processed: 1, Success: 1}, summary)

	assert.Equal(t, 1, env.media.downloads["v1"])
	assert.Equal(t, 1, env.extractor.calls)
	// Audio URL derives from the video URL by suffix replacement.
	assert.Equal(t, "http://host/files/v1.wav", env.transcriber.lastURL["v1"])

	assert.True(t, env.transcripts.Exists("v1"))
	assertTempEmpty(t, env.tempDir)
}

func TestIdempotentSkip(t *testing.T) {
	env := newTestEnv(t, ModeVideo, video("v1"), video("v2"))

	_, err := env.processor.ProcessAll(context.Background())
	require.NoError(t, err)

	before, err := os.ReadFile(env.transcripts.Path("v1"))
	require.NoError(t, err)

	// Second run: both items completed, nothing re-invoked.
	downloadsBefore := env.media.downloads["v1"] + env.media.downloads["v2"]
	extractsBefore := env.extractor.calls
	transcribesBefore := env.transcriber.calls["v1"] + env.transcriber.calls["v2"]

	summary, err := env.processor.ProcessAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.BatchSummary{Total: 2, Processed: 2, Success: 2}, summary)

	assert.Equal(t, downloadsBefore, env.media.downloads["v1"]+env.media.downloads["v2"])
	assert.Equal(t, extractsBefore, env.extractor.calls)
	assert.Equal(t, transcribesBefore, env.transcriber.calls["v1"]+env.transcriber.calls["v2"])

	after, err := os.ReadFile(env.transcripts.Path("v1"))
	require.NoError(t, err)
	assert.Equal(t, before, after, "persisted transcript must stay byte-identical")
}

func TestFailureIsolation(t *testing.T) {
	env := newTestEnv(t, ModeVideo, video("v1"), video("v2"), video("v3"))
	env.transcriber.failFor = map[string]error{"v2": errors.New("asr rejected audio")}

	summary, err := env.processor.ProcessAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.BatchSummary{Total: 3, Processed: 3, Success: 2, Failed: 1}, summary)

	assert.True(t, env.store.IsCompleted("v1"))
	assert.True(t, env.store.IsFailed("v2"))
	assert.True(t, env.store.IsCompleted("v3"))

	rec, ok := env.store.Record("v2")
	require.True(t, ok)
	assert.Equal(t, "transcribe failed: asr rejected audio", rec.Error)

	assertTempEmpty(t, env.tempDir)
}

func TestCleanupInvariant(t *testing.T) {
	t.Run("download failure", func(t *testing.T) {
		env := newTestEnv(t, ModeVideo, video("v1"))
		env.media.downloadErr = map[string]error{"v1": errors.New("connection refused")}

		result := env.processor.Process(context.Background(), video("v1"))
		assert.False(t, result.Success)
		assert.Equal(t, "download failed: connection refused", result.Error)
		assert.True(t, env.store.IsFailed("v1"))
		assertTempEmpty(t, env.tempDir)
	})

	t.Run("extraction failure removes downloaded video", func(t *testing.T) {
		env := newTestEnv(t, ModeVideo, video("v1"))
		env.extractor.errFor = map[string]error{"v1": errors.New("bad container")}

		result := env.processor.Process(context.Background(), video("v1"))
		assert.False(t, result.Success)
		assert.Equal(t, "extract failed: bad container", result.Error)
		assertTempEmpty(t, env.tempDir)
	})

	t.Run("transcription failure removes both artifacts", func(t *testing.T) {
		env := newTestEnv(t, ModeVideo, video("v1"))
		env.transcriber.failFor = map[string]error{"v1": errors.New("timeout")}

		result := env.processor.Process(context.Background(), video("v1"))
		assert.False(t, result.Success)
		assertTempEmpty(t, env.tempDir)
	})

	t.Run("success removes both artifacts", func(t *testing.T) {
		env := newTestEnv(t, ModeVideo, video("v1"))

		result := env.processor.Process(context.Background(), video("v1"))
		assert.True(t, result.Success)
		assertTempEmpty(t, env.tempDir)
	})
}

func TestMonotonicStatus(t *testing.T) {
	env := newTestEnv(t, ModeVideo, video("v1"))

	// The item must be in processing state while the transcriber runs:
	// no pending -> completed shortcut.
	sawProcessing := false
	env.transcriber.probe = func(id string) {
		sawProcessing = env.store.IsProcessing(id)
	}

	result := env.processor.Process(context.Background(), video("v1"))
	require.True(t, result.Success)
	assert.True(t, sawProcessing)
	assert.True(t, env.store.IsCompleted("v1"))
}

func TestEmptyListing(t *testing.T) {
	env := newTestEnv(t, ModeVideo)

	summary, err := env.processor.ProcessAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.BatchSummary{}, summary)
	assert.Equal(t, 0, env.store.Len(), "empty run must perform no status writes")
}

func TestListingFailure(t *testing.T) {
	env := newTestEnv(t, ModeVideo)
	env.media.listErr = errors.New("store unreachable")

	_, err := env.processor.ProcessAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unreachable")
}

func TestPanicIsContained(t *testing.T) {
	env := newTestEnv(t, ModeVideo, video("v1"), video("v2"))
	env.transcriber.panicFor = map[string]bool{"v1": true}

	summary, err := env.processor.ProcessAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.BatchSummary{Total: 2, Processed: 2, Success: 1, Failed: 1}, summary)

	rec, ok := env.store.Record("v1")
	require.True(t, ok)
	assert.Equal(t, types.StatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "processing panic")
	assert.True(t, env.store.IsCompleted("v2"))
	assertTempEmpty(t, env.tempDir)
}

func TestFailedItemIsRetriedNextRun(t *testing.T) {
	env := newTestEnv(t, ModeVideo, video("v1"))
	env.transcriber.failFor = map[string]error{"v1": errors.New("flaky")}

	summary, err := env.processor.ProcessAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	// Clear the failure and re-run: the item re-enters processing.
	env.transcriber.failFor = nil
	summary, err = env.processor.ProcessAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Success)
	assert.True(t, env.store.IsCompleted("v1"))
	assert.Equal(t, 2, env.transcriber.calls["v1"])
}

func TestReprocessingOverwritesTranscript(t *testing.T) {
	env := newTestEnv(t, ModeAudio, audioOnly("v1"))

	env.transcriber.result = func(id string) *types.Transcript {
		return &types.Transcript{Text: "first pass", Segments: []types.Segment{}}
	}
	res := env.processor.Process(context.Background(), audioOnly("v1"))
	require.True(t, res.Success)

	env.transcriber.result = func(id string) *types.Transcript {
		return &types.Transcript{Text: "second pass", Segments: []types.Segment{}}
	}
	res = env.processor.Process(context.Background(), audioOnly("v1"))
	require.True(t, res.Success)

	saved, err := env.transcripts.Load("v1")
	require.NoError(t, err)
	assert.Equal(t, "second pass", saved.Text)
}

func TestProcessResultElapsed(t *testing.T) {
	env := newTestEnv(t, ModeAudio, audioOnly("v1"))
	res := env.processor.Process(context.Background(), audioOnly("v1"))
	require.True(t, res.Success)
	assert.Equal(t, "v1", res.VideoID)
	require.NotNil(t, res.Transcript)
	assert.Greater(t, res.Elapsed.Nanoseconds(), int64(0))
}

func TestMetadataIndexIsUpdated(t *testing.T) {
	env := newTestEnv(t, ModeAudio, audioOnly("v1"))

	db, err := storage.NewMetadataDB(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	defer db.Close()
	env.processor.metadata = db

	env.media.meta = map[string]*types.VideoMeta{
		"v1": {Title: "Street food tour", Author: "li_wei"},
	}

	res := env.processor.Process(context.Background(), audioOnly("v1"))
	require.True(t, res.Success, fmt.Sprintf("unexpected failure: %s", res.Error))

	row, err := db.Get("v1")
	require.NoError(t, err)
	assert.Equal(t, "Street food tour", row.Title)
	assert.Equal(t, "li_wei", row.Author)
	assert.Equal(t, env.transcripts.Path("v1"), row.LocalPath)
}
