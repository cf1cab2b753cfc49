package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/codebuildervaibhav/video-transcriber/internal/metrics"
	"github.com/codebuildervaibhav/video-transcriber/internal/types"
)

const defaultBaseURL = "https://dashscope.aliyuncs.com"

// Config holds the transcription service settings. Zero values fall back
// to the service defaults.
type Config struct {
	APIKey       string
	Model        string
	BaseURL      string
	MaxWait      time.Duration // total poll budget, default 5m
	PollInterval time.Duration // default 2s
	HTTPTimeout  time.Duration // per-request timeout, default 30s
}

// Client submits audio to the asynchronous speech-recognition API and
// polls for completion. The remote job model is submit-then-poll: a task
// id comes back immediately and the transcript is fetched from a result
// URL once the task reports SUCCEEDED. Exceeding the poll budget is a
// transcription failure, never fatal to the caller's batch loop.
type Client struct {
	apiKey       string
	model        string
	baseURL      string
	maxWait      time.Duration
	pollInterval time.Duration
	http         *http.Client
}

// NewClient creates a transcription client from cfg.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "fun-asr"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 5 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.APIKey == "" {
		log.Println("WARNING: ASR API key not configured, transcription will fail")
	}

	return &Client{
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		baseURL:      cfg.BaseURL,
		maxWait:      cfg.MaxWait,
		pollInterval: cfg.PollInterval,
		http:         &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// Transcribe submits the audio at audioURL and waits for the transcript.
// audioPath, when non-empty, is the local copy of the same audio and is
// only sanity-checked for existence; the remote service fetches the audio
// itself from the public URL.
func (c *Client) Transcribe(ctx context.Context, audioPath, audioURL string) (*types.Transcript, error) {
	if audioPath != "" {
		if _, err := os.Stat(audioPath); err != nil {
			return nil, fmt.Errorf("audio file not found: %w", err)
		}
	}

	taskID, err := c.submit(ctx, audioURL)
	if err != nil {
		return nil, fmt.Errorf("task submission failed: %w", err)
	}
	metrics.RecordTranscriptionTask("submitted")
	log.Printf("ASR task submitted: %s", taskID)

	output, err := c.waitForResult(ctx, taskID)
	if err != nil {
		return nil, err
	}

	transcript, err := c.fetchTranscript(ctx, output)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transcript for task %s: %w", taskID, err)
	}

	metrics.RecordTranscriptionTask("succeeded")
	log.Printf("ASR task %s completed: %d segments, %.2fs audio",
		taskID, len(transcript.Segments), transcript.AudioDuration)
	return transcript, nil
}

type submitRequest struct {
	Model string `json:"model"`
	Input struct {
		FileURLs []string `json:"file_urls"`
	} `json:"input"`
	Parameters struct {
		ChannelID []int `json:"channel_id"`
	} `json:"parameters"`
}

type submitResponse struct {
	Output struct {
		TaskID string `json:"task_id"`
	} `json:"output"`
	Message string `json:"message"`
}

func (c *Client) submit(ctx context.Context, audioURL string) (string, error) {
	body := submitRequest{Model: c.model}
	body.Input.FileURLs = []string{audioURL}
	body.Parameters.ChannelID = []int{0}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	url := c.baseURL + "/api/v1/services/audio/asr/transcription"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-DashScope-Async", "enable")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, raw)
	}

	var result submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.Output.TaskID == "" {
		return "", fmt.Errorf("no task id in response: %s", result.Message)
	}
	return result.Output.TaskID, nil
}

type taskResponse struct {
	Output struct {
		TaskStatus string `json:"task_status"`
		Message    string `json:"message"`
		Results    []struct {
			TranscriptionURL string `json:"transcription_url"`
			SubtaskStatus    string `json:"subtask_status"`
		} `json:"results"`
	} `json:"output"`
}

// waitForResult polls the task endpoint until the task finishes, fails or
// the poll budget is exhausted.
func (c *Client) waitForResult(ctx context.Context, taskID string) (*taskResponse, error) {
	deadline := time.Now().Add(c.maxWait)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("transcription cancelled: %w", ctx.Err())
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			metrics.RecordTranscriptionTask("timeout")
			return nil, fmt.Errorf("transcription task %s timed out after %s", taskID, c.maxWait)
		}

		result, err := c.queryTask(ctx, taskID)
		if err != nil {
			return nil, fmt.Errorf("task query failed: %w", err)
		}

		switch result.Output.TaskStatus {
		case "SUCCEEDED":
			return result, nil
		case "FAILED":
			metrics.RecordTranscriptionTask("failed")
			msg := result.Output.Message
			if msg == "" {
				msg = "no failure detail"
			}
			return nil, fmt.Errorf("transcription task %s failed: %s", taskID, msg)
		default:
			// PENDING or RUNNING, keep polling.
		}
	}
}

func (c *Client) queryTask(ctx context.Context, taskID string) (*taskResponse, error) {
	url := fmt.Sprintf("%s/api/v1/tasks/%s", c.baseURL, taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var result taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// transcriptionPayload is the document behind the task's transcription_url.
type transcriptionPayload struct {
	Properties struct {
		OriginalDurationMs int64 `json:"original_duration_in_milliseconds"`
	} `json:"properties"`
	Transcripts []struct {
		Text      string `json:"text"`
		Sentences []struct {
			BeginTime int64  `json:"begin_time"`
			EndTime   int64  `json:"end_time"`
			Text      string `json:"text"`
			Words     []struct {
				PunctuationProbability *float64 `json:"punctuation_probability"`
			} `json:"words"`
		} `json:"sentences"`
	} `json:"transcripts"`
}

// fetchTranscript downloads the result document of a succeeded task and
// normalizes it. Sentence timestamps arrive in milliseconds; segment
// confidence is the mean word punctuation probability (0.5 when a word
// carries none) and the overall confidence is the segment mean.
func (c *Client) fetchTranscript(ctx context.Context, task *taskResponse) (*types.Transcript, error) {
	if len(task.Output.Results) == 0 {
		return nil, fmt.Errorf("task succeeded with no results")
	}
	url := task.Output.Results[0].TranscriptionURL
	if url == "" {
		return nil, fmt.Errorf("task result has no transcription URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var payload transcriptionPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return parseTranscript(&payload), nil
}

func parseTranscript(payload *transcriptionPayload) *types.Transcript {
	t := &types.Transcript{
		AudioDuration: float64(payload.Properties.OriginalDurationMs) / 1000.0,
		Segments:      []types.Segment{},
	}
	if len(payload.Transcripts) == 0 {
		return t
	}

	// Only one audio track is ever submitted per task.
	track := payload.Transcripts[0]
	t.Text = track.Text

	var confidenceSum float64
	for _, sentence := range track.Sentences {
		confidence := 0.0
		if len(sentence.Words) > 0 {
			var sum float64
			for _, w := range sentence.Words {
				if w.PunctuationProbability != nil {
					sum += *w.PunctuationProbability
				} else {
					sum += 0.5
				}
			}
			confidence = sum / float64(len(sentence.Words))
		}

		t.Segments = append(t.Segments, types.Segment{
			Start:      float64(sentence.BeginTime) / 1000.0,
			End:        float64(sentence.EndTime) / 1000.0,
			Text:       sentence.Text,
			Confidence: confidence,
		})
		confidenceSum += confidence
	}

	if len(t.Segments) > 0 {
		t.Confidence = confidenceSum / float64(len(t.Segments))
	}
	return t
}
