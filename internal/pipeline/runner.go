package pipeline

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codebuildervaibhav/video-transcriber/internal/progress"
	"github.com/codebuildervaibhav/video-transcriber/internal/types"
)

// ErrRunInProgress is returned when a batch run is requested while another
// one is still in flight. Only one run may be active per process.
var ErrRunInProgress = errors.New("batch run already in progress")

// RunInfo describes one batch run.
type RunInfo struct {
	ID         string              `json:"id"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at,omitempty"`
	Summary    *types.BatchSummary `json:"summary,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// Runner is the single-flight guard around batch runs. Synchronous and
// background triggers share the same guard, so two overlapping runs can
// never race on the same items.
type Runner struct {
	processor *Processor
	hub       *progress.Hub

	mu      sync.Mutex
	running bool
	current *RunInfo
	last    *RunInfo
}

// NewRunner creates a runner for the given processor.
func NewRunner(processor *Processor, hub *progress.Hub) *Runner {
	return &Runner{processor: processor, hub: hub}
}

// Run executes a batch run synchronously, failing fast with
// ErrRunInProgress when one is already active.
func (r *Runner) Run(ctx context.Context) (types.BatchSummary, error) {
	runID, err := r.begin()
	if err != nil {
		return types.BatchSummary{}, err
	}

	summary, err := r.processor.ProcessAll(ctx)
	r.finish(runID, summary, err)
	return summary, err
}

// StartAsync launches a batch run in the background and returns its run id
// immediately. The run's outcome is observable through Status and the
// progress stream.
func (r *Runner) StartAsync() (string, error) {
	runID, err := r.begin()
	if err != nil {
		return "", err
	}

	go func() {
		summary, err := r.processor.ProcessAll(context.Background())
		if err != nil {
			log.Printf("Background run %s failed: %v", runID, err)
		}
		r.finish(runID, summary, err)
	}()

	return runID, nil
}

// Status reports whether a run is active plus the current/last run info.
func (r *Runner) Status() (bool, *RunInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		info := *r.current
		return true, &info
	}
	if r.last != nil {
		info := *r.last
		return false, &info
	}
	return false, nil
}

func (r *Runner) begin() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return "", ErrRunInProgress
	}

	runID := uuid.New().String()
	r.running = true
	r.current = &RunInfo{ID: runID, StartedAt: time.Now().UTC()}

	log.Printf("Batch run %s started", runID)
	r.hub.Publish(progress.Event{Type: progress.EventRunStarted, RunID: runID})
	return runID, nil
}

func (r *Runner) finish(runID string, summary types.BatchSummary, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := r.current
	info.FinishedAt = time.Now().UTC()
	info.Summary = &summary
	if err != nil {
		info.Error = err.Error()
	}

	r.running = false
	r.current = nil
	r.last = info

	log.Printf("Batch run %s finished", runID)
	r.hub.Publish(progress.Event{
		Type:    progress.EventRunFinished,
		RunID:   runID,
		Summary: &summary,
		Error:   info.Error,
	})
}
