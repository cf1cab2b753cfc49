package handlers

import (
	"sort"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/video-transcriber/internal/status"
	"github.com/codebuildervaibhav/video-transcriber/internal/storage"
	"github.com/codebuildervaibhav/video-transcriber/internal/types"
)

// VideosHandler is the read-only view over the status store and the
// persisted transcripts.
type VideosHandler struct {
	store       *status.Store
	transcripts *storage.TranscriptStore
}

// NewVideosHandler creates the read-side handler.
func NewVideosHandler(store *status.Store, transcripts *storage.TranscriptStore) *VideosHandler {
	return &VideosHandler{store: store, transcripts: transcripts}
}

// HandleResult returns the processing result for one video id. A video the
// pipeline never touched reports pending.
func (h *VideosHandler) HandleResult(c *fiber.Ctx) error {
	videoID := c.Params("id")

	rec, ok := h.store.Record(videoID)
	if !ok {
		return c.JSON(fiber.Map{
			"success": true,
			"data": fiber.Map{
				"video_id": videoID,
				"status":   types.StatusPending,
				"message":  "video has not been processed yet",
			},
		})
	}

	switch rec.Status {
	case types.StatusProcessing:
		return c.JSON(fiber.Map{
			"success": true,
			"data": fiber.Map{
				"video_id": videoID,
				"status":   types.StatusProcessing,
				"message":  "video is being processed",
			},
		})
	case types.StatusFailed:
		return c.JSON(fiber.Map{
			"success": true,
			"data": fiber.Map{
				"video_id": videoID,
				"status":   types.StatusFailed,
				"error":    rec.Error,
			},
		})
	}

	transcript, err := h.transcripts.Load(videoID)
	if err != nil {
		return c.JSON(fiber.Map{
			"success": true,
			"data": fiber.Map{
				"video_id": videoID,
				"status":   types.StatusCompleted,
				"message":  "transcript file not found",
			},
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"video_id":       transcript.VideoID,
			"status":         types.StatusCompleted,
			"text":           transcript.Text,
			"segments":       transcript.Segments,
			"confidence":     transcript.Confidence,
			"audio_duration": transcript.AudioDuration,
		},
	})
}

type videoStatusEntry struct {
	VideoID string `json:"video_id"`
	types.StatusRecord
}

// HandleList enumerates tracked videos with their status, optionally
// filtered by status value and paginated.
func (h *VideosHandler) HandleList(c *fiber.Ctx) error {
	filter := types.Status(c.Query("status"))
	if filter != "" && !filter.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown status filter: " + string(filter),
			"code":  "ERR_INVALID_STATUS",
		})
	}

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := c.QueryInt("page_size", 20)
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	all := h.store.All()
	entries := make([]videoStatusEntry, 0, len(all))
	for id, rec := range all {
		if filter != "" && rec.Status != filter {
			continue
		}
		entries = append(entries, videoStatusEntry{VideoID: id, StatusRecord: rec})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].VideoID < entries[j].VideoID })

	total := len(entries)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
		"videos":    entries[start:end],
	})
}

// HandleStats aggregates counts per status plus the run success rate:
// completed / (completed + failed), zero before any terminal outcome.
func (h *VideosHandler) HandleStats(c *fiber.Ctx) error {
	counts := h.store.CountByStatus()

	completed := counts[types.StatusCompleted]
	failed := counts[types.StatusFailed]

	successRate := 0.0
	if completed+failed > 0 {
		successRate = float64(completed) / float64(completed+failed)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"total":        h.store.Len(),
			"processing":   counts[types.StatusProcessing],
			"completed":    completed,
			"failed":       failed,
			"success_rate": successRate,
		},
	})
}
